package osc1lite

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
)

// HTTPWrapper wraps a controller in an HTTP control interface
type HTTPWrapper struct {
	*OSC1Lite
}

// NewHTTPWrapper creates an HTTP wrapper around a controller
func NewHTTPWrapper(dev *OSC1Lite) HTTPWrapper {
	return HTTPWrapper{OSC1Lite: dev}
}

// Routes returns a router with every channel operation bound
func (h HTTPWrapper) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/channels", h.GetChannels)
	r.Get("/warnings", h.GetWarnings)
	r.Post("/enable", h.SetEnable)
	r.Post("/trigger-mode", h.SetTriggerMode)
	r.Post("/trigger-source", h.SetTriggerSource)
	r.Post("/trigger-out", h.SetTriggerOut)
	r.Post("/trigger", h.Trigger)
	r.Post("/channel/{index}/waveform", h.SetWaveform)
	r.Post("/channel/{index}/stop", h.Stop)
	return r
}

// channelSet is used to decode multi-channel commands over JSON
type channelSet struct {
	Channels []int `json:"channels"`
	On       bool  `json:"on"`
}

// channelView is the JSON rendering of one channel's state
type channelView struct {
	Index           int             `json:"index"`
	Shank           string          `json:"shank"`
	Enabled         bool            `json:"enabled"`
	Continuous      bool            `json:"continuous"`
	ExternalTrigger bool            `json:"externalTrigger"`
	TriggerOut      bool            `json:"triggerOut"`
	Waveform        *SquareWaveform `json:"waveform,omitempty"`
}

func decodeChannelSet(w http.ResponseWriter, r *http.Request) (channelSet, bool) {
	var cs channelSet
	err := json.NewDecoder(r.Body).Decode(&cs)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return cs, false
	}
	return cs, true
}

// replyError maps controller errors onto HTTP statuses
func replyError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotReady):
		status = http.StatusConflict
	case errors.Is(err, ErrBadChannel),
		errors.Is(err, ErrAmplitudeOutOfRange),
		errors.Is(err, ErrInvalidMode),
		errors.Is(err, ErrInvalidTiming):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

// GetChannels returns the per-channel configuration as JSON
func (h HTTPWrapper) GetChannels(w http.ResponseWriter, r *http.Request) {
	chans := h.OSC1Lite.Channels()
	views := make([]channelView, NumChannels)
	for i, c := range chans {
		views[i] = channelView{
			Index:           i,
			Shank:           ShankPositions[i],
			Enabled:         c.Enabled,
			Continuous:      c.Continuous,
			ExternalTrigger: c.ExternalTrigger,
			TriggerOut:      c.TriggerOut,
			Waveform:        c.Waveform,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetWarnings reads and clears the overlapped-trigger status
func (h HTTPWrapper) GetWarnings(w http.ResponseWriter, r *http.Request) {
	warns, err := h.OSC1Lite.ChannelWarnings()
	if err != nil {
		replyError(w, err)
		return
	}
	if warns == nil {
		warns = []int{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(warns); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetEnable connects or disconnects the listed channel outputs
func (h HTTPWrapper) SetEnable(w http.ResponseWriter, r *http.Request) {
	cs, ok := decodeChannelSet(w, r)
	if !ok {
		return
	}
	if err := h.OSC1Lite.SetEnable(cs.Channels, cs.On); err != nil {
		replyError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetTriggerMode switches the listed channels between continuous and one-shot
func (h HTTPWrapper) SetTriggerMode(w http.ResponseWriter, r *http.Request) {
	cs, ok := decodeChannelSet(w, r)
	if !ok {
		return
	}
	if err := h.OSC1Lite.SetTriggerMode(cs.Channels, cs.On); err != nil {
		replyError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetTriggerSource switches the listed channels between external and host triggering
func (h HTTPWrapper) SetTriggerSource(w http.ResponseWriter, r *http.Request) {
	cs, ok := decodeChannelSet(w, r)
	if !ok {
		return
	}
	if err := h.OSC1Lite.SetTriggerSource(cs.Channels, cs.On); err != nil {
		replyError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetTriggerOut toggles trigger-out routing for the listed channels
func (h HTTPWrapper) SetTriggerOut(w http.ResponseWriter, r *http.Request) {
	cs, ok := decodeChannelSet(w, r)
	if !ok {
		return
	}
	if err := h.OSC1Lite.SetTriggerOut(cs.Channels, cs.On); err != nil {
		replyError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Trigger sends a software trigger to the listed channels
func (h HTTPWrapper) Trigger(w http.ResponseWriter, r *http.Request) {
	cs, ok := decodeChannelSet(w, r)
	if !ok {
		return
	}
	if err := h.OSC1Lite.TriggerChannel(cs.Channels); err != nil {
		replyError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func channelIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return idx, true
}

// SetWaveform encodes and writes a waveform to one channel
func (h HTTPWrapper) SetWaveform(w http.ResponseWriter, r *http.Request) {
	idx, ok := channelIndex(w, r)
	if !ok {
		return
	}
	var wf SquareWaveform
	err := json.NewDecoder(r.Body).Decode(&wf)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.OSC1Lite.SetChannel(idx, wf); err != nil {
		replyError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Stop forces one channel to zero output
func (h HTTPWrapper) Stop(w http.ResponseWriter, r *http.Request) {
	idx, ok := channelIndex(w, r)
	if !ok {
		return
	}
	if err := h.OSC1Lite.Stop(idx); err != nil {
		replyError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
