/*Package osc1lite controls 12-channel optogenetic stimulator boards.

The board is an FPGA driving a bank of current-output DACs.  This package
owns the channel configuration, calibration and trigger state machine that
sits between a user's waveform request and the register writes sent to the
board; the transport itself lives in package frontpanel.

Basic usage:

	link, err := frontpanel.OpenUSB(frontpanel.DefaultVID, frontpanel.DefaultPID)
	if err != nil {
		log.Fatal(err)
	}
	calib, err := osc1lite.LoadCalibrationFile("/etc/osc1", serial)
	if err != nil {
		log.Warn("running uncalibrated: ", err)
	}
	dev := osc1lite.New(link, calib, nil)
	defer dev.Close()

	// bring-up, strictly in this order
	dev.Configure(bitstream, true)
	dev.Reset()
	dev.InitDAC()
	dev.EnableDACOutput()

	// channel operations only work after bring-up completes
	dev.SetChannel(0, osc1lite.SquareWaveform{
		Amplitude:  50,    // uA
		PulseWidth: 0.005, // s
		Period:     0.02,
		Pulses:     1,
	})
	dev.SetEnable([]int{0}, true)
	dev.TriggerChannel([]int{0})

Every method blocks until the board acknowledges the underlying register
writes.  The controller serializes access to the link internally, but it
assumes a single owner; wrap it in your own lock if several goroutines
command the same board.
*/
package osc1lite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/neurostim/osc1go/util"
)

// Link is the capability the controller consumes: blocking register access
// and bitstream loading to an already-located board.  package frontpanel
// provides implementations.
type Link interface {
	WriteRegisters(addr uint16, p []byte) error
	ReadRegisters(addr uint16, n int) ([]byte, error)
	LoadBitstream(p []byte, verify bool) error
	Close() error
}

// bring-up stages, strictly ordered
type stage int

const (
	stageUnconfigured stage = iota
	stageConfigured
	stageReset
	stageDACInitialized
	stageOutputEnabled
)

func (s stage) String() string {
	switch s {
	case stageUnconfigured:
		return "unconfigured"
	case stageConfigured:
		return "configured"
	case stageReset:
		return "reset"
	case stageDACInitialized:
		return "DAC initialized"
	case stageOutputEnabled:
		return "output enabled"
	default:
		return "unknown"
	}
}

// OSC1Lite is the controller for one stimulator board.  Construct with New.
type OSC1Lite struct {
	mu       sync.Mutex
	link     Link
	calib    CalibrationTable
	channels [NumChannels]Channel
	stage    stage
	log      logrus.FieldLogger

	// the DAC trim interface needs settle time between writes
	trimLimiter *rate.Limiter
}

// New creates a controller bound to an open link and a calibration table.
// An all-nil table (the fallback produced by a failed LoadCalibration) is
// valid and runs the board uncalibrated.  A nil log uses the logrus
// standard logger.
func New(link Link, calib CalibrationTable, log logrus.FieldLogger) *OSC1Lite {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OSC1Lite{
		link:        link,
		calib:       calib,
		log:         log,
		trimLimiter: rate.NewLimiter(rate.Every(time.Millisecond), 1),
	}
}

// AllChannels returns a fresh slice of every channel index, for operations
// over the whole board
func AllChannels() []int {
	out := make([]int, NumChannels)
	for i := range out {
		out[i] = i
	}
	return out
}

func (o *OSC1Lite) requireStage(s stage) error {
	if o.stage != s {
		return fmt.Errorf("%w: board is %s, step requires %s", ErrSequence, o.stage, s)
	}
	return nil
}

// Configure loads the FPGA image onto the board.  If verifyHash is true and
// the board's hash report does not match the image, the error wraps
// frontpanel.ErrHashMismatch and the board stays unconfigured; passing
// false skips the check explicitly rather than hiding a failure.
func (o *OSC1Lite) Configure(bitstream []byte, verifyHash bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.requireStage(stageUnconfigured); err != nil {
		return err
	}
	if err := o.link.LoadBitstream(bitstream, verifyHash); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	o.stage = stageConfigured
	o.log.Debug("osc1lite: bitstream configured")
	return nil
}

// Reset resets the FPGA<->host and FPGA<->DAC protocol state.  Valid only
// after Configure.
func (o *OSC1Lite) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.requireStage(stageConfigured); err != nil {
		return err
	}
	if err := o.pulse(RegComReset); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	o.stage = stageReset
	o.log.Debug("osc1lite: comms reset")
	return nil
}

// InitDAC resets the physical DAC chips and writes each channel's
// calibration anchors (or the neutral default) to its trim registers.
// Valid only after Reset.
func (o *OSC1Lite) InitDAC() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.requireStage(stageReset); err != nil {
		return err
	}
	if err := o.pulse(RegDACReset); err != nil {
		return fmt.Errorf("init DAC: %w", err)
	}
	for ch := 0; ch < NumChannels; ch++ {
		low, high := TrimWords(o.calib[ch])
		if err := o.trimLimiter.Wait(context.Background()); err != nil {
			return fmt.Errorf("init DAC: %w", err)
		}
		if err := o.link.WriteRegisters(trimReg(ch), append(be16(low), be16(high)...)); err != nil {
			return fmt.Errorf("init DAC: writing channel %d trim: %w", ch, err)
		}
	}
	o.stage = stageDACInitialized
	o.log.Debug("osc1lite: DACs initialized")
	return nil
}

// EnableDACOutput arms the FPGA to forward channel commands to the DACs,
// completing bring-up.  Valid only after InitDAC.
func (o *OSC1Lite) EnableDACOutput() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.requireStage(stageDACInitialized); err != nil {
		return err
	}
	if err := o.link.WriteRegisters(RegDACEnable, be16(1)); err != nil {
		return fmt.Errorf("enable DAC output: %w", err)
	}
	o.stage = stageOutputEnabled
	o.log.Debug("osc1lite: output enabled")
	return nil
}

// pulse writes 1 then 0 to a strobe register
func (o *OSC1Lite) pulse(addr uint16) error {
	if err := o.link.WriteRegisters(addr, be16(1)); err != nil {
		return err
	}
	return o.link.WriteRegisters(addr, be16(0))
}

func (o *OSC1Lite) ready() error {
	if o.stage != stageOutputEnabled {
		return ErrNotReady
	}
	return nil
}

func validateChannels(channels []int) error {
	for _, ch := range channels {
		if ch < 0 || ch >= NumChannels {
			return fmt.Errorf("%w: %d", ErrBadChannel, ch)
		}
	}
	return nil
}

// perChannel applies f to each channel independently, collecting failures.
// the returned error is nil or a ChannelErrors; one channel failing does
// not stop the others.
func perChannel(channels []int, f func(ch int) error) error {
	var errs ChannelErrors
	for _, ch := range channels {
		if err := f(ch); err != nil {
			errs = append(errs, ChannelError{Channel: ch, Err: err})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

/*SetEnable connects (on=true) or disconnects the output of each listed
channel.

Hazard: the transition produces a brief voltage transient at the electrode
on real hardware.  Do not toggle enable during active stimulation; the
software does not enforce this.
*/
func (o *OSC1Lite) SetEnable(channels []int, on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ready(); err != nil {
		return err
	}
	if err := validateChannels(channels); err != nil {
		return err
	}
	return o.setEnable(channels, on)
}

// setEnable is SetEnable without the lock or readiness gate, shared with Close
func (o *OSC1Lite) setEnable(channels []int, on bool) error {
	var word uint16
	if on {
		word = 1
	}
	return perChannel(channels, func(ch int) error {
		if err := o.link.WriteRegisters(channelReg(ch, regEnable), be16(word)); err != nil {
			return err
		}
		o.channels[ch].Enabled = on
		return nil
	})
}

// SetTriggerMode puts each listed channel in continuous mode (waveform
// repeats every period once triggered) or one-shot mode (one burst of
// Pulses cycles per trigger event).
func (o *OSC1Lite) SetTriggerMode(channels []int, continuous bool) error {
	return o.setConfig(channels, func(c *Channel) { c.Continuous = continuous })
}

// SetTriggerSource selects the hardware trigger line (external=true) or
// software triggers for each listed channel.  A rising edge on the external
// line restarts the waveform phase immediately, preempting any cycle in
// progress.  External source combines freely with continuous mode.
func (o *OSC1Lite) SetTriggerSource(channels []int, external bool) error {
	return o.setConfig(channels, func(c *Channel) { c.ExternalTrigger = external })
}

// SetTriggerOut routes each listed channel's trigger to the board's
// trigger-out line, for synchronizing recording equipment
func (o *OSC1Lite) SetTriggerOut(channels []int, on bool) error {
	return o.setConfig(channels, func(c *Channel) { c.TriggerOut = on })
}

// setConfig mutates one field of each channel's trigger config and writes
// the resulting config word, rolling the field back if the write fails
func (o *OSC1Lite) setConfig(channels []int, mutate func(*Channel)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ready(); err != nil {
		return err
	}
	if err := validateChannels(channels); err != nil {
		return err
	}
	return perChannel(channels, func(ch int) error {
		prev := o.channels[ch]
		mutate(&o.channels[ch])
		if err := o.link.WriteRegisters(channelReg(ch, regConfig), be16(o.channels[ch].configWord())); err != nil {
			o.channels[ch] = prev
			return err
		}
		return nil
	})
}

// SetChannel encodes the waveform against the channel's calibration row and
// writes the resulting registers.  A rejected encode or a failed write
// leaves the channel's stored waveform unchanged.
func (o *OSC1Lite) SetChannel(channel int, w SquareWaveform) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ready(); err != nil {
		return err
	}
	if err := validateChannels([]int{channel}); err != nil {
		return err
	}
	ew := w
	if o.channels[channel].Continuous && ew.Pulses == 0 {
		// the count is ignored in continuous mode; validate the rest
		ew.Pulses = 1
	}
	regs, err := Encode(ew, o.calib[channel])
	if err != nil {
		return err
	}
	if o.calib[channel] == nil {
		o.log.Warnf("osc1lite: channel %d has no calibration, amplitude uses nominal scaling", channel)
	}
	if o.channels[channel].Continuous {
		regs.Pulses = 0 // continuous channels repeat until stopped
	}
	for _, rw := range regs.writes() {
		if err := o.link.WriteRegisters(channelReg(channel, rw.offset), be16(rw.value)); err != nil {
			return fmt.Errorf("writing channel %d registers: %w", channel, err)
		}
	}
	wf := w
	o.channels[channel].Waveform = &wf
	return nil
}

// TriggerChannel sends a software trigger pulse to each listed channel.
// Channels configured for the external trigger source are skipped silently;
// the hardware line owns their phase.
func (o *OSC1Lite) TriggerChannel(channels []int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ready(); err != nil {
		return err
	}
	if err := validateChannels(channels); err != nil {
		return err
	}
	return perChannel(channels, func(ch int) error {
		if o.channels[ch].ExternalTrigger {
			o.log.Debugf("osc1lite: channel %d uses the external trigger line, software trigger skipped", ch)
			return nil
		}
		return o.link.WriteRegisters(RegSoftTrigger, be16(1<<uint(ch)))
	})
}

// Stop forces a channel to zero output: it writes an all-zero waveform and
// triggers it, ending one-shot bursts and continuous runs alike.
func (o *OSC1Lite) Stop(channel int) error {
	err := o.SetChannel(channel, SquareWaveform{Period: 2 * TickPeriod, PulseWidth: TickPeriod, Pulses: 1})
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ready(); err != nil {
		return err
	}
	// trigger regardless of source so the zero takes effect now
	return o.link.WriteRegisters(RegSoftTrigger, be16(1<<uint(channel)))
}

// ChannelWarnings reads and clears the overlapped-trigger status, returning
// the channels that received a trigger while a cycle was still in progress
func (o *OSC1Lite) ChannelWarnings() ([]int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ready(); err != nil {
		return nil, err
	}
	buf, err := o.link.ReadRegisters(RegTriggerOverlap, 2)
	if err != nil {
		return nil, fmt.Errorf("reading trigger overlap status: %w", err)
	}
	var out []int
	for ch := 0; ch < NumChannels; ch++ {
		b := buf[1] // low byte, channels 0-7
		idx := uint(ch)
		if ch >= 8 {
			b = buf[0]
			idx -= 8
		}
		if util.GetBit(b, idx) {
			out = append(out, ch)
		}
	}
	return out, nil
}

// Channels returns a snapshot of the per-channel configuration
func (o *OSC1Lite) Channels() [NumChannels]Channel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.channels
}

// Calibrated returns true if every channel has a calibration row
func (o *OSC1Lite) Calibrated() bool {
	return o.calib.Calibrated()
}

// Close disables every channel output if bring-up got far enough for that
// to be meaningful, then releases the link.  Disable failures are logged
// and do not block the close; leaving an output enabled across a disconnect
// is the hazard this guards against.
func (o *OSC1Lite) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stage == stageOutputEnabled {
		if err := o.setEnable(AllChannels(), false); err != nil {
			o.log.Warnf("osc1lite: disabling outputs on close: %v", err)
		}
	}
	o.stage = stageUnconfigured
	return o.link.Close()
}
