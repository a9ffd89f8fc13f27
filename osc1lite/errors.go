package osc1lite

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAmplitudeOutOfRange is generated when a commanded amplitude is
	// outside the board's dynamic range
	ErrAmplitudeOutOfRange = errors.New("commanded amplitude outside the board's dynamic range")

	// ErrInvalidMode is generated when a rise-time mode is outside the
	// hardware enumeration
	ErrInvalidMode = errors.New("rise-time mode outside the hardware enumeration")

	// ErrInvalidTiming is generated when pulse width and period are
	// inconsistent or do not fit the device counters
	ErrInvalidTiming = errors.New("pulse width must be positive, strictly less than period, and both must fit the device counters")

	// ErrNotReady is generated when a per-channel operation is attempted
	// before bring-up reaches the output-enabled state
	ErrNotReady = errors.New("board output not enabled; finish bring-up first")

	// ErrSequence is generated when a bring-up step is called out of order
	ErrSequence = errors.New("bring-up steps must be called in order: Configure, Reset, InitDAC, EnableDACOutput")

	// ErrBadChannel is generated when a channel index is outside 0..11
	ErrBadChannel = errors.New("channel index outside 0..11")
)

// ChannelError is the outcome of one channel in a multi-channel operation
type ChannelError struct {
	Channel int
	Err     error
}

func (c ChannelError) Error() string {
	return fmt.Sprintf("channel %d: %v", c.Channel, c.Err)
}

// Unwrap exposes the underlying error to errors.Is and errors.As
func (c ChannelError) Unwrap() error {
	return c.Err
}

// ChannelErrors aggregates per-channel outcomes.  Operations over channel
// sets return nil when every channel succeeded; otherwise a ChannelErrors
// carrying one entry per failed channel, so partial success is visible.
type ChannelErrors []ChannelError

func (c ChannelErrors) Error() string {
	s := make([]string, len(c))
	for i, e := range c {
		s[i] = e.Error()
	}
	return strings.Join(s, "; ")
}
