package osc1lite

// RiseTimes maps a rise-time mode to the physical 10-90% rise time, in
// seconds, produced by the board's output shaping hardware.  The table is
// fixed by the FPGA image; mode is an index into it.
var RiseTimes = [...]float64{0, 100e-6, 500e-6, 1e-3, 2e-3}

// SquareWaveform describes a square (trapezoidal, for nonzero rise-time
// modes) stimulation waveform, independent of hardware encoding.
type SquareWaveform struct {
	// Mode selects the rise-time class, an index into RiseTimes
	Mode int

	// Amplitude is the requested current in uA
	Amplitude float64

	// PulseWidth is the on-time of each pulse in seconds
	PulseWidth float64

	// Period is the repetition period in seconds; must exceed PulseWidth
	Period float64

	// Pulses is the number of cycles emitted per trigger, 1..65535.
	// Channels in continuous trigger mode ignore it and repeat until
	// stopped.
	Pulses uint16
}

// ModeForRiseTime returns the rise-time mode for a requested rise time.
// Class boundaries are 50, 300, 750 and 1500 us.
func ModeForRiseTime(seconds float64) int {
	switch {
	case seconds < 50e-6:
		return 0
	case seconds < 300e-6:
		return 1
	case seconds < 750e-6:
		return 2
	case seconds < 1500e-6:
		return 3
	default:
		return 4
	}
}
