package osc1lite

import (
	"fmt"

	"github.com/neurostim/osc1go/mathx"
	"github.com/neurostim/osc1go/util"
)

const (
	// TickPeriod is the period of the device's waveform clock, in seconds.
	// Pulse widths and periods are encoded as tick counts.
	TickPeriod = 100e-6

	// FullScaleMicroamp is the board's dynamic range; commanded amplitudes
	// must lie in [-FullScaleMicroamp, +FullScaleMicroamp]
	FullScaleMicroamp = 100.0

	// countsPerMicroamp is the nominal slope of the amplitude code
	countsPerMicroamp = 32767.0 / FullScaleMicroamp

	// amplitude code clip range
	codeMin = -32768.0
	codeMax = 32767.0

	// maxTicks is the largest tick count the 16-bit timing counters hold
	maxTicks = 65535.0
)

// Channel is the mutable configuration of one stimulation channel.  It is
// owned by the controller and mutated only through controller calls.
type Channel struct {
	// Enabled is whether the channel output is connected
	Enabled bool

	// Continuous selects the continuous trigger mode; false is one-shot
	Continuous bool

	// ExternalTrigger selects the hardware trigger line as the trigger
	// source; false means software (host) triggers
	ExternalTrigger bool

	// TriggerOut routes the channel's trigger to the board's trigger-out
	// line, for synchronizing recording equipment
	TriggerOut bool

	// Waveform is the last waveform successfully written, nil before the
	// first write
	Waveform *SquareWaveform
}

// configWord renders the channel's trigger configuration register
func (c Channel) configWord() uint16 {
	var b byte
	b = util.SetBit(b, cfgBitContinuous, c.Continuous)
	b = util.SetBit(b, cfgBitExternal, c.ExternalTrigger)
	b = util.SetBit(b, cfgBitTriggerOut, c.TriggerOut)
	return uint16(b)
}

/*Encode converts a waveform description into device register values, applying the
channel's calibration row if one is present.

The calibration models the delivered current as affine in the amplitude code
over the 10-90 uA nominal range.  Encoding inverts that map: it finds the
nominal code at which the measured line through the two anchor points equals
the requested amplitude, then clips to the representable code range.  With no
calibration the nominal slope is used directly -- lower accuracy, never an
error.

Tick counts are round-to-nearest.  Requested timing that rounds outside the
counters, a pulse width not strictly less than the period, a pulse count of
zero, a mode outside RiseTimes, or an amplitude beyond the dynamic range
reject the waveform without side effects.  A zero pulse count would repeat
forever on a one-shot channel; continuous channels get the zero written by
the controller, never by the caller.
*/
func Encode(w SquareWaveform, calib *CalibrationRow) (DeviceRegisters, error) {
	var d DeviceRegisters
	if w.Mode < 0 || w.Mode >= len(RiseTimes) {
		return d, fmt.Errorf("%w: mode %d, valid modes 0..%d", ErrInvalidMode, w.Mode, len(RiseTimes)-1)
	}
	if w.Amplitude < -FullScaleMicroamp || w.Amplitude > FullScaleMicroamp {
		return d, fmt.Errorf("%w: %g uA, range is +/-%g uA", ErrAmplitudeOutOfRange, w.Amplitude, FullScaleMicroamp)
	}
	if w.PulseWidth < 0 || w.Period <= 0 || w.PulseWidth >= w.Period {
		return d, fmt.Errorf("%w: pulse width %g s, period %g s", ErrInvalidTiming, w.PulseWidth, w.Period)
	}
	if w.Pulses == 0 {
		// a zero pulses register means repeat until stopped
		return d, fmt.Errorf("%w: pulse count 0, a trigger must emit 1..65535 cycles", ErrInvalidTiming)
	}
	pwTicks := mathx.Round(w.PulseWidth/TickPeriod, 1)
	periodTicks := mathx.Round(w.Period/TickPeriod, 1)
	if periodTicks > maxTicks {
		return d, fmt.Errorf("%w: period %g s exceeds counter range (%g s)", ErrInvalidTiming, w.Period, maxTicks*TickPeriod)
	}
	if pwTicks >= periodTicks {
		// distinct widths can round to the same count
		return d, fmt.Errorf("%w: pulse width and period round to %g and %g ticks", ErrInvalidTiming, pwTicks, periodTicks)
	}

	code := w.Amplitude * countsPerMicroamp
	if calib != nil {
		// measured output (uA) is affine in the code through the two
		// anchor points; solve for the code that delivers the request
		var (
			lowCode  = anchorLowMilliamp * 1000 * countsPerMicroamp
			highCode = anchorHighMilliamp * 1000 * countsPerMicroamp
			calLow   = calib.Low * 1000
			calHigh  = calib.High * 1000
		)
		if calHigh != calLow {
			code = lowCode + (w.Amplitude-calLow)*(highCode-lowCode)/(calHigh-calLow)
		}
	}
	code = util.Clamp(code, codeMin, codeMax)

	// mathx.Round truncates toward zero below zero; mirror negative codes
	// so both polarities stay round-to-nearest
	if code < 0 {
		d.Amplitude = int16(-mathx.Round(-code, 1))
	} else {
		d.Amplitude = int16(mathx.Round(code, 1))
	}
	d.PulseWidth = uint16(pwTicks)
	d.Period = uint16(periodTicks)
	d.Mode = uint16(w.Mode)
	d.Pulses = w.Pulses
	return d, nil
}
