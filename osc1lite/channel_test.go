package osc1lite

import (
	"errors"
	"testing"
)

// a mildly out-of-true board: 11 uA measured at the 10 uA anchor,
// 89 uA at the 90 uA anchor
var skewedRow = &CalibrationRow{Low: 0.011, High: 0.089}

func validWaveform() SquareWaveform {
	return SquareWaveform{Mode: 0, Amplitude: 50, PulseWidth: 0.1, Period: 0.2, Pulses: 1}
}

func TestEncodeUncalibratedPassesAmplitudeThrough(t *testing.T) {
	w := validWaveform()
	regs, err := Encode(w, nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	// nominal slope, no correction
	expected := int16(50*countsPerMicroamp + 0.5)
	if regs.Amplitude != expected {
		t.Errorf("expected amplitude code %d, got %d", expected, regs.Amplitude)
	}
	if regs.PulseWidth != 1000 || regs.Period != 2000 {
		t.Errorf("expected timing (1000, 2000) ticks, got (%d, %d)", regs.PulseWidth, regs.Period)
	}
	if regs.PulseWidth >= regs.Period {
		t.Error("pulse width ticks must be less than period ticks")
	}
}

func TestEncodeCalibratedAnchorRoundTrip(t *testing.T) {
	// requesting the measured current at an anchor must reproduce the
	// nominal amplitude code for that anchor
	w := validWaveform()

	w.Amplitude = skewedRow.Low * 1000
	regs, err := Encode(w, skewedRow)
	if err != nil {
		t.Fatalf("encode at low anchor failed: %v", err)
	}
	nominal, err := Encode(SquareWaveform{Amplitude: 10, PulseWidth: 0.1, Period: 0.2, Pulses: 1}, nil)
	if err != nil {
		t.Fatalf("nominal encode failed: %v", err)
	}
	if regs.Amplitude != nominal.Amplitude {
		t.Errorf("low anchor: expected code %d, got %d", nominal.Amplitude, regs.Amplitude)
	}

	w.Amplitude = skewedRow.High * 1000
	regs, err = Encode(w, skewedRow)
	if err != nil {
		t.Fatalf("encode at high anchor failed: %v", err)
	}
	nominal, err = Encode(SquareWaveform{Amplitude: 90, PulseWidth: 0.1, Period: 0.2, Pulses: 1}, nil)
	if err != nil {
		t.Fatalf("nominal encode failed: %v", err)
	}
	if regs.Amplitude != nominal.Amplitude {
		t.Errorf("high anchor: expected code %d, got %d", nominal.Amplitude, regs.Amplitude)
	}
}

func TestEncodeCalibratedMonotonic(t *testing.T) {
	w := validWaveform()
	prev := int16(-32768)
	for amp := 11.0; amp <= 89.0; amp += 0.5 {
		w.Amplitude = amp
		regs, err := Encode(w, skewedRow)
		if err != nil {
			t.Fatalf("encode of %g uA failed: %v", amp, err)
		}
		if regs.Amplitude < prev {
			t.Fatalf("amplitude code decreased: %g uA -> %d, previous %d", amp, regs.Amplitude, prev)
		}
		prev = regs.Amplitude
	}
}

func TestEncodeDegenerateCalibrationFallsBackToNominal(t *testing.T) {
	w := validWaveform()
	flat := &CalibrationRow{Low: 0.05, High: 0.05}
	regs, err := Encode(w, flat)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	nominal, _ := Encode(w, nil)
	if regs.Amplitude != nominal.Amplitude {
		t.Errorf("flat calibration should use nominal scaling, got %d want %d", regs.Amplitude, nominal.Amplitude)
	}
}

func TestEncodeCalibratedClampsToCodeRange(t *testing.T) {
	// a row measuring far low forces huge corrections; the code clips
	// instead of wrapping
	w := validWaveform()
	w.Amplitude = 100
	low := &CalibrationRow{Low: 0.001, High: 0.009}
	regs, err := Encode(w, low)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if regs.Amplitude != int16(codeMax) {
		t.Errorf("expected clip to %g, got %d", codeMax, regs.Amplitude)
	}
}

func TestEncodeRejectsAmplitudeOutOfRange(t *testing.T) {
	w := validWaveform()
	for _, amp := range []float64{FullScaleMicroamp + 1, -FullScaleMicroamp - 1} {
		w.Amplitude = amp
		if _, err := Encode(w, nil); !errors.Is(err, ErrAmplitudeOutOfRange) {
			t.Errorf("amplitude %g: expected ErrAmplitudeOutOfRange, got %v", amp, err)
		}
	}
}

func TestEncodeRejectsInvalidMode(t *testing.T) {
	w := validWaveform()
	for _, mode := range []int{-1, len(RiseTimes)} {
		w.Mode = mode
		if _, err := Encode(w, nil); !errors.Is(err, ErrInvalidMode) {
			t.Errorf("mode %d: expected ErrInvalidMode, got %v", mode, err)
		}
	}
}

func TestEncodeRejectsInvalidTiming(t *testing.T) {
	w := validWaveform()
	w.PulseWidth, w.Period = 0.2, 0.2
	if _, err := Encode(w, nil); !errors.Is(err, ErrInvalidTiming) {
		t.Errorf("pw == period: expected ErrInvalidTiming, got %v", err)
	}
	w.PulseWidth, w.Period = 0.3, 0.2
	if _, err := Encode(w, nil); !errors.Is(err, ErrInvalidTiming) {
		t.Errorf("pw > period: expected ErrInvalidTiming, got %v", err)
	}
	w.PulseWidth, w.Period = 0.1, maxTicks*TickPeriod*2
	if _, err := Encode(w, nil); !errors.Is(err, ErrInvalidTiming) {
		t.Errorf("period beyond counter: expected ErrInvalidTiming, got %v", err)
	}
	// distinct values that round to the same tick count are still invalid
	w.PulseWidth, w.Period = 0.00010, 0.00012
	if _, err := Encode(w, nil); !errors.Is(err, ErrInvalidTiming) {
		t.Errorf("pw rounds to period: expected ErrInvalidTiming, got %v", err)
	}
}

func TestEncodeRejectsZeroPulses(t *testing.T) {
	w := validWaveform()
	w.Pulses = 0
	regs, err := Encode(w, nil)
	if !errors.Is(err, ErrInvalidTiming) {
		t.Fatalf("pulses 0: expected ErrInvalidTiming, got %v", err)
	}
	if regs != (DeviceRegisters{}) {
		t.Errorf("rejected encode must not produce register values, got %+v", regs)
	}
}

func TestEncodeNegativeAmplitudeRoundsToNearest(t *testing.T) {
	w := validWaveform()
	w.Amplitude = -50
	regs, err := Encode(w, nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	// -16383.5 rounds away from zero, mirroring the positive case
	expected := -int16(50*countsPerMicroamp + 0.5)
	if regs.Amplitude != expected {
		t.Errorf("expected amplitude code %d, got %d", expected, regs.Amplitude)
	}
}

func TestEncodeRoundsTicksToNearest(t *testing.T) {
	w := validWaveform()
	w.PulseWidth = 0.09996 // 999.6 ticks
	w.Period = 0.20004     // 2000.4 ticks
	regs, err := Encode(w, nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if regs.PulseWidth != 1000 {
		t.Errorf("pulse width: expected round to 1000 ticks, got %d", regs.PulseWidth)
	}
	if regs.Period != 2000 {
		t.Errorf("period: expected round to 2000 ticks, got %d", regs.Period)
	}
}

func TestModeForRiseTime(t *testing.T) {
	cases := []struct {
		seconds float64
		mode    int
	}{
		{0, 0},
		{40e-6, 0},
		{100e-6, 1},
		{500e-6, 2},
		{1e-3, 3},
		{2e-3, 4},
		{10e-3, 4},
	}
	for _, c := range cases {
		if got := ModeForRiseTime(c.seconds); got != c.mode {
			t.Errorf("ModeForRiseTime(%g) = %d, expected %d", c.seconds, got, c.mode)
		}
	}
}
