package util_test

import (
	"fmt"
	"testing"

	"github.com/neurostim/osc1go/util"
)

func ExampleSetBit_mSB() {
	out := util.SetBit(0, 7, true)
	fmt.Printf("%08b\n", out)
	// Output: 10000000
}

func ExampleSetBit_lSB() {
	out := util.SetBit(255, 0, false)
	fmt.Printf("%08b\n", out)
	// Output: 11111110
}

func TestGetBitRoundTrip(t *testing.T) {
	var b byte
	for i := uint(0); i < 8; i++ {
		b = util.SetBit(b, i, true)
		if !util.GetBit(b, i) {
			t.Errorf("bit %d set but read back clear", i)
		}
		b = util.SetBit(b, i, false)
		if util.GetBit(b, i) {
			t.Errorf("bit %d cleared but read back set", i)
		}
	}
}

func TestClampHigh(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = 20.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != high {
		t.Errorf("expected out of range value %f to be clipped to %f, got %f", input, high, clamped)
	}
}

func TestClampLow(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = -1.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != low {
		t.Errorf("expected out of range value %f to be clipped to %f, got %f", input, low, clamped)
	}
}

func TestClampInRangePassesThrough(t *testing.T) {
	if out := util.Clamp(5, 0, 10); out != 5 {
		t.Errorf("expected in-range value to pass through, got %f", out)
	}
}
