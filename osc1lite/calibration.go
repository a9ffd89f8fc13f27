package osc1lite

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/neurostim/osc1go/mathx"
	"github.com/neurostim/osc1go/util"
)

const (
	// legacyResistanceKOhm is the sense resistance assumed for two-field
	// calibration rows from the old factory fixture
	legacyResistanceKOhm = 100.0

	// trimUnitMilliamp is the quantum of the DAC trim registers, 0.1 uA
	trimUnitMilliamp = 1e-4

	// nominal board output at the two calibration anchor points
	anchorLowMilliamp  = 0.010 // 10 uA
	anchorHighMilliamp = 0.090 // 90 uA
)

// CalibrationRow holds the factory-measured board output for one channel,
// in mA, at the nominal 10 uA and 90 uA anchor points.
type CalibrationRow struct {
	// Low is the measured output at the nominal 10 uA anchor
	Low float64

	// High is the measured output at the nominal 90 uA anchor
	High float64
}

// CalibrationTable is one row per channel.  A nil entry means the channel
// runs uncalibrated (nominal scaling, lower accuracy).
type CalibrationTable [NumChannels]*CalibrationRow

// Calibrated returns true if every channel has a calibration row
func (t CalibrationTable) Calibrated() bool {
	for _, row := range t {
		if row == nil {
			return false
		}
	}
	return true
}

/*LoadCalibration parses a factory calibration table.

The format is 12 lines, one per channel, each line either

	v_low v_high r_kohm

with the anchor gains computed as v/r in mA, or the legacy two-field

	v_low v_high

which assumes a 100 kOhm sense resistor.

Failure to parse is not fatal to board operation: the returned table is
entirely empty (all channels uncalibrated) and the error describes what went
wrong so the caller can log a warning.  A partially-filled table is never
returned.
*/
func LoadCalibration(r io.Reader) (CalibrationTable, error) {
	var (
		table CalibrationTable
		empty CalibrationTable
	)
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if n >= NumChannels {
			return empty, fmt.Errorf("calibration table has more than %d rows", NumChannels)
		}
		row, err := parseCalibrationRow(line)
		if err != nil {
			return empty, fmt.Errorf("calibration row %d: %w", n, err)
		}
		table[n] = row
		n++
	}
	if err := scanner.Err(); err != nil {
		return empty, fmt.Errorf("reading calibration table: %w", err)
	}
	if n != NumChannels {
		return empty, fmt.Errorf("calibration table has %d rows, need exactly %d", n, NumChannels)
	}
	return table, nil
}

// LoadCalibrationFile loads the calibration table for a board by serial
// number, from <dir>/<serial>.cal.  A missing or corrupt file degrades to an
// all-uncalibrated table, reported through the error.
func LoadCalibrationFile(dir, serial string) (CalibrationTable, error) {
	var empty CalibrationTable
	f, err := os.Open(filepath.Join(dir, serial+".cal"))
	if err != nil {
		return empty, fmt.Errorf("opening calibration file: %w", err)
	}
	defer f.Close()
	return LoadCalibration(f)
}

func parseCalibrationRow(line string) (*CalibrationRow, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 && len(fields) != 3 {
		return nil, fmt.Errorf("expected 2 or 3 fields, got %d", len(fields))
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	r := legacyResistanceKOhm
	if len(vals) == 3 {
		r = vals[2]
	}
	if r <= 0 {
		return nil, fmt.Errorf("sense resistance must be positive, got %g", r)
	}
	return &CalibrationRow{Low: vals[0] / r, High: vals[1] / r}, nil
}

// TrimWords converts a calibration row into the pair of DAC trim register
// words, in 0.1 uA units, round-to-nearest.  A nil row yields the neutral
// trim, the nominal anchor currents.
func TrimWords(row *CalibrationRow) (uint16, uint16) {
	low, high := anchorLowMilliamp, anchorHighMilliamp
	if row != nil {
		low, high = row.Low, row.High
	}
	return trimWord(low), trimWord(high)
}

func trimWord(mA float64) uint16 {
	w := mathx.Round(mA/trimUnitMilliamp, 1)
	return uint16(util.Clamp(w, 0, 65535))
}
