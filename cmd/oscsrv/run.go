package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"

	"github.com/neurostim/osc1go/frontpanel"
	"github.com/neurostim/osc1go/osc1lite"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Bring up the board and serve the channel API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := Config{}
			if err := k.Unmarshal("", &c); err != nil {
				return err
			}
			return run(c)
		},
	}
}

// openLink builds the board link selected by the config
func openLink(c LinkConfig) (osc1lite.Link, error) {
	switch c.Kind {
	case "usb", "":
		return frontpanel.OpenUSB(frontpanel.DefaultVID, frontpanel.DefaultPID)
	case "tcp", "serial":
		b := frontpanel.NewBridge(c.Addr, c.Kind == "serial")
		b.Baud = c.Baud
		if err := b.Open(); err != nil {
			return nil, err
		}
		return b, nil
	case "mock":
		return frontpanel.NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown link kind %q, want usb, tcp, serial or mock", c.Kind)
	}
}

// boardSerial resolves the serial used for the calibration lookup; USB
// boards can report their own
func boardSerial(c Config, link osc1lite.Link) string {
	if c.Serial != "" {
		return c.Serial
	}
	if usb, ok := link.(*frontpanel.USB); ok {
		sn, err := usb.SerialNumber()
		if err == nil {
			return sn
		}
		logrus.Warnf("could not read board serial: %v", err)
	}
	return ""
}

func run(c Config) error {
	link, err := openLink(c.Link)
	if err != nil {
		return fmt.Errorf("opening board link: %w", err)
	}

	serial := boardSerial(c, link)
	calib, calibErr := osc1lite.LoadCalibrationFile(c.CalibrationDir, serial)
	if calibErr != nil {
		// degrade gracefully; the board works uncalibrated, just less
		// accurately.  loudly, though.
		logrus.Warnf("calibration unavailable for board %q, running uncalibrated: %v", serial, calibErr)
	}

	bitstream, err := os.ReadFile(c.Bitstream)
	if err != nil {
		link.Close()
		return fmt.Errorf("reading bitstream: %w", err)
	}

	dev := osc1lite.New(link, calib, logrus.StandardLogger())
	if err := bringUp(dev, bitstream, c.VerifyHash); err != nil {
		link.Close()
		return err
	}
	defer dev.Close()
	color.Green("board ready, %d channels, calibrated=%v", osc1lite.NumChannels, calib.Calibrated())

	go watchWarnings(dev)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Mount("/osc1", osc1lite.NewHTTPWrapper(dev).Routes())
	logrus.Infof("listening on %s", c.Addr)
	return http.ListenAndServe(c.Addr, r)
}

// bringUp walks the board through the strict configure/reset/init/enable
// sequence, with a spinner so slow bitstream loads don't look like a hang
func bringUp(dev *osc1lite.OSC1Lite, bitstream []byte, verifyHash bool) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[59],
		Suffix:            " bring-up",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return err
	}
	if err := spinner.Start(); err != nil {
		return err
	}
	steps := []struct {
		name string
		f    func() error
	}{
		{"loading bitstream", func() error { return dev.Configure(bitstream, verifyHash) }},
		{"resetting comms", dev.Reset},
		{"initializing DACs", dev.InitDAC},
		{"enabling output", dev.EnableDACOutput},
	}
	for _, s := range steps {
		spinner.Message(s.name)
		if err := s.f(); err != nil {
			spinner.StopFailMessage(s.name)
			spinner.StopFail()
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	spinner.Stop()
	return nil
}

// watchWarnings surfaces overlapped-trigger reports from the board
func watchWarnings(dev *osc1lite.OSC1Lite) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for range t.C {
		warns, err := dev.ChannelWarnings()
		if err != nil {
			logrus.Debugf("reading channel warnings: %v", err)
			continue
		}
		for _, ch := range warns {
			logrus.Warnf("overlapped trigger detected on channel %d (%s)", ch, osc1lite.ShankPositions[ch])
		}
	}
}
