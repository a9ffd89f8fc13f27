// oscsrv exposes an OSC1 stimulator board over HTTP.
//
// It owns the whole life of the board: it opens the link, loads the factory
// calibration for the board's serial number, runs the bring-up sequence and
// then serves the channel API until stopped.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "oscsrv.yml"

	k        = koanf.New(".")
	logLevel = "info"
)

// LinkConfig selects and parameterizes the board link
type LinkConfig struct {
	// Kind is one of usb, tcp, serial, mock
	Kind string `koanf:"kind" yaml:"kind"`

	// Addr is host:port for tcp, a device path for serial, unused otherwise
	Addr string `koanf:"addr" yaml:"addr"`

	// Baud is the serial line rate, serial kind only
	Baud int `koanf:"baud" yaml:"baud"`
}

// Config is the top-level configuration of oscsrv
type Config struct {
	// Addr is the HTTP listen address
	Addr string `koanf:"addr" yaml:"addr"`

	// Serial is the board serial number, used to find the calibration
	// file.  For USB links an empty value means "ask the board".
	Serial string `koanf:"serial" yaml:"serial"`

	// CalibrationDir holds <serial>.cal factory calibration files
	CalibrationDir string `koanf:"calibrationDir" yaml:"calibrationDir"`

	// Bitstream is the path to the FPGA image
	Bitstream string `koanf:"bitstream" yaml:"bitstream"`

	// VerifyHash checks the board's bitstream hash report after
	// configuration.  Turning this off is an explicit decision to trust
	// the image, not a silent bypass.
	VerifyHash bool `koanf:"verifyHash" yaml:"verifyHash"`

	Link LinkConfig `koanf:"link" yaml:"link"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:           ":8001",
		CalibrationDir: ".",
		Bitstream:      "OSC1_LITE_Control.bit",
		VerifyHash:     true,
		Link:           LinkConfig{Kind: "usb"}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func setupLogger() error {
	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oscsrv",
		Short: "oscsrv serves an HTTP interface to an OSC1 stimulator board",
		Long: `oscsrv communicates with an OSC1 stimulator board and exposes its twelve
stimulation channels over HTTP.  This enables a server-client architecture,
and the clients can leverage the excellent HTTP libraries for any
programming language.

Configuration comes from ` + ConfigFileName + ` in the working directory; run
"oscsrv mkconf" to write a default one.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupconfig()
			return setupLogger()
		},
	}
	cmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.AddCommand(
		newRunCommand(),
		newMkconfCommand(),
		newConfCommand(),
		newVersionCommand(),
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s\n", Version)
		},
	}
}

func newMkconfCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mkconf",
		Short: "Write the default config to " + ConfigFileName,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := Config{}
			if err := k.Unmarshal("", &c); err != nil {
				return err
			}
			f, err := os.Create(ConfigFileName)
			if err != nil {
				return err
			}
			defer f.Close()
			return yml.NewEncoder(f).Encode(c)
		},
	}
}

func newConfCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "conf",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := Config{}
			if err := k.Unmarshal("", &c); err != nil {
				return err
			}
			return yml.NewEncoder(os.Stdout).Encode(c)
		},
	}
}

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
