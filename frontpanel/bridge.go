package frontpanel

import (
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/tarm/serial"

	"github.com/neurostim/osc1go/util"
)

// Bridge is a Link to a board sitting behind a register bridge: either a
// lab network box speaking the frame protocol over TCP, or the board's
// UART header through a serial adapter.
type Bridge struct {
	// Addr is the remote, host:port for TCP or a device path for serial
	Addr string

	// IsSerial selects the serial transport instead of TCP
	IsSerial bool

	// Baud is the serial line rate.  Zero means 115200.
	Baud int

	conn io.ReadWriteCloser
}

// NewBridge creates a new Bridge instance.  Call Open before use.
func NewBridge(addr string, isSerial bool) *Bridge {
	return &Bridge{Addr: addr, IsSerial: isSerial}
}

// SerialConf yields the serial config used when IsSerial is true
func (b *Bridge) SerialConf() *serial.Config {
	baud := b.Baud
	if baud == 0 {
		baud = 115200
	}
	return &serial.Config{
		Name:        b.Addr,
		Baud:        baud,
		ReadTimeout: 3 * time.Second,
	}
}

// Open dials the bridge.  Connection-refused errors are retried with
// exponential backoff; any other dial failure ends the attempt immediately.
func (b *Bridge) Open() error {
	var terminal error
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 25 * time.Millisecond
	policy.RandomizationFactor = 0
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = 3 * time.Second
	err := backoff.Retry(func() error {
		err := b.open()
		if err == nil {
			return nil
		}
		if strings.Contains(strings.ToLower(err.Error()), "refused") {
			return err
		}
		// returning nil stops the retry loop; the failure is kept aside
		terminal = err
		return nil
	}, policy)
	if terminal != nil {
		return errors.Wrapf(terminal, "connecting to %s", b.Addr)
	}
	return err
}

func (b *Bridge) open() error {
	var (
		conn io.ReadWriteCloser
		err  error
	)
	if b.IsSerial {
		conn, err = serial.OpenPort(b.SerialConf())
	} else {
		conn, err = util.TCPSetup(b.Addr, 3*time.Second)
	}
	if err != nil {
		return err
	}
	b.conn = conn
	return nil
}

// WriteRegisters writes p to the registers beginning at addr
func (b *Bridge) WriteRegisters(addr uint16, p []byte) error {
	if b.conn == nil {
		return ErrNotOpen
	}
	return writeRegisters(b.conn, addr, p)
}

// ReadRegisters reads n bytes from the registers beginning at addr
func (b *Bridge) ReadRegisters(addr uint16, n int) ([]byte, error) {
	if b.conn == nil {
		return nil, ErrNotOpen
	}
	return readRegisters(b.conn, addr, n)
}

// LoadBitstream sends an FPGA image through the bridge
func (b *Bridge) LoadBitstream(p []byte, verify bool) error {
	if b.conn == nil {
		return ErrNotOpen
	}
	return loadBitstream(b.conn, p, verify)
}

// Close the connection, nil-ing the conn variable
func (b *Bridge) Close() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	if err == nil {
		b.conn = nil
	}
	return err
}
