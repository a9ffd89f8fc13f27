package frontpanel

import (
	"io"

	"github.com/google/gousb"
	"github.com/pkg/errors"
)

// default IDs for boards attached directly over USB
const (
	// DefaultVID is the vendor ID the board enumerates with
	DefaultVID = 0x151F

	// DefaultPID is the product ID of the stimulator board
	DefaultPID = 0x0030

	// bulk endpoint numbers from the board's USB descriptor
	epOut = 2
	epIn  = 6
)

// USB is a Link over the board's bulk USB endpoints
type USB struct {
	ctx    *gousb.Context
	device *gousb.Device
	iface  *gousb.Interface
	done   func()
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
}

// endpoints adapts the in/out endpoint pair to io.ReadWriter for the framer
type endpoints struct {
	in  *gousb.InEndpoint
	out *gousb.OutEndpoint
}

func (e endpoints) Read(p []byte) (int, error)  { return e.in.Read(p) }
func (e endpoints) Write(p []byte) (int, error) { return e.out.Write(p) }

// OpenUSB opens the first board matching vid/pid and claims its bulk endpoints
func OpenUSB(vid, pid uint16) (*USB, error) {
	var (
		u   USB
		err error
	)
	u.ctx = gousb.NewContext()
	u.device, err = u.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		u.ctx.Close()
		return nil, errors.Wrap(err, "opening USB device")
	}
	if u.device == nil {
		u.ctx.Close()
		return nil, errors.Errorf("no USB device with VID:PID %04X:%04X found", vid, pid)
	}
	err = u.device.SetAutoDetach(true)
	if err != nil {
		u.Close()
		return nil, errors.Wrap(err, "setting auto detach")
	}
	u.iface, u.done, err = u.device.DefaultInterface()
	if err != nil {
		u.Close()
		return nil, errors.Wrap(err, "claiming default interface")
	}
	u.in, err = u.iface.InEndpoint(epIn)
	if err != nil {
		u.Close()
		return nil, errors.Wrap(err, "claiming IN endpoint")
	}
	u.out, err = u.iface.OutEndpoint(epOut)
	if err != nil {
		u.Close()
		return nil, errors.Wrap(err, "claiming OUT endpoint")
	}
	return &u, nil
}

// SerialNumber returns the serial number string of the open board,
// used to locate its factory calibration file
func (u *USB) SerialNumber() (string, error) {
	if u.device == nil {
		return "", ErrNotOpen
	}
	return u.device.SerialNumber()
}

func (u *USB) rw() (io.ReadWriter, error) {
	if u.in == nil || u.out == nil {
		return nil, ErrNotOpen
	}
	return endpoints{in: u.in, out: u.out}, nil
}

// WriteRegisters writes p to the registers beginning at addr
func (u *USB) WriteRegisters(addr uint16, p []byte) error {
	rw, err := u.rw()
	if err != nil {
		return err
	}
	return writeRegisters(rw, addr, p)
}

// ReadRegisters reads n bytes from the registers beginning at addr
func (u *USB) ReadRegisters(addr uint16, n int) ([]byte, error) {
	rw, err := u.rw()
	if err != nil {
		return nil, err
	}
	return readRegisters(rw, addr, n)
}

// LoadBitstream sends an FPGA image to the board
func (u *USB) LoadBitstream(p []byte, verify bool) error {
	rw, err := u.rw()
	if err != nil {
		return err
	}
	return loadBitstream(rw, p, verify)
}

// Close releases the interface and the USB context
func (u *USB) Close() error {
	u.in = nil
	u.out = nil
	if u.done != nil {
		u.done()
		u.done = nil
		u.iface = nil
	}
	var err error
	if u.device != nil {
		err = u.device.Close()
		u.device = nil
	}
	if u.ctx != nil {
		err2 := u.ctx.Close()
		if err == nil {
			err = err2
		}
		u.ctx = nil
	}
	return err
}
