package frontpanel

import (
	"encoding/binary"
	"sync"
)

// RegWrite is one recorded register write
type RegWrite struct {
	Addr uint16
	Data []byte
}

// Mock is an in-memory board.  It implements Link against a flat register
// file and records every write in order, which makes command sequences easy
// to assert on in tests.  It also backs the simulated link mode of oscsrv.
type Mock struct {
	sync.Mutex

	// Regs is the register file, one byte per address
	Regs map[uint16]byte

	// Writes is the ordered record of register writes
	Writes []RegWrite

	// Bitstream is the last loaded image
	Bitstream []byte

	// CorruptBitstream makes the mock report a wrong CRC for loaded
	// images, to exercise the verify path
	CorruptBitstream bool

	// WriteErr, when non-nil, is returned by every WriteRegisters call
	WriteErr error

	closed bool
}

// NewMock creates a new Mock with an empty register file
func NewMock() *Mock {
	return &Mock{Regs: map[uint16]byte{}}
}

// WriteRegisters stores p at addr and records the write
func (m *Mock) WriteRegisters(addr uint16, p []byte) error {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return ErrNotOpen
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	for i, b := range cp {
		m.Regs[addr+uint16(i)] = b
	}
	m.Writes = append(m.Writes, RegWrite{Addr: addr, Data: cp})
	return nil
}

// ReadRegisters returns n bytes from the register file; unwritten
// addresses read as zero
func (m *Mock) ReadRegisters(addr uint16, n int) ([]byte, error) {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return nil, ErrNotOpen
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = m.Regs[addr+uint16(i)]
	}
	return out, nil
}

// LoadBitstream stores the image and models the CRC report
func (m *Mock) LoadBitstream(p []byte, verify bool) error {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return ErrNotOpen
	}
	m.Bitstream = make([]byte, len(p))
	copy(m.Bitstream, p)
	reported := BitstreamCRC(p)
	if m.CorruptBitstream {
		reported = ^reported
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, reported)
	for i, b := range buf {
		m.Regs[regBitstreamCRC+uint16(i)] = b
	}
	if verify && m.CorruptBitstream {
		return ErrHashMismatch
	}
	return nil
}

// Close marks the mock closed; further operations fail with ErrNotOpen
func (m *Mock) Close() error {
	m.Lock()
	defer m.Unlock()
	m.closed = true
	return nil
}

// Reg16 reads back one 16-bit register from the register file
func (m *Mock) Reg16(addr uint16) uint16 {
	m.Lock()
	defer m.Unlock()
	return binary.BigEndian.Uint16([]byte{m.Regs[addr], m.Regs[addr+1]})
}

// SetReg16 places a 16-bit value in the register file without recording
// a write; use it to model board-driven status registers
func (m *Mock) SetReg16(addr uint16, value uint16) {
	m.Lock()
	defer m.Unlock()
	m.Regs[addr] = byte(value >> 8)
	m.Regs[addr+1] = byte(value)
}
