package frontpanel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
)

// boardEmu answers the frame protocol on one end of a pipe, backed by a
// flat register file.  Read requests carry their size in LEN with no
// payload bytes, so the framing is parsed by hand here.
func boardEmu(conn net.Conn, regs map[uint16][]byte) {
	defer conn.Close()
	var image []byte
	for {
		hdr := make([]byte, headerLen)
		if _, err := io.ReadFull(conn, hdr); err != nil {
			return
		}
		op := hdr[1]
		addr := binary.BigEndian.Uint16(hdr[2:4])
		ln := int(binary.BigEndian.Uint16(hdr[4:6]))
		npay := ln
		if op == opRead {
			npay = 0
		}
		rest := make([]byte, npay+2)
		if _, err := io.ReadFull(conn, rest); err != nil {
			return
		}
		body := append(hdr[1:headerLen:headerLen], rest[:npay]...)
		comp := crcHelper(body)
		if rest[npay] != comp[0] || rest[npay+1] != comp[1] {
			raw, _ := makeFrame(opNack, addr, 0, nil)
			conn.Write(raw)
			continue
		}
		switch op {
		case opWrite:
			regs[addr] = append([]byte(nil), rest[:npay]...)
			raw, _ := makeFrame(opAck, addr, 0, nil)
			conn.Write(raw)
		case opPipe:
			image = append(image, rest[:npay]...)
			raw, _ := makeFrame(opAck, addr, 0, nil)
			conn.Write(raw)
		case opRead:
			var p []byte
			if addr == regBitstreamCRC {
				p = make([]byte, 4)
				binary.BigEndian.PutUint32(p, BitstreamCRC(image))
			} else {
				p = regs[addr]
			}
			if len(p) > ln {
				p = p[:ln]
			}
			raw, _ := makeFrame(opReadReply, addr, uint16(len(p)), p)
			conn.Write(raw)
		default:
			raw, _ := makeFrame(opNack, addr, 0, nil)
			conn.Write(raw)
		}
	}
}

// newPipeBridge returns an open Bridge talking to an in-memory board
func newPipeBridge(regs map[uint16][]byte) *Bridge {
	host, board := net.Pipe()
	go boardEmu(board, regs)
	b := NewBridge("pipe", false)
	b.conn = host
	return b
}

func TestBridgeRegisterRoundTrip(t *testing.T) {
	regs := map[uint16][]byte{}
	b := newPipeBridge(regs)
	defer b.Close()

	want := []byte{0x12, 0x34}
	if err := b.WriteRegisters(0x0104, want); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := b.ReadRegisters(0x0104, 2)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("read back % X, wrote % X", got, want)
	}
}

func TestBridgeLoadBitstreamVerifies(t *testing.T) {
	b := newPipeBridge(map[uint16][]byte{})
	defer b.Close()

	// larger than one pipe chunk so the image crosses a frame boundary
	image := bytes.Repeat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, pipeChunk)
	if err := b.LoadBitstream(image, true); err != nil {
		t.Fatalf("bitstream load failed: %v", err)
	}
}

func TestBridgeReportsNack(t *testing.T) {
	host, board := net.Pipe()
	go func() {
		defer board.Close()
		hdr := make([]byte, headerLen)
		if _, err := io.ReadFull(board, hdr); err != nil {
			return
		}
		rest := make([]byte, int(binary.BigEndian.Uint16(hdr[4:6]))+2)
		if _, err := io.ReadFull(board, rest); err != nil {
			return
		}
		raw, _ := makeFrame(opNack, 0, 0, nil)
		board.Write(raw)
	}()
	b := NewBridge("pipe", false)
	b.conn = host
	defer b.Close()

	if err := b.WriteRegisters(0x0004, []byte{0, 1}); !errors.Is(err, ErrNack) {
		t.Errorf("expected ErrNack, got %v", err)
	}
}

func TestBridgeNotOpen(t *testing.T) {
	b := NewBridge("nowhere:1", false)
	if err := b.WriteRegisters(0, []byte{0}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("write on closed bridge: expected ErrNotOpen, got %v", err)
	}
	if _, err := b.ReadRegisters(0, 2); !errors.Is(err, ErrNotOpen) {
		t.Errorf("read on closed bridge: expected ErrNotOpen, got %v", err)
	}
	if err := b.LoadBitstream([]byte{1}, false); !errors.Is(err, ErrNotOpen) {
		t.Errorf("bitstream on closed bridge: expected ErrNotOpen, got %v", err)
	}
}

func TestBridgeSerialConf(t *testing.T) {
	b := NewBridge("/dev/ttyUSB0", true)
	if c := b.SerialConf(); c.Name != "/dev/ttyUSB0" || c.Baud != 115200 {
		t.Errorf("default serial conf: got %s at %d baud", c.Name, c.Baud)
	}
	b.Baud = 9600
	if c := b.SerialConf(); c.Baud != 9600 {
		t.Errorf("explicit baud not honored, got %d", c.Baud)
	}
}
