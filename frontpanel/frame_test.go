package frontpanel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte{0x12, 0x34}
	raw, err := makeFrame(opWrite, 0x0104, uint16(len(payload)), payload)
	if err != nil {
		t.Fatalf("makeFrame: %v", err)
	}
	f, err := readFrame(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if f.Op != opWrite {
		t.Errorf("op: expected %X got %X", opWrite, f.Op)
	}
	if f.Addr != 0x0104 {
		t.Errorf("addr: expected 0104 got %04X", f.Addr)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Errorf("payload: expected % X got % X", payload, f.Payload)
	}
}

func TestFrameRejectsCorruptCRC(t *testing.T) {
	raw, err := makeFrame(opWrite, 0x0104, 2, []byte{0x12, 0x34})
	if err != nil {
		t.Fatalf("makeFrame: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	_, err = readFrame(bytes.NewReader(raw))
	if !errors.Is(err, ErrCRCMismatch) {
		t.Errorf("expected ErrCRCMismatch, got %v", err)
	}
}

func TestFrameRejectsBadStart(t *testing.T) {
	raw, err := makeFrame(opRead, 0, 2, nil)
	if err != nil {
		t.Fatalf("makeFrame: %v", err)
	}
	raw[0] = 0x00
	if _, err = readFrame(bytes.NewReader(raw)); err == nil {
		t.Error("expected an error for a frame without the start byte")
	}
}

func TestFrameRejectsOversizePayload(t *testing.T) {
	big := make([]byte, maxPayload+1)
	if _, err := makeFrame(opWrite, 0, uint16(len(big)), big); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestMockBitstreamVerify(t *testing.T) {
	m := NewMock()
	image := []byte("not a real bitstream, but stable bytes")
	if err := m.LoadBitstream(image, true); err != nil {
		t.Fatalf("verify of intact image failed: %v", err)
	}
	buf, err := m.ReadRegisters(regBitstreamCRC, 4)
	if err != nil {
		t.Fatalf("reading CRC report: %v", err)
	}
	if got := binary.BigEndian.Uint32(buf); got != BitstreamCRC(image) {
		t.Errorf("CRC report %08X != image CRC %08X", got, BitstreamCRC(image))
	}

	m.CorruptBitstream = true
	if err := m.LoadBitstream(image, true); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch from corrupt image, got %v", err)
	}
	// verification off: the caller asked to trust the image
	if err := m.LoadBitstream(image, false); err != nil {
		t.Errorf("load without verify should not fail, got %v", err)
	}
}

func TestMockClosedLinkFails(t *testing.T) {
	m := NewMock()
	m.Close()
	if err := m.WriteRegisters(0, []byte{1}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}
