package frontpanel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/snksoft/crc"
)

// frames are encoded as [SOF] [OP] [ADDR hi lo] [LEN hi lo] [0..1024 payload bytes] [CRC hi lo].
// the CRC-16 (CCITT XMODEM) covers OP through the last payload byte.
const (
	frameStart = 0xA5

	opWrite     = 0x01 // host -> board, payload = register data
	opRead      = 0x02 // host -> board, payload = empty, LEN = bytes wanted
	opReadReply = 0x03 // board -> host, payload = register data
	opPipe      = 0x04 // host -> board, bitstream chunk
	opAck       = 0x06 // board -> host, empty
	opNack      = 0x15 // board -> host, empty

	// headerLen is SOF + OP + ADDR + LEN
	headerLen = 6

	// maxPayload is the largest payload a single frame may carry
	maxPayload = 1024

	// pipeChunk is the bitstream chunk size.  it divides the image into
	// frames small enough for the board's receive buffer
	pipeChunk = 512

	// regBitstreamCRC is the read-only register pair holding the CRC-32
	// the board computed over the last loaded bitstream
	regBitstreamCRC = 0xFFFC
)

var (
	crcTable = crc.NewTable(crc.XMODEM)

	// ErrShortFrame is generated when a response ends before a full frame
	ErrShortFrame = errors.New("response shorter than a complete frame")

	// ErrCRCMismatch is generated when a received frame fails its CRC check
	ErrCRCMismatch = errors.New("frame CRC mismatch, data lost in transmission")

	// ErrPayloadTooLarge is generated when a write exceeds the frame payload limit
	ErrPayloadTooLarge = errors.New("payload exceeds maximum frame size")
)

// frame is one decoded protocol frame
type frame struct {
	Op      byte
	Addr    uint16
	Payload []byte
}

// crcHelper computes the two-byte CRC value in one line
func crcHelper(buf []byte) []byte {
	crcUint := crcTable.InitCrc()
	crcUint = crcTable.UpdateCrc(crcUint, buf)
	crcBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(crcBytes, crcTable.CRC16(crcUint))
	return crcBytes
}

// makeFrame produces the wire encoding of a frame.  ln is the LEN field;
// for reads it is the request size and the payload is empty.
func makeFrame(op byte, addr uint16, ln uint16, payload []byte) ([]byte, error) {
	if len(payload) > maxPayload {
		return nil, ErrPayloadTooLarge
	}
	body := make([]byte, 5, 5+len(payload))
	body[0] = op
	binary.BigEndian.PutUint16(body[1:3], addr)
	binary.BigEndian.PutUint16(body[3:5], ln)
	body = append(body, payload...)

	out := append([]byte{frameStart}, body...)
	out = append(out, crcHelper(body)...)
	return out, nil
}

// readFrame reads exactly one frame from r, validating SOF and CRC
func readFrame(r io.Reader) (frame, error) {
	var f frame
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return f, fmt.Errorf("%w: %v", ErrShortFrame, err)
	}
	if hdr[0] != frameStart {
		return f, fmt.Errorf("expected frame start byte %X, got %X", frameStart, hdr[0])
	}
	ln := binary.BigEndian.Uint16(hdr[4:6])
	if int(ln) > maxPayload {
		return f, ErrPayloadTooLarge
	}
	rest := make([]byte, int(ln)+2)
	if _, err := io.ReadFull(r, rest); err != nil {
		return f, fmt.Errorf("%w: %v", ErrShortFrame, err)
	}
	body := append(hdr[1:headerLen:headerLen], rest[:ln]...)
	recv := rest[ln:]
	if comp := crcHelper(body); recv[0] != comp[0] || recv[1] != comp[1] {
		return f, ErrCRCMismatch
	}
	f.Op = hdr[1]
	f.Addr = binary.BigEndian.Uint16(hdr[2:4])
	f.Payload = rest[:ln]
	return f, nil
}

// transact writes one frame and reads the board's reply off the same pipe
func transact(rw io.ReadWriter, op byte, addr uint16, ln uint16, payload []byte) (frame, error) {
	raw, err := makeFrame(op, addr, ln, payload)
	if err != nil {
		return frame{}, err
	}
	if _, err := rw.Write(raw); err != nil {
		return frame{}, err
	}
	resp, err := readFrame(rw)
	if err != nil {
		return frame{}, err
	}
	if resp.Op == opNack {
		return resp, ErrNack
	}
	return resp, nil
}

// writeRegisters issues an opWrite and waits for the ack
func writeRegisters(rw io.ReadWriter, addr uint16, p []byte) error {
	resp, err := transact(rw, opWrite, addr, uint16(len(p)), p)
	if err != nil {
		return err
	}
	if resp.Op != opAck {
		return fmt.Errorf("expected ACK to register write, got op %X", resp.Op)
	}
	return nil
}

// readRegisters issues an opRead and returns the reply payload
func readRegisters(rw io.ReadWriter, addr uint16, n int) ([]byte, error) {
	resp, err := transact(rw, opRead, addr, uint16(n), nil)
	if err != nil {
		return nil, err
	}
	if resp.Op != opReadReply {
		return nil, fmt.Errorf("expected read reply, got op %X", resp.Op)
	}
	if len(resp.Payload) != n {
		return nil, fmt.Errorf("asked for %d register bytes, board returned %d", n, len(resp.Payload))
	}
	return resp.Payload, nil
}

// loadBitstream pushes an image down the pipe in chunks, then compares the
// board's CRC-32 report against the image if verify is set
func loadBitstream(rw io.ReadWriter, p []byte, verify bool) error {
	for off := 0; off < len(p); off += pipeChunk {
		end := off + pipeChunk
		if end > len(p) {
			end = len(p)
		}
		resp, err := transact(rw, opPipe, 0, uint16(end-off), p[off:end])
		if err != nil {
			return fmt.Errorf("bitstream chunk at offset %d: %w", off, err)
		}
		if resp.Op != opAck {
			return fmt.Errorf("bitstream chunk at offset %d: expected ACK, got op %X", off, resp.Op)
		}
	}
	if !verify {
		return nil
	}
	buf, err := readRegisters(rw, regBitstreamCRC, 4)
	if err != nil {
		return fmt.Errorf("reading bitstream CRC report: %w", err)
	}
	reported := binary.BigEndian.Uint32(buf)
	local := BitstreamCRC(p)
	if reported != local {
		return fmt.Errorf("%w: board %08X, image %08X", ErrHashMismatch, reported, local)
	}
	return nil
}

// BitstreamCRC computes the CRC-32 the board is expected to report for an image
func BitstreamCRC(p []byte) uint32 {
	return uint32(crc.CalculateCRC(crc.CRC32, p))
}
