/*Package frontpanel implements the register-level transport to OSC1 stimulator
boards ("the board link").

The link is deliberately narrow: blocking register writes, blocking register
reads, and bitstream loading.  Everything the board does -- waveform timing,
trigger routing, DAC sequencing -- is commanded through 16-bit registers, so
the higher layers never see USB or serial framing.

Three implementations are provided:
	1.  USB, for boards attached directly to the host (bulk endpoints)
	2.  Bridge, for boards behind a TCP or serial register bridge
	3.  Mock, an in-memory register file for tests and dry runs

All three speak the same frame protocol, see frame.go.
*/
package frontpanel

import "errors"

var (
	// ErrHashMismatch is generated when the CRC the board reports for a
	// loaded bitstream does not match the CRC of the image sent to it
	ErrHashMismatch = errors.New("bitstream hash reported by board does not match sent image")

	// ErrNotOpen is generated when an operation is attempted on a link
	// that has not been opened, or has been closed
	ErrNotOpen = errors.New("link is not open")

	// ErrNack is generated when the board rejects a register operation
	ErrNack = errors.New("board rejected the command (NACK)")
)

// every transport implements Link
var (
	_ Link = (*USB)(nil)
	_ Link = (*Bridge)(nil)
	_ Link = (*Mock)(nil)
)

// A Link can move register values and bitstreams to (and from) a board.
// Implementations block until the board acknowledges the operation.
type Link interface {
	// WriteRegisters writes p to the registers beginning at addr
	WriteRegisters(addr uint16, p []byte) error

	// ReadRegisters reads n bytes from the registers beginning at addr
	ReadRegisters(addr uint16, n int) ([]byte, error)

	// LoadBitstream sends an FPGA image to the board.  If verify is true,
	// the CRC of the image is checked against the board's report and
	// ErrHashMismatch is returned on a mismatch.
	LoadBitstream(p []byte, verify bool) error

	// Close releases the link
	Close() error
}
