package osc1lite

import "encoding/binary"

// NumChannels is the number of stimulation channels on the board
const NumChannels = 12

// global registers
const (
	// RegComReset resets the FPGA<->host and FPGA<->DAC protocol state.
	// write 1 then 0 to pulse.
	RegComReset uint16 = 0x0000

	// RegDACReset hard-resets the physical DAC chips.  pulse like RegComReset.
	RegDACReset uint16 = 0x0002

	// RegDACEnable arms the FPGA to forward channel commands to the DACs
	RegDACEnable uint16 = 0x0004

	// RegSoftTrigger pulses a software trigger into the channels whose
	// bits are set in the written mask
	RegSoftTrigger uint16 = 0x0008

	// RegTriggerOverlap is a read-to-clear mask of channels that received
	// a trigger while a one-shot cycle was still in progress
	RegTriggerOverlap uint16 = 0x000A
)

// per-channel register blocks.  channel n's registers live at
// regChannelBase + n*regChannelStride + offset.
const (
	regChannelBase   uint16 = 0x0100
	regChannelStride uint16 = 0x0010

	regAmplitude  uint16 = 0x0000 // int16, DAC amplitude code
	regPulseWidth uint16 = 0x0002 // uint16, device ticks
	regPeriod     uint16 = 0x0004 // uint16, device ticks
	regMode       uint16 = 0x0006 // uint16, rise-time class
	regPulses     uint16 = 0x0008 // uint16, cycles per trigger, 0 = forever
	regEnable     uint16 = 0x000A // uint16, 1 = output connected
	regConfig     uint16 = 0x000C // uint16, trigger config bits

	// regConfig bits
	cfgBitContinuous uint = 0
	cfgBitExternal   uint = 1
	cfgBitTriggerOut uint = 2
)

// DAC trim registers: two words per channel, the measured anchor currents
const (
	regTrimBase   uint16 = 0x0200
	regTrimStride uint16 = 0x0004
)

// ShankPositions is the fixed bijection between channel index and the
// physical position of the emitter on the probe: four shanks (A-D), three
// sites each, ordered tip to base.  This mapping is part of the device's
// physical contract; do not reorder.
var ShankPositions = [NumChannels]string{
	"A1", "A2", "A3",
	"B1", "B2", "B3",
	"C1", "C2", "C3",
	"D1", "D2", "D3",
}

// channelReg returns the address of one of channel ch's registers
func channelReg(ch int, offset uint16) uint16 {
	return regChannelBase + uint16(ch)*regChannelStride + offset
}

// trimReg returns the address of channel ch's trim register pair
func trimReg(ch int) uint16 {
	return regTrimBase + uint16(ch)*regTrimStride
}

// DeviceRegisters is the hardware encoding of one channel's waveform: the
// exact words written to the channel's register block.
type DeviceRegisters struct {
	// Amplitude is the DAC amplitude code, two's complement
	Amplitude int16

	// PulseWidth and Period are in device ticks (TickPeriod each)
	PulseWidth uint16
	Period     uint16

	// Mode is the rise-time class
	Mode uint16

	// Pulses is cycles per trigger, 0 = repeat until stopped
	Pulses uint16
}

// regWrite pairs a register offset within the channel block with its value
type regWrite struct {
	offset uint16
	value  uint16
}

// writes lists the register writes that realize d, in the order the
// hardware expects (timing before amplitude, so a partially written block
// never emits a stale-amplitude pulse at new timing)
func (d DeviceRegisters) writes() []regWrite {
	return []regWrite{
		{regMode, d.Mode},
		{regPulseWidth, d.PulseWidth},
		{regPeriod, d.Period},
		{regPulses, d.Pulses},
		{regAmplitude, uint16(d.Amplitude)},
	}
}

// be16 renders a register word in wire order
func be16(v uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return buf
}
