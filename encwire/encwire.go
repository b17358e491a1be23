// Package encwire implements the ENC28J60 SPI command framing, control register
// addressing and the binary layouts the chip writes into its packet buffer.
package encwire

import "strconv"

// Opcode is the 3 bit SPI instruction in the top bits of every command byte.
// The full byte values are given with their fixed argument where applicable.
type Opcode uint8

const (
	OpRCR Opcode = 0x00 // Read Control Register.
	OpRBM Opcode = 0x3A // Read Buffer Memory.
	OpWCR Opcode = 0x40 // Write Control Register.
	OpWBM Opcode = 0x7A // Write Buffer Memory.
	OpBFS Opcode = 0x80 // Bit Field Set.
	OpBFC Opcode = 0xA0 // Bit Field Clear.
	OpSRC Opcode = 0xFF // System Reset Command.
)

const (
	opMask  = 0xE0
	argMask = 0x1F
	// BufferArg is the constant argument of RBM and WBM.
	BufferArg = 0x1A
)

// Command returns the first byte of a SPI transaction.
// For RBM, WBM and SRC the argument is fixed and addr is ignored.
func Command(op Opcode, addr uint8) byte {
	switch op {
	case OpRBM, OpWBM, OpSRC:
		return byte(op)
	}
	return byte(op)&opMask | addr&argMask
}

// DecodeCommand splits a command byte into its opcode and 5 bit argument.
func DecodeCommand(b byte) (op Opcode, arg uint8) {
	arg = b & argMask
	switch Opcode(b) {
	case OpRBM, OpWBM, OpSRC:
		return Opcode(b), arg
	}
	return Opcode(b & opMask), arg
}

// IsValid reports whether op is one of the seven instructions of the chip.
func (op Opcode) IsValid() bool {
	switch op {
	case OpRCR, OpRBM, OpWCR, OpWBM, OpBFS, OpBFC, OpSRC:
		return true
	}
	return false
}

func (op Opcode) String() string {
	switch op {
	case OpRCR:
		return "RCR"
	case OpRBM:
		return "RBM"
	case OpWCR:
		return "WCR"
	case OpWBM:
		return "WBM"
	case OpBFS:
		return "BFS"
	case OpBFC:
		return "BFC"
	case OpSRC:
		return "SRC"
	}
	return "Opcode(" + strconv.Itoa(int(op)) + ")"
}
