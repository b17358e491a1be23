package main

import (
	"fmt"
	"strings"

	"github.com/soypat/enc28j60/encwire"
)

// firstShared is the address of EIE, the first register mapped in every bank.
const firstShared = 0x1B

// decoder follows the bank select bits of ECON1 across transactions so
// that register arguments can be named.
type decoder struct {
	bank      uint8
	bankKnown bool
	// memHead is how many buffer memory bytes are printed per RBM/WBM.
	memHead int
}

type encTx struct {
	Num   int
	Op    encwire.Opcode
	Bank  uint8
	Arg   uint8
	Name  string
	Value uint8
	Mem   []byte
	// Len is the full buffer memory transfer length. Mem may be shorter.
	Len   int
	Start float64
}

func (tx *encTx) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cmd×%2d %s", tx.Num, tx.Op)
	switch tx.Op {
	case encwire.OpRCR:
		fmt.Fprintf(&b, " %-8s -> 0x%02x", tx.Name, tx.Value)
	case encwire.OpWCR, encwire.OpBFS, encwire.OpBFC:
		fmt.Fprintf(&b, " %-8s <- 0x%02x", tx.Name, tx.Value)
	case encwire.OpRBM, encwire.OpWBM:
		fmt.Fprintf(&b, " len=%d data=%#x", tx.Len, tx.Mem)
	}
	return b.String()
}

func (dec *decoder) regName(arg uint8) string {
	name := ""
	if dec.bankKnown || arg >= firstShared {
		name = encwire.RegisterName(dec.bank, arg)
	}
	if name == "" {
		if dec.bankKnown {
			return fmt.Sprintf("%d:0x%02x", dec.bank, arg)
		}
		return fmt.Sprintf("?:0x%02x", arg)
	}
	return name
}

// decode interprets one chip select framed transaction. mosi is what the
// host sent, miso what the chip answered.
func (dec *decoder) decode(mosi, miso []byte) (tx encTx, ok bool) {
	if len(mosi) == 0 {
		return tx, false
	}
	op, arg := encwire.DecodeCommand(mosi[0])
	if !op.IsValid() {
		return tx, false
	}
	tx = encTx{Op: op, Arg: arg, Bank: dec.bank}
	switch op {
	case encwire.OpSRC:
		dec.bank, dec.bankKnown = 0, true
	case encwire.OpRBM, encwire.OpWBM:
		data := miso
		if op == encwire.OpWBM {
			data = mosi
		}
		if len(data) > 1 {
			data = data[1:]
		} else {
			data = nil
		}
		tx.Len = len(data)
		if dec.memHead > 0 && len(data) > dec.memHead {
			data = data[:dec.memHead]
		}
		tx.Mem = data
	case encwire.OpRCR:
		tx.Name = dec.regName(arg)
		// MAC and MII registers shift out a dummy byte first.
		if len(miso) > 0 {
			tx.Value = miso[len(miso)-1]
		}
	case encwire.OpWCR, encwire.OpBFS, encwire.OpBFC:
		if len(mosi) < 2 {
			return tx, false
		}
		tx.Name = dec.regName(arg)
		tx.Value = mosi[1]
		if arg == encwire.ECON1.Offset() {
			dec.trackBank(op, tx.Value)
		}
	}
	return tx, true
}

func (dec *decoder) trackBank(op encwire.Opcode, v uint8) {
	sel := v & encwire.ECON1_BSEL
	switch op {
	case encwire.OpWCR:
		dec.bank, dec.bankKnown = sel, true
	case encwire.OpBFS:
		dec.bank |= sel
	case encwire.OpBFC:
		dec.bank &^= sel
		if sel == encwire.ECON1_BSEL {
			dec.bankKnown = true
		}
	}
}
