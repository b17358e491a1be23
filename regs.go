package enc28j60

import (
	"context"
	"log/slog"

	"github.com/soypat/enc28j60/encwire"
)

// bankUnknown forces a bank switch on the first banked access.
const bankUnknown = 0xff

func (d *Device) lockRegs() error {
	if d.regLock.TryAcquire(1) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.RegLockTimeout)
	defer cancel()
	if d.regLock.Acquire(ctx, 1) != nil {
		return ErrRegTimeout
	}
	return nil
}

func (d *Device) unlockRegs() { d.regLock.Release(1) }

// The methods below with lowercase register verbs (readReg, writeReg, ...)
// require the register lock to be held. The reg* variants take it.

// selectBank switches the active bank to the one holding r. Shared
// registers and accesses to the cached bank issue no transaction.
func (d *Device) selectBank(r encwire.Reg) error {
	if r.IsShared() {
		return nil
	}
	bank := r.Bank()
	if bank == d.bank {
		return nil
	}
	con1 := encwire.ECON1.Offset()
	err := d.spiBitClear(con1, encwire.ECON1_BSEL)
	if err != nil {
		d.bank = bankUnknown
		return err
	}
	if bank != 0 {
		err = d.spiBitSet(con1, bank&encwire.ECON1_BSEL)
		if err != nil {
			d.bank = bankUnknown
			return err
		}
	}
	d.bank = bank
	return nil
}

func (d *Device) readReg(r encwire.Reg) (uint8, error) {
	err := d.selectBank(r)
	if err != nil {
		return 0, err
	}
	v, err := d.spiRegRead(r.IsETH(), r.Offset())
	if d.traceEnabled {
		d.trace("reg:read", slog.String("reg", r.String()), slog.Int("v", int(v)))
	}
	return v, err
}

func (d *Device) writeReg(r encwire.Reg, v uint8) error {
	err := d.selectBank(r)
	if err != nil {
		return err
	}
	if d.traceEnabled {
		d.trace("reg:write", slog.String("reg", r.String()), slog.Int("v", int(v)))
	}
	return d.spiRegWrite(r.Offset(), v)
}

// setBits uses BFS on ETH registers. MAC and MII registers do not support
// the bit field commands and are read-modify-written.
func (d *Device) setBits(r encwire.Reg, mask uint8) error {
	err := d.selectBank(r)
	if err != nil {
		return err
	}
	if r.IsETH() {
		return d.spiBitSet(r.Offset(), mask)
	}
	v, err := d.spiRegRead(false, r.Offset())
	if err != nil {
		return err
	}
	return d.spiRegWrite(r.Offset(), v|mask)
}

func (d *Device) clearBits(r encwire.Reg, mask uint8) error {
	err := d.selectBank(r)
	if err != nil {
		return err
	}
	if r.IsETH() {
		return d.spiBitClear(r.Offset(), mask)
	}
	v, err := d.spiRegRead(false, r.Offset())
	if err != nil {
		return err
	}
	return d.spiRegWrite(r.Offset(), v&^mask)
}

// writeReg16 writes a low/high register pair, low byte first. The chip
// latches pointer registers on the high byte write.
func (d *Device) writeReg16(lo encwire.Reg, v uint16) error {
	err := d.writeReg(lo, lo8(v))
	if err != nil {
		return err
	}
	return d.writeReg(lo+1, hi8(v))
}

func (d *Device) readReg16(lo encwire.Reg) (uint16, error) {
	l, err := d.readReg(lo)
	if err != nil {
		return 0, err
	}
	h, err := d.readReg(lo + 1)
	return u16(l, h), err
}

func (d *Device) regRead(r encwire.Reg) (uint8, error) {
	err := d.lockRegs()
	if err != nil {
		return 0, err
	}
	defer d.unlockRegs()
	return d.readReg(r)
}

func (d *Device) regWrite(r encwire.Reg, v uint8) error {
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	return d.writeReg(r, v)
}

func (d *Device) regSet(r encwire.Reg, mask uint8) error {
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	return d.setBits(r, mask)
}

func (d *Device) regClear(r encwire.Reg, mask uint8) error {
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	return d.clearBits(r, mask)
}

func (d *Device) regWrite16(lo encwire.Reg, v uint16) error {
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	return d.writeReg16(lo, v)
}

func (d *Device) regRead16(lo encwire.Reg) (uint16, error) {
	err := d.lockRegs()
	if err != nil {
		return 0, err
	}
	defer d.unlockRegs()
	return d.readReg16(lo)
}
