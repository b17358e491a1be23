package enc28j60

import (
	"context"
	"log/slog"
	"time"

	"github.com/soypat/enc28j60/encwire"
)

// spiChunk is the largest buffer memory payload sent in a single SPI
// transaction. Longer transfers are split; the chip auto-increments its
// buffer pointers across transactions.
const spiChunk = 256

// resetSettle is the time the chip needs after a soft reset before it
// accepts commands again.
const resetSettle = 2 * time.Millisecond

func (d *Device) lockSPI() error {
	if d.spiLock.TryAcquire(1) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SPILockTimeout)
	defer cancel()
	if d.spiLock.Acquire(ctx, 1) != nil {
		return ErrBusTimeout
	}
	return nil
}

func (d *Device) unlockSPI() { d.spiLock.Release(1) }

// tx runs a single chip select framed transaction.
func (d *Device) tx(w, r []byte) error {
	if d.cs != nil {
		d.cs(false)
	}
	err := d.spi.Tx(w, r)
	if d.cs != nil {
		d.cs(true)
	}
	return err
}

// spiRegWrite writes v to the control register at addr of the active bank.
func (d *Device) spiRegWrite(addr, v uint8) error {
	err := d.lockSPI()
	if err != nil {
		return err
	}
	defer d.unlockSPI()
	d.spiw[0] = encwire.Command(encwire.OpWCR, addr)
	d.spiw[1] = v
	return d.tx(d.spiw[:2], nil)
}

// spiRegRead reads the control register at addr of the active bank. ETH
// registers answer on the byte after the command. MAC and MII registers
// shift out a dummy byte first.
func (d *Device) spiRegRead(isETH bool, addr uint8) (uint8, error) {
	err := d.lockSPI()
	if err != nil {
		return 0, err
	}
	defer d.unlockSPI()
	n := 3
	if isETH {
		n = 2
	}
	d.spiw[0] = encwire.Command(encwire.OpRCR, addr)
	d.spiw[1] = 0
	d.spiw[2] = 0
	err = d.tx(d.spiw[:n], d.spir[:n])
	if err != nil {
		return 0, err
	}
	return d.spir[n-1], nil
}

// spiBitSet ORs mask into an ETH register.
func (d *Device) spiBitSet(addr, mask uint8) error {
	return d.spiBitOp(encwire.OpBFS, addr, mask)
}

// spiBitClear clears mask bits of an ETH register.
func (d *Device) spiBitClear(addr, mask uint8) error {
	return d.spiBitOp(encwire.OpBFC, addr, mask)
}

func (d *Device) spiBitOp(op encwire.Opcode, addr, mask uint8) error {
	err := d.lockSPI()
	if err != nil {
		return err
	}
	defer d.unlockSPI()
	d.spiw[0] = encwire.Command(op, addr)
	d.spiw[1] = mask
	return d.tx(d.spiw[:2], nil)
}

// spiMemWrite writes buf to buffer memory at the current EWRPT.
func (d *Device) spiMemWrite(buf []byte) error {
	err := d.lockSPI()
	if err != nil {
		return err
	}
	defer d.unlockSPI()
	d.spiw[0] = encwire.Command(encwire.OpWBM, 0)
	for len(buf) > 0 {
		n := copy(d.spiw[1:], buf)
		err = d.tx(d.spiw[:n+1], nil)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// spiMemRead fills buf from buffer memory at the current ERDPT.
func (d *Device) spiMemRead(buf []byte) error {
	err := d.lockSPI()
	if err != nil {
		return err
	}
	defer d.unlockSPI()
	d.spiw[0] = encwire.Command(encwire.OpRBM, 0)
	for len(buf) > 0 {
		n := min(len(buf), spiChunk)
		clear(d.spiw[1 : n+1])
		err = d.tx(d.spiw[:n+1], d.spir[:n+1])
		if err != nil {
			return err
		}
		copy(buf, d.spir[1:n+1])
		buf = buf[n:]
	}
	return nil
}

// spiSoftReset issues the system reset command and holds the bus until the
// chip has settled. The bank cache is reset since ECON1 returns to bank 0.
func (d *Device) spiSoftReset() error {
	err := d.lockSPI()
	if err != nil {
		return err
	}
	defer d.unlockSPI()
	d.spiw[0] = encwire.Command(encwire.OpSRC, 0)
	err = d.tx(d.spiw[:1], nil)
	if err != nil {
		return err
	}
	d.cfg.Sleep(resetSettle)
	d.bank = 0
	d.trace("spi:reset", slog.Duration("settle", resetSettle))
	return nil
}
