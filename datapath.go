package enc28j60

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/soypat/enc28j60/encwire"
)

// takeTx waits up to timeout for the transmit area to be free.
func (d *Device) takeTx(timeout time.Duration) bool {
	select {
	case <-d.txSem:
		return true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-d.txSem:
		return true
	case <-t.C:
		return false
	}
}

// giveTx frees the transmit area. Giving an already free area is a no-op.
func (d *Device) giveTx() {
	select {
	case d.txSem <- struct{}{}:
	default:
	}
}

// Transmit copies frame into the transmit area and requests its
// transmission. Only one frame is in flight at a time: Transmit waits up to
// Config.TxTimeout for the previous frame to complete. The frame must not
// include the CRC, which the MAC appends.
func (d *Device) Transmit(frame []byte) (err error) {
	if !d.ready.Load() {
		return ErrNotInitialized
	}
	if len(frame) == 0 || len(frame) > MaxTxFrameSize {
		return ErrTxFrameSize
	}
	took := d.takeTx(d.cfg.TxTimeout)
	if !took {
		// The chip decides below whether the previous frame is still in flight.
		d.warn("Transmit:sem-timeout", slog.Duration("timeout", d.cfg.TxTimeout))
	}
	requested := false
	defer func() {
		if err != nil && !requested && took && err != ErrTxBusy {
			d.giveTx()
		}
		if err != nil {
			d.stats.txErrors.Add(1)
		}
	}()
	err = d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	econ1, err := d.readReg(encwire.ECON1)
	if err != nil {
		return err
	}
	if econ1&encwire.ECON1_TXRTS != 0 {
		return ErrTxBusy
	}
	end := uint16(TxStart + len(frame))
	err = d.writeReg16(encwire.ETXNDL, end)
	if err != nil {
		return err
	}
	// Control byte 0x00: use MACON3 settings for padding and CRC.
	err = d.writePacket(TxStart, []byte{0x00})
	if err != nil {
		return err
	}
	err = d.spiMemWrite(frame)
	if err != nil {
		return err
	}
	d.lastTSV = end + 1
	d.txRetried = false
	err = d.clearBits(encwire.EIR, encwire.EIR_TXIF)
	if err != nil {
		return err
	}
	err = d.setBits(encwire.EIE, encwire.EIE_TXIE)
	if err != nil {
		return err
	}
	err = d.setBits(encwire.ECON1, encwire.ECON1_TXRTS)
	if err != nil {
		return err
	}
	requested = true
	if d.traceEnabled {
		d.trace("Transmit", slog.Int("len", len(frame)), slog.Int("etxnd", int(end)))
	}
	return nil
}

// Receive reads the next frame from the receive ring into buf and frees
// its space in the ring. n excludes the 4 byte CRC, though buf must be able
// to hold it. more reports whether the chip holds further frames.
// n is 0 with a nil error when no frame is pending.
//
// A frame that does not fit buf is discarded and ErrRxFrameTooLarge
// returned; buf is not written past its length.
func (d *Device) Receive(buf []byte) (n int, more bool, err error) {
	if !d.ready.Load() {
		return 0, false, ErrNotInitialized
	}
	err = d.lockRegs()
	if err != nil {
		return 0, false, err
	}
	defer d.unlockRegs()
	return d.receive(buf)
}

func (d *Device) receive(buf []byte) (n int, more bool, err error) {
	cnt, err := d.readReg(encwire.EPKTCNT)
	if err != nil || cnt == 0 {
		return 0, false, err
	}
	ptr := d.nextPacketPtr
	var hbuf [RSVSize]byte
	err = d.readPacket(ptr, hbuf[:])
	if err != nil {
		return 0, false, err
	}
	hdr := encwire.DecodeRxHeader(hbuf[:])
	length := int(hdr.ByteCount)
	if length > len(buf) {
		err = fmt.Errorf("%w: %d > %d", ErrRxFrameTooLarge, length, len(buf))
		d.logerr("Receive:too-large", slog.Int("len", length), slog.Int("buflen", len(buf)))
	} else {
		err = d.readPacket(rxWrap(ptr, RSVSize), buf[:length])
		if err != nil {
			return 0, false, err
		}
		n = hdr.PayloadLen()
		if !hdr.Status.ReceivedOK() {
			d.debug("Receive:status", slog.Int("rsv", int(hdr.Status)))
		}
	}
	more, ferr := d.freeFrame(hdr.NextPacket)
	if ferr != nil {
		return 0, false, ferr
	}
	if err != nil {
		return 0, more, err
	}
	return n, more, nil
}

// freeFrame releases ring space up to next, decrements the packet counter
// and reports whether frames remain.
func (d *Device) freeFrame(next uint16) (more bool, err error) {
	err = d.writeReg16(encwire.ERXRDPTL, nextRxPtrAlignedOdd(next, RxStart, RxEnd))
	if err != nil {
		return false, err
	}
	d.nextPacketPtr = next
	err = d.setBits(encwire.ECON2, encwire.ECON2_PKTDEC)
	if err != nil {
		return false, err
	}
	cnt, err := d.readReg(encwire.EPKTCNT)
	return cnt > 0, err
}

// readTSV reads the status vector of the last transmitted frame.
// Register lock must be held.
func (d *Device) readTSV() (encwire.TSV, error) {
	var buf [TSVSize]byte
	err := d.readPacket(d.lastTSV, buf[:])
	if err != nil {
		return 0, err
	}
	return encwire.DecodeTSV(buf[:]), nil
}
