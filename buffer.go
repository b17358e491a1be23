package enc28j60

import "github.com/soypat/enc28j60/encwire"

// nextRxPtrAlignedOdd returns the value to program into ERXRDPT after a frame
// that ends before candidate is freed. ERXRDPT must hold an odd address
// (errata), so the byte before candidate is used, wrapping to end when that
// falls outside [start, end]. Frame pointers written by the chip are even.
func nextRxPtrAlignedOdd(candidate, start, end uint16) uint16 {
	p := candidate - 1
	if candidate == 0 || p < start || p > end {
		return end
	}
	return p
}

// rxWrap returns the buffer address offset bytes past start, folded back
// into the receive ring.
func rxWrap(start, offset uint16) uint16 {
	addr := uint32(start) + uint32(offset)
	if addr > RxEnd {
		addr -= rxRingSize
	}
	return uint16(addr)
}

// readPacket programs ERDPT to addr and reads len(buf) bytes of buffer
// memory. Reads past ERXND wrap to ERXST in hardware.
// Register lock must be held.
func (d *Device) readPacket(addr uint16, buf []byte) error {
	err := d.writeReg16(encwire.ERDPTL, addr)
	if err != nil {
		return err
	}
	return d.spiMemRead(buf)
}

// writePacket programs EWRPT to addr and writes buf to buffer memory.
// Register lock must be held.
func (d *Device) writePacket(addr uint16, buf []byte) error {
	err := d.writeReg16(encwire.EWRPTL, addr)
	if err != nil {
		return err
	}
	return d.spiMemWrite(buf)
}

// setupBuffers programs the receive ring and transmit area partition and
// resets the software receive pointer.
func (d *Device) setupBuffers() error {
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	for _, p := range [...]struct {
		reg encwire.Reg
		v   uint16
	}{
		{encwire.ERXSTL, RxStart},
		{encwire.ERXNDL, RxEnd},
		{encwire.ERXRDPTL, nextRxPtrAlignedOdd(RxStart, RxStart, RxEnd)},
		{encwire.ETXSTL, TxStart},
	} {
		err = d.writeReg16(p.reg, p.v)
		if err != nil {
			return err
		}
	}
	d.nextPacketPtr = RxStart
	return nil
}
