// Package encsim implements a behavioural model of the ENC28J60 as seen from
// its SPI bus and interrupt line. It models register banks, the MAC/MII read
// framing, buffer memory with auto-increment and receive ring wrap-around,
// MII access to the PHY, packet reception and transmission with status
// vectors. It is used to test the driver without hardware.
package encsim

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"sync"

	"github.com/soypat/enc28j60/encwire"
)

const (
	memSize = 0x2000
	memMask = memSize - 1
	nbanked = 0x1B
)

// Txn is a recorded SPI transaction.
type Txn struct {
	Op   encwire.Opcode
	Arg  uint8
	Bank uint8
	// Data holds the bytes written after the command byte.
	Data []byte
}

// IsBankSwitch reports whether the transaction clears the bank select bits,
// which is the first step of every bank switch.
func (t Txn) IsBankSwitch() bool {
	return t.Op == encwire.OpBFC && t.Arg == encwire.ECON1.Offset() &&
		len(t.Data) > 0 && t.Data[0]&encwire.ECON1_BSEL == encwire.ECON1_BSEL
}

// Chip is a simulated ENC28J60. Its methods are safe for concurrent use.
type Chip struct {
	mu     sync.Mutex
	rev    uint8
	banks  [4][nbanked]byte
	common [5]byte // EIE, EIR, ESTAT, ECON2, ECON1.
	mem    [memSize]byte
	phy    [0x20]uint16

	miiBusy    int
	miiOpReads int
	prstStuck  bool
	linkUp     bool

	holdTx         bool
	txPending      bool
	lateCollisions int
	txFrames       [][]byte
	txAttempts     int

	failAfter int
	failErr   error

	log      []Txn
	logOn    bool
	pin      Pin
	asserted bool
}

// New returns a chip in its power-on state reporting revision rev in EREVID.
func New(rev uint8) *Chip {
	c := &Chip{rev: rev, logOn: true, failAfter: -1}
	c.pin.c = c
	c.resetLocked()
	c.resetPHYLocked()
	return c
}

func (c *Chip) resetLocked() {
	c.banks = [4][nbanked]byte{}
	c.common = [5]byte{}
	c.setCommon(encwire.ECON2, encwire.ECON2_AUTOINC)
	c.setCommon(encwire.ESTAT, encwire.ESTAT_CLKRDY)
	c.put16(encwire.ERXSTL, 0x05FA)
	c.put16(encwire.ERXNDL, 0x1FFF)
	c.put16(encwire.ERXWRPTL, 0x05FA)
	c.put16(encwire.ERXRDPTL, 0x05FA)
	c.put16(encwire.ERDPTL, 0x05FA)
	c.put8(encwire.ERXFCON, encwire.ERXFCON_UCEN|encwire.ERXFCON_CRCEN|encwire.ERXFCON_BCEN)
	c.put8(encwire.EREVID, c.rev)
	c.put16(encwire.MAMXFLL, 1536)
	c.txPending = false
	c.asserted = false
}

func (c *Chip) resetPHYLocked() {
	c.phy = [0x20]uint16{}
	c.phy[encwire.PHID1] = encwire.PHID1Value
	c.phy[encwire.PHID2] = encwire.PHID2Value
	c.phy[encwire.PHSTAT1] = encwire.PHSTAT1_PFDPX | encwire.PHSTAT1_PHDPX
	c.phy[encwire.PHLCON] = 0x3422
	c.updateLinkRegs()
}

// Tx implements the driver's SPI bus. Each call is one chip select framed
// transaction.
func (c *Chip) Tx(w, r []byte) error {
	c.mu.Lock()
	fire, err := c.txLocked(w, r)
	handler := c.pin.handler
	c.mu.Unlock()
	if fire && handler != nil {
		handler()
	}
	return err
}

// Transfer implements the single byte transfer of the SPI bus interface.
func (c *Chip) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := c.Tx([]byte{b}, r[:])
	return r[0], err
}

func (c *Chip) txLocked(w, r []byte) (fire bool, err error) {
	if len(w) == 0 {
		return false, errors.New("encsim: empty transaction")
	}
	if r != nil && len(r) != len(w) {
		return false, errors.New("encsim: read and write buffer length mismatch")
	}
	if c.failAfter == 0 {
		c.failAfter = -1
		return false, c.failErr
	} else if c.failAfter > 0 {
		c.failAfter--
	}
	op, arg := encwire.DecodeCommand(w[0])
	bank := c.common[4] & encwire.ECON1_BSEL
	if c.logOn {
		c.log = append(c.log, Txn{Op: op, Arg: arg, Bank: bank, Data: append([]byte(nil), w[1:]...)})
	}
	switch op {
	case encwire.OpRCR:
		v := c.readLocked(bank, arg)
		if r == nil {
			break
		}
		if encwire.IsMACRegister(bank, arg) {
			if len(r) > 1 {
				r[1] = 0xEE // Dummy byte.
			}
			if len(r) > 2 {
				r[2] = v
			}
		} else if len(r) > 1 {
			r[1] = v
		}
	case encwire.OpWCR:
		if len(w) > 1 {
			c.writeLocked(bank, arg, w[1])
		}
	case encwire.OpBFS, encwire.OpBFC:
		if len(w) < 2 || encwire.IsMACRegister(bank, arg) {
			break // Bit field commands do not work on MAC/MII registers.
		}
		v := c.rawRead(bank, arg)
		if op == encwire.OpBFS {
			v |= w[1]
		} else {
			v &^= w[1]
		}
		c.writeLocked(bank, arg, v)
	case encwire.OpRBM:
		ptr := c.get16(encwire.ERDPTL)
		for i := 1; i < len(w); i++ {
			if r != nil {
				r[i] = c.mem[ptr]
			}
			ptr = c.nextReadPtr(ptr)
		}
		c.put16(encwire.ERDPTL, ptr)
	case encwire.OpWBM:
		ptr := c.get16(encwire.EWRPTL)
		for i := 1; i < len(w); i++ {
			c.mem[ptr] = w[i]
			ptr = (ptr + 1) & memMask
		}
		c.put16(encwire.EWRPTL, ptr)
	case encwire.OpSRC:
		c.resetLocked()
	default:
		return false, errors.New("encsim: invalid opcode")
	}
	return c.updateIRQ(), nil
}

func (c *Chip) nextReadPtr(ptr uint16) uint16 {
	if ptr == c.get16(encwire.ERXNDL) {
		return c.get16(encwire.ERXSTL)
	}
	return (ptr + 1) & memMask
}

func (c *Chip) rawRead(bank, addr uint8) uint8 {
	if addr >= nbanked {
		return c.common[addr-nbanked]
	}
	return c.banks[bank][addr]
}

func (c *Chip) rawWrite(bank, addr, v uint8) {
	if addr >= nbanked {
		c.common[addr-nbanked] = v
		return
	}
	c.banks[bank][addr] = v
}

func (c *Chip) readLocked(bank, addr uint8) uint8 {
	v := c.rawRead(bank, addr)
	if bank == encwire.MISTAT.Bank() && addr == encwire.MISTAT.Offset() {
		if c.miiBusy > 0 {
			c.miiBusy--
			v |= encwire.MISTAT_BUSY
		}
	}
	return v
}

func (c *Chip) writeLocked(bank, addr, v uint8) {
	old := c.rawRead(bank, addr)
	reg := regAt(bank, addr)
	switch reg {
	case encwire.ECON1:
		if v&encwire.ECON1_TXRST != 0 {
			// Transmit logic held in reset aborts a pending request.
			v &^= encwire.ECON1_TXRTS
			c.txPending = false
		}
		c.rawWrite(bank, addr, v)
		if v&encwire.ECON1_TXRTS != 0 && old&encwire.ECON1_TXRTS == 0 {
			c.startTx()
		}
		return
	case encwire.ECON2:
		if v&encwire.ECON2_PKTDEC != 0 {
			cnt := c.get8(encwire.EPKTCNT)
			if cnt > 0 {
				cnt--
				c.put8(encwire.EPKTCNT, cnt)
			}
			if cnt == 0 {
				c.clearCommon(encwire.EIR, encwire.EIR_PKTIF)
			}
			v &^= encwire.ECON2_PKTDEC
		}
	case encwire.ERXSTH:
		c.rawWrite(bank, addr, v)
		c.put16(encwire.ERXWRPTL, c.get16(encwire.ERXSTL))
		return
	case encwire.MICMD:
		if v&encwire.MICMD_MIIRD != 0 && old&encwire.MICMD_MIIRD == 0 {
			val := c.phyRead(encwire.PHYReg(c.get8(encwire.MIREGADR)))
			c.put16(encwire.MIRDL, val)
			c.miiBusy = c.miiOpReads
		}
	case encwire.MIWRH:
		c.rawWrite(bank, addr, v)
		c.phyWrite(encwire.PHYReg(c.get8(encwire.MIREGADR)), c.get16(encwire.MIWRL))
		c.miiBusy = c.miiOpReads
		return
	}
	c.rawWrite(bank, addr, v)
}

func regAt(bank, addr uint8) encwire.Reg {
	if addr >= nbanked {
		return encwire.Reg(addr)
	}
	r := encwire.Reg(bank)<<8 | encwire.Reg(addr)
	if encwire.IsMACRegister(bank, addr) {
		r |= 1 << 12
	}
	return r
}

func (c *Chip) phyRead(reg encwire.PHYReg) uint16 {
	v := c.phy[reg&0x1F]
	if reg == encwire.PHIR {
		c.phy[encwire.PHIR] = 0
		c.clearCommon(encwire.EIR, encwire.EIR_LINKIF)
	}
	return v
}

func (c *Chip) phyWrite(reg encwire.PHYReg, v uint16) {
	switch reg {
	case encwire.PHCON1:
		if v&encwire.PHCON1_PRST != 0 {
			c.resetPHYLocked()
			if c.prstStuck {
				c.phy[encwire.PHCON1] = encwire.PHCON1_PRST
			}
			return
		}
	case encwire.PHID1, encwire.PHID2, encwire.PHSTAT1, encwire.PHSTAT2, encwire.PHIR:
		return // Read only.
	}
	c.phy[reg&0x1F] = v
	if reg == encwire.PHCON1 {
		c.updateLinkRegs()
	}
}

func (c *Chip) updateLinkRegs() {
	stat2 := c.phy[encwire.PHSTAT2] &^ (encwire.PHSTAT2_LSTAT | encwire.PHSTAT2_DPXSTAT)
	if c.linkUp {
		stat2 |= encwire.PHSTAT2_LSTAT
		c.phy[encwire.PHSTAT1] |= encwire.PHSTAT1_LLSTAT
	}
	if c.phy[encwire.PHCON1]&encwire.PHCON1_PDPXMD != 0 {
		stat2 |= encwire.PHSTAT2_DPXSTAT
	}
	c.phy[encwire.PHSTAT2] = stat2
}

// updateIRQ recomputes the INT line and reports a falling edge.
func (c *Chip) updateIRQ() (fallingEdge bool) {
	eie := c.getCommon(encwire.EIE)
	eir := c.getCommon(encwire.EIR)
	assert := eie&encwire.EIE_INTIE != 0 && eir&eie&0x7F != 0
	if assert {
		c.setCommon(encwire.ESTAT, encwire.ESTAT_INT)
	} else {
		c.clearCommon(encwire.ESTAT, encwire.ESTAT_INT)
	}
	fallingEdge = assert && !c.asserted
	c.asserted = assert
	return fallingEdge
}

func (c *Chip) startTx() {
	c.txPending = true
	if !c.holdTx {
		c.finishTx()
	}
}

// finishTx completes the pending transmission, writing its status vector
// after ETXND and flagging TXIF (and TXERIF on a late collision).
func (c *Chip) finishTx() {
	if !c.txPending {
		return
	}
	c.txPending = false
	c.txAttempts++
	st := c.get16(encwire.ETXSTL)
	nd := c.get16(encwire.ETXNDL)
	var frame []byte
	for p := (st + 1) & memMask; ; p = (p + 1) & memMask {
		frame = append(frame, c.mem[p])
		if p == nd || len(frame) >= memSize {
			break
		}
	}
	n := uint16(len(frame)) + 4
	flags := encwire.TSVDone
	if frame[0]&1 != 0 {
		flags |= encwire.TSVMulticast
		if isBroadcast(frame) {
			flags |= encwire.TSVBroadcast
		}
	}
	late := c.lateCollisions > 0
	if late {
		c.lateCollisions--
		flags = flags&^encwire.TSVDone | encwire.TSVLateCollision
	} else {
		c.txFrames = append(c.txFrames, frame)
	}
	var tsv [encwire.SizeTSV]byte
	encwire.MakeTSV(n, 0, flags).Put(tsv[:])
	for i, b := range tsv {
		c.mem[(nd+1+uint16(i))&memMask] = b
	}
	c.clearCommon(encwire.ECON1, encwire.ECON1_TXRTS)
	c.setCommon(encwire.EIR, encwire.EIR_TXIF)
	if late {
		c.setCommon(encwire.EIR, encwire.EIR_TXERIF)
		c.setCommon(encwire.ESTAT, encwire.ESTAT_TXABRT|encwire.ESTAT_LATECOL)
	}
}

func isBroadcast(frame []byte) bool {
	if len(frame) < 6 {
		return false
	}
	for _, b := range frame[:6] {
		if b != 0xff {
			return false
		}
	}
	return true
}

// Receive places frame in the receive ring as the MAC would after receiving
// it from the wire, appending its CRC. It reports false if reception is
// disabled or the ring lacks space, in which case RXERIF is set on overflow.
func (c *Chip) Receive(frame []byte) bool {
	c.mu.Lock()
	ok, fire := c.receiveLocked(frame)
	handler := c.pin.handler
	c.mu.Unlock()
	if fire && handler != nil {
		handler()
	}
	return ok
}

func (c *Chip) receiveLocked(frame []byte) (ok, fire bool) {
	if c.getCommon(encwire.ECON1)&encwire.ECON1_RXEN == 0 {
		return false, false
	}
	start := c.get16(encwire.ERXSTL)
	end := c.get16(encwire.ERXNDL)
	size := int(end-start) + 1
	wr := c.get16(encwire.ERXWRPTL)
	rd := c.get16(encwire.ERXRDPTL)
	free := (int(rd) - int(wr) + size) % size
	if free == 0 {
		free = size
	}
	total := encwire.SizeRxHeader + len(frame) + encwire.SizeCRC
	total += total & 1
	if total >= free || c.get8(encwire.EPKTCNT) == 0xff {
		c.setCommon(encwire.EIR, encwire.EIR_RXERIF)
		c.setCommon(encwire.ESTAT, encwire.ESTAT_BUFER)
		return false, c.updateIRQ()
	}
	wrap := func(p int) uint16 {
		if p > int(end) {
			p -= size
		}
		return uint16(p)
	}
	next := wrap(int(wr) + total)
	status := encwire.RxReceivedOK
	if len(frame) > 0 && frame[0]&1 != 0 {
		status |= encwire.RxMulticast
		if isBroadcast(frame) {
			status |= encwire.RxBroadcast
		}
	}
	var hdr [encwire.SizeRxHeader]byte
	encwire.RxHeader{NextPacket: next, ByteCount: uint16(len(frame) + encwire.SizeCRC), Status: status}.Put(hdr[:])
	var crc [4]byte
	binary.LittleEndian.PutUint32(crc[:], crc32.ChecksumIEEE(frame))
	p := int(wr)
	for _, chunk := range [][]byte{hdr[:], frame, crc[:]} {
		for _, b := range chunk {
			c.mem[wrap(p)] = b
			p = int(wrap(p)) + 1
		}
	}
	c.put16(encwire.ERXWRPTL, next)
	c.put8(encwire.EPKTCNT, c.get8(encwire.EPKTCNT)+1)
	c.setCommon(encwire.EIR, encwire.EIR_PKTIF)
	return true, c.updateIRQ()
}

// SetLink sets the PHY link state, flagging the link change interrupt when
// enabled in PHIE.
func (c *Chip) SetLink(up bool) {
	c.mu.Lock()
	changed := c.linkUp != up
	c.linkUp = up
	c.updateLinkRegs()
	fire := false
	if changed {
		ie := c.phy[encwire.PHIE]
		if ie&encwire.PHIE_PGEIE != 0 && ie&encwire.PHIE_PLNKIE != 0 {
			c.phy[encwire.PHIR] |= encwire.PHIR_PGIF | encwire.PHIR_PLNKIF
			c.setCommon(encwire.EIR, encwire.EIR_LINKIF)
			fire = c.updateIRQ()
		}
	}
	handler := c.pin.handler
	c.mu.Unlock()
	if fire && handler != nil {
		handler()
	}
}

// SetHoldTx makes transmissions stay pending until CompleteTx is called.
func (c *Chip) SetHoldTx(hold bool) {
	c.mu.Lock()
	c.holdTx = hold
	c.mu.Unlock()
}

// CompleteTx finishes a held transmission.
func (c *Chip) CompleteTx() {
	c.mu.Lock()
	c.finishTx()
	fire := c.updateIRQ()
	handler := c.pin.handler
	c.mu.Unlock()
	if fire && handler != nil {
		handler()
	}
}

// InjectLateCollisions makes the next n transmissions abort with a late
// collision.
func (c *Chip) InjectLateCollisions(n int) {
	c.mu.Lock()
	c.lateCollisions = n
	c.mu.Unlock()
}

// SetMIIBusy makes the next n reads of MISTAT report BUSY.
func (c *Chip) SetMIIBusy(n int) {
	c.mu.Lock()
	c.miiBusy = n
	c.mu.Unlock()
}

// SetMIIOpDuration makes MISTAT report BUSY for n reads after every MII
// read or write command.
func (c *Chip) SetMIIOpDuration(n int) {
	c.mu.Lock()
	c.miiOpReads = n
	c.mu.Unlock()
}

// SetPHYResetStuck keeps PHCON1.PRST set after a PHY reset.
func (c *Chip) SetPHYResetStuck(stuck bool) {
	c.mu.Lock()
	c.prstStuck = stuck
	c.mu.Unlock()
}

// FailAfter makes the transaction after the next n ones fail with err.
func (c *Chip) FailAfter(n int, err error) {
	c.mu.Lock()
	c.failAfter = n
	c.failErr = err
	c.mu.Unlock()
}

// TxFrames returns the frames transmitted successfully so far.
func (c *Chip) TxFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.txFrames...)
}

// TxAttempts returns the number of transmissions started, retries included.
func (c *Chip) TxAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txAttempts
}

// Txns returns the recorded transactions.
func (c *Chip) Txns() []Txn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Txn(nil), c.log...)
}

// ClearTxns discards the recorded transactions.
func (c *Chip) ClearTxns() {
	c.mu.Lock()
	c.log = c.log[:0]
	c.mu.Unlock()
}

// Reg returns the value of a control register without side effects.
func (c *Chip) Reg(r encwire.Reg) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get8(r)
}

// Reg16 returns the value of a low/high control register pair.
func (c *Chip) Reg16(lo encwire.Reg) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get16(lo)
}

// SetReg sets a control register without side effects.
func (c *Chip) SetReg(r encwire.Reg, v uint8) {
	c.mu.Lock()
	c.put8(r, v)
	c.mu.Unlock()
}

// PHY returns the value of a PHY register without side effects.
func (c *Chip) PHY(reg encwire.PHYReg) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phy[reg&0x1F]
}

// Mem copies buffer memory starting at addr into dst.
func (c *Chip) Mem(addr uint16, dst []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range dst {
		dst[i] = c.mem[(addr+uint16(i))&memMask]
	}
}

// IRQ returns the chip's interrupt line.
func (c *Chip) IRQ() *Pin { return &c.pin }

// Pin is the active low INT output of the chip.
type Pin struct {
	c       *Chip
	handler func()
	configs int
}

// ConfigureInterrupt attaches the falling edge handler.
func (p *Pin) ConfigureInterrupt(handler func()) error {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.handler = handler
	p.configs++
	return nil
}

// DisableInterrupt detaches the handler.
func (p *Pin) DisableInterrupt() error {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.handler = nil
	return nil
}

// Get returns the line level: false while an interrupt is asserted.
func (p *Pin) Get() bool {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	return !p.c.asserted
}

// Attached reports whether a handler is attached.
func (p *Pin) Attached() bool {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	return p.handler != nil
}

func (c *Chip) get8(r encwire.Reg) uint8 { return c.rawRead(r.Bank(), r.Offset()) }

func (c *Chip) put8(r encwire.Reg, v uint8) { c.rawWrite(r.Bank(), r.Offset(), v) }

func (c *Chip) get16(lo encwire.Reg) uint16 { return uint16(c.get8(lo)) | uint16(c.get8(lo+1))<<8 }

func (c *Chip) put16(lo encwire.Reg, v uint16) {
	c.put8(lo, uint8(v))
	c.put8(lo+1, uint8(v>>8))
}

func (c *Chip) getCommon(r encwire.Reg) uint8 { return c.common[r.Offset()-nbanked] }

func (c *Chip) setCommon(r encwire.Reg, m uint8) { c.common[r.Offset()-nbanked] |= m }

func (c *Chip) clearCommon(r encwire.Reg, m uint8) { c.common[r.Offset()-nbanked] &^= m }
