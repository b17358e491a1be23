package enc28j60

import (
	"errors"
	"log/slog"
	"net"

	"github.com/soypat/enc28j60/encwire"
)

const defaultRxFilter = encwire.ERXFCON_UCEN | encwire.ERXFCON_CRCEN | encwire.ERXFCON_BCEN

// startInterrupts are the interrupt sources enabled by Start.
const startInterrupts = encwire.EIE_INTIE | encwire.EIE_PKTIE | encwire.EIE_TXERIE |
	encwire.EIE_LINKIE | encwire.EIE_RXERIE

// setupDefaults programs the buffer partition, receive filters, MAC
// control registers and inter-packet gaps. The MAC starts in half duplex.
func (d *Device) setupDefaults() error {
	err := d.setupBuffers()
	if err != nil {
		return err
	}
	err = d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	d.rxFilter = defaultRxFilter
	d.promiscuous = false
	for _, w := range [...]struct {
		reg encwire.Reg
		v   uint8
	}{
		{encwire.ERXFCON, defaultRxFilter},
		{encwire.MACON1, encwire.MACON1_MARXEN | encwire.MACON1_RXPAUS | encwire.MACON1_TXPAUS},
		{encwire.MACON3, encwire.MACON3_PADCFG0 | encwire.MACON3_TXCRCEN | encwire.MACON3_FRMLNEN},
		{encwire.MACON4, encwire.MACON4_DEFER},
		{encwire.MABBIPG, defaultMABBIPGHalf},
		{encwire.MAIPGL, defaultMAIPGL},
		{encwire.MAIPGH, defaultMAIPGH},
	} {
		err = d.writeReg(w.reg, w.v)
		if err != nil {
			return err
		}
	}
	return d.writeReg16(encwire.MAMXFLL, MaxFrameSize)
}

// setMACDuplex configures MACON3.FULDPX and the back-to-back inter-packet gap.
func (d *Device) setMACDuplex(duplex Duplex) (err error) {
	err = d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	if duplex == DuplexFull {
		err = d.setBits(encwire.MACON3, encwire.MACON3_FULDPX)
		if err == nil {
			err = d.writeReg(encwire.MABBIPG, defaultMABBIPGFull)
		}
	} else {
		err = d.clearBits(encwire.MACON3, encwire.MACON3_FULDPX)
		if err == nil {
			err = d.writeReg(encwire.MABBIPG, defaultMABBIPGHalf)
		}
	}
	return err
}

func (d *Device) clearMulticastHash() error {
	return d.SetMulticastHash([8]byte{})
}

// SetMulticastHash programs the 64 bit multicast hash table EHT0..EHT7 and
// enables hash table filtering when any bit is set.
func (d *Device) SetMulticastHash(table [8]byte) error {
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	for i := range table {
		err = d.writeReg(encwire.EHT0+encwire.Reg(i), table[i])
		if err != nil {
			return err
		}
	}
	if table == [8]byte{} {
		d.rxFilter &^= encwire.ERXFCON_HTEN
	} else {
		d.rxFilter |= encwire.ERXFCON_HTEN
	}
	if d.promiscuous {
		return nil
	}
	return d.writeReg(encwire.ERXFCON, d.rxFilter)
}

// SetPromiscuous disables all receive filters when enabled. Disabling
// restores the unicast, broadcast and CRC filters.
func (d *Device) SetPromiscuous(enable bool) error {
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	filter := d.rxFilter
	if enable {
		filter = 0
	}
	err = d.writeReg(encwire.ERXFCON, filter)
	if err != nil {
		return err
	}
	d.promiscuous = enable
	d.debug("mac:promiscuous", slog.Bool("enable", enable))
	return nil
}

func (d *Device) setHardwareAddr(mac [6]byte) error {
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	regs := [6]encwire.Reg{encwire.MAADR1, encwire.MAADR2, encwire.MAADR3, encwire.MAADR4, encwire.MAADR5, encwire.MAADR6}
	for i, r := range regs {
		err = d.writeReg(r, mac[i])
		if err != nil {
			return err
		}
	}
	d.mac = mac
	return nil
}

// SetHardwareAddr6 programs the station MAC address.
func (d *Device) SetHardwareAddr6(mac [6]byte) error {
	if !d.ready.Load() {
		return ErrNotInitialized
	}
	err := d.setHardwareAddr(mac)
	if err == nil {
		d.info("mac:addr", slog.String("mac", net.HardwareAddr(mac[:]).String()))
	}
	return err
}

// HardwareAddr6 returns the device's 6-byte [MAC address].
//
// [MAC address]: https://en.wikipedia.org/wiki/MAC_address
func (d *Device) HardwareAddr6() ([6]byte, error) {
	err := d.lockRegs()
	if err != nil {
		return [6]byte{}, err
	}
	mac := d.mac
	d.unlockRegs()
	if mac == [6]byte{} {
		return mac, errors.New("hardware address not set")
	}
	return mac, nil
}

// SetSpeed only accepts Speed10M.
func (d *Device) SetSpeed(speed Speed) error {
	if speed != Speed10M {
		return ErrUnsupportedSpeed
	}
	return nil
}

// SetDuplex configures the MAC and PHY for the duplex mode and refreshes
// the link state.
func (d *Device) SetDuplex(duplex Duplex) error {
	if !d.ready.Load() {
		return ErrNotInitialized
	}
	err := d.setMACDuplex(duplex)
	if err != nil {
		return err
	}
	d.linkMu.Lock()
	d.duplex = duplex
	d.linkMu.Unlock()
	return d.setPHYDuplex(duplex)
}

// SetLink starts the device on LinkUp and stops it on LinkDown.
func (d *Device) SetLink(link Link) error {
	if link == LinkUp {
		return d.Start()
	}
	return d.Stop()
}

// Start clears pending interrupts, enables the packet, transmit error, link
// and receive error interrupts and enables reception.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case stateStarted:
		return nil
	case stateInit:
	default:
		return ErrNotInitialized
	}
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	err = d.clearBits(encwire.EIR, 0xff)
	if err == nil {
		err = d.setBits(encwire.EIE, startInterrupts)
	}
	if err == nil {
		err = d.setBits(encwire.ECON1, encwire.ECON1_RXEN)
	}
	var econ1 uint8
	if err == nil {
		econ1, err = d.readReg(encwire.ECON1)
	}
	if err != nil {
		return err
	}
	if econ1&encwire.ECON1_TXRTS == 0 {
		// A completion flag cleared above would otherwise never free it.
		d.giveTx()
	}
	d.state = stateStarted
	d.running.Store(true)
	d.info("Start")
	return nil
}

// Stop disables reception and interrupts.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case stateInit:
		return nil
	case stateStarted:
	default:
		return ErrNotInitialized
	}
	return d.stop()
}

func (d *Device) stop() error {
	d.running.Store(false)
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	err = d.clearBits(encwire.ECON1, encwire.ECON1_RXEN)
	if err == nil {
		err = d.clearBits(encwire.EIE, 0xff)
	}
	if err != nil {
		return err
	}
	// No completion interrupt will free the transmit area now. Transmit
	// checks TXRTS before reusing it.
	d.giveTx()
	d.state = stateInit
	d.info("Stop")
	return nil
}
