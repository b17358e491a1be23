package enc28j60

import (
	"log/slog"
	"time"

	"github.com/soypat/enc28j60/encwire"
	"tinygo.org/x/drivers/netlink"
)

const (
	// A MII operation takes 10.24us.
	miiPollInterval = 15 * time.Microsecond
	miiPollAttempts = 20
	phyResetPoll    = 10 * time.Millisecond
)

// ReadPHYReg reads a PHY register through the MII management interface.
func (d *Device) ReadPHYReg(reg encwire.PHYReg) (uint16, error) {
	err := d.lockRegs()
	if err != nil {
		return 0, err
	}
	defer d.unlockRegs()
	return d.readPHY(reg)
}

// WritePHYReg writes a PHY register through the MII management interface.
func (d *Device) WritePHYReg(reg encwire.PHYReg, v uint16) error {
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	return d.writePHY(reg, v)
}

func (d *Device) miiIdle() error {
	stat, err := d.readReg(encwire.MISTAT)
	if err != nil {
		return err
	}
	if stat&encwire.MISTAT_BUSY != 0 {
		return ErrPHYBusy
	}
	return nil
}

func (d *Device) miiWait() error {
	err := retry(d.cfg.Sleep, miiPollInterval, miiPollAttempts, func() (bool, error) {
		stat, err := d.readReg(encwire.MISTAT)
		return stat&encwire.MISTAT_BUSY == 0, err
	})
	if err == errRetryBudget {
		return ErrPHYTimeout
	}
	return err
}

func (d *Device) readPHY(reg encwire.PHYReg) (uint16, error) {
	err := d.miiIdle()
	if err != nil {
		return 0, err
	}
	err = d.writeReg(encwire.MIREGADR, uint8(reg))
	if err != nil {
		return 0, err
	}
	err = d.writeReg(encwire.MICMD, encwire.MICMD_MIIRD)
	if err != nil {
		return 0, err
	}
	err = d.miiWait()
	// MIIRD must be cleared even if the wait failed.
	if cerr := d.writeReg(encwire.MICMD, 0); cerr != nil {
		err = errjoin(err, cerr)
	}
	if err != nil {
		return 0, err
	}
	v, err := d.readReg16(encwire.MIRDL)
	if d.traceEnabled {
		d.trace("phy:read", slog.String("reg", reg.String()), slog.Int("v", int(v)))
	}
	return v, err
}

func (d *Device) writePHY(reg encwire.PHYReg, v uint16) error {
	err := d.miiIdle()
	if err != nil {
		return err
	}
	if d.traceEnabled {
		d.trace("phy:write", slog.String("reg", reg.String()), slog.Int("v", int(v)))
	}
	err = d.writeReg(encwire.MIREGADR, uint8(reg))
	if err != nil {
		return err
	}
	// Writing MIWRH starts the MII transaction.
	err = d.writeReg16(encwire.MIWRL, v)
	if err != nil {
		return err
	}
	return d.miiWait()
}

// phyReset sets PHCON1.PRST and waits for the chip to clear it.
func (d *Device) phyReset() error {
	err := d.WritePHYReg(encwire.PHCON1, encwire.PHCON1_PRST)
	if err != nil {
		return err
	}
	attempts := attemptsFor(d.cfg.PHYResetTimeout, phyResetPoll)
	err = retry(d.cfg.Sleep, phyResetPoll, attempts, func() (bool, error) {
		con1, err := d.ReadPHYReg(encwire.PHCON1)
		return con1&encwire.PHCON1_PRST == 0, err
	})
	if err == errRetryBudget {
		d.logerr("phy:reset-timeout", slog.Int("attempts", attempts))
		return ErrPHYTimeout
	}
	return err
}

// PHYPowerControl powers the PHY up (enable=true) or puts it in power
// save mode. The change is verified by reading PHCON1 back.
func (d *Device) PHYPowerControl(enable bool) error {
	err := d.lockRegs()
	if err != nil {
		return err
	}
	defer d.unlockRegs()
	con1, err := d.readPHY(encwire.PHCON1)
	if err != nil {
		return err
	}
	if enable {
		con1 &^= encwire.PHCON1_PPWRSV
	} else {
		con1 |= encwire.PHCON1_PPWRSV
	}
	err = d.writePHY(encwire.PHCON1, con1)
	if err != nil {
		return err
	}
	got, err := d.readPHY(encwire.PHCON1)
	if err != nil {
		return err
	}
	if (got&encwire.PHCON1_PPWRSV == 0) != enable {
		return ErrPowerCtl
	}
	return nil
}

// phyInit powers up and resets the PHY, checks its identifier, disables
// half duplex loopback, enables the link change interrupt and reads the
// initial link state.
func (d *Device) phyInit() error {
	err := d.PHYPowerControl(true)
	if err != nil {
		return err
	}
	err = d.phyReset()
	if err != nil {
		return err
	}
	id1, err := d.ReadPHYReg(encwire.PHID1)
	if err != nil {
		return err
	}
	id2, err := d.ReadPHYReg(encwire.PHID2)
	if err != nil {
		return err
	}
	if id1 != encwire.PHID1Value || id2&encwire.PHID2OUIMask != encwire.PHID2Value {
		d.logerr("phy:id", slog.Int("phid1", int(id1)), slog.Int("phid2", int(id2)))
		return ErrPHYID
	}
	err = d.WritePHYReg(encwire.PHCON2, encwire.PHCON2_HDLDIS)
	if err != nil {
		return err
	}
	err = d.WritePHYReg(encwire.PHIE, encwire.PHIE_PGEIE|encwire.PHIE_PLNKIE)
	if err != nil {
		return err
	}
	d.linkMu.Lock()
	d.link = LinkDown
	d.linkMu.Unlock()
	_, err = d.refreshLink()
	return err
}

// GetLink reads the PHY link status and reports changes to the mediator.
func (d *Device) GetLink() (Link, error) {
	return d.refreshLink()
}

// refreshLink reads PHSTAT2. When the link changes to up the duplex mode is
// read and applied to the MAC, then speed, duplex and link are reported in
// that order.
func (d *Device) refreshLink() (Link, error) {
	d.linkMu.Lock()
	stat2, err := d.ReadPHYReg(encwire.PHSTAT2)
	if err != nil {
		d.linkMu.Unlock()
		return LinkDown, err
	}
	link := Link(b2u[uint8](stat2&encwire.PHSTAT2_LSTAT != 0))
	if link == d.link {
		d.linkMu.Unlock()
		return link, nil
	}
	duplex := d.duplex
	if link == LinkUp {
		duplex = Duplex(b2u[uint8](stat2&encwire.PHSTAT2_DPXSTAT != 0))
		err = d.setMACDuplex(duplex)
		if err != nil {
			d.linkMu.Unlock()
			return LinkDown, err
		}
	}
	d.link = link
	d.duplex = duplex
	d.linkMu.Unlock()

	d.stats.linkChanges.Add(1)
	d.info("phy:link", slog.String("link", link.String()), slog.String("duplex", duplex.String()))
	if link == LinkUp {
		d.notifyState(StateSpeed, uint32(Speed10M))
		d.notifyState(StateDuplex, uint32(duplex))
		if duplex == DuplexFull {
			d.notifyState(StatePause, 1)
		}
	}
	d.notifyState(StateLink, uint32(link))
	d.hmu.Lock()
	cb := d.netNotify
	d.hmu.Unlock()
	if cb != nil {
		ev := netlink.EventNetDown
		if link == LinkUp {
			ev = netlink.EventNetUp
		}
		cb(ev)
	}
	return link, nil
}

// ackPHYInterrupt reads PHIR, which clears its flags and EIR.LINKIF.
func (d *Device) ackPHYInterrupt() error {
	_, err := d.ReadPHYReg(encwire.PHIR)
	return err
}

// setPHYDuplex programs PHCON1.PDPXMD, invalidates the cached link and
// refreshes it.
func (d *Device) setPHYDuplex(duplex Duplex) error {
	err := d.lockRegs()
	if err != nil {
		return err
	}
	con1, err := d.readPHY(encwire.PHCON1)
	if err == nil {
		if duplex == DuplexFull {
			con1 |= encwire.PHCON1_PDPXMD
		} else {
			con1 &^= encwire.PHCON1_PDPXMD
		}
		err = d.writePHY(encwire.PHCON1, con1)
	}
	d.unlockRegs()
	if err != nil {
		return err
	}
	d.linkMu.Lock()
	d.link = LinkDown
	d.linkMu.Unlock()
	_, err = d.refreshLink()
	return err
}
