package enc28j60

import (
	"context"
	"log/slog"
	"time"

	"github.com/soypat/enc28j60/encwire"
)

// isr is attached to the interrupt pin. It must not block or allocate.
func (d *Device) isr() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// eventLoop services chip interrupts until ctx is cancelled. It wakes on
// notification or every PollPeriod. With an interrupt pin configured a
// timeout with the line deasserted only refreshes the link state.
// Interrupts are only serviced while the device is started.
func (d *Device) eventLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	d.debug("irq:task-start")
	timer := time.NewTimer(d.cfg.PollPeriod)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			d.debug("irq:task-exit")
			return
		case <-d.notify:
			timer.Reset(d.cfg.PollPeriod)
		case <-timer.C:
			timer.Reset(d.cfg.PollPeriod)
			if d.irq != nil && d.irq.Get() {
				d.pollLink()
				continue
			}
		}
		if d.running.Load() {
			d.handleInterrupts()
		}
	}
}

func (d *Device) pollLink() {
	_, err := d.refreshLink()
	if err != nil {
		d.warn("irq:link-poll", slog.String("err", err.Error()))
	}
}

// handleInterrupts runs a single pass over the interrupt flags with the
// global interrupt disabled and re-enables it on return.
func (d *Device) handleInterrupts() {
	err := d.regClear(encwire.EIE, encwire.EIE_INTIE)
	if err != nil {
		d.logerr("irq:disable", slog.String("err", err.Error()))
	}
	rearmed := d.serviceInterrupts()
	if rearmed {
		return
	}
	err = d.regSet(encwire.EIE, encwire.EIE_INTIE)
	if err != nil {
		d.logerr("irq:enable", slog.String("err", err.Error()))
	}
}

// serviceInterrupts reports whether it already re-enabled INTIE.
func (d *Device) serviceInterrupts() (rearmed bool) {
	status, err := d.regRead(encwire.EIR)
	if err != nil {
		d.logerr("irq:eir", slog.String("err", err.Error()))
		return false
	}
	mask, err := d.regRead(encwire.EIE)
	if err != nil {
		d.logerr("irq:eie", slog.String("err", err.Error()))
		return false
	}
	status &= mask
	if status == 0 {
		// Fragile heuristic: PKTIF is unreliable on this chip, so a non-zero
		// packet count with no flagged source is treated as a missed packet
		// interrupt. There is no bound on consecutive syntheses.
		cnt, err := d.regRead(encwire.EPKTCNT)
		if err == nil && cnt > 0 {
			d.debug("irq:synth-pktif", slog.Int("epktcnt", int(cnt)))
			status |= encwire.EIR_PKTIF
		}
	}
	if status&encwire.EIR_PKTIF != 0 {
		d.drainRx()
	}
	if status&encwire.EIR_RXERIF != 0 {
		d.stats.rxErrors.Add(1)
		d.warn("irq:rx-overflow")
		err = d.regClear(encwire.EIR, encwire.EIR_RXERIF)
		if err != nil {
			d.logerr("irq:rxerif", slog.String("err", err.Error()))
		}
	}
	if status&encwire.EIR_LINKIF != 0 {
		err = d.ackPHYInterrupt()
		if err != nil {
			d.logerr("irq:phir", slog.String("err", err.Error()))
		}
		d.pollLink()
	}
	if status&encwire.EIR_TXERIF != 0 {
		retried, err := d.handleTxError()
		if err != nil {
			d.logerr("irq:txerr", slog.String("err", err.Error()))
		}
		if retried {
			return true
		}
		if status&encwire.EIR_TXIF == 0 {
			// Aborted transmissions normally flag TXIF as well. Free the
			// transmit area regardless so the next Transmit proceeds.
			d.giveTx()
		}
	}
	if status&encwire.EIR_TXIF != 0 {
		err = d.regClear(encwire.EIR, encwire.EIR_TXIF)
		if err == nil {
			err = d.regClear(encwire.EIE, encwire.EIE_TXIE)
		}
		if err != nil {
			d.logerr("irq:txif", slog.String("err", err.Error()))
		}
		if status&encwire.EIR_TXERIF == 0 {
			d.stats.txPackets.Add(1)
		}
		d.giveTx()
	}
	return false
}

// handleTxError resets the transmit logic. On revisions affected by the
// late collision erratum the frame is retransmitted when its status vector
// flags a late collision, in which case retried is true, INTIE is
// re-enabled and the transmit area stays taken. A frame is retransmitted
// at most once.
func (d *Device) handleTxError() (retried bool, err error) {
	d.stats.txErrors.Add(1)
	err = d.lockRegs()
	if err != nil {
		return false, err
	}
	defer d.unlockRegs()
	err = d.setBits(encwire.ECON1, encwire.ECON1_TXRST)
	if err == nil {
		err = d.clearBits(encwire.ECON1, encwire.ECON1_TXRST)
	}
	if err == nil {
		err = d.clearBits(encwire.EIR, encwire.EIR_TXERIF)
	}
	if err != nil || !d.revision.hasLateCollisionErratum() {
		return false, err
	}
	tsv, err := d.readTSV()
	if err != nil {
		return false, err
	}
	d.debug("irq:tsv", slog.Uint64("tsv", uint64(tsv)), slog.Bool("latecol", tsv.LateCollision()))
	if !tsv.LateCollision() {
		return false, nil
	}
	if d.txRetried {
		d.warn("irq:late-collision-abort")
		return false, nil
	}
	err = d.clearBits(encwire.EIR, encwire.EIR_TXIF)
	if err == nil {
		err = d.setBits(encwire.EIE, encwire.EIE_INTIE)
	}
	if err == nil {
		err = d.setBits(encwire.ECON1, encwire.ECON1_TXRTS)
	}
	if err != nil {
		return false, err
	}
	d.txRetried = true
	d.stats.txRetries.Add(1)
	d.warn("irq:late-collision-retry")
	return true, nil
}

// drainRx receives frames while the chip reports more pending, passing
// each to the mediator or the RecvEthHandle handler.
func (d *Device) drainRx() {
	for {
		buf := d.cfg.Alloc(MaxFrameSize)
		dropped := buf == nil
		if dropped {
			d.logerr("irq:rx-alloc")
			buf = d.drain[:]
		}
		n, more, err := d.Receive(buf)
		switch {
		case err == ErrNotInitialized:
			return
		case err != nil && n == 0 && !more:
			d.stats.rxErrors.Add(1)
			d.warn("irq:rx", slog.String("err", err.Error()))
			return
		case err != nil:
			d.stats.rxErrors.Add(1)
			d.warn("irq:rx", slog.String("err", err.Error()))
		case n == 0:
			// Nothing pending.
		case dropped:
			d.stats.rxDropped.Add(1)
		default:
			d.deliver(buf[:n])
		}
		if !more {
			return
		}
	}
}

func (d *Device) deliver(frame []byte) {
	d.hmu.Lock()
	m, handler := d.mediator, d.rcvEth
	d.hmu.Unlock()
	var err error
	switch {
	case m != nil:
		err = m.StackInput(frame)
	case handler != nil:
		err = handler(frame)
	default:
		d.stats.rxDropped.Add(1)
		d.debug("irq:rx-no-handler", slog.Int("len", len(frame)))
		return
	}
	d.stats.rxPackets.Add(1)
	if err != nil {
		d.debug("irq:stack-input", slog.String("err", err.Error()))
	}
}
