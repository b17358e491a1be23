package enc28j60

import (
	"net"
	"sync/atomic"
)

// MTU (maximum transmission unit) returns the maximum amount
// of bytes that can be sent in a single ethernet frame in a call to SendEth.
func (d *Device) MTU() int { return MTU }

// RecvEthHandle sets handler for receiving Ethernet frames. It is used when
// no Mediator is set. If set to nil then incoming frames are dropped.
// The handler owns the frame passed to it.
func (d *Device) RecvEthHandle(handler func(pkt []byte) error) {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	d.rcvEth = handler
}

// SendEth sends an Ethernet frame. It is equivalent to Transmit.
func (d *Device) SendEth(pkt []byte) error {
	return d.Transmit(pkt)
}

// NetFlags returns the current network flags for the device.
func (d *Device) NetFlags() (flags net.Flags) {
	// Define net.Flags locally since not all Tinygo versions have them fully defined.
	const (
		FlagUp           net.Flags = 1 << iota // interface is administratively up
		FlagBroadcast                          // interface supports broadcast access capability
		FlagLoopback                           // interface is a loopback interface
		FlagPointToPoint                       // interface belongs to a point-to-point link
		FlagMulticast                          // interface supports multicast access capability
		FlagRunning                            // interface is in running state
	)
	d.mu.Lock()
	started := d.state == stateStarted
	d.mu.Unlock()
	if !started {
		return 0
	}
	flags |= FlagUp | FlagBroadcast | FlagMulticast
	d.linkMu.Lock()
	if d.link == LinkUp {
		flags |= FlagRunning
	}
	d.linkMu.Unlock()
	return flags
}

// Stats holds datapath counters since New.
type Stats struct {
	RxPackets   uint32
	RxDropped   uint32
	RxErrors    uint32
	TxPackets   uint32
	TxErrors    uint32
	TxRetries   uint32
	LinkChanges uint32
}

type counters struct {
	rxPackets   atomic.Uint32
	rxDropped   atomic.Uint32
	rxErrors    atomic.Uint32
	txPackets   atomic.Uint32
	txErrors    atomic.Uint32
	txRetries   atomic.Uint32
	linkChanges atomic.Uint32
}

// Stats returns a snapshot of the datapath counters.
func (d *Device) Stats() Stats {
	c := &d.stats
	return Stats{
		RxPackets:   c.rxPackets.Load(),
		RxDropped:   c.rxDropped.Load(),
		RxErrors:    c.rxErrors.Load(),
		TxPackets:   c.txPackets.Load(),
		TxErrors:    c.txErrors.Load(),
		TxRetries:   c.txRetries.Load(),
		LinkChanges: c.linkChanges.Load(),
	}
}
