// Package netstack runs the lneto userspace network stack over an ENC28J60.
// A Stack is set as the Device's Mediator: received frames are demultiplexed
// from the device's event goroutine and outgoing frames are drained by
// calling Send or Run.
package netstack

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/soypat/enc28j60"
	"github.com/soypat/lneto/arp"
	"github.com/soypat/lneto/dhcpv4"
	"github.com/soypat/lneto/ethernet"
	"github.com/soypat/lneto/internet"
)

// Transmitter sends a single Ethernet frame. *enc28j60.Device implements it.
type Transmitter interface {
	Transmit(frame []byte) error
}

type Config struct {
	// StaticAddress is used as the interface address. Leave unset to obtain
	// one with DHCP.
	StaticAddress netip.Addr
	Hostname      string
	// RandSeed seeds transaction IDs. Must be non-zero.
	RandSeed        uint32
	HardwareAddress [6]byte
	MTU             uint16
	Logger          *slog.Logger
}

// Stack is an Ethernet, ARP, IPv4 and UDP stack with a DHCPv4 client.
// The zero value must be Reset before use.
type Stack struct {
	mu       sync.Mutex
	logger   *slog.Logger
	hostname string
	link     internet.StackEthernet
	ip       internet.StackIP
	arp      arp.Handler
	udps     internet.StackPorts

	dhcpUDP     internet.StackUDPPort
	dhcp        dhcpv4.Client
	dhcpResults DHCPResults

	linkUp  bool
	xid     uint32
	sendbuf []byte
}

var (
	errZeroSeed      = errors.New("netstack: zero random seed")
	errIPv6          = errors.New("netstack: IPv6 unsupported")
	errInvalidIPAddr = errors.New("netstack: invalid IP address")
	errDHCPNotDone   = errors.New("netstack: DHCP not completed")
	errDHCPNACK      = errors.New("netstack: DHCP NACK")
)

// Nodes per layer: the link carries ARP and IPv4, IPv4 carries UDP and UDP
// carries the DHCP client.
const (
	linkNodes = 2
	ipNodes   = 1
	udpPorts  = 1
)

// ARP resolves the router and at most one peer at a time.
const (
	arpQueries = 2
	arpPending = 2
)

func (s *Stack) Reset(cfg Config) error {
	addr, err := cfg.interfaceAddr()
	if err != nil {
		return err
	}
	mtu := int(cfg.MTU)
	if mtu == 0 {
		mtu = enc28j60.MTU
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.xid = cfg.RandSeed
	s.hostname = cfg.Hostname
	s.logger = cfg.Logger
	s.linkUp = false
	err = s.link.Reset6(cfg.HardwareAddress, ethernet.BroadcastAddr(), mtu, linkNodes)
	if err == nil {
		err = s.ip.Reset(addr, ipNodes)
	}
	if err == nil {
		err = s.udps.ResetUDP(udpPorts)
	}
	if err == nil {
		err = s.bindARP()
	}
	if err == nil {
		err = s.link.Register(&s.arp)
	}
	if err == nil {
		err = s.link.Register(&s.ip)
	}
	if err == nil {
		err = s.ip.Register(&s.udps)
	}
	if err != nil {
		return err
	}
	if s.sendbuf == nil {
		s.sendbuf = make([]byte, enc28j60.MaxFrameSize)
	}
	return nil
}

// interfaceAddr is the static IPv4 address or the unspecified address
// when DHCP is to assign one.
func (cfg *Config) interfaceAddr() (netip.Addr, error) {
	switch {
	case cfg.RandSeed == 0:
		return netip.Addr{}, errZeroSeed
	case !cfg.StaticAddress.IsValid():
		return netip.IPv4Unspecified(), nil
	case !cfg.StaticAddress.Is4():
		return netip.Addr{}, errIPv6
	}
	return cfg.StaticAddress, nil
}

// bindARP answers and queries for the current link and IPv4 addresses.
func (s *Stack) bindARP() error {
	mac := s.link.HardwareAddr6()
	addr := s.ip.Addr()
	if !addr.Is4() {
		return errInvalidIPAddr
	}
	return s.arp.Reset(arp.HandlerConfig{
		HardwareAddr: mac[:],
		ProtocolAddr: addr.AsSlice(),
		MaxQueries:   arpQueries,
		MaxPending:   arpPending,
		HardwareType: 1, // Ethernet.
		ProtocolType: ethernet.TypeIPv4,
	})
}

// Attach makes s the Mediator of dev and adopts its hardware address.
// dev must be initialized.
func (s *Stack) Attach(dev *enc28j60.Device) error {
	mac, err := dev.HardwareAddr6()
	if err != nil {
		return err
	}
	err = s.SetHardwareAddress(mac)
	if err != nil {
		return err
	}
	dev.SetMediator(s)
	return nil
}

// StackInput implements enc28j60.Mediator.
func (s *Stack) StackInput(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.link.Demux(frame, 0)
	if err != nil {
		s.debug("StackInput:demux", slog.Int("plen", len(frame)), slog.String("err", err.Error()))
	}
	return err
}

// OnStateChanged implements enc28j60.Mediator.
func (s *Stack) OnStateChanged(kind enc28j60.StateKind, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case enc28j60.StateLink:
		s.linkUp = enc28j60.Link(value) == enc28j60.LinkUp
	case enc28j60.StateDeinit:
		s.linkUp = false
	}
	s.debug("OnStateChanged", slog.String("kind", kind.String()), slog.Uint64("value", uint64(value)))
	return nil
}

// LinkUp reports whether the device last reported an established link.
func (s *Stack) LinkUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkUp
}

// Encapsulate writes the next pending outgoing frame into buf and returns
// its length. Zero means nothing is pending.
func (s *Stack) Encapsulate(buf []byte, etherOff int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link.Encapsulate(buf, etherOff)
}

// Send transmits every pending outgoing frame and returns how many were sent.
func (s *Stack) Send(tx Transmitter) (int, error) {
	sent := 0
	for {
		n, err := s.Encapsulate(s.sendbuf, 0)
		if err != nil {
			s.logerr("Send:encapsulate", slog.String("err", err.Error()))
			return sent, err
		} else if n == 0 {
			return sent, nil
		}
		err = tx.Transmit(s.sendbuf[:n])
		if err != nil {
			s.logerr("Send:transmit", slog.Int("plen", n), slog.String("err", err.Error()))
			return sent, err
		}
		sent++
	}
}

// Run calls Send every period until ctx is done. Transmit errors are
// logged and do not stop the loop.
func (s *Stack) Run(ctx context.Context, tx Transmitter, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		s.Send(tx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// nextXID returns the next DHCP transaction ID. IDs follow a Weyl sequence
// from Config.RandSeed passed through an integer hash.
func (s *Stack) nextXID() uint32 {
	s.xid += 0x9e3779b9
	x := s.xid
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}

func (s *Stack) Addr() netip.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ip.Addr()
}

func (s *Stack) SetIPAddr(addr netip.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ip.SetAddr(addr)
	if err != nil {
		return err
	}
	return s.bindARP()
}

func (s *Stack) SetHardwareAddress(hw [6]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.link.SetHardwareAddr6(hw)
	return s.bindARP()
}

func (s *Stack) HardwareAddress() [6]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link.HardwareAddr6()
}

func (s *Stack) StartResolveHardwareAddress6(ip netip.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ip.Is4() {
		return errInvalidIPAddr
	}
	addr := ip.As4()
	return s.arp.StartQuery(addr[:])
}

func (s *Stack) ResultResolveHardwareAddress6(ip netip.Addr) (hw [6]byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ip.Is4() {
		return hw, errInvalidIPAddr
	}
	addr := ip.As4()
	hwslice, err := s.arp.QueryResult(addr[:])
	if err != nil {
		return hw, err
	} else if len(hwslice) != 6 {
		return hw, errors.New("netstack: bad hardware address length")
	}
	return [6]byte(hwslice), nil
}

func (s *Stack) logerr(msg string, attrs ...slog.Attr) {
	if s.logger != nil {
		s.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
	}
}

func (s *Stack) debug(msg string, attrs ...slog.Attr) {
	if s.logger != nil {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}
