package netstack

import (
	"context"
	"net/netip"
	"time"

	"github.com/soypat/lneto/dhcpv4"
)

type DHCPResults struct {
	DNSServers    []netip.Addr
	Router        netip.Addr
	AssignedAddr  netip.Addr
	ServerAddr    netip.Addr
	BroadcastAddr netip.Addr
	Gateway       netip.Addr
	Subnet        netip.Prefix
	TRebind       uint32 // [seconds]
	TRenewal      uint32
	TLease        uint32 // IP lease time [seconds].
}

// StartDHCPv4Request queues a DHCP discover. The request proceeds as frames
// are received and Send is called.
func (s *Stack) StartDHCPv4Request(request [4]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	xid := s.nextXID()
	err := s.dhcp.BeginRequest(xid, dhcpv4.RequestConfig{
		RequestedAddr:      request,
		ClientHardwareAddr: s.link.HardwareAddr6(),
		Hostname:           s.hostname,
	})
	if err != nil {
		return err
	}
	s.dhcpUDP.SetStackNode(&s.dhcp, nil, dhcpv4.DefaultServerPort)
	return s.udps.Register(&s.dhcpUDP)
}

// ResultDHCP returns the lease once the client is bound.
func (s *Stack) ResultDHCP() (*DHCPResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.populateDHCPResults()
	if err != nil {
		return nil, err
	}
	return &s.dhcpResults, nil
}

func (s *Stack) populateDHCPResults() error {
	if !s.dhcp.State().HasIP() {
		return errDHCPNotDone
	}
	assigned4, ok := s.dhcp.AssignedAddr()
	if !ok {
		return errDHCPNotDone
	}
	router := addr4(s.dhcp.RouterAddr())
	s.dhcpResults = DHCPResults{
		Router:        router,
		AssignedAddr:  netip.AddrFrom4(assigned4),
		ServerAddr:    addr4(s.dhcp.ServerAddr()),
		BroadcastAddr: addr4(s.dhcp.BroadcastAddr()),
		Gateway:       addr4(s.dhcp.GatewayAddr()),
		TRebind:       s.dhcp.RebindingSeconds(),
		TRenewal:      s.dhcp.RenewalSeconds(),
		TLease:        s.dhcp.IPLeaseSeconds(),
		DNSServers:    s.dhcpResults.DNSServers[:0],
	}
	if router.IsValid() {
		s.dhcpResults.Subnet = netip.PrefixFrom(router, int(s.dhcp.SubnetCIDRBits())).Masked()
	}
	s.dhcpResults.DNSServers = s.dhcp.AppendDNSServers(s.dhcpResults.DNSServers)
	return nil
}

func addr4(addr [4]byte, ok bool) netip.Addr {
	if !ok {
		return netip.Addr{}
	}
	return netip.AddrFrom4(addr)
}

// DoDHCPv4 runs a DHCP exchange to completion, transmitting on tx, and
// configures the stack with the assigned address.
func (s *Stack) DoDHCPv4(ctx context.Context, tx Transmitter, reqAddr [4]byte) (*DHCPResults, error) {
	err := s.StartDHCPv4Request(reqAddr)
	if err != nil {
		return nil, err
	}
	const poll = 10 * time.Millisecond
	requested := false
	for {
		s.Send(tx)
		s.mu.Lock()
		state := s.dhcp.State()
		s.mu.Unlock()
		requested = requested || state > dhcpv4.StateInit
		if requested && state == dhcpv4.StateInit {
			return nil, errDHCPNACK
		} else if state == dhcpv4.StateBound {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
	results, err := s.ResultDHCP()
	if err != nil {
		return nil, err
	}
	err = s.SetIPAddr(results.AssignedAddr)
	if err != nil {
		return nil, err
	}
	return results, nil
}
