package netstack

import (
	"encoding/binary"
	"net/netip"
	"testing"
	"time"

	"github.com/soypat/enc28j60"
	"github.com/soypat/enc28j60/internal/encsim"
)

var testMAC = [6]byte{0x02, 0x00, 0x5E, 0x10, 0x20, 0x30}

type frameLog struct{ frames [][]byte }

func (f *frameLog) Transmit(frame []byte) error {
	f.frames = append(f.frames, append([]byte(nil), frame...))
	return nil
}

func newStack(t *testing.T, static netip.Addr) *Stack {
	t.Helper()
	var s Stack
	err := s.Reset(Config{
		StaticAddress:   static,
		Hostname:        "enc",
		RandSeed:        0x1234,
		HardwareAddress: testMAC,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &s
}

func TestResetErrors(t *testing.T) {
	var s Stack
	if err := s.Reset(Config{HardwareAddress: testMAC}); err != errZeroSeed {
		t.Errorf("zero seed: got %v", err)
	}
	err := s.Reset(Config{RandSeed: 1, StaticAddress: netip.MustParseAddr("fe80::1")})
	if err != errIPv6 {
		t.Errorf("IPv6: got %v", err)
	}
}

func TestTransactionIDs(t *testing.T) {
	a := newStack(t, netip.Addr{})
	b := newStack(t, netip.Addr{})
	seen := make(map[uint32]bool)
	for i := 0; i < 64; i++ {
		x := a.nextXID()
		if x != b.nextXID() {
			t.Fatal("same seed gave different IDs")
		}
		if seen[x] {
			t.Fatalf("ID %#x repeated after %d requests", x, i)
		}
		seen[x] = true
	}
	var c Stack
	err := c.Reset(Config{RandSeed: 0x1235, HardwareAddress: testMAC})
	if err != nil {
		t.Fatal(err)
	}
	if c.nextXID() == b.nextXID() {
		t.Error("different seeds gave the same ID")
	}
}

func TestLinkTracking(t *testing.T) {
	s := newStack(t, netip.Addr{})
	if s.LinkUp() {
		t.Fatal("link up before any report")
	}
	s.OnStateChanged(enc28j60.StateLink, uint32(enc28j60.LinkUp))
	if !s.LinkUp() {
		t.Fatal("link up not tracked")
	}
	s.OnStateChanged(enc28j60.StateDeinit, 0)
	if s.LinkUp() {
		t.Fatal("link still up after deinit")
	}
}

func TestDHCPDiscover(t *testing.T) {
	s := newStack(t, netip.Addr{})
	var tx frameLog
	if n, err := s.Send(&tx); n != 0 || err != nil {
		t.Fatalf("idle stack sent %d frames, err=%v", n, err)
	}
	err := s.StartDHCPv4Request([4]byte{192, 168, 1, 50})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Send(&tx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tx.frames) == 0 {
		t.Fatal("no discover sent")
	}
	f := tx.frames[0]
	if len(f) < 14+20+8 {
		t.Fatalf("short frame %d", len(f))
	}
	if etype := binary.BigEndian.Uint16(f[12:14]); etype != 0x0800 {
		t.Fatalf("ethertype %#x", etype)
	}
	ihl := int(f[14]&0xf) * 4
	if dport := binary.BigEndian.Uint16(f[14+ihl+2:]); dport != 67 {
		t.Errorf("UDP destination port %d, want 67", dport)
	}
	if _, err := s.ResultDHCP(); err == nil {
		t.Error("result available before lease")
	}
}

func TestAttachResolve(t *testing.T) {
	sim := encsim.New(0x06)
	dev := enc28j60.New(enc28j60.Config{
		SPI:          sim,
		IRQ:          sim.IRQ(),
		HardwareAddr: testMAC,
		Sleep:        func(time.Duration) {},
	})
	err := dev.Init()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	err = dev.Start()
	if err != nil {
		t.Fatal(err)
	}
	var s Stack
	err = s.Reset(Config{
		StaticAddress: netip.MustParseAddr("192.168.1.10"),
		RandSeed:      7,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.Attach(dev)
	if err != nil {
		t.Fatal(err)
	}
	if s.HardwareAddress() != testMAC {
		t.Fatalf("hardware address %x", s.HardwareAddress())
	}
	err = s.StartResolveHardwareAddress6(netip.MustParseAddr("192.168.1.1"))
	if err != nil {
		t.Fatal(err)
	}
	n, err := s.Send(dev)
	if err != nil || n == 0 {
		t.Fatalf("sent %d, err=%v", n, err)
	}
	frames := sim.TxFrames()
	if len(frames) == 0 {
		t.Fatal("chip transmitted nothing")
	}
	f := frames[0]
	if etype := binary.BigEndian.Uint16(f[12:14]); etype != 0x0806 {
		t.Fatalf("ethertype %#x, want ARP", etype)
	}
	if [6]byte(f[6:12]) != testMAC {
		t.Errorf("source %x", f[6:12])
	}
}
