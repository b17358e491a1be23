package enc28j60

import (
	"net"
	"testing"

	"github.com/soypat/enc28j60/encwire"
	"tinygo.org/x/drivers/netlink"
)

func TestRxFilters(t *testing.T) {
	d, sim := newTestDevice(t, 0x06)
	mustInit(t, d)
	table := [8]byte{0x01, 0, 0, 0x80, 0, 0, 0, 0x10}
	err := d.SetMulticastHash(table)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range table {
		if got := sim.Reg(encwire.EHT0 + encwire.Reg(i)); got != want {
			t.Errorf("EHT%d=%#x, want %#x", i, got, want)
		}
	}
	withHash := uint8(defaultRxFilter | encwire.ERXFCON_HTEN)
	if got := sim.Reg(encwire.ERXFCON); got != withHash {
		t.Fatalf("ERXFCON=%#x, want %#x", got, withHash)
	}

	err = d.SetPromiscuous(true)
	if err != nil {
		t.Fatal(err)
	}
	if got := sim.Reg(encwire.ERXFCON); got != 0 {
		t.Fatalf("ERXFCON=%#x in promiscuous mode", got)
	}
	// Hash updates in promiscuous mode apply when it is left.
	err = d.SetMulticastHash([8]byte{})
	if err != nil {
		t.Fatal(err)
	}
	if got := sim.Reg(encwire.ERXFCON); got != 0 {
		t.Fatalf("ERXFCON=%#x changed in promiscuous mode", got)
	}
	err = d.SetPromiscuous(false)
	if err != nil {
		t.Fatal(err)
	}
	if got := sim.Reg(encwire.ERXFCON); got != defaultRxFilter {
		t.Fatalf("ERXFCON=%#x, want %#x", got, uint8(defaultRxFilter))
	}
}

func TestHardwareAddr(t *testing.T) {
	d, sim := newTestDevice(t, 0x06)
	mac := [6]byte{0x02, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	if err := d.SetHardwareAddr6(mac); err != ErrNotInitialized {
		t.Fatalf("got %v before Init", err)
	}
	mustInit(t, d)
	if _, err := d.HardwareAddr6(); err == nil {
		t.Fatal("unset address returned without error")
	}
	if err := d.SetHardwareAddr6(mac); err != nil {
		t.Fatal(err)
	}
	if sim.Reg(encwire.MAADR1) != mac[0] || sim.Reg(encwire.MAADR6) != mac[5] {
		t.Fatalf("MAADR1=%#x MAADR6=%#x", sim.Reg(encwire.MAADR1), sim.Reg(encwire.MAADR6))
	}
	hw, err := d.GetHardwareAddr()
	if err != nil {
		t.Fatal(err)
	}
	if hw.String() != net.HardwareAddr(mac[:]).String() {
		t.Fatalf("got %s", hw)
	}
}

func TestNetlink(t *testing.T) {
	d, sim := newTestDevice(t, 0x06)
	mustInit(t, d)
	err := d.NetConnect(nil)
	if err != nil {
		t.Fatal(err)
	}
	if sim.Reg(encwire.ECON1)&encwire.ECON1_RXEN == 0 {
		t.Error("NetConnect did not enable reception")
	}
	d.NetDisconnect()
	if sim.Reg(encwire.ECON1)&encwire.ECON1_RXEN != 0 {
		t.Error("NetDisconnect left reception enabled")
	}
	if _, err := d.GetIPAddr(); err != netlink.ErrNotSupported {
		t.Errorf("GetIPAddr: got %v, want ErrNotSupported", err)
	}
}
