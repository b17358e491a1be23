package enc28j60

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/soypat/enc28j60/encwire"
	"tinygo.org/x/drivers/netlink"
)

func TestPHYReadWrite(t *testing.T) {
	d, sim := newTestDevice(t, 0x06)
	id1, err := d.ReadPHYReg(encwire.PHID1)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != encwire.PHID1Value {
		t.Errorf("PHID1=%#x", id1)
	}
	const lcon = 0x3476
	err = d.WritePHYReg(encwire.PHLCON, lcon)
	if err != nil {
		t.Fatal(err)
	}
	if sim.PHY(encwire.PHLCON) != lcon {
		t.Errorf("PHLCON=%#x in chip", sim.PHY(encwire.PHLCON))
	}
	got, err := d.ReadPHYReg(encwire.PHLCON)
	if err != nil || got != lcon {
		t.Errorf("read back %#x, %v", got, err)
	}
	if sim.Reg(encwire.MICMD) != 0 {
		t.Error("MICMD.MIIRD left set")
	}
}

func TestPHYBusy(t *testing.T) {
	d, sim := newTestDevice(t, 0x06)
	sim.SetMIIBusy(1)
	_, err := d.ReadPHYReg(encwire.PHSTAT2)
	if err != ErrPHYBusy {
		t.Fatalf("got %v, want ErrPHYBusy", err)
	}
	// The busy flag clears and later operations succeed.
	_, err = d.ReadPHYReg(encwire.PHSTAT2)
	if err != nil {
		t.Fatal(err)
	}
}

func TestPHYOperationTimeout(t *testing.T) {
	d, sim := newTestDevice(t, 0x06)
	sim.SetMIIOpDuration(10 * miiPollAttempts)
	_, err := d.ReadPHYReg(encwire.PHSTAT2)
	if err != ErrPHYTimeout {
		t.Fatalf("got %v, want ErrPHYTimeout", err)
	}
	if sim.Reg(encwire.MICMD) != 0 {
		t.Error("MICMD.MIIRD left set after timeout")
	}
}

func TestPHYOperationWait(t *testing.T) {
	d, sim := newTestDevice(t, 0x06)
	sim.SetMIIOpDuration(3)
	got, err := d.ReadPHYReg(encwire.PHID2)
	if err != nil {
		t.Fatal(err)
	}
	if got&encwire.PHID2OUIMask != encwire.PHID2Value {
		t.Errorf("PHID2=%#x", got)
	}
}

func TestPHYResetTimeout(t *testing.T) {
	var mu sync.Mutex
	var slept time.Duration
	d, sim := newTestDevice(t, 0x06, func(c *Config) {
		c.Sleep = func(d time.Duration) {
			mu.Lock()
			slept += d
			mu.Unlock()
		}
	})
	sim.SetPHYResetStuck(true)
	err := d.Init()
	if !errors.Is(err, ErrPHYTimeout) {
		t.Fatalf("got %v, want ErrPHYTimeout", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if slept < d.cfg.PHYResetTimeout-phyResetPoll {
		t.Errorf("gave up after %s", slept)
	}
}

func TestPHYPowerControl(t *testing.T) {
	d, sim := newTestDevice(t, 0x06)
	err := d.PHYPowerControl(false)
	if err != nil {
		t.Fatal(err)
	}
	if sim.PHY(encwire.PHCON1)&encwire.PHCON1_PPWRSV == 0 {
		t.Error("PHY not in power save")
	}
	err = d.PHYPowerControl(true)
	if err != nil {
		t.Fatal(err)
	}
	if sim.PHY(encwire.PHCON1)&encwire.PHCON1_PPWRSV != 0 {
		t.Error("PHY still in power save")
	}
}

func TestLinkNotifyOrder(t *testing.T) {
	rec := &recorder{}
	d, sim := newTestDevice(t, 0x06, withMediator(rec))
	mustInit(t, d)
	var events []netlink.Event
	d.NetNotify(func(ev netlink.Event) { events = append(events, ev) })
	rec.reset()

	link, err := d.GetLink()
	if err != nil || link != LinkDown {
		t.Fatalf("got %s, %v; want link down", link, err)
	}
	if len(rec.States()) != 0 {
		t.Fatal("unchanged link reported")
	}

	sim.SetLink(true)
	link, err = d.GetLink()
	if err != nil || link != LinkUp {
		t.Fatalf("got %s, %v; want link up", link, err)
	}
	want := []stateEvent{
		{StateSpeed, uint32(Speed10M)},
		{StateDuplex, uint32(DuplexHalf)},
		{StateLink, uint32(LinkUp)},
	}
	if got := rec.States(); !slices.Equal(got, want) {
		t.Fatalf("states %v, want %v", got, want)
	}
	rec.reset()

	err = d.SetDuplex(DuplexFull)
	if err != nil {
		t.Fatal(err)
	}
	want = []stateEvent{
		{StateSpeed, uint32(Speed10M)},
		{StateDuplex, uint32(DuplexFull)},
		{StatePause, 1},
		{StateLink, uint32(LinkUp)},
	}
	if got := rec.States(); !slices.Equal(got, want) {
		t.Fatalf("states %v, want %v", got, want)
	}
	if sim.Reg(encwire.MACON3)&encwire.MACON3_FULDPX == 0 || sim.Reg(encwire.MABBIPG) != defaultMABBIPGFull {
		t.Error("MAC not configured for full duplex")
	}
	if sim.PHY(encwire.PHCON1)&encwire.PHCON1_PDPXMD == 0 {
		t.Error("PHY not configured for full duplex")
	}
	rec.reset()

	sim.SetLink(false)
	link, err = d.GetLink()
	if err != nil || link != LinkDown {
		t.Fatalf("got %s, %v; want link down", link, err)
	}
	want = []stateEvent{{StateLink, uint32(LinkDown)}}
	if got := rec.States(); !slices.Equal(got, want) {
		t.Fatalf("states %v, want %v", got, want)
	}
	wantEvents := []netlink.Event{netlink.EventNetUp, netlink.EventNetUp, netlink.EventNetDown}
	if !slices.Equal(events, wantEvents) {
		t.Errorf("netlink events %v, want %v", events, wantEvents)
	}
	if got := d.Stats().LinkChanges; got != 3 {
		t.Errorf("link changes %d, want 3", got)
	}
}

func TestSetSpeed(t *testing.T) {
	d, _ := newTestDevice(t, 0x06)
	if err := d.SetSpeed(Speed10M); err != nil {
		t.Error(err)
	}
	if err := d.SetSpeed(Speed100M); err != ErrUnsupportedSpeed {
		t.Errorf("got %v, want ErrUnsupportedSpeed", err)
	}
}
