package enc28j60

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soypat/enc28j60/encwire"
	"github.com/soypat/enc28j60/internal/encsim"
)

type stateEvent struct {
	kind  StateKind
	value uint32
}

// recorder is a Mediator that records what it is handed.
type recorder struct {
	mu     sync.Mutex
	states []stateEvent
	frames [][]byte
	// got receives a value for every call, if non-nil.
	got chan struct{}
}

func (r *recorder) OnStateChanged(kind StateKind, value uint32) error {
	r.mu.Lock()
	r.states = append(r.states, stateEvent{kind, value})
	r.mu.Unlock()
	r.signal()
	return nil
}

func (r *recorder) StackInput(frame []byte) error {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	r.signal()
	return nil
}

func (r *recorder) signal() {
	if r.got == nil {
		return
	}
	select {
	case r.got <- struct{}{}:
	default:
	}
}

func (r *recorder) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

func (r *recorder) States() []stateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stateEvent(nil), r.states...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.states = nil
	r.frames = nil
	r.mu.Unlock()
}

// newTestDevice returns a device attached to a simulated chip. The event
// task only wakes on interrupts and there is no interrupt pin unless
// configured, so tests drive handleInterrupts directly.
func newTestDevice(t *testing.T, rev uint8, opts ...func(*Config)) (*Device, *encsim.Chip) {
	t.Helper()
	sim := encsim.New(rev)
	cfg := Config{
		SPI:        sim,
		PollPeriod: time.Hour,
		Sleep:      func(time.Duration) {},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg), sim
}

func mustInit(t *testing.T, d *Device) {
	t.Helper()
	err := d.Init()
	if err != nil {
		t.Fatal("init:", err)
	}
	t.Cleanup(func() { d.Close() })
}

func withMediator(m Mediator) func(*Config) {
	return func(c *Config) { c.Mediator = m }
}

func TestInitRevision(t *testing.T) {
	for _, test := range []struct {
		rev     uint8
		wantErr error
	}{
		{rev: 0x00, wantErr: ErrWrongChipID},
		{rev: 0x01, wantErr: ErrWrongChipID},
		{rev: 0x02},
		{rev: 0x04},
		{rev: 0x05},
		{rev: 0x06},
		{rev: 0x07, wantErr: ErrWrongChipID},
		{rev: 0xff, wantErr: ErrWrongChipID},
	} {
		t.Run(Revision(test.rev).String(), func(t *testing.T) {
			d, sim := newTestDevice(t, test.rev)
			d.irq = sim.IRQ()
			err := d.Init()
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("got %v, want %v", err, test.wantErr)
			}
			if err != nil {
				if sim.IRQ().Attached() {
					t.Error("interrupt pin left attached after failed init")
				}
				if d.ready.Load() {
					t.Error("device ready after failed init")
				}
				return
			}
			defer d.Close()
			if d.Revision() != Revision(test.rev) {
				t.Errorf("revision %s, want %#x", d.Revision(), test.rev)
			}
		})
	}
}

func TestInitProgramsChip(t *testing.T) {
	mac := [6]byte{0x02, 0x00, 0x5e, 0x10, 0x20, 0x30}
	rec := &recorder{}
	d, sim := newTestDevice(t, 0x06, withMediator(rec), func(c *Config) { c.HardwareAddr = mac })
	mustInit(t, d)

	for _, test := range []struct {
		name string
		reg  encwire.Reg
		want uint16
	}{
		{"ERXST", encwire.ERXSTL, RxStart},
		{"ERXND", encwire.ERXNDL, RxEnd},
		{"ERXRDPT", encwire.ERXRDPTL, RxEnd},
		{"ETXST", encwire.ETXSTL, TxStart},
		{"MAMXFL", encwire.MAMXFLL, MaxFrameSize},
	} {
		if got := sim.Reg16(test.reg); got != test.want {
			t.Errorf("%s=%#x, want %#x", test.name, got, test.want)
		}
	}
	macon3 := sim.Reg(encwire.MACON3)
	if macon3&encwire.MACON3_TXCRCEN == 0 || macon3&encwire.MACON3_FRMLNEN == 0 || macon3&encwire.MACON3_FULDPX != 0 {
		t.Errorf("MACON3=%#x", macon3)
	}
	if sim.Reg(encwire.MABBIPG) != defaultMABBIPGHalf {
		t.Errorf("MABBIPG=%#x", sim.Reg(encwire.MABBIPG))
	}
	if sim.Reg(encwire.ERXFCON) != defaultRxFilter {
		t.Errorf("ERXFCON=%#x", sim.Reg(encwire.ERXFCON))
	}
	got := [6]byte{
		sim.Reg(encwire.MAADR1), sim.Reg(encwire.MAADR2), sim.Reg(encwire.MAADR3),
		sim.Reg(encwire.MAADR4), sim.Reg(encwire.MAADR5), sim.Reg(encwire.MAADR6),
	}
	if got != mac {
		t.Errorf("MAADR=% x, want % x", got, mac)
	}
	hw, err := d.HardwareAddr6()
	if err != nil || hw != mac {
		t.Errorf("HardwareAddr6=% x, %v", hw, err)
	}
	if ie := sim.PHY(encwire.PHIE); ie != encwire.PHIE_PGEIE|encwire.PHIE_PLNKIE {
		t.Errorf("PHIE=%#x", ie)
	}
	if sim.PHY(encwire.PHCON2)&encwire.PHCON2_HDLDIS == 0 {
		t.Error("half duplex loopback not disabled")
	}
	states := rec.States()
	if len(states) == 0 || states[0] != (stateEvent{StateLLInit, 0}) {
		t.Errorf("first state %v, want llinit", states)
	}
}

func TestInitTwice(t *testing.T) {
	d, _ := newTestDevice(t, 0x06)
	mustInit(t, d)
	if err := d.Init(); err == nil {
		t.Fatal("second Init succeeded")
	}
}

func TestDeinitReinit(t *testing.T) {
	rec := &recorder{}
	d, sim := newTestDevice(t, 0x06, withMediator(rec))
	d.irq = sim.IRQ()
	mustInit(t, d)
	if !sim.IRQ().Attached() {
		t.Fatal("interrupt pin not attached")
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	if err := d.Deinit(); err != nil {
		t.Fatal(err)
	}
	if sim.IRQ().Attached() {
		t.Error("interrupt pin attached after Deinit")
	}
	if sim.Reg(encwire.ECON1)&encwire.ECON1_RXEN != 0 {
		t.Error("reception enabled after Deinit")
	}
	states := rec.States()
	if last := states[len(states)-1]; last != (stateEvent{StateDeinit, 0}) {
		t.Errorf("last state %v, want deinit", last)
	}
	if err := d.Transmit(make([]byte, 60)); err != ErrNotInitialized {
		t.Errorf("Transmit after Deinit: %v", err)
	}
	if err := d.Deinit(); err != ErrNotInitialized {
		t.Errorf("second Deinit: %v", err)
	}
	if err := d.Init(); err != nil {
		t.Fatal("reinit:", err)
	}
}

func TestCloseIsFinal(t *testing.T) {
	d, _ := newTestDevice(t, 0x06)
	mustInit(t, d)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Init(); err == nil {
		t.Fatal("Init on closed device succeeded")
	}
}

func TestNilSPI(t *testing.T) {
	d := New(Config{})
	if err := d.Init(); err != errNilSPI {
		t.Fatalf("got %v", err)
	}
}

func TestStartStop(t *testing.T) {
	d, sim := newTestDevice(t, 0x06)
	if err := d.Start(); err != ErrNotInitialized {
		t.Fatalf("Start before Init: %v", err)
	}
	mustInit(t, d)
	if d.NetFlags() != 0 {
		t.Error("flags set before Start")
	}
	if err := d.SetLink(LinkUp); err != nil {
		t.Fatal(err)
	}
	if sim.Reg(encwire.ECON1)&encwire.ECON1_RXEN == 0 {
		t.Error("RXEN clear after Start")
	}
	if eie := sim.Reg(encwire.EIE); eie != startInterrupts {
		t.Errorf("EIE=%#x, want %#x", eie, startInterrupts)
	}
	if d.NetFlags() == 0 {
		t.Error("flags clear after Start")
	}
	if err := d.SetLink(LinkDown); err != nil {
		t.Fatal(err)
	}
	if sim.Reg(encwire.ECON1)&encwire.ECON1_RXEN != 0 || sim.Reg(encwire.EIE) != 0 {
		t.Error("Stop left reception or interrupts enabled")
	}
}

func TestErrjoin(t *testing.T) {
	a, b := errors.New("a"), errors.New("b")
	if err := errjoin(nil, nil); err != nil {
		t.Errorf("got %v, want nil", err)
	}
	if err := errjoin(nil, ErrPHYTimeout, nil); err != ErrPHYTimeout {
		t.Errorf("single error wrapped: %v", err)
	}
	err := errjoin(a, nil, b)
	if !errors.Is(err, a) || !errors.Is(err, b) {
		t.Errorf("joined error lost a cause: %v", err)
	}
}
