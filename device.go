package enc28j60

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soypat/enc28j60/encwire"
	"golang.org/x/sync/semaphore"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/netlink"
)

// InterruptPin is the host GPIO wired to the active low INT output of the chip.
type InterruptPin interface {
	// ConfigureInterrupt configures the pin as a pulled up input and arranges
	// for handler to be called on every falling edge. handler must not block.
	ConfigureInterrupt(handler func()) error
	// DisableInterrupt detaches the handler and returns the pin to its reset state.
	DisableInterrupt() error
	// Get returns the current pin level. A low level means an interrupt is asserted.
	Get() bool
}

// Mediator receives state changes and frames from the device.
// Calls are made from the device's event goroutine and must not call back
// into the Device's configuration methods.
type Mediator interface {
	OnStateChanged(kind StateKind, value uint32) error
	// StackInput takes ownership of frame.
	StackInput(frame []byte) error
}

type Config struct {
	// SPI is the bus the chip is attached to. It is required.
	SPI drivers.SPI
	// CS drives the chip select line. Set to nil when the bus toggles
	// chip select on each transaction.
	CS func(level bool)
	// IRQ is the interrupt line. If nil the device polls every PollPeriod.
	IRQ      InterruptPin
	Logger   *slog.Logger
	Mediator Mediator
	// HardwareAddr is programmed into the MAC during Init when non-zero.
	HardwareAddr [6]byte

	PHYResetTimeout time.Duration
	// PollPeriod is how long the event task waits for an interrupt before
	// checking the chip anyways.
	PollPeriod     time.Duration
	TxTimeout      time.Duration
	SPILockTimeout time.Duration
	RegLockTimeout time.Duration

	// Alloc returns a buffer of length n for a received frame. Returning nil
	// drops the frame.
	Alloc func(n int) []byte
	Sleep func(time.Duration)
}

// DefaultConfig returns the configuration defaults. Zero valued fields of a
// Config passed to New are taken from here.
func DefaultConfig() Config {
	return Config{
		PHYResetTimeout: 100 * time.Millisecond,
		PollPeriod:      time.Second,
		TxTimeout:       2000 * time.Millisecond,
		SPILockTimeout:  50 * time.Millisecond,
		RegLockTimeout:  150 * time.Millisecond,
		Alloc:           func(n int) []byte { return make([]byte, n) },
		Sleep:           time.Sleep,
	}
}

type devState uint8

const (
	stateUninit devState = iota
	stateInit
	stateStarted
	stateClosed
)

// Device is an ENC28J60 attached over SPI. Each Device owns its goroutine,
// locks and chip state; devices do not share any state.
type Device struct {
	spi          drivers.SPI
	cs           func(bool)
	irq          InterruptPin
	logger       *slog.Logger
	traceEnabled bool
	cfg          Config

	spiLock *semaphore.Weighted
	regLock *semaphore.Weighted
	// txSem holds a token while the transmit area is free.
	txSem chan struct{}
	// notify carries at most one pending interrupt notification.
	notify chan struct{}

	// Guarded by regLock.
	bank          uint8
	nextPacketPtr uint16
	lastTSV       uint16
	// txRetried is set once the in-flight frame was retransmitted.
	txRetried     bool
	rxFilter      uint8
	promiscuous   bool

	// Guarded by spiLock.
	spiw [spiChunk + 1]byte
	spir [spiChunk + 1]byte

	// mu serializes lifecycle methods.
	mu       sync.Mutex
	state    devState
	cancel   context.CancelFunc
	taskDone chan struct{}
	revision Revision
	mac      [6]byte
	ready    atomic.Bool
	// running is set between Start and Stop. Read by the event task.
	running  atomic.Bool

	hmu      sync.Mutex
	mediator Mediator
	rcvEth   func([]byte) error
	// netNotify is the netlink callback set with NetNotify.
	netNotify func(netlink.Event)

	linkMu sync.Mutex
	link   Link
	duplex Duplex

	// drain receives frames that could not be allocated a buffer. Only used
	// by the event task.
	drain [MaxFrameSize]byte
	stats counters
}

// New returns a Device ready for Init. Zero fields of cfg take their
// values from DefaultConfig.
func New(cfg Config) *Device {
	def := DefaultConfig()
	if cfg.PHYResetTimeout <= 0 {
		cfg.PHYResetTimeout = def.PHYResetTimeout
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = def.PollPeriod
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = def.TxTimeout
	}
	if cfg.SPILockTimeout <= 0 {
		cfg.SPILockTimeout = def.SPILockTimeout
	}
	if cfg.RegLockTimeout <= 0 {
		cfg.RegLockTimeout = def.RegLockTimeout
	}
	if cfg.Alloc == nil {
		cfg.Alloc = def.Alloc
	}
	if cfg.Sleep == nil {
		cfg.Sleep = def.Sleep
	}
	d := &Device{
		spi:      cfg.SPI,
		cs:       cfg.CS,
		irq:      cfg.IRQ,
		logger:   cfg.Logger,
		cfg:      cfg,
		mediator: cfg.Mediator,
		spiLock:  semaphore.NewWeighted(1),
		regLock:  semaphore.NewWeighted(1),
		txSem:    make(chan struct{}, 1),
		notify:   make(chan struct{}, 1),
		bank:     bankUnknown,
	}
	d.traceEnabled = d.logger != nil && d.logger.Handler().Enabled(context.Background(), levelTrace)
	d.txSem <- struct{}{}
	return d
}

// Init resets the chip, verifies its revision, programs the buffer partition
// and MAC defaults, brings up the PHY and launches the event goroutine.
// On failure the interrupt pin is released.
func (d *Device) Init() (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.spi == nil {
		return errNilSPI
	}
	switch d.state {
	case stateInit, stateStarted:
		return errors.New("enc28j60: already initialized")
	case stateClosed:
		return errors.New("enc28j60: device closed")
	}
	d.info("Init:start")
	start := time.Now()
	if d.irq != nil {
		err = d.irq.ConfigureInterrupt(d.isr)
		if err != nil {
			return errjoin(errors.New("configure interrupt pin"), err)
		}
		defer func() {
			if err != nil {
				d.irq.DisableInterrupt()
			}
		}()
	}

	err = d.notifyState(StateLLInit, 0)
	if err != nil {
		return err
	}

	d.debug("Init:reset")
	err = d.spiSoftReset()
	if err != nil {
		return err
	}

	rev, err := d.regRead(encwire.EREVID)
	if err != nil {
		return err
	}
	d.revision = Revision(rev)
	if !d.revision.IsSupported() {
		d.logerr("Init:revision", slog.Int("erevid", int(rev)))
		return ErrWrongChipID
	}
	d.debug("Init:revision", slog.String("rev", d.revision.String()))

	err = d.setupDefaults()
	if err != nil {
		return err
	}
	err = d.clearMulticastHash()
	if err != nil {
		return err
	}
	if d.cfg.HardwareAddr != [6]byte{} {
		err = d.setHardwareAddr(d.cfg.HardwareAddr)
		if err != nil {
			return err
		}
	}

	d.debug("Init:phy")
	err = d.phyInit()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.taskDone = make(chan struct{})
	go d.eventLoop(ctx, d.taskDone)

	d.state = stateInit
	d.ready.Store(true)
	d.info("Init:done", slog.Duration("took", time.Since(start)), slog.String("rev", d.revision.String()))
	return nil
}

// Deinit stops the device, waits for the event goroutine to exit and
// detaches the interrupt handler. The device may be initialized again.
func (d *Device) Deinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deinit()
}

func (d *Device) deinit() error {
	if d.state != stateInit && d.state != stateStarted {
		return ErrNotInitialized
	}
	d.info("Deinit:start")
	var err error
	if d.state == stateStarted {
		err = d.stop()
	}
	d.ready.Store(false)
	// The goroutine is torn down before the handler is detached so no
	// notification is pending on a detached pin.
	d.cancel()
	<-d.taskDone
	d.cancel = nil
	if d.irq != nil {
		err = errjoin(err, d.irq.DisableInterrupt())
	}
	d.state = stateUninit
	d.linkMu.Lock()
	d.link = LinkDown
	d.linkMu.Unlock()
	err = errjoin(err, d.notifyState(StateDeinit, 0))
	d.info("Deinit:done")
	return err
}

// Close deinitializes the device if needed and releases it. A closed Device
// cannot be used again.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.state == stateInit || d.state == stateStarted {
		err = d.deinit()
	}
	d.state = stateClosed
	d.hmu.Lock()
	d.mediator = nil
	d.rcvEth = nil
	d.hmu.Unlock()
	return err
}

// SetMediator sets the receiver of state changes and frames.
func (d *Device) SetMediator(m Mediator) {
	d.hmu.Lock()
	d.mediator = m
	d.hmu.Unlock()
}

// Revision returns the silicon revision read during Init.
func (d *Device) Revision() Revision {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revision
}

func (d *Device) getMediator() Mediator {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	return d.mediator
}

func (d *Device) notifyState(kind StateKind, value uint32) error {
	m := d.getMediator()
	if m == nil {
		return nil
	}
	err := m.OnStateChanged(kind, value)
	if err != nil {
		d.warn("mediator:state", slog.String("kind", kind.String()), slog.String("err", err.Error()))
	}
	return err
}

// errjoin joins the non-nil errors. A single non-nil error is returned
// as is so it can be compared against sentinels.
func errjoin(errs ...error) error {
	var first error
	n := 0
	for _, err := range errs {
		if err != nil {
			if n == 0 {
				first = err
			}
			n++
		}
	}
	if n <= 1 {
		return first
	}
	return errors.Join(errs...)
}
