// Package spihost connects an ENC28J60 to a Linux host through periph.io:
// a spidev port for the bus and a GPIO for the INT line.
package spihost

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DefaultFrequency is the bus clock used when Open is given none. The chip
// accepts up to 20MHz.
const DefaultFrequency = 8 * physic.MegaHertz

var (
	errNoPin    = errors.New("spihost: interrupt pin not found")
	errAttached = errors.New("spihost: interrupt already attached")
)

// Init loads the periph.io host drivers. It is safe to call more than once.
func Init() error {
	_, err := host.Init()
	if err != nil {
		return fmt.Errorf("spihost: host init: %w", err)
	}
	return nil
}

// Bus adapts a periph.io SPI connection to the tinygo drivers.SPI
// interface. Every Tx is framed by its own chip select assertion, which is
// what the ENC28J60 transport expects when no manual chip select is given.
type Bus struct {
	conn  spi.Conn
	port  spi.PortCloser
	zeros []byte
}

// Open opens the named SPI port (e.g. "/dev/spidev0.0" or "SPI0.0") in
// mode 0 with 8 bit words. A zero freq selects DefaultFrequency.
func Open(name string, freq physic.Frequency) (*Bus, error) {
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("spihost: open %q: %w", name, err)
	}
	b, err := NewBus(port, freq)
	if err != nil {
		port.Close()
		return nil, err
	}
	return b, nil
}

// NewBus connects to an already open port.
func NewBus(port spi.PortCloser, freq physic.Frequency) (*Bus, error) {
	if freq == 0 {
		freq = DefaultFrequency
	}
	conn, err := port.Connect(freq, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("spihost: connect: %w", err)
	}
	return &Bus{conn: conn, port: port}, nil
}

// Tx implements drivers.SPI. Either w or r may be nil.
func (b *Bus) Tx(w, r []byte) error {
	if w == nil {
		if len(b.zeros) < len(r) {
			b.zeros = make([]byte, len(r))
		}
		w = b.zeros[:len(r)]
	}
	if r != nil && len(r) != len(w) {
		return errors.New("spihost: mismatched buffer lengths")
	}
	return b.conn.Tx(w, r)
}

// Transfer implements drivers.SPI.
func (b *Bus) Transfer(c byte) (byte, error) {
	var w, r [1]byte
	w[0] = c
	err := b.conn.Tx(w[:], r[:])
	return r[0], err
}

// Close releases the SPI port.
func (b *Bus) Close() error {
	return b.port.Close()
}

// InterruptPin implements enc28j60.InterruptPin over a periph.io GPIO.
// Edges are awaited by a goroutine blocked in WaitForEdge which invokes
// the handler.
type InterruptPin struct {
	pin gpio.PinIO
	// wait bounds each WaitForEdge call so the watcher notices detaching.
	wait time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// OpenInterruptPin looks up the named GPIO (e.g. "GPIO25").
func OpenInterruptPin(name string) (*InterruptPin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", errNoPin, name)
	}
	return NewInterruptPin(p), nil
}

// NewInterruptPin wraps p.
func NewInterruptPin(p gpio.PinIO) *InterruptPin {
	return &InterruptPin{pin: p, wait: 100 * time.Millisecond}
}

// ConfigureInterrupt sets the pin as a pulled up input sensitive to falling
// edges and calls handler on each one.
func (ip *InterruptPin) ConfigureInterrupt(handler func()) error {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if ip.stop != nil {
		return errAttached
	}
	err := ip.pin.In(gpio.PullUp, gpio.FallingEdge)
	if err != nil {
		return fmt.Errorf("spihost: configure %s: %w", ip.pin, err)
	}
	ip.stop = make(chan struct{})
	ip.done = make(chan struct{})
	go ip.watch(handler, ip.stop, ip.done)
	return nil
}

func (ip *InterruptPin) watch(handler func(), stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if ip.pin.WaitForEdge(ip.wait) {
			handler()
		}
	}
}

// DisableInterrupt stops edge detection and waits for the watcher to exit.
func (ip *InterruptPin) DisableInterrupt() error {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if ip.stop == nil {
		return nil
	}
	close(ip.stop)
	<-ip.done
	ip.stop, ip.done = nil, nil
	return ip.pin.In(gpio.PullUp, gpio.NoEdge)
}

// Get reads the pin level. INT is active low.
func (ip *InterruptPin) Get() bool {
	return ip.pin.Read() == gpio.High
}
