//go:build rp2040 || rp2350

package enc28j60

import (
	"machine"

	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
)

// RP2Pins are the GPIOs an ENC28J60 module is wired to on an RP2040 or
// RP2350 board.
type RP2Pins struct {
	SCK, SDO, SDI, CS machine.Pin
	// INT may be machine.NoPin to poll the chip instead.
	INT machine.Pin
	// Frequency of the SPI clock. Zero selects 10MHz.
	Frequency uint32
	// PIO block to claim a state machine from. Nil selects PIO0.
	PIO *pio.PIO
}

// RP2Config returns a Config whose bus is a PIO driven SPI on the given
// pins. The remaining Config fields are left to the caller.
func RP2Config(pins RP2Pins) (Config, error) {
	block := pins.PIO
	if block == nil {
		block = pio.PIO0
	}
	freq := pins.Frequency
	if freq == 0 {
		freq = 10_000_000
	}
	sm, err := block.ClaimStateMachine()
	if err != nil {
		return Config{}, err
	}
	spi, err := piolib.NewSPI(sm, machine.SPIConfig{
		Frequency: freq,
		SCK:       pins.SCK,
		SDO:       pins.SDO,
		SDI:       pins.SDI,
		Mode:      0,
	})
	if err != nil {
		return Config{}, err
	}
	pins.CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pins.CS.High()
	cfg := Config{
		SPI: &pioBus{spi: spi},
		CS:  pins.CS.Set,
	}
	if pins.INT != machine.NoPin {
		cfg.IRQ = rp2Pin(pins.INT)
	}
	return cfg, nil
}

// pioBus allows write only transactions on a PIO SPI which always
// clocks data in and out together.
type pioBus struct {
	spi     *piolib.SPI
	scratch [spiChunk + 1]byte
}

func (b *pioBus) Tx(w, r []byte) error {
	switch {
	case r == nil:
		for len(w) > 0 {
			n := min(len(w), len(b.scratch))
			err := b.spi.Tx(w[:n], b.scratch[:n])
			if err != nil {
				return err
			}
			w = w[n:]
		}
		return nil
	case w == nil:
		for len(r) > 0 {
			n := min(len(r), len(b.scratch))
			clear(b.scratch[:n])
			err := b.spi.Tx(b.scratch[:n], r[:n])
			if err != nil {
				return err
			}
			r = r[n:]
		}
		return nil
	}
	return b.spi.Tx(w, r)
}

func (b *pioBus) Transfer(c byte) (byte, error) { return b.spi.Transfer(c) }

type rp2Pin machine.Pin

func (p rp2Pin) ConfigureInterrupt(handler func()) error {
	pin := machine.Pin(p)
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return pin.SetInterrupt(machine.PinFalling, func(machine.Pin) { handler() })
}

func (p rp2Pin) DisableInterrupt() error {
	return machine.Pin(p).SetInterrupt(0, nil)
}

func (p rp2Pin) Get() bool { return machine.Pin(p).Get() }
