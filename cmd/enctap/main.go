//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/soypat/enc28j60"
	"github.com/soypat/enc28j60/spihost"
	"periph.io/x/conn/v3/physic"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "enctap - Bridge an ENC28J60 on a SPI port to a Linux TAP interface.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	spiName := flag.String("spi", "/dev/spidev0.0", "SPI port name.")
	irqName := flag.String("irq", "GPIO25", "GPIO wired to INT. Empty polls the chip.")
	freq := flag.Int64("freq", 8_000_000, "SPI clock in Hz.")
	tapName := flag.String("tap", "enc0", "TAP interface name.")
	macFlag := flag.String("mac", "02:00:00:00:28:60", "Hardware address to program.")
	promisc := flag.Bool("promisc", false, "Receive all frames.")
	verbose := flag.Bool("v", false, "Debug logging.")
	flag.Parse()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cfg := config{
		spi:     *spiName,
		irq:     *irqName,
		freq:    physic.Frequency(*freq) * physic.Hertz,
		tap:     *tapName,
		mac:     *macFlag,
		promisc: *promisc,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := run(ctx, cfg, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("enctap", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

type config struct {
	spi, irq, tap, mac string
	freq               physic.Frequency
	promisc            bool
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	hw, err := net.ParseMAC(cfg.mac)
	if err != nil {
		return err
	} else if len(hw) != 6 {
		return errors.New("need a 6 byte hardware address")
	}
	err = spihost.Init()
	if err != nil {
		return err
	}
	bus, err := spihost.Open(cfg.spi, cfg.freq)
	if err != nil {
		return err
	}
	defer bus.Close()
	var irq enc28j60.InterruptPin
	if cfg.irq != "" {
		pin, err := spihost.OpenInterruptPin(cfg.irq)
		if err != nil {
			return err
		}
		irq = pin
	}
	tap, err := openTap(cfg.tap)
	if err != nil {
		return err
	}
	defer tap.Close()

	br := &bridge{tap: tap, logger: logger}
	dev := enc28j60.New(enc28j60.Config{
		SPI:          bus,
		IRQ:          irq,
		Logger:       logger,
		Mediator:     br,
		HardwareAddr: [6]byte(hw),
	})
	err = dev.Init()
	if err != nil {
		return err
	}
	defer dev.Close()
	logger.Info("chip ready", slog.String("rev", dev.Revision().String()), slog.String("mac", hw.String()))
	if cfg.promisc {
		err = dev.SetPromiscuous(true)
		if err != nil {
			return err
		}
	}
	err = dev.Start()
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		tap.Close()
	}()
	err = br.forward(dev, tap)
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	st := dev.Stats()
	logger.Info("exit",
		slog.Uint64("rx", uint64(st.RxPackets)), slog.Uint64("rxdrop", uint64(st.RxDropped)),
		slog.Uint64("tx", uint64(st.TxPackets)), slog.Uint64("txerr", uint64(st.TxErrors)))
	return err
}

// bridge writes frames received by the chip to the TAP interface and
// transmits frames read from it.
type bridge struct {
	tap    io.Writer
	logger *slog.Logger
}

func (br *bridge) OnStateChanged(kind enc28j60.StateKind, value uint32) error {
	attr := slog.Uint64("value", uint64(value))
	switch kind {
	case enc28j60.StateLink:
		attr = slog.String("value", enc28j60.Link(value).String())
	case enc28j60.StateDuplex:
		attr = slog.String("value", enc28j60.Duplex(value).String())
	case enc28j60.StateSpeed:
		attr = slog.String("value", enc28j60.Speed(value).String())
	}
	br.logger.Info("state", slog.String("kind", kind.String()), attr)
	return nil
}

func (br *bridge) StackInput(frame []byte) error {
	_, err := br.tap.Write(frame)
	if err != nil {
		br.logger.Warn("tap:write", slog.Int("plen", len(frame)), slog.String("err", err.Error()))
	}
	return err
}

// forward transmits every frame read from r until r fails.
func (br *bridge) forward(tx interface{ Transmit([]byte) error }, r io.Reader) error {
	buf := make([]byte, enc28j60.MaxTxFrameSize)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return err
		}
		err = tx.Transmit(buf[:n])
		if err != nil {
			br.logger.Debug("tap:transmit", slog.Int("plen", n), slog.String("err", err.Error()))
		}
	}
}
