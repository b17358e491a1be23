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
	"time"

	"github.com/soypat/enc28j60"
	"github.com/soypat/enc28j60/spihost"
	mqtt "github.com/soypat/natiu-mqtt"
	"periph.io/x/conn/v3/physic"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "encmon - Publish ENC28J60 link state and counters to an MQTT broker.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	spiName := flag.String("spi", "/dev/spidev0.0", "SPI port name.")
	irqName := flag.String("irq", "", "GPIO wired to INT. Empty polls the chip.")
	broker := flag.String("broker", "test.mosquitto.org:1883", "MQTT broker address.")
	clientID := flag.String("id", "encmon", "MQTT client identifier.")
	prefix := flag.String("topic", "enc28j60", "Topic prefix.")
	period := flag.Duration("period", 10*time.Second, "Counter publish period.")
	verbose := flag.Bool("v", false, "Debug logging.")
	flag.Parse()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := run(ctx, logger, *spiName, *irqName, *broker, *clientID, *prefix, *period)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("encmon", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, spiName, irqName, broker, clientID, prefix string, period time.Duration) error {
	err := spihost.Init()
	if err != nil {
		return err
	}
	bus, err := spihost.Open(spiName, 8*physic.MegaHertz)
	if err != nil {
		return err
	}
	defer bus.Close()
	var irq enc28j60.InterruptPin
	if irqName != "" {
		pin, err := spihost.OpenInterruptPin(irqName)
		if err != nil {
			return err
		}
		irq = pin
	}
	mon := newMonitor(prefix)
	dev := enc28j60.New(enc28j60.Config{
		SPI:      bus,
		IRQ:      irq,
		Logger:   logger,
		Mediator: mon,
	})
	err = dev.Init()
	if err != nil {
		return err
	}
	defer dev.Close()
	err = dev.Start()
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", broker, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	pub, err := connect(conn, clientID, logger)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		var msg message
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg = <-mon.events:
		case <-ticker.C:
			msg = mon.statsMessage(dev.Stats())
		}
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err = pub.publish(msg)
		if err != nil {
			return err
		}
		logger.Debug("published", slog.String("topic", msg.topic), slog.String("payload", string(msg.payload)))
	}
}

var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

type publisher struct {
	client *mqtt.Client
	vars   mqtt.VariablesPublish
}

func connect(conn net.Conn, clientID string, logger *slog.Logger) (*publisher, error) {
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 1024)},
		OnPub: func(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
			logger.Debug("mqtt:unexpected-publish", slog.String("topic", string(varPub.TopicName)))
			return nil
		},
	})
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(clientID))
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	err := client.StartConnect(conn, &varconn)
	if err != nil {
		return nil, err
	}
	for !client.IsConnected() {
		err = client.HandleNext()
		if err != nil {
			return nil, fmt.Errorf("mqtt connect: %w", err)
		}
	}
	conn.SetDeadline(time.Time{})
	logger.Info("mqtt:connected")
	return &publisher{client: client}, nil
}

func (p *publisher) publish(msg message) error {
	p.vars.TopicName = []byte(msg.topic)
	return p.client.PublishPayload(pubFlags, p.vars, msg.payload)
}
