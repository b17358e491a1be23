package main

import (
	"strconv"
	"sync/atomic"

	"github.com/soypat/enc28j60"
)

type message struct {
	topic   string
	payload []byte
}

// monitor is the device Mediator. State changes are queued for publishing
// and received frames are only counted.
type monitor struct {
	prefix string
	events chan message
	frames atomic.Uint32
	// lost counts state changes dropped because the queue was full.
	lost atomic.Uint32
}

func newMonitor(prefix string) *monitor {
	return &monitor{prefix: prefix, events: make(chan message, 16)}
}

func (m *monitor) OnStateChanged(kind enc28j60.StateKind, value uint32) error {
	msg := m.stateMessage(kind, value)
	select {
	case m.events <- msg:
	default:
		m.lost.Add(1)
	}
	return nil
}

func (m *monitor) StackInput(frame []byte) error {
	m.frames.Add(1)
	return nil
}

func (m *monitor) stateMessage(kind enc28j60.StateKind, value uint32) message {
	var v string
	switch kind {
	case enc28j60.StateLink:
		v = enc28j60.Link(value).String()
	case enc28j60.StateSpeed:
		v = enc28j60.Speed(value).String()
	case enc28j60.StateDuplex:
		v = enc28j60.Duplex(value).String()
	default:
		v = strconv.FormatUint(uint64(value), 10)
	}
	return message{topic: m.prefix + "/" + kind.String(), payload: []byte(v)}
}

func (m *monitor) statsMessage(st enc28j60.Stats) message {
	b := make([]byte, 0, 128)
	appendKV := func(k string, v uint32) {
		if len(b) > 0 {
			b = append(b, ' ')
		}
		b = append(b, k...)
		b = append(b, '=')
		b = strconv.AppendUint(b, uint64(v), 10)
	}
	appendKV("rx", st.RxPackets)
	appendKV("rxdrop", st.RxDropped)
	appendKV("rxerr", st.RxErrors)
	appendKV("tx", st.TxPackets)
	appendKV("txerr", st.TxErrors)
	appendKV("txretry", st.TxRetries)
	appendKV("link", st.LinkChanges)
	appendKV("frames", m.frames.Load())
	appendKV("lost", m.lost.Load())
	return message{topic: m.prefix + "/stats", payload: b}
}
