package main

import (
	"testing"

	"github.com/soypat/enc28j60"
)

func TestStateMessage(t *testing.T) {
	m := newMonitor("lab")
	for _, test := range []struct {
		kind    enc28j60.StateKind
		value   uint32
		topic   string
		payload string
	}{
		{enc28j60.StateLink, uint32(enc28j60.LinkUp), "lab/link", "up"},
		{enc28j60.StateLink, uint32(enc28j60.LinkDown), "lab/link", "down"},
		{enc28j60.StateSpeed, uint32(enc28j60.Speed10M), "lab/speed", "10M"},
		{enc28j60.StateDuplex, uint32(enc28j60.DuplexFull), "lab/duplex", "full"},
		{enc28j60.StatePause, 1, "lab/pause", "1"},
	} {
		msg := m.stateMessage(test.kind, test.value)
		if msg.topic != test.topic || string(msg.payload) != test.payload {
			t.Errorf("got %s=%q, want %s=%q", msg.topic, msg.payload, test.topic, test.payload)
		}
	}
}

func TestMonitorQueue(t *testing.T) {
	m := newMonitor("x")
	for i := 0; i < cap(m.events)+3; i++ {
		m.OnStateChanged(enc28j60.StateLink, uint32(enc28j60.LinkUp))
	}
	if len(m.events) != cap(m.events) || m.lost.Load() != 3 {
		t.Fatalf("queued %d lost %d", len(m.events), m.lost.Load())
	}
	m.StackInput(make([]byte, 60))
	msg := m.statsMessage(enc28j60.Stats{RxPackets: 4, TxPackets: 2})
	want := "rx=4 rxdrop=0 rxerr=0 tx=2 txerr=0 txretry=0 link=0 frames=1 lost=3"
	if msg.topic != "x/stats" || string(msg.payload) != want {
		t.Fatalf("got %s %q", msg.topic, msg.payload)
	}
}
