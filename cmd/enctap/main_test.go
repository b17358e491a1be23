//go:build linux

package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/soypat/enc28j60"
)

type txLog struct{ frames [][]byte }

func (l *txLog) Transmit(frame []byte) error {
	if len(frame) > enc28j60.MaxTxFrameSize {
		return enc28j60.ErrTxFrameSize
	}
	l.frames = append(l.frames, append([]byte(nil), frame...))
	return nil
}

// packetReader returns one packet per Read as a TAP file does.
type packetReader struct{ pkts [][]byte }

func (r *packetReader) Read(b []byte) (int, error) {
	if len(r.pkts) == 0 {
		return 0, io.EOF
	}
	n := copy(b, r.pkts[0])
	r.pkts = r.pkts[1:]
	return n, nil
}

func TestBridge(t *testing.T) {
	var tapOut bytes.Buffer
	br := &bridge{tap: &tapOut, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	in := &packetReader{pkts: [][]byte{
		bytes.Repeat([]byte{1}, 60),
		bytes.Repeat([]byte{2}, 1514),
	}}
	var tx txLog
	err := br.forward(&tx, in)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("got %v", err)
	}
	if len(tx.frames) != 2 || len(tx.frames[1]) != 1514 {
		t.Fatalf("forwarded %d frames", len(tx.frames))
	}

	err = br.StackInput([]byte{0xAA, 0xBB})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(tapOut.Bytes(), []byte{0xAA, 0xBB}) {
		t.Errorf("tap got %#x", tapOut.Bytes())
	}
	if err := br.OnStateChanged(enc28j60.StateLink, uint32(enc28j60.LinkUp)); err != nil {
		t.Error(err)
	}
}
