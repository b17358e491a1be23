package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/soypat/enc28j60/encwire"
)

func TestDecodeBankTracking(t *testing.T) {
	var dec decoder
	for _, test := range []struct {
		mosi, miso []byte
		wantName   string
		wantValue  uint8
	}{
		// Bank is unknown until ECON1 is written or reset.
		{mosi: []byte{0x00, 0}, miso: []byte{0xFF, 0x12}, wantName: "?:0x00", wantValue: 0x12},
		{mosi: []byte{0x1F, 0}, miso: []byte{0xFF, 0x04}, wantName: "ECON1", wantValue: 0x04},
		{mosi: []byte{0xBF, 0x03}, wantName: "ECON1", wantValue: 0x03}, // BFC BSEL
		{mosi: []byte{0x00, 0}, miso: []byte{0xFF, 0xFA}, wantName: "ERDPTL", wantValue: 0xFA},
		{mosi: []byte{0x9F, 0x02}, wantName: "ECON1", wantValue: 0x02}, // BFS bank 2
		{mosi: []byte{0x00, 0, 0}, miso: []byte{0xFF, 0xFF, 0x0D}, wantName: "MACON1", wantValue: 0x0D},
		{mosi: []byte{0x9F, 0x01}, wantName: "ECON1", wantValue: 0x01}, // bank 3
		{mosi: []byte{0x12, 0}, miso: []byte{0xFF, 0x06}, wantName: "EREVID", wantValue: 0x06},
		{mosi: []byte{0x5F, 0x00}, wantName: "ECON1", wantValue: 0x00}, // WCR bank 0
		{mosi: []byte{0x19, 0}, miso: []byte{0xFF, 0x00}, wantName: "0:0x19", wantValue: 0x00}, // reserved
		{mosi: []byte{0x9F, 0x01}, wantName: "ECON1", wantValue: 0x01},
		{mosi: []byte{0x19, 0}, miso: []byte{0xFF, 0x01}, wantName: "EPKTCNT", wantValue: 0x01},
	} {
		tx, ok := dec.decode(test.mosi, test.miso)
		if !ok {
			t.Fatalf("%#x not decoded", test.mosi)
		}
		if tx.Name != test.wantName || tx.Value != test.wantValue {
			t.Errorf("%#x: got %s=%#x, want %s=%#x", test.mosi, tx.Name, tx.Value, test.wantName, test.wantValue)
		}
	}
}

func TestDecodeMemory(t *testing.T) {
	dec := decoder{memHead: 4}
	mosi := []byte{byte(encwire.OpWBM), 0x00, 1, 2, 3, 4, 5}
	tx, ok := dec.decode(mosi, nil)
	if !ok || tx.Op != encwire.OpWBM {
		t.Fatalf("got %v %v", tx.Op, ok)
	}
	if tx.Len != 6 || !bytes.Equal(tx.Mem, []byte{0, 1, 2, 3}) {
		t.Errorf("len=%d mem=%#x", tx.Len, tx.Mem)
	}
	tx, ok = dec.decode([]byte{byte(encwire.OpRBM), 0, 0}, []byte{0xFF, 0xAB, 0xCD})
	if !ok || !bytes.Equal(tx.Mem, []byte{0xAB, 0xCD}) {
		t.Errorf("read mem=%#x", tx.Mem)
	}
	tx.Num = 3
	if s := tx.String(); !strings.Contains(s, "RBM") || !strings.Contains(s, "len=2") {
		t.Errorf("string %q", s)
	}
}

func TestDecodeReset(t *testing.T) {
	var dec decoder
	dec.decode([]byte{0x5F, 0x02}, nil)
	if dec.bank != 2 || !dec.bankKnown {
		t.Fatalf("bank=%d known=%v", dec.bank, dec.bankKnown)
	}
	if _, ok := dec.decode([]byte{byte(encwire.OpSRC)}, nil); !ok {
		t.Fatal("reset not decoded")
	}
	if dec.bank != 0 {
		t.Fatalf("bank=%d after reset", dec.bank)
	}
	if _, ok := dec.decode(nil, nil); ok {
		t.Error("empty transaction decoded")
	}
	if _, ok := dec.decode([]byte{0x60}, nil); ok {
		t.Error("invalid opcode decoded")
	}
}

func TestEncTxString(t *testing.T) {
	var dec decoder
	for _, test := range []struct {
		mosi, miso []byte
		want       string
	}{
		{mosi: []byte{0x00, 0}, miso: []byte{0xFF, 0x05}, want: "?:0x00   -> 0x05"},
		{mosi: []byte{0x5F, 0x02}, want: "ECON1    <- 0x02"},
		{mosi: []byte{0x1A, 0}, miso: []byte{0xFF, 0xAB}, want: "2:0x1a   -> 0xab"},
	} {
		tx, ok := dec.decode(test.mosi, test.miso)
		if !ok {
			t.Fatalf("%#x not decoded", test.mosi)
		}
		if s := tx.String(); !strings.HasSuffix(s, test.want) {
			t.Errorf("got %q, want suffix %q", s, test.want)
		}
	}
}
