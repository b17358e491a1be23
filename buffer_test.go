package enc28j60

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestNextRxPtrAlignedOdd(t *testing.T) {
	for _, test := range []struct {
		candidate, start, end uint16
		want                  uint16
	}{
		{0x0000, RxStart, RxEnd, RxEnd},
		{0x0002, RxStart, RxEnd, 0x0001},
		{0x0100, RxStart, RxEnd, 0x00FF},
		{RxEnd + 1, RxStart, RxEnd, RxEnd},
		{0x1900, RxStart, RxEnd, RxEnd},
		{0x0200, 0x0200, 0x05FF, 0x05FF},
		{0x0600, 0x0200, 0x05FF, 0x05FF},
		{0x0300, 0x0200, 0x05FF, 0x02FF},
	} {
		got := nextRxPtrAlignedOdd(test.candidate, test.start, test.end)
		if got != test.want {
			t.Errorf("nextRxPtrAlignedOdd(%#x, %#x, %#x)=%#x, want %#x",
				test.candidate, test.start, test.end, got, test.want)
		}
	}
}

func FuzzNextRxPtrAlignedOdd(f *testing.F) {
	f.Add(uint16(0), uint16(RxStart), uint16(RxEnd))
	f.Add(uint16(0x1000), uint16(0x200), uint16(0x5FF))
	f.Fuzz(func(t *testing.T, candidate, start, end uint16) {
		if start > end {
			start, end = end, start
		}
		got := nextRxPtrAlignedOdd(candidate, start, end)
		if got < start || got > end {
			t.Fatalf("result %#x outside [%#x, %#x]", got, start, end)
		}
		if candidate != 0 && candidate-1 >= start && candidate-1 <= end && got != candidate-1 {
			t.Fatalf("got %#x, want candidate-1=%#x", got, candidate-1)
		}
		// Even frame pointers in a ring with even start and odd end yield odd addresses.
		if start&1 == 0 && end&1 == 1 && candidate&1 == 0 && got&1 == 0 {
			t.Fatalf("even result %#x for even candidate %#x", got, candidate)
		}
	})
}

func TestRxWrap(t *testing.T) {
	for _, test := range []struct {
		start, off uint16
		want       uint16
	}{
		{0x0000, RSVSize, RSVSize},
		{0x17F0, RSVSize, 0x17F6},
		{0x17FA, RSVSize, 0x0000},
		{0x17FE, RSVSize, 0x0004},
		{RxEnd, 1, RxStart},
	} {
		got := rxWrap(test.start, test.off)
		if got != test.want {
			t.Errorf("rxWrap(%#x, %d)=%#x, want %#x", test.start, test.off, got, test.want)
		}
	}
}

func TestPacketMemory(t *testing.T) {
	d, sim := newTestDevice(t, 0x06)
	rng := rand.New(rand.NewSource(1))
	// Longer than a single SPI chunk.
	data := make([]byte, 3*spiChunk+17)
	rng.Read(data)
	if err := d.lockRegs(); err != nil {
		t.Fatal(err)
	}
	defer d.unlockRegs()
	err := d.writePacket(TxStart, data)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(data))
	sim.Mem(TxStart, got)
	if !bytes.Equal(got, data) {
		t.Fatal("buffer memory does not hold written data")
	}
	clear(got)
	err = d.readPacket(TxStart, got)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read back mismatch")
	}
}
