package encwire

import (
	"encoding/binary"
	"errors"
)

const (
	// SizeRxHeader is the size of the Receive Status Vector plus next packet
	// pointer the chip writes in front of every received frame.
	SizeRxHeader = 6
	// SizeTSV is the size of the Transmit Status Vector written after a
	// transmitted frame.
	SizeTSV = 7
	// SizeCRC is the size of the frame check sequence counted by the RSV
	// byte count.
	SizeCRC = 4
)

var errShortBuffer = errors.New("encwire: short buffer")

// RxHeader is the 6 byte header preceding each frame in the receive buffer.
type RxHeader struct {
	// NextPacket is the buffer address where the next frame header starts.
	NextPacket uint16
	// ByteCount is the length of the received frame including CRC.
	ByteCount uint16
	Status    RxStatus
}

// DecodeRxHeader decodes the first 6 bytes of b. It panics if b is shorter.
func DecodeRxHeader(b []byte) (hdr RxHeader) {
	_ = b[5]
	hdr.NextPacket = binary.LittleEndian.Uint16(b[0:2])
	hdr.ByteCount = binary.LittleEndian.Uint16(b[2:4])
	hdr.Status = RxStatus(binary.LittleEndian.Uint16(b[4:6]))
	return hdr
}

// Put encodes the header into the first 6 bytes of b.
func (hdr RxHeader) Put(b []byte) error {
	if len(b) < SizeRxHeader {
		return errShortBuffer
	}
	binary.LittleEndian.PutUint16(b[0:2], hdr.NextPacket)
	binary.LittleEndian.PutUint16(b[2:4], hdr.ByteCount)
	binary.LittleEndian.PutUint16(b[4:6], uint16(hdr.Status))
	return nil
}

// PayloadLen returns the frame length without the trailing CRC.
func (hdr RxHeader) PayloadLen() int {
	if hdr.ByteCount < SizeCRC {
		return 0
	}
	return int(hdr.ByteCount) - SizeCRC
}

// RxStatus holds RSV bits 31:16. Bit n of RxStatus is RSV bit n+16.
type RxStatus uint16

const (
	RxLongDropEvent    RxStatus = 1 << 0
	RxCarrierEvent     RxStatus = 1 << 2
	RxCRCError         RxStatus = 1 << 4
	RxLengthCheckError RxStatus = 1 << 5
	RxLengthOutOfRange RxStatus = 1 << 6
	RxReceivedOK       RxStatus = 1 << 7
	RxMulticast        RxStatus = 1 << 8
	RxBroadcast        RxStatus = 1 << 9
	RxDribbleNibble    RxStatus = 1 << 10
	RxControlFrame     RxStatus = 1 << 11
	RxPauseFrame       RxStatus = 1 << 12
	RxUnknownOpcode    RxStatus = 1 << 13
	RxVLAN             RxStatus = 1 << 14
)

func (s RxStatus) LongDropEvent() bool    { return s&RxLongDropEvent != 0 }
func (s RxStatus) CarrierEvent() bool     { return s&RxCarrierEvent != 0 }
func (s RxStatus) CRCError() bool         { return s&RxCRCError != 0 }
func (s RxStatus) LengthCheckError() bool { return s&RxLengthCheckError != 0 }
func (s RxStatus) LengthOutOfRange() bool { return s&RxLengthOutOfRange != 0 }
func (s RxStatus) ReceivedOK() bool       { return s&RxReceivedOK != 0 }
func (s RxStatus) Multicast() bool        { return s&RxMulticast != 0 }
func (s RxStatus) Broadcast() bool        { return s&RxBroadcast != 0 }
func (s RxStatus) DribbleNibble() bool    { return s&RxDribbleNibble != 0 }
func (s RxStatus) ControlFrame() bool     { return s&RxControlFrame != 0 }
func (s RxStatus) PauseFrame() bool       { return s&RxPauseFrame != 0 }
func (s RxStatus) UnknownOpcode() bool    { return s&RxUnknownOpcode != 0 }
func (s RxStatus) VLAN() bool             { return s&RxVLAN != 0 }

// TSV is the 56 bit Transmit Status Vector. The low 7 bytes of the value hold
// the vector as it is laid out in buffer memory (little endian).
type TSV uint64

// DecodeTSV decodes the first 7 bytes of b. It panics if b is shorter.
func DecodeTSV(b []byte) TSV {
	_ = b[6]
	var v uint64
	for i := SizeTSV - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return TSV(v)
}

// Put encodes the vector into the first 7 bytes of b.
func (t TSV) Put(b []byte) error {
	if len(b) < SizeTSV {
		return errShortBuffer
	}
	for i := 0; i < SizeTSV; i++ {
		b[i] = byte(t >> (8 * i))
	}
	return nil
}

// TSV flag bits.
const (
	TSVCRCError            TSV = 1 << 20
	TSVLengthCheckError    TSV = 1 << 21
	TSVLengthOutOfRange    TSV = 1 << 22
	TSVDone                TSV = 1 << 23
	TSVMulticast           TSV = 1 << 24
	TSVBroadcast           TSV = 1 << 25
	TSVPacketDefer         TSV = 1 << 26
	TSVExcessiveDefer      TSV = 1 << 27
	TSVExcessiveCollision  TSV = 1 << 28
	TSVLateCollision       TSV = 1 << 29
	TSVGiant               TSV = 1 << 30
	TSVUnderrun            TSV = 1 << 31
	TSVControlFrame        TSV = 1 << 48
	TSVPauseFrame          TSV = 1 << 49
	TSVBackpressureApplied TSV = 1 << 50
	TSVVLAN                TSV = 1 << 51

	tsvCollisionShift = 16
	tsvCollisionMask  = 0xF
	tsvWireShift      = 32
)

// ByteCount is the number of bytes in the frame, padding and CRC included.
func (t TSV) ByteCount() uint16 { return uint16(t) }

// CollisionCount is the number of collisions seen while transmitting.
func (t TSV) CollisionCount() uint8 {
	return uint8(t>>tsvCollisionShift) & tsvCollisionMask
}

// TotalBytesOnWire counts all bytes put on the wire including collided attempts.
func (t TSV) TotalBytesOnWire() uint16 { return uint16(t >> tsvWireShift) }

func (t TSV) CRCError() bool            { return t&TSVCRCError != 0 }
func (t TSV) LengthCheckError() bool    { return t&TSVLengthCheckError != 0 }
func (t TSV) LengthOutOfRange() bool    { return t&TSVLengthOutOfRange != 0 }
func (t TSV) Done() bool                { return t&TSVDone != 0 }
func (t TSV) Multicast() bool           { return t&TSVMulticast != 0 }
func (t TSV) Broadcast() bool           { return t&TSVBroadcast != 0 }
func (t TSV) PacketDefer() bool         { return t&TSVPacketDefer != 0 }
func (t TSV) ExcessiveDefer() bool      { return t&TSVExcessiveDefer != 0 }
func (t TSV) ExcessiveCollision() bool  { return t&TSVExcessiveCollision != 0 }
func (t TSV) LateCollision() bool       { return t&TSVLateCollision != 0 }
func (t TSV) Giant() bool               { return t&TSVGiant != 0 }
func (t TSV) Underrun() bool            { return t&TSVUnderrun != 0 }
func (t TSV) ControlFrame() bool        { return t&TSVControlFrame != 0 }
func (t TSV) PauseFrame() bool          { return t&TSVPauseFrame != 0 }
func (t TSV) BackpressureApplied() bool { return t&TSVBackpressureApplied != 0 }
func (t TSV) VLAN() bool                { return t&TSVVLAN != 0 }

// MakeTSV builds a vector with the given byte count, collision count and
// flags. The wire byte count is set to byteCount.
func MakeTSV(byteCount uint16, collisions uint8, flags TSV) TSV {
	return TSV(byteCount) | TSV(collisions&tsvCollisionMask)<<tsvCollisionShift |
		TSV(byteCount)<<tsvWireShift | flags
}
