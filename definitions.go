package enc28j60

import (
	"errors"
	"strconv"
)

// Packet buffer partition. The top quarter of the 8KiB dual port memory is
// reserved for transmission, the rest is the receive ring.
const (
	BufSize = 0x2000
	RxStart = 0x0000
	RxEnd   = 0x17FF
	TxStart = 0x1800
	TxEnd   = 0x1FFF

	rxRingSize = RxEnd - RxStart + 1

	// RSVSize is the size of the header preceding each received frame.
	RSVSize = 6
	// TSVSize is the size of the status vector written after a transmitted frame.
	TSVSize = 7
	// txControlSize is the per-packet control byte written before the frame.
	txControlSize = 1

	// MaxTxFrameSize is the largest frame that fits in the transmit area
	// together with its control byte and status vector.
	MaxTxFrameSize = TxEnd - TxStart - TSVSize + 1 - txControlSize
	// MaxFrameSize is the programmed maximum frame length (MAMXFL) including CRC.
	MaxFrameSize = 1518
	// MTU is the largest payload carried by a single Ethernet frame.
	MTU = 1500
)

// Inter-packet gap defaults for half and full duplex operation.
const (
	defaultMABBIPGHalf = 0x12
	defaultMABBIPGFull = 0x15
	defaultMAIPGL      = 0x12
	defaultMAIPGH      = 0x0C
)

// Revision is the silicon revision read from EREVID.
type Revision uint8

const (
	RevB1 Revision = 0x02
	RevB4 Revision = 0x04
	RevB5 Revision = 0x05
	RevB7 Revision = 0x06
)

func (r Revision) String() string {
	switch r {
	case RevB1:
		return "B1"
	case 0x03:
		return "B2/B3"
	case RevB4:
		return "B4"
	case RevB5:
		return "B5"
	case RevB7:
		return "B7"
	}
	return "Revision(" + strconv.Itoa(int(r)) + ")"
}

// IsSupported reports whether the revision lies within B1..B7.
func (r Revision) IsSupported() bool { return r >= RevB1 && r <= RevB7 }

// hasLateCollisionErratum reports whether transmissions that suffer a late
// collision must be retried by software.
func (r Revision) hasLateCollisionErratum() bool { return r == RevB5 || r == RevB7 }

// Speed of the link. The ENC28J60 PHY is 10BASE-T only.
type Speed uint8

const (
	Speed10M Speed = iota
	Speed100M
)

func (s Speed) String() string {
	switch s {
	case Speed10M:
		return "10M"
	case Speed100M:
		return "100M"
	}
	return "Speed(" + strconv.Itoa(int(s)) + ")"
}

// Duplex mode of the link.
type Duplex uint8

const (
	DuplexHalf Duplex = iota
	DuplexFull
)

func (d Duplex) String() string {
	if d == DuplexFull {
		return "full"
	}
	return "half"
}

// Link state.
type Link uint8

const (
	LinkDown Link = iota
	LinkUp
)

func (l Link) String() string {
	if l == LinkUp {
		return "up"
	}
	return "down"
}

// StateKind identifies the state reported through Mediator.OnStateChanged.
type StateKind uint8

const (
	// StateLLInit is reported with value 0 before low level initialization.
	StateLLInit StateKind = iota
	// StateDeinit is reported with value 0 after the device is torn down.
	StateDeinit
	// StateLink is reported with a Link value.
	StateLink
	// StateSpeed is reported with a Speed value.
	StateSpeed
	// StateDuplex is reported with a Duplex value.
	StateDuplex
	// StatePause is reported with 1 when flow control is enabled.
	StatePause
)

func (k StateKind) String() string {
	switch k {
	case StateLLInit:
		return "llinit"
	case StateDeinit:
		return "deinit"
	case StateLink:
		return "link"
	case StateSpeed:
		return "speed"
	case StateDuplex:
		return "duplex"
	case StatePause:
		return "pause"
	}
	return "StateKind(" + strconv.Itoa(int(k)) + ")"
}

var (
	// ErrBusTimeout is returned when the SPI transaction lock is not acquired in time.
	ErrBusTimeout = errors.New("enc28j60: spi bus lock timeout")
	// ErrRegTimeout is returned when the register transaction lock is not acquired in time.
	ErrRegTimeout = errors.New("enc28j60: register lock timeout")
	// ErrWrongChipID is returned by Init when EREVID is outside the supported range.
	ErrWrongChipID = errors.New("enc28j60: wrong chip id")
	// ErrPHYTimeout is returned when a PHY operation does not complete within its retry budget.
	ErrPHYTimeout = errors.New("enc28j60: phy timeout")
	// ErrPHYBusy is returned when a MII management operation is already in progress.
	ErrPHYBusy = errors.New("enc28j60: phy busy")
	// ErrPHYID is returned when the PHY identifier registers hold unexpected values.
	ErrPHYID = errors.New("enc28j60: unexpected phy id")
	// ErrPowerCtl is returned when a PHY power mode change does not read back.
	ErrPowerCtl = errors.New("enc28j60: phy power control readback mismatch")
	// ErrTxBusy is returned when the chip is still transmitting a previous frame.
	ErrTxBusy = errors.New("enc28j60: transmit in progress")
	// ErrTxFrameSize is returned for empty frames or frames that do not fit the transmit area.
	ErrTxFrameSize = errors.New("enc28j60: bad transmit frame size")
	// ErrRxFrameTooLarge is returned when a received frame does not fit in the caller's buffer.
	ErrRxFrameTooLarge = errors.New("enc28j60: received frame exceeds buffer")
	// ErrNotInitialized is returned by operations that require a successful Init.
	ErrNotInitialized = errors.New("enc28j60: device not initialized")
	// ErrUnsupportedSpeed is returned when requesting a speed other than 10M.
	ErrUnsupportedSpeed = errors.New("enc28j60: unsupported speed")

	errNilSPI      = errors.New("enc28j60: nil spi bus")
	errRetryBudget = errors.New("retry budget exhausted")
)
