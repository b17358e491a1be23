package enc28j60

import "golang.org/x/exp/constraints"

func lo8(v uint16) uint8 { return uint8(v) }

func hi8(v uint16) uint8 { return uint8(v >> 8) }

func u16(lo, hi uint8) uint16 { return uint16(lo) | uint16(hi)<<8 }

func b2u[T constraints.Unsigned](b bool) T {
	if b {
		return 1
	}
	return 0
}

// ceildiv returns a/b rounded up. b must be positive.
func ceildiv[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}
