// Package serialize implements the EBM external forms: the
// length-prefixed binary module format with two-bit-prefix varints, and
// the parallel JSON encoding used for diagnostics and round-tripping.
package serialize

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/errors"
)

// maxVarint is the largest encodable value: varints carry a two-bit
// length prefix and at most 62 value bits.
const maxVarint = 1<<62 - 1

// appendVarint appends v in the two-bit-prefix encoding: prefix 0 is a
// 6-bit value in one byte, 1 a 14-bit value in two, 2 a 30-bit value in
// four, 3 a 62-bit value in eight. The prefix occupies the two high bits
// of the first byte; the value is big-endian across the remainder.
func appendVarint(dst []byte, v uint64) ([]byte, error) {
	switch {
	case v < 1<<6:
		return append(dst, byte(v)), nil
	case v < 1<<14:
		return append(dst, 0x40|byte(v>>8), byte(v)), nil
	case v < 1<<30:
		return append(dst, 0x80|byte(v>>24), byte(v>>16), byte(v>>8), byte(v)), nil
	case v <= maxVarint:
		return append(dst,
			0xC0|byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v)), nil
	default:
		return dst, errors.NewStandardError(errors.CategoryInvariant, "EBM6001",
			fmt.Sprintf("varint: value %d exceeds 62 bits", v), nil)
	}
}

// readVarint decodes one varint from buf starting at off, returning the
// value and the offset past it.
func readVarint(buf []byte, off int) (uint64, int, error) {
	if off >= len(buf) {
		return 0, off, errors.NewStandardError(errors.CategoryMalformedInput, "EBM6002", "varint: truncated input", nil)
	}

	first := buf[off]
	n := 1 << (first >> 6)

	if off+n > len(buf) {
		return 0, off, errors.NewStandardError(errors.CategoryMalformedInput, "EBM6003", "varint: truncated payload", nil)
	}

	v := uint64(first & 0x3F)
	for i := 1; i < n; i++ {
		v = v<<8 | uint64(buf[off+i])
	}

	return v, off + n, nil
}
