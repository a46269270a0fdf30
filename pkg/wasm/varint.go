package wasm

import "encoding/binary"

// Maximum encoded lengths for LEB128 values.
const (
	MaxVarintLen32 = 5
	MaxVarintLen64 = 10
)

// AppendUvarint appends the unsigned LEB128 encoding of v.
// Go's uvarint layout is exactly unsigned LEB128.
func AppendUvarint(dst []byte, v uint64) []byte {
	return binary.AppendUvarint(dst, v)
}

// AppendVarint appends the signed LEB128 encoding of v.
func AppendVarint(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		dst = append(dst, b)
		if done {
			return dst
		}
	}
}

// Uvarint decodes an unsigned LEB128 value starting at data[offset].
// Returns the value and the number of bytes consumed.
func Uvarint(data []byte, offset int) (uint64, int, error) {
	if offset < 0 || offset >= len(data) {
		return 0, 0, ErrTruncated
	}
	v, n := binary.Uvarint(data[offset:])
	switch {
	case n == 0:
		return 0, 0, ErrTruncated
	case n < 0:
		return 0, -n, ErrVarintOverflow
	}
	return v, n, nil
}

// Varint decodes a signed LEB128 value starting at data[offset].
// Returns the value and the number of bytes consumed.
func Varint(data []byte, offset int) (int64, int, error) {
	var result int64
	var shift uint
	for i := 0; ; i++ {
		if i == MaxVarintLen64 {
			return 0, i, ErrVarintOverflow
		}
		if offset+i >= len(data) || offset < 0 {
			return 0, 0, ErrTruncated
		}
		b := data[offset+i]
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			// Sign extend
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, i + 1, nil
		}
	}
}

// Uvarint32 decodes an unsigned LEB128 value that must fit in 32 bits.
func Uvarint32(data []byte, offset int) (uint32, int, error) {
	v, n, err := Uvarint(data, offset)
	if err != nil {
		return 0, n, err
	}
	if n > MaxVarintLen32 || v > 0xFFFFFFFF {
		return 0, n, ErrVarintOverflow
	}
	return uint32(v), n, nil
}

// Varint32 decodes a signed LEB128 value that must fit in 32 bits.
func Varint32(data []byte, offset int) (int32, int, error) {
	v, n, err := Varint(data, offset)
	if err != nil {
		return 0, n, err
	}
	if n > MaxVarintLen32 || v < -1<<31 || v > 1<<31-1 {
		return 0, n, ErrVarintOverflow
	}
	return int32(v), n, nil
}
