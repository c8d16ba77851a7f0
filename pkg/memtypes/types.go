// Package memtypes defines the scalar data types used when decoding target
// process memory. The type codes are part of the wire contract with the scan
// engine and must not change between versions.
package memtypes

import (
	"encoding/binary"
	"fmt"
)

// DataType identifies one of the eight fixed-width scalar kinds.
type DataType uint8

const (
	U8 DataType = iota
	U16
	U32
	U64
	I8
	I16
	I32
	I64
)

// All lists every data type in wire-code order.
var All = []DataType{U8, U16, U32, U64, I8, I16, I32, I64}

var codes = map[DataType]string{
	U8:  "u8",
	U16: "u16",
	U32: "u32",
	U64: "u64",
	I8:  "i8",
	I16: "i16",
	I32: "i32",
	I64: "i64",
}

var byCode = func() map[string]DataType {
	m := make(map[string]DataType, len(codes))
	for dt, code := range codes {
		m[code] = dt
	}
	return m
}()

// FromCode returns the data type for a wire code such as "u32".
func FromCode(code string) (DataType, bool) {
	dt, ok := byCode[code]
	return dt, ok
}

// Code returns the stable wire code of the data type.
func (dt DataType) Code() string {
	if code, ok := codes[dt]; ok {
		return code
	}
	return fmt.Sprintf("invalid(%d)", uint8(dt))
}

func (dt DataType) String() string {
	return dt.Code()
}

// Size returns the width of the data type in bytes.
func (dt DataType) Size() int {
	switch dt {
	case U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32:
		return 4
	case U64, I64:
		return 8
	}
	return 0
}

// Signed returns true for the sign-extending kinds.
func (dt DataType) Signed() bool {
	switch dt {
	case I8, I16, I32, I64:
		return true
	}
	return false
}

// Valid returns true if dt is one of the eight scalar kinds.
func (dt DataType) Valid() bool {
	_, ok := codes[dt]
	return ok
}

// DecodeInt decodes exactly Size bytes from buf, little-endian, into a
// 64-bit value. Unsigned kinds zero-extend, signed kinds sign-extend.
// The bit pattern of a u64 larger than MaxInt64 wraps into the negative
// range; comparisons on the result are always signed.
func (dt DataType) DecodeInt(buf []byte) (int64, error) {
	if len(buf) < dt.Size() {
		return 0, fmt.Errorf("decoding %s: need %d bytes, have %d", dt.Code(), dt.Size(), len(buf))
	}
	switch dt {
	case U8:
		return int64(buf[0]), nil
	case U16:
		return int64(binary.LittleEndian.Uint16(buf)), nil
	case U32:
		return int64(binary.LittleEndian.Uint32(buf)), nil
	case U64:
		return int64(binary.LittleEndian.Uint64(buf)), nil
	case I8:
		return int64(int8(buf[0])), nil
	case I16:
		return int64(int16(binary.LittleEndian.Uint16(buf))), nil
	case I32:
		return int64(int32(binary.LittleEndian.Uint32(buf))), nil
	case I64:
		return int64(binary.LittleEndian.Uint64(buf)), nil
	}
	return 0, fmt.Errorf("decoding: invalid data type %d", uint8(dt))
}

// Format renders a decoded value as "<decimal> (0x<hex>)". The hexadecimal
// part shows the unsigned bit pattern truncated to the type's width.
func (dt DataType) Format(v int64) string {
	mask := uint64(1)<<(uint(dt.Size())*8) - 1
	if dt.Size() == 8 {
		mask = ^uint64(0)
	}
	return fmt.Sprintf("%d (0x%x)", v, uint64(v)&mask)
}
