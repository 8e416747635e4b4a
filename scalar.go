// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Scalar is the set of element types a Buffer can hold.
//
// The 4-byte types (float32, int32, uint32) are supported everywhere.
// The 8-byte types require [FeatureFloat64] or [FeatureInt64], which the
// host always provides; hardware devices report their own feature set.
type Scalar interface {
	~float32 | ~int32 | ~uint32 | ~float64 | ~int64 | ~uint64
}

// ScalarType identifies the element type of a buffer or scalar argument.
type ScalarType uint8

const (
	// ScalarInvalid is the zero value; it never appears in a valid schema.
	ScalarInvalid ScalarType = iota
	ScalarF32
	ScalarI32
	ScalarU32
	ScalarF64
	ScalarI64
	ScalarU64
)

// String returns the WGSL-style name of the scalar type.
func (t ScalarType) String() string {
	switch t {
	case ScalarF32:
		return "f32"
	case ScalarI32:
		return "i32"
	case ScalarU32:
		return "u32"
	case ScalarF64:
		return "f64"
	case ScalarI64:
		return "i64"
	case ScalarU64:
		return "u64"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(t))
	}
}

// Size returns the element size in bytes.
func (t ScalarType) Size() int {
	switch t {
	case ScalarF32, ScalarI32, ScalarU32:
		return 4
	case ScalarF64, ScalarI64, ScalarU64:
		return 8
	default:
		return 0
	}
}

// Features returns the device features the scalar type requires.
func (t ScalarType) Features() Features {
	switch t {
	case ScalarF64:
		return FeatureFloat64
	case ScalarI64, ScalarU64:
		return FeatureInt64
	default:
		return 0
	}
}

// scalarTypeOf maps a Go element type to its ScalarType tag.
func scalarTypeOf[T Scalar]() ScalarType {
	var v T
	switch any(v).(type) {
	case float32:
		return ScalarF32
	case int32:
		return ScalarI32
	case uint32:
		return ScalarU32
	case float64:
		return ScalarF64
	case int64:
		return ScalarI64
	case uint64:
		return ScalarU64
	default:
		// Named types with a Scalar underlying type land here; tag by size
		// is not enough, so reject them at the API boundary instead.
		return ScalarInvalid
	}
}

// ScalarElem is a tagged scalar value, used for push-constant arguments
// and host-side kernel access.
type ScalarElem struct {
	typ  ScalarType
	bits uint64
}

// Push wraps a scalar value as a push-constant dispatch argument value.
// See [PushArg] for the dispatch-argument constructor.
func scalarElemOf[T Scalar](v T) ScalarElem {
	switch x := any(v).(type) {
	case float32:
		return ScalarElem{ScalarF32, uint64(math.Float32bits(x))}
	case int32:
		return ScalarElem{ScalarI32, uint64(uint32(x))}
	case uint32:
		return ScalarElem{ScalarU32, uint64(x)}
	case float64:
		return ScalarElem{ScalarF64, math.Float64bits(x)}
	case int64:
		return ScalarElem{ScalarI64, uint64(x)}
	case uint64:
		return ScalarElem{ScalarU64, x}
	default:
		return ScalarElem{}
	}
}

// Type returns the scalar type tag.
func (e ScalarElem) Type() ScalarType { return e.typ }

// F32 returns the value as float32. The tag must be ScalarF32.
func (e ScalarElem) F32() float32 { return math.Float32frombits(uint32(e.bits)) }

// I32 returns the value as int32. The tag must be ScalarI32.
func (e ScalarElem) I32() int32 { return int32(uint32(e.bits)) }

// U32 returns the value as uint32. The tag must be ScalarU32.
func (e ScalarElem) U32() uint32 { return uint32(e.bits) }

// F64 returns the value as float64. The tag must be ScalarF64.
func (e ScalarElem) F64() float64 { return math.Float64frombits(e.bits) }

// I64 returns the value as int64. The tag must be ScalarI64.
func (e ScalarElem) I64() int64 { return int64(e.bits) }

// U64 returns the value as uint64. The tag must be ScalarU64.
func (e ScalarElem) U64() uint64 { return e.bits }

// appendBytes appends the little-endian encoding of the value, preceded
// by padding up to the type's natural alignment. Used when packing the
// device-side params buffer.
func (e ScalarElem) appendBytes(dst []byte) []byte {
	size := e.typ.Size()
	for len(dst)%size != 0 {
		dst = append(dst, 0)
	}
	switch size {
	case 4:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(e.bits))
	case 8:
		dst = binary.LittleEndian.AppendUint64(dst, e.bits)
	}
	return dst
}
