// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"math"
	"unsafe"
)

// loadTypedAt reads the scalar at p as a raw, zero-extended uint64,
// its width chosen per typ (mirroring the completion
// table's own ret union). It is used by the local wait_until/test
// evaluation path, which reads the device's own process memory
// directly rather than going through a Backend.
func loadTypedAt(p uintptr, typ TypeCode) uint64 {
	switch TypeSizeBytes(typ) {
	case 1:
		return uint64(*(*uint8)(unsafe.Pointer(p)))
	case 2:
		return uint64(*(*uint16)(unsafe.Pointer(p)))
	case 4:
		return uint64(*(*uint32)(unsafe.Pointer(p)))
	default:
		return *(*uint64)(unsafe.Pointer(p))
	}
}

// copyBytes copies n bytes from src to dst, both raw process addresses.
// Used by the direct-mode RMA path when a peer's symmetric heap is
// mapped into this process (spec.md §4.A); the real device/IPC target
// would use a wide vector copy here, which is exactly what the
// work-group helpers in workgroup.go provide for the cooperative case.
func copyBytes(dst, src uintptr, n uint64) {
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), n)
	copy(d, s)
}

// storeTypedAt writes the low TypeSizeBytes(typ) bytes of v to p.
func storeTypedAt(p uintptr, typ TypeCode, v uint64) {
	switch TypeSizeBytes(typ) {
	case 1:
		*(*uint8)(unsafe.Pointer(p)) = uint8(v)
	case 2:
		*(*uint16)(unsafe.Pointer(p)) = uint16(v)
	case 4:
		*(*uint32)(unsafe.Pointer(p)) = uint32(v)
	default:
		*(*uint64)(unsafe.Pointer(p)) = v
	}
}

// lessTyped reinterprets the raw uint64 payloads a and b according to
// typ before ordering them, so signed integers and floats compare by
// value rather than by zero-extended bit pattern (mirrors
// internal/backend/loopback.go's lessTyped, used there for reductions;
// here it backs wait_until/test's ordering comparisons).
func lessTyped(typ TypeCode, a, b uint64) bool {
	switch typ {
	case TypeF32:
		return math.Float32frombits(uint32(a)) < math.Float32frombits(uint32(b))
	case TypeF64:
		return math.Float64frombits(a) < math.Float64frombits(b)
	case TypeI8:
		return int8(a) < int8(b)
	case TypeI16, TypeShort:
		return int16(a) < int16(b)
	case TypeI32, TypeInt:
		return int32(a) < int32(b)
	case TypeI64, TypeLong, TypeLongLong, TypePtrdiff:
		return int64(a) < int64(b)
	default:
		return a < b
	}
}

// compareTyped evaluates cmp(cur, want) with cur and want reinterpreted
// per typ. Eq/Ne compare raw bits directly (equal bit patterns mean
// equal values for both two's-complement integers and IEEE-754 floats);
// every ordering comparison goes through lessTyped so it honors typ's
// signedness/float-ness instead of comparing zero-extended bits.
func compareTyped(typ TypeCode, cur, want uint64, cmp CmpOp) bool {
	switch cmp {
	case CmpEq:
		return cur == want
	case CmpNe:
		return cur != want
	}
	lt := lessTyped(typ, cur, want)
	eq := cur == want
	switch cmp {
	case CmpGt:
		return !lt && !eq
	case CmpGe:
		return !lt
	case CmpLt:
		return lt
	case CmpLe:
		return lt || eq
	default:
		return false
	}
}
