// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import "unsafe"

// OpCode selects the operation a Record describes. The host proxy
// dispatches on (Op, Type); the device issue path never branches on
// anything wider than these two fields.
type OpCode uint16

const (
	OpNop OpCode = iota
	OpPut
	OpGet
	OpIPut // strided put
	OpIGet // strided get
	OpP    // single-element put
	OpG    // single-element get
	OpPutNBI
	OpGetNBI

	// Atomic memory operations. 14 variants, matching spec.md §3.
	OpAMOFetch
	OpAMOSet
	OpAMOAdd
	OpAMOFetchAdd
	OpAMOInc
	OpAMOFetchInc
	OpAMOCswap
	OpAMOSwap
	OpAMOAnd
	OpAMOFetchAnd
	OpAMOOr
	OpAMOFetchOr
	OpAMOXor
	OpAMOFetchXor

	OpPutSignal
	OpPutSignalNBI
	OpSignalFetch
	OpTest
	OpWaitUntil
	OpFence
	OpQuiet
	OpBarrierAll
	OpSyncAll
	OpAllToAll
	OpBroadcast
	OpCollect
	OpFCollect

	// Reductions. 6 ops, each dispatched over whichever Type it is given
	// (scalar arithmetic or bitwise), matching spec.md §3's
	// "*_reduce (6 ops × scalar/bitwise)".
	OpSumReduce
	OpMaxReduce
	OpMinReduce
	OpProdReduce
	OpAndReduce
	OpOrReduce

	OpKill
	OpPrint
)

// TypeCode selects the typed dispatch arm a Record's payload should be
// interpreted as.
type TypeCode uint16

const (
	TypeMem TypeCode = iota // untyped byte range; NElems is a byte count
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeF32
	TypeF64
	TypeLongDouble
	TypeChar
	TypeShort
	TypeInt
	TypeLong
	TypeLongLong
	TypeSize
	TypePtrdiff
)

// TypeSizeBytes returns the element width of t, used by the cutover
// policy (spec.md §4.E) to turn an element count into a byte count.
// TypeMem and TypeLongDouble are reported as 1 and 16 respectively;
// every other entry matches its Go counterpart's width.
func TypeSizeBytes(t TypeCode) int {
	switch t {
	case TypeMem, TypeU8, TypeI8, TypeChar:
		return 1
	case TypeU16, TypeI16, TypeShort:
		return 2
	case TypeU32, TypeI32, TypeF32, TypeInt:
		return 4
	case TypeU64, TypeI64, TypeF64, TypeLong, TypeLongLong, TypeSize, TypePtrdiff:
		return 8
	case TypeLongDouble:
		return 16
	default:
		return 1
	}
}

// CmpOp is the comparison operator carried by wait_until-shaped requests.
type CmpOp int32

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpGt
	CmpGe
	CmpLt
	CmpLe
)

// Record is the 128-byte wire format of a single request, laid out
// exactly per spec.md §6. Its Go alignment is 8 bytes; nothing here pads
// a Record to a 64-byte boundary. Field order is load-bearing: Go lays
// out struct fields in declaration order with no reordering, and every
// field here is naturally aligned at its declared offset, so no explicit
// padding is needed between fields (the trailing reserved array absorbs
// the remainder up to 128 bytes).
//
// Addresses are carried as uint64 rather than uintptr so the wire layout
// does not change width between 32- and 64-bit builds; callers convert
// with uintptr(rec.Src) at the point of use.
type Record struct {
	Sequence   uint16   // offset 0: low16 of the producer's index
	Completion uint16   // offset 2: completion slot index, 0 if none
	Op         OpCode   // offset 4
	Type       TypeCode // offset 6
	DestPE     int32    // offset 8
	Root       int32    // offset 12
	Src        uint64   // offset 16: local symmetric-heap address
	Dst        uint64   // offset 24: local symmetric-heap address
	NElems     uint64   // offset 32
	SigAddr    uint64   // offset 40: signaling-put target

	// Union #1 (offset 48): cond | cmp | sig_op | dst_stride.
	union1 uint64
	// Union #2 (offset 56): value | cmp_value | signal | src_stride.
	union2 uint64

	reserved [64]byte // offset 64..127
}

// Compile-time assertion that the layout above is exactly 128 bytes; a
// mismatch in either direction makes one of these array lengths
// underflow and fails to compile.
var _ [unsafe.Sizeof(Record{}) - 128]byte
var _ [128 - unsafe.Sizeof(Record{})]byte

// Cond returns union #1 interpreted as a compare-and-swap condition.
func (r *Record) Cond() uint64 { return r.union1 }

// SetCond stores a compare-and-swap condition into union #1.
func (r *Record) SetCond(v uint64) { r.union1 = v }

// Cmp returns union #1 interpreted as a wait_until comparison operator.
func (r *Record) Cmp() CmpOp { return CmpOp(int32(r.union1)) }

// SetCmp stores a wait_until comparison operator into union #1.
func (r *Record) SetCmp(op CmpOp) { r.union1 = uint64(uint32(op)) }

// SigOp returns union #1 interpreted as a signal update operator
// (0 = set, 1 = add), used by put_signal.
func (r *Record) SigOp() int32 { return int32(r.union1) }

// SetSigOp stores a signal update operator into union #1.
func (r *Record) SetSigOp(op int32) { r.union1 = uint64(uint32(op)) }

// DstStride returns union #1 interpreted as a destination element
// stride for strided RMA.
func (r *Record) DstStride() int64 { return int64(r.union1) }

// SetDstStride stores a destination element stride into union #1.
func (r *Record) SetDstStride(s int64) { r.union1 = uint64(s) }

// Value returns union #2 interpreted as an atomic operand.
func (r *Record) Value() uint64 { return r.union2 }

// SetValue stores an atomic operand into union #2.
func (r *Record) SetValue(v uint64) { r.union2 = v }

// CmpValue returns union #2 interpreted as a wait_until comparison value.
func (r *Record) CmpValue() uint64 { return r.union2 }

// SetCmpValue stores a wait_until comparison value into union #2.
func (r *Record) SetCmpValue(v uint64) { r.union2 = v }

// Signal returns union #2 interpreted as a put_signal signal value.
func (r *Record) Signal() uint64 { return r.union2 }

// SetSignal stores a put_signal signal value into union #2.
func (r *Record) SetSignal(v uint64) { r.union2 = v }

// SrcStride returns union #2 interpreted as a source element stride.
func (r *Record) SrcStride() int64 { return int64(r.union2) }

// SetSrcStride stores a source element stride into union #2.
func (r *Record) SetSrcStride(s int64) { r.union2 = uint64(s) }
