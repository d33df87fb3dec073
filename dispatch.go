// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"context"
	"unsafe"
)

// heapOffset converts a symmetric-heap pointer, as carried in a Record
// field, into the offset from the local heap base. Every PE's symmetric
// heap is the same shape at the same relative offset (spec.md §3,
// invariant 5), so an offset computed against the dispatching PE's own
// HeapInfo is the address any peer's Backend call needs too — this is
// the "network-side translation" spec.md §3 assigns to the proxy
// rather than the device: Record fields never carry a peer-relative
// pointer, only the symmetric offset recovered here.
func heapOffset(heap *HeapInfo, addr uint64) uintptr {
	return uintptr(addr) - heap.HeapBase
}

// dispatchFunc executes one Record against a Backend and, for
// value-producing ops, returns the raw bits to store into the
// completion slot's ret union.
type dispatchFunc func(ctx context.Context, rec *Record, heap *HeapInfo, b Backend) (uint64, error)

// dispatchTable is the host's (op, type) dispatch surface, built once
// at package init rather than as a live switch per request — spec.md §9
// calls this out explicitly ("a clean implementation builds it once at
// init from code-generated entries"). Type-level branching (which
// Backend.RMA/AMO/Reduce overload fires) happens inside each entry,
// keyed off rec.Type; the outer table is keyed only by rec.Op, since
// every type variant of a given op shares the same Backend call shape.
var dispatchTable [opCount]dispatchFunc

// opCount is one past the highest OpCode, sized so dispatchTable can be
// a plain array indexed directly by OpCode instead of a map.
const opCount = OpPrint + 1

func init() {
	dispatchTable[OpNop] = dispatchNop
	dispatchTable[OpPrint] = dispatchNop
	dispatchTable[OpKill] = dispatchNop

	dispatchTable[OpPut] = dispatchRMA(true)
	dispatchTable[OpPutNBI] = dispatchRMA(true)
	dispatchTable[OpP] = dispatchRMA(true)
	dispatchTable[OpIPut] = dispatchRMA(true)
	dispatchTable[OpGet] = dispatchRMA(false)
	dispatchTable[OpGetNBI] = dispatchRMA(false)
	dispatchTable[OpG] = dispatchRMA(false)
	dispatchTable[OpIGet] = dispatchRMA(false)

	dispatchTable[OpPutSignal] = dispatchPutSignal
	dispatchTable[OpPutSignalNBI] = dispatchPutSignal
	dispatchTable[OpSignalFetch] = dispatchSignalFetch

	for _, op := range []OpCode{
		OpAMOFetch, OpAMOSet, OpAMOAdd, OpAMOFetchAdd,
		OpAMOInc, OpAMOFetchInc, OpAMOCswap, OpAMOSwap,
		OpAMOAnd, OpAMOFetchAnd, OpAMOOr, OpAMOFetchOr,
		OpAMOXor, OpAMOFetchXor,
	} {
		dispatchTable[op] = dispatchAMO
	}

	dispatchTable[OpFence] = dispatchSync
	dispatchTable[OpQuiet] = dispatchSync
	dispatchTable[OpBarrierAll] = dispatchSync
	dispatchTable[OpSyncAll] = dispatchSync

	dispatchTable[OpBroadcast] = dispatchBroadcast
	dispatchTable[OpCollect] = dispatchCollect(false)
	dispatchTable[OpFCollect] = dispatchCollect(true)
	dispatchTable[OpAllToAll] = dispatchAllToAll

	for _, op := range []OpCode{
		OpSumReduce, OpMaxReduce, OpMinReduce,
		OpProdReduce, OpAndReduce, OpOrReduce,
	} {
		dispatchTable[op] = dispatchReduce
	}
}

// Dispatch routes rec to its registered handler. Test and WaitUntil are
// evaluated locally against the local symmetric heap rather than through
// the Backend, since both observe state that is already resident in this
// process (spec.md §4.E classifies them alongside the fetching-atomic
// "blocking proxy (value)" shape, but their condition check never leaves
// the local heap).
func Dispatch(ctx context.Context, rec *Record, heap *HeapInfo, b Backend) (uint64, error) {
	switch rec.Op {
	case OpTest:
		return dispatchTest(rec)
	case OpWaitUntil:
		return dispatchWaitUntil(rec)
	}

	fn := dispatchTable[rec.Op]
	if fn == nil {
		return 0, &BackendError{Op: rec.Op, Type: rec.Type, Err: errUnknownOp}
	}
	return fn(ctx, rec, heap, b)
}

func dispatchNop(context.Context, *Record, *HeapInfo, Backend) (uint64, error) { return 0, nil }

// dispatchRMA returns a handler for put- and get-shaped ops. toPeer
// selects direction: true copies local->peer (put family), false
// copies peer->local (get family). Single-element p/g use a proxy-local
// word as their local side: p's value travels in union #2, and g's
// fetched value is returned for the completion slot. Strided iput/iget
// are expanded here into one element-sized Backend.RMA per element,
// stepping each side by the strides carried in the Record's unions.
func dispatchRMA(toPeer bool) dispatchFunc {
	return func(ctx context.Context, rec *Record, heap *HeapInfo, b Backend) (uint64, error) {
		if rec.NElems == 0 {
			return 0, nil
		}
		sz := uint64(TypeSizeBytes(rec.Type)) * rec.NElems
		// The put/get family carries one local, already-valid pointer
		// (the caller's own buffer, which need not live in the
		// symmetric heap at all) and one remote symmetric address,
		// which heapOffset resolves against the dispatching PE's own
		// heap base before the Backend ever sees it.
		local, peerAddr := uintptr(rec.Src), heapOffset(heap, rec.Dst)
		if !toPeer {
			local, peerAddr = uintptr(rec.Dst), heapOffset(heap, rec.Src)
		}
		var scalar uint64
		if rec.Op == OpP || rec.Op == OpG {
			scalar = rec.Value()
			local = uintptr(unsafe.Pointer(&scalar))
		}
		if rec.Op == OpIPut || rec.Op == OpIGet {
			esz := int64(TypeSizeBytes(rec.Type))
			localStride, peerStride := rec.SrcStride(), rec.DstStride()
			if !toPeer {
				localStride, peerStride = rec.DstStride(), rec.SrcStride()
			}
			for i := int64(0); i < int64(rec.NElems); i++ {
				l := local + uintptr(i*localStride*esz)
				p := peerAddr + uintptr(i*peerStride*esz)
				if err := b.RMA(ctx, rec.DestPE, toPeer, l, p, uint64(esz)); err != nil {
					return 0, &BackendError{Op: rec.Op, Type: rec.Type, Err: err}
				}
			}
			return 0, nil
		}
		if err := b.RMA(ctx, rec.DestPE, toPeer, local, peerAddr, sz); err != nil {
			return 0, &BackendError{Op: rec.Op, Type: rec.Type, Err: err}
		}
		return scalar, nil
	}
}

func dispatchAMO(ctx context.Context, rec *Record, heap *HeapInfo, b Backend) (uint64, error) {
	ret, err := b.AMO(ctx, rec.DestPE, rec.Op, rec.Type, heapOffset(heap, rec.Dst), rec.Value(), rec.Cond())
	if err != nil {
		return 0, &BackendError{Op: rec.Op, Type: rec.Type, Err: err}
	}
	return ret, nil
}

// dispatchPutSignal performs the data RMA then updates the remote
// signal word (spec.md §3's sig_addr/signal/sig_op fields): sig_op 0
// sets the signal, sig_op 1 adds to it.
func dispatchPutSignal(ctx context.Context, rec *Record, heap *HeapInfo, b Backend) (uint64, error) {
	if _, err := dispatchRMA(true)(ctx, rec, heap, b); err != nil {
		return 0, err
	}
	op := OpAMOSet
	if rec.SigOp() != 0 {
		op = OpAMOAdd
	}
	if _, err := b.AMO(ctx, rec.DestPE, op, TypeU64, heapOffset(heap, rec.SigAddr), rec.Signal(), 0); err != nil {
		return 0, &BackendError{Op: rec.Op, Type: rec.Type, Err: err}
	}
	return 0, nil
}

func dispatchSignalFetch(ctx context.Context, rec *Record, heap *HeapInfo, b Backend) (uint64, error) {
	ret, err := b.AMO(ctx, rec.DestPE, OpAMOFetch, TypeU64, heapOffset(heap, rec.SigAddr), 0, 0)
	if err != nil {
		return 0, &BackendError{Op: rec.Op, Type: rec.Type, Err: err}
	}
	return ret, nil
}

func dispatchSync(ctx context.Context, rec *Record, _ *HeapInfo, b Backend) (uint64, error) {
	if err := b.Sync(ctx); err != nil {
		return 0, &BackendError{Op: rec.Op, Type: rec.Type, Err: err}
	}
	return 0, nil
}

func dispatchBroadcast(ctx context.Context, rec *Record, heap *HeapInfo, b Backend) (uint64, error) {
	sz := uint64(TypeSizeBytes(rec.Type)) * rec.NElems
	if err := b.Broadcast(ctx, rec.Root, heapOffset(heap, rec.Dst), sz); err != nil {
		return 0, &BackendError{Op: rec.Op, Type: rec.Type, Err: err}
	}
	return 0, nil
}

func dispatchCollect(fixed bool) dispatchFunc {
	return func(ctx context.Context, rec *Record, heap *HeapInfo, b Backend) (uint64, error) {
		sz := uint64(TypeSizeBytes(rec.Type)) * rec.NElems
		if err := b.Collect(ctx, heapOffset(heap, rec.Dst), heapOffset(heap, rec.Src), sz, fixed); err != nil {
			return 0, &BackendError{Op: rec.Op, Type: rec.Type, Err: err}
		}
		return 0, nil
	}
}

func dispatchAllToAll(ctx context.Context, rec *Record, heap *HeapInfo, b Backend) (uint64, error) {
	sz := uint64(TypeSizeBytes(rec.Type)) * rec.NElems
	if err := b.AllToAll(ctx, heapOffset(heap, rec.Dst), heapOffset(heap, rec.Src), sz); err != nil {
		return 0, &BackendError{Op: rec.Op, Type: rec.Type, Err: err}
	}
	return 0, nil
}

func dispatchReduce(ctx context.Context, rec *Record, heap *HeapInfo, b Backend) (uint64, error) {
	if err := b.Reduce(ctx, rec.Op, rec.Type, heapOffset(heap, rec.Dst), heapOffset(heap, rec.Src), rec.NElems); err != nil {
		return 0, &BackendError{Op: rec.Op, Type: rec.Type, Err: err}
	}
	return 0, nil
}

// dispatchTest and dispatchWaitUntil are evaluated against the local
// symmetric heap: rec.Dst is the address of the polled word, rec.Cmp()
// the operator, rec.CmpValue() the comparand. Test never blocks; the
// proxy dispatches it exactly once and returns whatever the comparison
// yields at that instant. WaitUntil's spin, if any, belongs to the
// issuer (device.go), not the proxy — by the time a wait_until Record
// reaches here it is a single poll, matching the non-blocking Test path
// with a different return encoding (the evaluated boolean, as 0/1).
func dispatchTest(rec *Record) (uint64, error) {
	ok := evalCmp(rec)
	if ok {
		return 1, nil
	}
	return 0, nil
}

func dispatchWaitUntil(rec *Record) (uint64, error) {
	return dispatchTest(rec)
}

func evalCmp(rec *Record) bool {
	cur := loadTypedAt(uintptr(rec.Dst), rec.Type)
	want := rec.CmpValue()
	return compareTyped(rec.Type, cur, want, rec.Cmp())
}
