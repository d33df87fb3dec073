// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"log/slog"
	"os"

	"code.hybscloud.com/ishmemproxy/internal/config"
)

// Device is the per-process entry point a work-item calls into: one
// Device owns the Ring, CompletionTable, HeapInfo and MessagePool a
// Proxy drains, and decides per spec.md §4.E which of the four issue
// shapes (direct, non-blocking proxy, blocking proxy void, blocking
// proxy value) each logical operation takes.
type Device struct {
	heap    *HeapInfo
	ring    *Ring
	table   *CompletionTable
	backend Backend
	msgs    *MessagePool
	cfg     config.Config

	checkParams bool
	// onFatal is invoked after a validation failure has been recorded in
	// the message pool and logged (backend failures end Proxy.Run
	// instead and do not reach it). Tests override it to
	// avoid tearing down the process; production wiring defaults it to
	// a function that calls os.Exit, matching spec.md §7's
	// "diagnostic + abort" propagation policy.
	onFatal func(error)
	log     *slog.Logger
}

// NewDevice creates a Device with a freshly allocated Ring and
// CompletionTable of size RingN, wired to backend. checkParams mirrors
// the build-time validation flag of spec.md §4.G.
func NewDevice(heap *HeapInfo, backend Backend, cfg config.Config, checkParams bool) *Device {
	table := NewCompletionTable(RingN)
	ring := NewRing(RingN, table.Alias())
	return &Device{
		heap:        heap,
		ring:        ring,
		table:       table,
		backend:     backend,
		msgs:        NewMessagePool(),
		cfg:         cfg,
		checkParams: checkParams,
		onFatal:     func(error) { os.Exit(1) },
		log:         slog.Default(),
	}
}

// NewProxy returns a Proxy draining this Device's Ring into its Backend.
func (d *Device) NewProxy() *Proxy {
	return NewProxy(d.ring, d.table, d.heap, d.backend, d.cfg.MWaitBurst)
}

// SetOnFatal overrides the abort hook invoked after a validation
// failure, for tests that want to observe the failure instead of
// exiting the process.
func (d *Device) SetOnFatal(f func(error)) { d.onFatal = f }

func (d *Device) fail(err error) {
	msg := err.Error()
	d.msgs.Put(msg)
	d.log.Error("ishmemproxy: fatal", "err", err)
	d.onFatal(err)
}

// --- validation -------------------------------------------------------

func (d *Device) checkPE(op OpCode, pe int32) error {
	if !d.checkParams {
		return nil
	}
	return validatePE(op, pe, d.heap.NPEs)
}

func (d *Device) checkRange(op OpCode, ptr uintptr, size uint64) error {
	if !d.checkParams {
		return nil
	}
	return validateInHeap(op, d.heap, ptr, size)
}

func (d *Device) checkDisjoint(op OpCode, a, b uintptr, size uint64) error {
	if !d.checkParams {
		return nil
	}
	return validateDisjoint(op, a, b, size)
}

func (d *Device) checkStride(op OpCode, stride int64) error {
	if !d.checkParams {
		return nil
	}
	return validateStride(op, stride)
}

// --- issue-path plumbing ----------------------------------------------

// sendVoid allocates a completion slot, sends rec through the ring,
// waits for the proxy and frees the slot (spec.md §4.E "blocking proxy
// (void)").
func (d *Device) sendVoid(rec *Record) {
	slot := d.table.Allocate()
	rec.Completion = uint16(slot)
	d.ring.Send(rec)
	d.table.Wait(slot)
	d.table.Free(slot)
}

// sendValue is sendVoid but additionally reads the raw result bits
// before freeing the slot (spec.md §4.E "blocking proxy (value)").
func (d *Device) sendValue(rec *Record) uint64 {
	slot := d.table.Allocate()
	rec.Completion = uint16(slot)
	d.ring.Send(rec)
	d.table.Wait(slot)
	ret := CompletionResult[uint64](d.table, slot)
	d.table.Free(slot)
	return ret
}

// sendNBI enqueues rec with no completion slot (spec.md §4.E
// "non-blocking proxy"); visible completion requires a later Quiet.
func (d *Device) sendNBI(rec *Record) {
	rec.Completion = 0
	d.ring.Send(rec)
}

// directRMA reports whether a same-size RMA of size bytes to pe can
// bypass the proxy: GPU IPC must be enabled, pe must be a local peer,
// and size must be under the rmaDirectSingleBytes cutover (spec.md §4.E).
func (d *Device) directRMA(pe int32, size uint64) (localRank int32, ok bool) {
	if !d.cfg.EnableGPUIPC {
		return 0, false
	}
	rank, local := d.heap.LocalRankOf(pe)
	if !local || size >= rmaDirectSingleBytes {
		return 0, false
	}
	return rank, true
}

// --- RMA ----------------------------------------------------------------

// Put copies nelems elements of typ from local src to pe's dst, blocking
// until the local side effect (direct copy or proxy dispatch) has
// committed.
func (d *Device) Put(typ TypeCode, pe int32, dst, src uintptr, nelems uint64) error {
	if err := d.checkPE(OpPut, pe); err != nil {
		d.fail(err)
		return err
	}
	sz := uint64(TypeSizeBytes(typ)) * nelems
	if err := d.checkRange(OpPut, dst, sz); err != nil {
		d.fail(err)
		return err
	}
	if rank, ok := d.directRMA(pe, sz); ok {
		copyBytes(d.heap.Adjust(rank, dst), src, sz)
		return nil
	}
	rec := &Record{Op: OpPut, Type: typ, DestPE: pe, Dst: uint64(dst), Src: uint64(src), NElems: nelems}
	d.sendVoid(rec)
	return nil
}

// PutNBI is Put without waiting for completion; visible only after Quiet.
func (d *Device) PutNBI(typ TypeCode, pe int32, dst, src uintptr, nelems uint64) error {
	if err := d.checkPE(OpPutNBI, pe); err != nil {
		d.fail(err)
		return err
	}
	sz := uint64(TypeSizeBytes(typ)) * nelems
	if err := d.checkRange(OpPutNBI, dst, sz); err != nil {
		d.fail(err)
		return err
	}
	if rank, ok := d.directRMA(pe, sz); ok {
		copyBytes(d.heap.Adjust(rank, dst), src, sz)
		return nil
	}
	rec := &Record{Op: OpPutNBI, Type: typ, DestPE: pe, Dst: uint64(dst), Src: uint64(src), NElems: nelems}
	d.sendNBI(rec)
	return nil
}

// Get copies nelems elements of typ from pe's src into local dst.
func (d *Device) Get(typ TypeCode, pe int32, dst, src uintptr, nelems uint64) error {
	if err := d.checkPE(OpGet, pe); err != nil {
		d.fail(err)
		return err
	}
	sz := uint64(TypeSizeBytes(typ)) * nelems
	if err := d.checkRange(OpGet, src, sz); err != nil {
		d.fail(err)
		return err
	}
	if rank, ok := d.directRMA(pe, sz); ok {
		copyBytes(dst, d.heap.Adjust(rank, src), sz)
		return nil
	}
	rec := &Record{Op: OpGet, Type: typ, DestPE: pe, Dst: uint64(dst), Src: uint64(src), NElems: nelems}
	d.sendVoid(rec)
	return nil
}

// GetNBI is Get without waiting for completion; visible only after Quiet.
func (d *Device) GetNBI(typ TypeCode, pe int32, dst, src uintptr, nelems uint64) error {
	if err := d.checkPE(OpGetNBI, pe); err != nil {
		d.fail(err)
		return err
	}
	sz := uint64(TypeSizeBytes(typ)) * nelems
	if err := d.checkRange(OpGetNBI, src, sz); err != nil {
		d.fail(err)
		return err
	}
	if rank, ok := d.directRMA(pe, sz); ok {
		copyBytes(dst, d.heap.Adjust(rank, src), sz)
		return nil
	}
	rec := &Record{Op: OpGetNBI, Type: typ, DestPE: pe, Dst: uint64(dst), Src: uint64(src), NElems: nelems}
	d.sendNBI(rec)
	return nil
}

// P writes a single scalar value to pe's dst.
func (d *Device) P(typ TypeCode, pe int32, dst uintptr, value uint64) error {
	if err := d.checkPE(OpP, pe); err != nil {
		d.fail(err)
		return err
	}
	sz := uint64(TypeSizeBytes(typ))
	if rank, ok := d.directRMA(pe, sz); ok {
		storeTypedAt(d.heap.Adjust(rank, dst), typ, value)
		return nil
	}
	rec := &Record{Op: OpP, Type: typ, DestPE: pe, Dst: uint64(dst), NElems: 1}
	rec.SetValue(value)
	d.sendVoid(rec)
	return nil
}

// G reads a single scalar value from pe's src.
func (d *Device) G(typ TypeCode, pe int32, src uintptr) (uint64, error) {
	if err := d.checkPE(OpG, pe); err != nil {
		d.fail(err)
		return 0, err
	}
	sz := uint64(TypeSizeBytes(typ))
	if rank, ok := d.directRMA(pe, sz); ok {
		return loadTypedAt(d.heap.Adjust(rank, src), typ), nil
	}
	rec := &Record{Op: OpG, Type: typ, DestPE: pe, Src: uint64(src), NElems: 1}
	return d.sendValue(rec), nil
}

// IPut writes nelems elements of typ, each separated by dstStride
// elements at the destination and srcStride elements at the source.
func (d *Device) IPut(typ TypeCode, pe int32, dst, src uintptr, dstStride, srcStride int64, nelems uint64) error {
	if err := d.checkPE(OpIPut, pe); err != nil {
		d.fail(err)
		return err
	}
	if err := d.checkStride(OpIPut, dstStride); err != nil {
		d.fail(err)
		return err
	}
	if err := d.checkStride(OpIPut, srcStride); err != nil {
		d.fail(err)
		return err
	}
	rec := &Record{Op: OpIPut, Type: typ, DestPE: pe, Dst: uint64(dst), Src: uint64(src), NElems: nelems}
	rec.SetDstStride(dstStride)
	rec.SetSrcStride(srcStride)
	d.sendVoid(rec)
	return nil
}

// IGet reads nelems elements of typ, each separated by srcStride
// elements at the source and dstStride elements at the destination.
func (d *Device) IGet(typ TypeCode, pe int32, dst, src uintptr, dstStride, srcStride int64, nelems uint64) error {
	if err := d.checkPE(OpIGet, pe); err != nil {
		d.fail(err)
		return err
	}
	if err := d.checkStride(OpIGet, dstStride); err != nil {
		d.fail(err)
		return err
	}
	if err := d.checkStride(OpIGet, srcStride); err != nil {
		d.fail(err)
		return err
	}
	rec := &Record{Op: OpIGet, Type: typ, DestPE: pe, Dst: uint64(dst), Src: uint64(src), NElems: nelems}
	rec.SetDstStride(dstStride)
	rec.SetSrcStride(srcStride)
	d.sendVoid(rec)
	return nil
}

// --- atomics --------------------------------------------------------

// amo is the shared implementation of every fetching/non-fetching AMO
// variant; op must be one of the OpAMO* codes.
func (d *Device) amo(op OpCode, typ TypeCode, pe int32, addr uintptr, operand, compare uint64) (uint64, error) {
	if err := d.checkPE(op, pe); err != nil {
		d.fail(err)
		return 0, err
	}
	rec := &Record{Op: op, Type: typ, DestPE: pe, Dst: uint64(addr)}
	rec.SetValue(operand)
	rec.SetCond(compare)
	return d.sendValue(rec), nil
}

func (d *Device) AtomicFetch(typ TypeCode, pe int32, addr uintptr) (uint64, error) {
	return d.amo(OpAMOFetch, typ, pe, addr, 0, 0)
}

func (d *Device) AtomicSet(typ TypeCode, pe int32, addr uintptr, value uint64) error {
	_, err := d.amo(OpAMOSet, typ, pe, addr, value, 0)
	return err
}

func (d *Device) AtomicAdd(typ TypeCode, pe int32, addr uintptr, value uint64) error {
	_, err := d.amo(OpAMOAdd, typ, pe, addr, value, 0)
	return err
}

func (d *Device) AtomicFetchAdd(typ TypeCode, pe int32, addr uintptr, value uint64) (uint64, error) {
	return d.amo(OpAMOFetchAdd, typ, pe, addr, value, 0)
}

func (d *Device) AtomicInc(typ TypeCode, pe int32, addr uintptr) error {
	_, err := d.amo(OpAMOInc, typ, pe, addr, 0, 0)
	return err
}

func (d *Device) AtomicFetchInc(typ TypeCode, pe int32, addr uintptr) (uint64, error) {
	return d.amo(OpAMOFetchInc, typ, pe, addr, 0, 0)
}

// AtomicCompareSwap returns *addr's pre-value and writes newVal iff the
// pre-value equals cond (spec.md §8's compare-and-swap identity law).
func (d *Device) AtomicCompareSwap(typ TypeCode, pe int32, addr uintptr, cond, newVal uint64) (uint64, error) {
	return d.amo(OpAMOCswap, typ, pe, addr, newVal, cond)
}

func (d *Device) AtomicSwap(typ TypeCode, pe int32, addr uintptr, value uint64) (uint64, error) {
	return d.amo(OpAMOSwap, typ, pe, addr, value, 0)
}

func (d *Device) AtomicAnd(typ TypeCode, pe int32, addr uintptr, value uint64) error {
	_, err := d.amo(OpAMOAnd, typ, pe, addr, value, 0)
	return err
}

func (d *Device) AtomicFetchAnd(typ TypeCode, pe int32, addr uintptr, value uint64) (uint64, error) {
	return d.amo(OpAMOFetchAnd, typ, pe, addr, value, 0)
}

func (d *Device) AtomicOr(typ TypeCode, pe int32, addr uintptr, value uint64) error {
	_, err := d.amo(OpAMOOr, typ, pe, addr, value, 0)
	return err
}

func (d *Device) AtomicFetchOr(typ TypeCode, pe int32, addr uintptr, value uint64) (uint64, error) {
	return d.amo(OpAMOFetchOr, typ, pe, addr, value, 0)
}

func (d *Device) AtomicXor(typ TypeCode, pe int32, addr uintptr, value uint64) error {
	_, err := d.amo(OpAMOXor, typ, pe, addr, value, 0)
	return err
}

func (d *Device) AtomicFetchXor(typ TypeCode, pe int32, addr uintptr, value uint64) (uint64, error) {
	return d.amo(OpAMOFetchXor, typ, pe, addr, value, 0)
}

// --- signaling put ----------------------------------------------------

// PutSignal is Put followed by an atomic update of the remote word at
// sigAddr: sigOp 0 sets it to signal, sigOp 1 adds signal to it.
func (d *Device) PutSignal(typ TypeCode, pe int32, dst, src uintptr, nelems uint64, sigAddr uintptr, signal uint64, sigOp int32) error {
	if err := d.checkPE(OpPutSignal, pe); err != nil {
		d.fail(err)
		return err
	}
	rec := &Record{Op: OpPutSignal, Type: typ, DestPE: pe, Dst: uint64(dst), Src: uint64(src), NElems: nelems, SigAddr: uint64(sigAddr)}
	rec.SetSigOp(sigOp)
	rec.SetSignal(signal)
	d.sendVoid(rec)
	return nil
}

// PutSignalNBI is PutSignal without waiting for completion.
func (d *Device) PutSignalNBI(typ TypeCode, pe int32, dst, src uintptr, nelems uint64, sigAddr uintptr, signal uint64, sigOp int32) error {
	if err := d.checkPE(OpPutSignalNBI, pe); err != nil {
		d.fail(err)
		return err
	}
	rec := &Record{Op: OpPutSignalNBI, Type: typ, DestPE: pe, Dst: uint64(dst), Src: uint64(src), NElems: nelems, SigAddr: uint64(sigAddr)}
	rec.SetSigOp(sigOp)
	rec.SetSignal(signal)
	d.sendNBI(rec)
	return nil
}

// SignalFetch reads the local signal word at sigAddr. DestPE is this
// PE's own rank: the signal lives in the local symmetric heap (remote
// put_signals write it via the network), so the AMO the proxy issues
// targets this PE, not PE 0.
func (d *Device) SignalFetch(sigAddr uintptr) uint64 {
	rec := &Record{Op: OpSignalFetch, Type: TypeU64, DestPE: d.heap.MyPE, SigAddr: uint64(sigAddr)}
	return d.sendValue(rec)
}

// --- test / wait_until --------------------------------------------------

// Test evaluates cmp(*addr, cmpValue) once through the proxy, waiting for
// that one round trip but not for the condition to hold.
func (d *Device) Test(typ TypeCode, addr uintptr, cmp CmpOp, cmpValue uint64) bool {
	rec := &Record{Op: OpTest, Type: typ, Dst: uint64(addr)}
	rec.SetCmp(cmp)
	rec.SetCmpValue(cmpValue)
	return d.sendValue(rec) != 0
}

// WaitUntil spins, re-evaluating cmp(*addr, cmpValue) through the proxy,
// until it holds.
func (d *Device) WaitUntil(typ TypeCode, addr uintptr, cmp CmpOp, cmpValue uint64) {
	for !d.Test(typ, addr, cmp, cmpValue) {
	}
}

// --- fence / quiet / barriers -------------------------------------------

// Fence orders this work-item's prior RMA operations against its
// subsequent ones without waiting for remote completion.
func (d *Device) Fence() {
	d.sendVoid(&Record{Op: OpFence})
}

// Quiet returns only after every prior non-blocking operation issued by
// this work-item has had its backend side effect committed (spec.md §5
// ordering guarantee iii).
func (d *Device) Quiet() {
	d.sendVoid(&Record{Op: OpQuiet})
}

// BarrierAll blocks every PE until all have reached the barrier.
func (d *Device) BarrierAll() {
	d.sendVoid(&Record{Op: OpBarrierAll})
}

// SyncAll is a lightweight barrier that does not guarantee delivery of
// prior non-blocking operations (contrast BarrierAll).
func (d *Device) SyncAll() {
	d.sendVoid(&Record{Op: OpSyncAll})
}

// --- collectives --------------------------------------------------------

// Broadcast delivers root's nelems elements at addr to every PE.
func (d *Device) Broadcast(typ TypeCode, root int32, dst uintptr, nelems uint64) error {
	if err := d.checkPE(OpBroadcast, root); err != nil {
		d.fail(err)
		return err
	}
	rec := &Record{Op: OpBroadcast, Type: typ, Root: root, Dst: uint64(dst), NElems: nelems}
	d.sendVoid(rec)
	return nil
}

// Collect gathers nelems elements of typ from src at every PE into dst,
// in PE order; FCollect requires every PE to contribute the same count.
func (d *Device) Collect(typ TypeCode, dst, src uintptr, nelems uint64) {
	rec := &Record{Op: OpCollect, Type: typ, Dst: uint64(dst), Src: uint64(src), NElems: nelems}
	d.sendVoid(rec)
}

func (d *Device) FCollect(typ TypeCode, dst, src uintptr, nelems uint64) {
	rec := &Record{Op: OpFCollect, Type: typ, Dst: uint64(dst), Src: uint64(src), NElems: nelems}
	d.sendVoid(rec)
}

// AllToAll exchanges nelemsPerPE elements of typ between every pair of PEs.
func (d *Device) AllToAll(typ TypeCode, dst, src uintptr, nelemsPerPE uint64) {
	rec := &Record{Op: OpAllToAll, Type: typ, Dst: uint64(dst), Src: uint64(src), NElems: nelemsPerPE}
	d.sendVoid(rec)
}

// --- reductions -----------------------------------------------------------

func (d *Device) reduce(op OpCode, typ TypeCode, dst, src uintptr, nelems uint64) error {
	if err := d.checkDisjoint(op, dst, src, nelems*uint64(TypeSizeBytes(typ))); err != nil {
		d.fail(err)
		return err
	}
	rec := &Record{Op: op, Type: typ, Dst: uint64(dst), Src: uint64(src), NElems: nelems}
	d.sendVoid(rec)
	return nil
}

func (d *Device) SumReduce(typ TypeCode, dst, src uintptr, nelems uint64) error {
	return d.reduce(OpSumReduce, typ, dst, src, nelems)
}

func (d *Device) MaxReduce(typ TypeCode, dst, src uintptr, nelems uint64) error {
	return d.reduce(OpMaxReduce, typ, dst, src, nelems)
}

func (d *Device) MinReduce(typ TypeCode, dst, src uintptr, nelems uint64) error {
	return d.reduce(OpMinReduce, typ, dst, src, nelems)
}

func (d *Device) ProdReduce(typ TypeCode, dst, src uintptr, nelems uint64) error {
	return d.reduce(OpProdReduce, typ, dst, src, nelems)
}

func (d *Device) AndReduce(typ TypeCode, dst, src uintptr, nelems uint64) error {
	return d.reduce(OpAndReduce, typ, dst, src, nelems)
}

func (d *Device) OrReduce(typ TypeCode, dst, src uintptr, nelems uint64) error {
	return d.reduce(OpOrReduce, typ, dst, src, nelems)
}

// --- misc ---------------------------------------------------------------

// Kill dispatches the terminal op that drives the paired Proxy's Run
// loop out of its poll loop (spec.md §4.F state machine, EXIT).
func (d *Device) Kill() {
	d.ring.Send(&Record{Op: OpKill})
}

// Print writes msg into the message-buffer pool and issues a proxy
// dispatch so host-side diagnostics observe it in request order relative
// to other proxied ops from this work-item.
func (d *Device) Print(msg string) {
	idx := d.msgs.Put(msg)
	rec := &Record{Op: OpPrint, NElems: uint64(idx)}
	d.sendVoid(rec)
}

// Nop issues a no-op round trip through the ring, useful for flushing
// ordering relative to other requests from this work-item.
func (d *Device) Nop() {
	d.sendVoid(&Record{Op: OpNop})
}

func (d *Device) HeapInfo() *HeapInfo { return d.heap }

func (d *Device) Ring() *Ring { return d.ring }

func (d *Device) CompletionTable() *CompletionTable { return d.table }
