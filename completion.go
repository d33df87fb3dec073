// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// CompletionSlot is the 64-byte handshake record for one in-flight
// proxied request, laid out per spec.md §6: lock (0 free, 1 in use),
// sequence (0 pending, 1 done, waiter spins on this), and a 16-byte ret
// union written by the proxy before it releases sequence.
type CompletionSlot struct {
	lock     atomix.Uint32 // offset 0
	sequence atomix.Uint32 // offset 4
	ret      [16]byte      // offset 8: typed result, read via CompletionResult
	_        [40]byte      // offset 24..63
}

// CompletionTable is the fixed-capacity pool of completion slots shared
// by every issuer in the process. Per spec.md §3/§4.B it carries one
// extra slot beyond its nominal N entries; that extra slot's sequence
// word is the same memory the Ring publishes its consumer position
// through (spec.md §4.3), handed back by Alias.
//
// Index 0 is never handed out by Allocate: a Record's Completion field
// uses 0 to mean "no completion slot", so slot 0 would be ambiguous with
// that sentinel and is permanently reserved.
type CompletionTable struct {
	slots    []CompletionSlot
	nextHint atomix.Uint64
	n        uint64 // nominal capacity (excludes the aliasing slot at index n)
}

// NewCompletionTable creates a table with n nominal completion slots plus
// one aliasing slot, matching the Ring it will be paired with.
func NewCompletionTable(n uint64) *CompletionTable {
	if n < 2 {
		panic("ishmemproxy: completion table capacity must be >= 2")
	}
	return &CompletionTable{
		slots: make([]CompletionSlot, n+1),
		n:     n,
	}
}

// Alias returns a pointer to the extra slot's sequence word, which the
// paired Ring publishes its consumer index through (spec.md §4.3). The
// value stored there has no completion meaning (it starts at 0 and may
// be any value, 0 and 1 included); it is a 32-bit ring position,
// reinterpreted by the Ring as peerReceive.
func (t *CompletionTable) Alias() *atomix.Uint32 {
	return &t.slots[t.n].sequence
}

// Allocate returns the index of a slot it has acquired exclusively and
// whose sequence has been reset to pending. It rotates through the table
// using a shared atomic hint and retries on contention (spec.md §4.B).
// Only slots 1..n-1 are handed out, so it returns whenever fewer than
// n-1 completions are outstanding; otherwise it spins until one is freed.
func (t *CompletionTable) Allocate() uint32 {
	sw := spin.Wait{}
	for {
		hint := t.nextHint.AddAcqRel(1) - 1
		idx := 1 + hint%(t.n-1) // skip reserved slot 0
		slot := &t.slots[idx]
		if slot.lock.CompareAndSwapAcqRel(0, 1) {
			slot.sequence.StoreRelease(0)
			return uint32(idx)
		}
		sw.Once()
	}
}

// Wait spins until the slot's proxy-side result has been published.
func (t *CompletionTable) Wait(slot uint32) {
	sw := spin.Wait{}
	for t.slots[slot].sequence.LoadAcquire() == 0 {
		sw.Once()
	}
}

// TryWait is a non-spinning probe for the slot's done flag, used by the
// test/test_all/test_any family (spec.md §5, supplemented per
// SPEC_FULL.md §5 from original_source's test_operator semantics).
func (t *CompletionTable) TryWait(slot uint32) bool {
	return t.slots[slot].sequence.LoadAcquire() != 0
}

// Signal is called by the proxy after writing a slot's result; it makes
// the result visible to Wait/TryWait with release semantics.
func (t *CompletionTable) Signal(slot uint32) {
	t.slots[slot].sequence.StoreRelease(1)
}

// Free returns a slot to the pool. It is the only legal path that
// resets lock to 0 (spec.md §3 invariant 3); calling it without a prior
// Wait, or calling it twice, corrupts the pool per spec.md §4.B's
// failure model.
func (t *CompletionTable) Free(slot uint32) {
	t.slots[slot].lock.StoreRelease(0)
}

// SetResult writes raw is the little-endian byte pattern of a scalar
// result into the slot's ret union, to be read back with
// [CompletionResult]. Must be called before Signal.
func (t *CompletionTable) SetResult(slot uint32, raw uint64) {
	*(*uint64)(unsafe.Pointer(&t.slots[slot].ret[0])) = raw
}

// Scalar lists the result types fetching atomics and reductions can
// produce.
type Scalar interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// CompletionResult reads a completion slot's ret union as T. The caller
// must have observed Wait/TryWait return before calling this — spec.md
// §4.B's result<T> contract assumes the done flag has already been
// observed, which is what establishes the happens-before edge over the
// non-atomic ret bytes (the same pattern record payloads use against
// Sequence; see Ring.Send).
func CompletionResult[T Scalar](t *CompletionTable, slot uint32) T {
	return *(*T)(unsafe.Pointer(&t.slots[slot].ret[0]))
}
