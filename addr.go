// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

// HeapInfo is the process-wide symmetric-heap and PE topology state of
// spec.md §3, created once at library init and shared by every Device
// method. It owns no goroutines and needs no locking: every field here
// is a plain field, written only at construction or by IPC setup
// (SetHeap, SetPeerDelta) before any Device traffic begins.
type HeapInfo struct {
	MyPE int32
	NPEs int32

	// LocalPEs maps a local rank on this node to its global PE index.
	// Entries beyond the local PE count are -1.
	LocalPEs [MaxLocalPEs]int32

	HeapBase   uintptr
	HeapLength uintptr

	// IPCBufferDelta holds, for each local rank (by local rank index,
	// plus one extra "self" entry at selfDeltaIndex), the signed byte offset
	// that converts a local symmetric-heap pointer into this process's
	// mapped alias of that peer's heap. Undefined (and never read) for
	// non-local peers.
	IPCBufferDelta [MaxLocalPEs + 1]int64

	// OnlyIntraNode is true iff every PE in the world is on this node.
	OnlyIntraNode bool
}

// selfDeltaIndex is the reserved IPCBufferDelta slot for loopback,
// always zero (spec.md §3 invariant 4).
const selfDeltaIndex = MaxLocalPEs

// NewHeapInfo creates heap state for a single-node world of nPEs peers,
// sized as if every peer were local (the common case for the loopback
// Backend and for tests). HeapBase/HeapLength and the real per-peer
// deltas are filled in by whatever IPC bootstrap runs before device
// traffic starts; they default to an empty heap.
func NewHeapInfo(myPE, nPEs int32) *HeapInfo {
	h := &HeapInfo{MyPE: myPE, NPEs: nPEs, OnlyIntraNode: true}
	for i := range h.LocalPEs {
		h.LocalPEs[i] = -1
	}
	for i := int32(0); i < nPEs && i < MaxLocalPEs; i++ {
		h.LocalPEs[i] = i
	}
	h.IPCBufferDelta[selfDeltaIndex] = 0
	return h
}

// SetHeap configures the local symmetric-heap bounds.
func (h *HeapInfo) SetHeap(base, length uintptr) {
	h.HeapBase = base
	h.HeapLength = length
}

// SetPeerDelta records the IPC alias delta for the peer at local rank
// localRank (spec.md §3 invariant 4: delta[self] == 0, which callers
// must not overwrite by passing their own local rank here).
func (h *HeapInfo) SetPeerDelta(localRank int32, delta int64) {
	h.IPCBufferDelta[localRank] = delta
}

// LocalRankOf returns the local rank of PE pe on this node, and whether
// pe is local at all (vs. reachable only through the proxy/network).
func (h *HeapInfo) LocalRankOf(pe int32) (int32, bool) {
	for rank, p := range h.LocalPEs {
		if p == pe {
			return int32(rank), true
		}
	}
	return 0, false
}

// InHeap reports whether p lies within the local symmetric heap
// (spec.md §3 invariant 5: closed-open interval [heap_base, heap_base+heap_length)).
func (h *HeapInfo) InHeap(p uintptr) bool {
	return p >= h.HeapBase && p < h.HeapBase+h.HeapLength
}

// Adjust returns p reinterpreted as a pointer into this process's mapped
// alias of localRank's symmetric heap (spec.md §4.A). The caller must
// have already verified localRank is local; Adjust(self, p) == p because
// IPCBufferDelta[self] is always 0, so loopback needs no special case.
func (h *HeapInfo) Adjust(localRank int32, p uintptr) uintptr {
	return uintptr(int64(p) + h.IPCBufferDelta[localRank])
}

// AdjustSelf is Adjust for the local PE itself; always the identity.
func (h *HeapInfo) AdjustSelf(p uintptr) uintptr {
	return uintptr(int64(p) + h.IPCBufferDelta[selfDeltaIndex])
}
