// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"sync"
	"unsafe"

	"code.hybscloud.com/atomix"
)

// wideWord is the vector width work-group copy helpers move per item
// once past head/tail misalignment; a GPU target would use a much
// wider SIMD load/store here, but the shape of the loop (split into
// head bytes, an aligned body of wideWord-sized chunks, tail bytes) is
// unchanged regardless of the width.
type wideWord = uint64

const wideWordSize = int(unsafe.Sizeof(wideWord(0)))

// WorkGroupPush cooperatively copies n bytes from src to dst using the
// nItems work-items of a work-group, each identified by itemID in
// [0, nItems). Exactly one item copies each byte. The caller — which
// must own the destination side of the copy, per spec.md §4.H ("only
// the direction that owns the aligned side uses wide vector accesses")
// — calls this once per item with the same dst/src/n/nItems, typically
// from a goroutine-per-item WorkGroup helper.
//
// leaderFence, if non-nil, is called by itemID 0 after its own copy and,
// when barrier is non-nil, after every item has reached the barrier (so
// every item's copy is done), establishing the release fence spec.md
// §4.H requires before any subsequent proxy request that depends on the moved data is issued.
func WorkGroupPush(itemID, nItems int, dst, src uintptr, n uint64, barrier *sync.WaitGroup, leaderFence func()) {
	workGroupCopy(itemID, nItems, dst, src, n)
	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	if itemID == 0 && leaderFence != nil {
		leaderFence()
	}
}

// WorkGroupPull is WorkGroupPush with the roles of dst/src reversed in
// name only; the copy direction is always src->dst. It exists so caller
// code reads as "pull from src" at get call sites, matching spec.md
// §4.H's push/pull naming for the two RMA directions.
func WorkGroupPull(itemID, nItems int, dst, src uintptr, n uint64, barrier *sync.WaitGroup, leaderFence func()) {
	WorkGroupPush(itemID, nItems, dst, src, n, barrier, leaderFence)
}

// workGroupCopy computes itemID's byte range of [0, n) among nItems
// cooperating items and copies it. Each item's share is
// n/nItems rounded down, with the remainder distributed one byte at a
// time to the first items — that is enough to guarantee disjoint,
// exhaustive coverage without requiring n to be a multiple of nItems or
// of wideWordSize.
func workGroupCopy(itemID, nItems int, dst, src uintptr, n uint64) {
	if nItems <= 0 || n == 0 {
		return
	}
	share := n / uint64(nItems)
	rem := n % uint64(nItems)

	var start uint64
	if uint64(itemID) < rem {
		start = uint64(itemID) * (share + 1)
		share++
	} else {
		start = rem*(share+1) + (uint64(itemID)-rem)*share
	}
	if share == 0 {
		return
	}
	copyAligned(dst+uintptr(start), src+uintptr(start), share)
}

// copyAligned copies n bytes, splitting off head and tail bytes that
// don't fall on a wideWordSize boundary (spec.md §4.E: "pre-handle
// head/tail misalignment by distributing per-item element copies before
// and after the aligned body") and moving the aligned middle section a
// wideWord at a time.
func copyAligned(dst, src uintptr, n uint64) {
	head := uint64(wideWordSize) - uint64(src)%uint64(wideWordSize)
	if head == uint64(wideWordSize) {
		head = 0
	}
	if head > n {
		head = n
	}
	copyBytes(dst, src, head)

	mid := n - head
	words := mid / uint64(wideWordSize)
	for i := uint64(0); i < words; i++ {
		off := uintptr(head + i*uint64(wideWordSize))
		p := (*wideWord)(unsafe.Pointer(src + off))
		q := (*wideWord)(unsafe.Pointer(dst + off))
		*q = *p
	}

	tailOff := head + words*uint64(wideWordSize)
	copyBytes(dst+uintptr(tailOff), src+uintptr(tailOff), n-tailOff)
}

// WorkGroupFence establishes the release fence spec.md §4.H requires at
// a work-group leader before any subsequent proxy request that depends
// on a just-completed cooperative copy. It is a standalone helper so
// callers that build their own barrier (rather than using
// WorkGroupPush/Pull's built-in sync.WaitGroup) can still get the
// correct ordering.
func WorkGroupFence() {
	var dummy atomix.Uint64
	dummy.StoreRelease(1)
}
