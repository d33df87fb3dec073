// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"math/bits"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// pad is cache line padding to prevent false sharing between the hot
// fields of Ring and CompletionTable, mirroring the teacher library's
// layout discipline.
type pad [64]byte

// ringSlot holds one Record plus the round counter that synchronizes
// producer and consumer. cycle is this slot's round number, expressed
// the way the teacher's FAA-based MPSC synchronizes its own slots
// (mpscSlot.cycle in mpsc.go): a slot is ready for the consumer exactly
// when cycle equals round+1, where round = position / capacity. The
// zero value is therefore naturally "not yet written" for round 0,
// needing no initialization loop.
//
// This is the mechanism spec.md §9 asks for under "record atomicity
// without a wide-store intrinsic": rec is written first (ordinary,
// non-atomic stores), then cycle is published last with release
// semantics, and the consumer's acquire-load of cycle is what makes the
// payload visible — Go has no single-transaction 64-byte store to fall
// back on, so the software-ordering branch of spec.md §4.C is the only
// option, and it is mandatory rather than an optimization.
type ringSlot struct {
	cycle atomix.Uint64
	rec   Record
}

// Ring is the fixed-capacity request ring of spec.md §4.C: many
// goroutines (work-items) enqueue via Send, and exactly one goroutine
// (the host proxy) dequeues via Poll. Capacity must be a power of two,
// at most 1<<16 (spec.md §9's second open question: Record.Sequence is
// 16 bits, so the host's wider nextReceive tracker must be able to
// distinguish ring generations by more than the wire field alone, which
// only holds if RingN itself fits in 16 bits).
type Ring struct {
	_           pad
	nextSend    atomix.Uint64 // producer FAA counter (my_index)
	_           pad
	peerReceive *atomix.Uint32 // device-visible consumer position; aliases a CompletionTable slot
	_           pad
	nextReceive uint64 // host-owned wide tracker; touched only by the proxy goroutine
	_           pad
	slots       []ringSlot
	capacity    uint64
	mask        uint64
	shift       uint
}

// NewRing creates a ring of the given power-of-two capacity. peerReceive
// must be the address the paired CompletionTable reserves for this
// purpose (CompletionTable.Alias). It starts at zero, matching nextSend
// and nextReceive: all three counters are 0-based consumed/produced
// counts from construction, so the flow-control gate in Send admits the
// first capacity sends immediately (mySend - 0 < capacity) without
// needing the proxy to run first.
func NewRing(capacity uint64, peerReceive *atomix.Uint32) *Ring {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		panic("ishmemproxy: ring capacity must be a power of two >= 2")
	}
	if capacity > 1<<16 {
		panic("ishmemproxy: ring capacity must fit in Record.Sequence's 16 bits")
	}
	peerReceive.StoreRelaxed(0)
	return &Ring{
		peerReceive: peerReceive,
		slots:       make([]ringSlot, capacity),
		capacity:    capacity,
		mask:        capacity - 1,
		shift:       uint(bits.TrailingZeros64(capacity)),
	}
}

// Cap returns the ring's capacity.
func (r *Ring) Cap() int { return int(r.capacity) }

// Send enqueues rec (multiple producers safe). It stamps rec.Sequence,
// blocks (spinning) until the flow-control window admits the write, then
// publishes the record for the proxy to consume.
//
// The flow-control check (spec.md §3 invariant 1, §4.C step 3) computes
// the pending count as a uint32 subtraction so it is correct across the
// producer counter's 32-bit-visible wraparound (spec.md §8's "peer_receive
// wrap" boundary case): peerReceive is only ever compared against the
// low 32 bits of the producer's position, and the true outstanding count
// never exceeds the ring's capacity, so the wraparound-correct unsigned
// difference always lands in [0, capacity).
func (r *Ring) Send(rec *Record) {
	mySend := r.nextSend.AddAcqRel(1) - 1
	rec.Sequence = uint16(mySend)

	sw := spin.Wait{}
	for uint32(mySend)-r.peerReceive.LoadAcquire() >= uint32(r.capacity) {
		sw.Once()
	}

	round := mySend >> r.shift
	slot := &r.slots[mySend&r.mask]
	slot.rec = *rec
	slot.cycle.StoreRelease(round + 1)
}

// Poll examines the next expected slot without blocking. It reports
// (record, true) if a new request is ready, advancing the consumer
// position and, every UpdateReceiveIntervalMask+1 records (or every
// capacity records, for a ring smaller than that), republishing that
// position to peerReceive so producers can reuse slots (spec.md §4.C,
// §4.F step 5).
func (r *Ring) Poll() (Record, bool) {
	round := r.nextReceive >> r.shift
	slot := &r.slots[r.nextReceive&r.mask]

	if slot.cycle.LoadAcquire() != round+1 {
		return Record{}, false
	}

	rec := slot.rec
	r.nextReceive++
	if r.nextReceive&UpdateReceiveIntervalMask == 0 || r.nextReceive&r.mask == 0 {
		r.peerReceive.StoreRelease(uint32(r.nextReceive))
	}
	return rec, true
}

// Flush unconditionally republishes the consumer position, bypassing the
// throttled cadence. The proxy calls this once before exiting so a final
// partial batch of freed slots is not stranded behind the
// UpdateReceiveIntervalMask cadence.
func (r *Ring) Flush() {
	r.peerReceive.StoreRelease(uint32(r.nextReceive))
}

// NextReceive returns the host's current consumer position, for tests
// and diagnostics.
func (r *Ring) NextReceive() uint64 { return r.nextReceive }
