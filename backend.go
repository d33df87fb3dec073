// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import "context"

// Backend is the opaque runtime dispatcher the host proxy calls into for
// everything it cannot satisfy on its own: network-side RMA/atomics and
// collectives. spec.md §1 puts "the underlying network runtime" out of
// scope beyond its interface, and §4.F describes it as "a PE-addressed,
// symmetric-memory collective+RMA+reduction model whose calls block the
// proxy thread until locally complete" — that sentence is this
// interface. The reference implementations the spec names (MPI, an
// OpenSHMEM runtime) are not vendored here; internal/backend/loopback.go
// is the one concrete Backend this module ships, suitable for
// single-process tests and the §8 end-to-end scenarios.
//
// Every method is called only from the proxy's single goroutine
// (spec.md §5: "each blocking backend call" is one of the host-side
// suspension points) and is expected to block until the operation's
// local side effects are committed.
type Backend interface {
	Init(ctx context.Context, myPE, nPEs int32) error
	Finalize() error

	// Malloc/Free manage the portion of the symmetric heap the backend
	// itself is responsible for registering with the network layer
	// (e.g. RDMA memory registration). The core's own heap bookkeeping
	// (HeapInfo) is independent of this.
	Malloc(size uintptr) (uintptr, error)
	Free(addr uintptr) error

	// RMA performs a remote put (toPeer true) or get (toPeer false) of
	// nbytes between local and the given peer at peerAddr. local is a
	// real pointer in the proxy's own process (the caller's buffer,
	// which need not live in the symmetric heap); peerAddr has already
	// been translated by the proxy from a symmetric-heap pointer into
	// whatever addressing the Backend's network-side translation needs
	// (for the loopback Backend, an offset from peer's heap base).
	RMA(ctx context.Context, peer int32, toPeer bool, local, peerAddr uintptr, nbytes uint64) error

	// AMO performs one atomic memory operation against peerAddr on peer
	// and returns the value fetching variants report (the pre-operation
	// value, for cswap regardless of whether it swapped). Callers of the
	// non-fetching variants discard the returned value. peerAddr is
	// pre-translated the same way as RMA's.
	AMO(ctx context.Context, peer int32, op OpCode, typ TypeCode, peerAddr uintptr, operand, compare uint64) (uint64, error)

	// Sync is a full barrier across the world.
	Sync(ctx context.Context) error

	// Broadcast delivers root's nbytes at addr to every PE's copy of
	// addr. addr is a symmetric-heap address already translated by the
	// proxy, so it addresses the same logical location at every PE.
	Broadcast(ctx context.Context, root int32, addr uintptr, nbytes uint64) error

	// Collect gathers variable- (Collect) or fixed-size (FCollect)
	// contributions from every PE into dst, in PE order. dst and src
	// are symmetric-heap addresses, pre-translated like Broadcast's addr.
	Collect(ctx context.Context, dst, src uintptr, nbytes uint64, fixed bool) error

	// AllToAll exchanges nbytes-per-peer blocks between every pair of
	// PEs. dst and src are symmetric-heap addresses.
	AllToAll(ctx context.Context, dst, src uintptr, nbytesPerPE uint64) error

	// Reduce combines nelems elements of typ from src across every PE
	// using op (one of the Op*Reduce codes) and writes the result to
	// dst. dst and src are symmetric-heap addresses.
	Reduce(ctx context.Context, op OpCode, typ TypeCode, dst, src uintptr, nelems uint64) error
}
