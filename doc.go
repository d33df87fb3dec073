// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ishmemproxy implements the device↔host command proxy at the
// heart of a GPU-resident, SHMEM-style symmetric-heap communication
// library: a fixed-capacity request ring shared between many concurrent
// issuers and one host-side proxy, a completion-slot allocator for
// blocking and value-returning requests, symmetric-heap addressing
// between peer PEs, and the host loop that drains the ring and dispatches
// into a pluggable runtime Backend.
//
// # Model
//
// A GPU kernel thread ("work-item" in SHMEM terminology) is represented
// here as a goroutine calling into [Device]'s methods. [Device] decides,
// per spec.md's cutover policy, whether an operation can be satisfied
// directly against a peer's mapped IPC alias or must be proxied: built
// into a [Record], handed to the [Ring], and — for blocking or
// value-returning shapes — paired with a slot from the [CompletionTable].
//
// The host-side [Proxy] drains the Ring on its own goroutine, dispatches
// each Record by (Op, Type) through [Dispatch] into a [Backend], writes
// any result back into the completion slot, and republishes its consumer
// position so producers can reuse ring slots.
//
// # Quick start
//
//	world := backend.NewWorld(nPEs, heapSize) // reference Backend for single-process tests
//	b := world.PE(myPE)
//	if err := b.Init(ctx, myPE, nPEs); err != nil {
//	    log.Fatal(err)
//	}
//	base, err := b.Malloc(heapSize)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	heap := ishmemproxy.NewHeapInfo(myPE, nPEs)
//	heap.SetHeap(base, heapSize)
//
//	dev := ishmemproxy.NewDevice(heap, b, config.Default(), true)
//	go dev.NewProxy().Run(ctx)
//
//	dst := heap.HeapBase + 0x100
//	if err := dev.Put(ishmemproxy.TypeU64, peerPE, dst, localSrc, 1); err != nil {
//	    log.Fatal(err)
//	}
//	dev.Quiet()
//
// # Thread safety
//
// [Ring] is multi-producer/single-consumer: any number of goroutines may
// call Send concurrently; only the one goroutine running [Proxy.Run] may
// drain it. [CompletionTable] is safe for concurrent Allocate/Wait/Free
// from any number of goroutines, each operating on the slot it allocated.
// [Device] methods are safe to call from any number of goroutines.
//
// # Race detection
//
// As with the lock-free queues this package's ring is modeled on, Go's
// race detector cannot observe the happens-before edges established by
// [code.hybscloud.com/atomix]'s acquire/release atomics on separate
// fields (here: a Record's payload versus its Sequence word). Tests that
// exercise genuine cross-goroutine ring traffic are built with
// //go:build !race for this reason; see ring_concurrent_test.go.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors,
// [code.hybscloud.com/atomix] for atomic primitives with explicit memory
// ordering, [code.hybscloud.com/spin] for the producer/consumer/allocator
// spin loops, and [github.com/cloudwego/gopkg/container/ring] for the
// diagnostic message-buffer pool.
package ishmemproxy
