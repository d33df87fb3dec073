// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package backend holds concrete implementations of ishmemproxy.Backend.
package backend

import (
	"context"
	"fmt"
	"math"
	"sync"
	"unsafe"

	"code.hybscloud.com/ishmemproxy"
)

// Loopback is a single-process reference Backend: every PE's symmetric
// heap lives in the same address space, so RMA and atomics are plain
// memory copies guarded by one mutex per world. It has no network
// dependency at all, which is the point — it exists so the proxy,
// Device and end-to-end tests in this module can run without a real
// MPI or OpenSHMEM runtime (spec.md §1 names both as out of scope
// beyond the Backend interface they'd implement).
//
// A Loopback is shared by every PE in the world; construct one with
// NewWorld and hand each PE its own *Loopback.PE view.
type Loopback struct {
	mu      sync.Mutex
	nPEs    int32
	heaps   [][]byte // per-PE symmetric heap backing store
	heapPtr []uintptr
}

// NewWorld creates a Loopback world of nPEs peers, each with a
// symmetric heap of heapSize bytes.
func NewWorld(nPEs int32, heapSize uintptr) *Loopback {
	l := &Loopback{
		nPEs:    nPEs,
		heaps:   make([][]byte, nPEs),
		heapPtr: make([]uintptr, nPEs),
	}
	for i := range l.heaps {
		l.heaps[i] = make([]byte, heapSize)
		l.heapPtr[i] = uintptr(unsafe.Pointer(&l.heaps[i][0]))
	}
	return l
}

// PE returns the ishmemproxy.Backend view for local rank pe of world l.
func (l *Loopback) PE(pe int32) *PEView { return &PEView{world: l, pe: pe} }

// PEView is the per-PE Backend handle into a shared Loopback world.
type PEView struct {
	world *Loopback
	pe    int32
}

var _ ishmemproxy.Backend = (*PEView)(nil)

func (v *PEView) Init(_ context.Context, myPE, nPEs int32) error {
	if myPE != v.pe || nPEs != v.world.nPEs {
		return fmt.Errorf("backend: PEView constructed for PE %d/%d, Init called with %d/%d", v.pe, v.world.nPEs, myPE, nPEs)
	}
	return nil
}

func (v *PEView) Finalize() error { return nil }

func (v *PEView) Malloc(size uintptr) (uintptr, error) {
	v.world.mu.Lock()
	defer v.world.mu.Unlock()
	base := v.world.heapPtr[v.pe]
	if size > uintptr(len(v.world.heaps[v.pe])) {
		return 0, fmt.Errorf("backend: requested %d bytes exceeds loopback heap", size)
	}
	return base, nil
}

func (v *PEView) Free(uintptr) error { return nil }

// bytesAtOffset returns the n bytes at offset off within pe's symmetric
// heap. Every Backend entry point below except RMA's local side deals
// exclusively in offsets: the proxy (dispatch.go) normalizes a Record's
// symmetric-heap pointer into an offset from the dispatching PE's own
// heap base before calling here, and because every PE's heap has the
// same shape, that same offset locates the corresponding byte range in
// any other PE's heaps[] entry.
func (v *PEView) bytesAtOffset(pe int32, off uintptr, n uint64) []byte {
	return v.world.heaps[pe][off : off+uintptr(n)]
}

// localBytes views a real pointer in this process directly, for the
// non-symmetric side of an RMA (the caller's own source or destination
// buffer, which need not live in any PE's symmetric heap at all).
func localBytes(p uintptr, n uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
}

func (v *PEView) RMA(_ context.Context, peer int32, toPeer bool, local, peerOffset uintptr, nbytes uint64) error {
	v.world.mu.Lock()
	defer v.world.mu.Unlock()
	localSide := localBytes(local, nbytes)
	peerSide := v.bytesAtOffset(peer, peerOffset, nbytes)
	if toPeer {
		copy(peerSide, localSide)
	} else {
		copy(localSide, peerSide)
	}
	return nil
}

func (v *PEView) AMO(_ context.Context, peer int32, op ishmemproxy.OpCode, typ ishmemproxy.TypeCode, peerOffset uintptr, operand, compare uint64) (uint64, error) {
	v.world.mu.Lock()
	defer v.world.mu.Unlock()
	sz := ishmemproxy.TypeSizeBytes(typ)
	dst := v.bytesAtOffset(peer, peerOffset, uint64(sz))
	cur := loadUint(dst)
	next, ret := applyAMO(op, typ, cur, operand, compare)
	storeUint(dst, next)
	return ret, nil
}

func (v *PEView) Sync(context.Context) error { return nil }

func (v *PEView) Broadcast(_ context.Context, root int32, offset uintptr, nbytes uint64) error {
	v.world.mu.Lock()
	defer v.world.mu.Unlock()
	src := v.bytesAtOffset(root, offset, nbytes)
	for pe := int32(0); pe < v.world.nPEs; pe++ {
		if pe == root {
			continue
		}
		copy(v.bytesAtOffset(pe, offset, nbytes), src)
	}
	return nil
}

func (v *PEView) Collect(_ context.Context, dstOffset, srcOffset uintptr, nbytes uint64, _ bool) error {
	v.world.mu.Lock()
	defer v.world.mu.Unlock()
	out := v.bytesAtOffset(v.pe, dstOffset, nbytes*uint64(v.world.nPEs))
	for pe := int32(0); pe < v.world.nPEs; pe++ {
		copy(out[uint64(pe)*nbytes:uint64(pe+1)*nbytes], v.bytesAtOffset(pe, srcOffset, nbytes))
	}
	return nil
}

func (v *PEView) AllToAll(_ context.Context, dstOffset, srcOffset uintptr, nbytesPerPE uint64) error {
	v.world.mu.Lock()
	defer v.world.mu.Unlock()
	n := uint64(v.world.nPEs)
	for pe := int32(0); pe < v.world.nPEs; pe++ {
		srcChunk := v.bytesAtOffset(v.pe, srcOffset, nbytesPerPE*n)[uint64(pe)*nbytesPerPE : uint64(pe+1)*nbytesPerPE]
		dstChunk := v.bytesAtOffset(pe, dstOffset, nbytesPerPE*n)[uint64(v.pe)*nbytesPerPE : uint64(v.pe+1)*nbytesPerPE]
		copy(dstChunk, srcChunk)
	}
	return nil
}

func (v *PEView) Reduce(_ context.Context, op ishmemproxy.OpCode, typ ishmemproxy.TypeCode, dstOffset, srcOffset uintptr, nelems uint64) error {
	v.world.mu.Lock()
	defer v.world.mu.Unlock()
	sz := uint64(ishmemproxy.TypeSizeBytes(typ))
	out := v.bytesAtOffset(v.pe, dstOffset, nelems*sz)
	for pe := int32(0); pe < v.world.nPEs; pe++ {
		in := v.bytesAtOffset(pe, srcOffset, nelems*sz)
		for i := uint64(0); i < nelems; i++ {
			a := loadUint(out[i*sz : (i+1)*sz])
			b := loadUint(in[i*sz : (i+1)*sz])
			var r uint64
			if pe == 0 {
				r = b
			} else {
				r = reduceCombine(op, typ, a, b)
			}
			storeUint(out[i*sz:(i+1)*sz], r)
		}
	}
	return nil
}

func loadUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func storeUint(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}

func applyAMO(op ishmemproxy.OpCode, typ ishmemproxy.TypeCode, cur, operand, compare uint64) (next, ret uint64) {
	switch op {
	case ishmemproxy.OpAMOFetch:
		return cur, cur
	case ishmemproxy.OpAMOSet:
		return operand, operand
	case ishmemproxy.OpAMOCswap:
		if cur == compare {
			return operand, cur
		}
		return cur, cur
	case ishmemproxy.OpAMOSwap:
		return operand, cur
	case ishmemproxy.OpAMOFetchInc:
		return cur + 1, cur
	case ishmemproxy.OpAMOInc:
		return cur + 1, 0
	case ishmemproxy.OpAMOFetchAdd:
		return addTyped(typ, cur, operand), cur
	case ishmemproxy.OpAMOAdd:
		return addTyped(typ, cur, operand), 0
	case ishmemproxy.OpAMOFetchAnd:
		return cur & operand, cur
	case ishmemproxy.OpAMOAnd:
		return cur & operand, 0
	case ishmemproxy.OpAMOFetchOr:
		return cur | operand, cur
	case ishmemproxy.OpAMOOr:
		return cur | operand, 0
	case ishmemproxy.OpAMOFetchXor:
		return cur ^ operand, cur
	case ishmemproxy.OpAMOXor:
		return cur ^ operand, 0
	default:
		return cur, cur
	}
}

func reduceCombine(op ishmemproxy.OpCode, typ ishmemproxy.TypeCode, a, b uint64) uint64 {
	switch op {
	case ishmemproxy.OpAndReduce:
		return a & b
	case ishmemproxy.OpOrReduce:
		return a | b
	case ishmemproxy.OpMinReduce:
		if lessTyped(typ, b, a) {
			return b
		}
		return a
	case ishmemproxy.OpMaxReduce:
		if lessTyped(typ, a, b) {
			return b
		}
		return a
	case ishmemproxy.OpSumReduce:
		return addTyped(typ, a, b)
	case ishmemproxy.OpProdReduce:
		return mulTyped(typ, a, b)
	default:
		return a
	}
}

// addTyped, mulTyped and lessTyped reinterpret the raw uint64 payload
// according to typ before doing arithmetic, so float reductions and
// atomics combine as IEEE-754 values rather than bit patterns.
func addTyped(typ ishmemproxy.TypeCode, a, b uint64) uint64 {
	switch typ {
	case ishmemproxy.TypeF32:
		return uint64(math.Float32bits(math.Float32frombits(uint32(a)) + math.Float32frombits(uint32(b))))
	case ishmemproxy.TypeF64:
		return math.Float64bits(math.Float64frombits(a) + math.Float64frombits(b))
	default:
		return a + b
	}
}

func mulTyped(typ ishmemproxy.TypeCode, a, b uint64) uint64 {
	switch typ {
	case ishmemproxy.TypeF32:
		return uint64(math.Float32bits(math.Float32frombits(uint32(a)) * math.Float32frombits(uint32(b))))
	case ishmemproxy.TypeF64:
		return math.Float64bits(math.Float64frombits(a) * math.Float64frombits(b))
	default:
		return a * b
	}
}

func lessTyped(typ ishmemproxy.TypeCode, a, b uint64) bool {
	switch typ {
	case ishmemproxy.TypeF32:
		return math.Float32frombits(uint32(a)) < math.Float32frombits(uint32(b))
	case ishmemproxy.TypeF64:
		return math.Float64frombits(a) < math.Float64frombits(b)
	case ishmemproxy.TypeI8:
		return int8(a) < int8(b)
	case ishmemproxy.TypeI16, ishmemproxy.TypeShort:
		return int16(a) < int16(b)
	case ishmemproxy.TypeI32, ishmemproxy.TypeInt:
		return int32(a) < int32(b)
	case ishmemproxy.TypeI64, ishmemproxy.TypeLong, ishmemproxy.TypeLongLong, ishmemproxy.TypePtrdiff:
		return int64(a) < int64(b)
	default:
		return a < b
	}
}
