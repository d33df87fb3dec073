// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy_test

import (
	"context"
	"testing"
	"unsafe"

	"code.hybscloud.com/ishmemproxy"
	"code.hybscloud.com/ishmemproxy/internal/backend"
	"code.hybscloud.com/ishmemproxy/internal/config"
)

// twoPEWorld wires up a loopback Backend and a Device+Proxy pair per PE,
// matching spec.md §8's end-to-end scenarios (n_pes = 2).
type twoPEWorld struct {
	devices [2]*ishmemproxy.Device
	cancel  context.CancelFunc
}

func newTwoPEWorld(t *testing.T) *twoPEWorld {
	t.Helper()
	const heapSize = 1 << 16
	world := backend.NewWorld(2, heapSize)
	ctx, cancel := context.WithCancel(context.Background())
	w := &twoPEWorld{cancel: cancel}

	for pe := int32(0); pe < 2; pe++ {
		heap := ishmemproxy.NewHeapInfo(pe, 2)
		b := world.PE(pe)
		if err := b.Init(ctx, pe, 2); err != nil {
			t.Fatalf("pe %d Init: %v", pe, err)
		}
		base, err := b.Malloc(heapSize)
		if err != nil {
			t.Fatalf("pe %d Malloc: %v", pe, err)
		}
		heap.SetHeap(base, heapSize)

		dev := ishmemproxy.NewDevice(heap, b, config.Default(), true)
		dev.SetOnFatal(func(err error) { t.Errorf("device fatal: %v", err) })
		w.devices[pe] = dev
		go dev.NewProxy().Run(ctx)
	}
	t.Cleanup(func() {
		w.devices[0].Kill()
		w.devices[1].Kill()
		cancel()
	})
	return w
}

func (w *twoPEWorld) heapAddr(pe int32, offset uintptr) uintptr {
	return w.devices[pe].HeapInfo().HeapBase + offset
}

func writeU64(addr uintptr, v uint64)  { *(*uint64)(unsafe.Pointer(addr)) = v }
func readU64(addr uintptr) uint64      { return *(*uint64)(unsafe.Pointer(addr)) }
func writeI32(addr uintptr, v int32)   { *(*int32)(unsafe.Pointer(addr)) = v }
func readI32(addr uintptr) int32       { return *(*int32)(unsafe.Pointer(addr)) }

// Scenario 1: put 16 i64 elements, observe them on the peer after quiet.
//
// A symmetric-heap address is the same relative offset at every PE but
// a different real pointer per PE's own backing array, so the value
// passed to a Device call is always built from the issuing PE's own
// view (issueAddr); verifyAddr, built from PE 1's own view, is used
// only to peek/poke PE 1's backing memory directly in the test itself.
func TestE2EPutQuietRoundTrip(t *testing.T) {
	w := newTwoPEWorld(t)
	const n = 16

	src := make([]uint64, n)
	for i := range src {
		src[i] = 0xA1 + uint64(i)
	}
	issueAddr := w.heapAddr(0, 0)
	for i := 0; i < n; i++ {
		writeU64(w.heapAddr(1, uintptr(i)*8), 0)
	}

	if err := w.devices[0].Put(ishmemproxy.TypeI64, 1, issueAddr, uintptr(unsafe.Pointer(&src[0])), n); err != nil {
		t.Fatalf("Put: %v", err)
	}
	w.devices[0].Quiet()

	for i := 0; i < n; i++ {
		got := readU64(w.heapAddr(1, uintptr(i)*8))
		if got != src[i] {
			t.Fatalf("dest[%d]: got %#x, want %#x", i, got, src[i])
		}
	}
}

// Scenario 2: fetch-add twice, observing 10, then 15, final 20.
func TestE2EAtomicFetchAdd(t *testing.T) {
	w := newTwoPEWorld(t)
	issueAddr := w.heapAddr(0, 0x100)
	verifyAddr := w.heapAddr(1, 0x100)
	writeU64(verifyAddr, 10)

	first, err := w.devices[0].AtomicFetchAdd(ishmemproxy.TypeU64, 1, issueAddr, 5)
	if err != nil {
		t.Fatalf("AtomicFetchAdd #1: %v", err)
	}
	second, err := w.devices[0].AtomicFetchAdd(ishmemproxy.TypeU64, 1, issueAddr, 5)
	if err != nil {
		t.Fatalf("AtomicFetchAdd #2: %v", err)
	}

	if first != 10 {
		t.Fatalf("first fetch_add: got %d, want 10", first)
	}
	if second != 15 {
		t.Fatalf("second fetch_add: got %d, want 15", second)
	}
	if got := readU64(verifyAddr); got != 20 {
		t.Fatalf("final value: got %d, want 20", got)
	}
}

// Scenario 3: compare_swap(cond=7, new=42) then again with initial 42.
func TestE2ECompareSwap(t *testing.T) {
	w := newTwoPEWorld(t)
	issueAddr := w.heapAddr(0, 0x200)
	verifyAddr := w.heapAddr(1, 0x200)
	writeI32(verifyAddr, 7)

	got, err := w.devices[0].AtomicCompareSwap(ishmemproxy.TypeI32, 1, issueAddr, 7, 42)
	if err != nil {
		t.Fatalf("cswap #1: %v", err)
	}
	if got != 7 {
		t.Fatalf("cswap #1 returned %d, want 7", got)
	}
	if v := readI32(verifyAddr); v != 42 {
		t.Fatalf("after cswap #1: got %d, want 42", v)
	}

	got, err = w.devices[0].AtomicCompareSwap(ishmemproxy.TypeI32, 1, issueAddr, 7, 99)
	if err != nil {
		t.Fatalf("cswap #2: %v", err)
	}
	if got != 42 {
		t.Fatalf("cswap #2 returned %d, want 42", got)
	}
	if v := readI32(verifyAddr); v != 42 {
		t.Fatalf("after cswap #2: got %d, want unchanged 42", v)
	}
}

// Scenario 4: broadcast from root 0 reaches every PE.
func TestE2EBroadcast(t *testing.T) {
	w := newTwoPEWorld(t)
	const n = 4

	src := []uint64{1, 2, 3, 4}
	for i := 0; i < n; i++ {
		writeU64(w.heapAddr(0, uintptr(i)*8), src[i])
		writeU64(w.heapAddr(1, uintptr(i)*8), 9)
	}

	if err := w.devices[0].Broadcast(ishmemproxy.TypeI64, 0, w.heapAddr(0, 0), n); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	for pe := int32(0); pe < 2; pe++ {
		for i := 0; i < n; i++ {
			got := readU64(w.heapAddr(pe, uintptr(i)*8))
			if got != src[i] {
				t.Fatalf("pe %d dest[%d]: got %d, want %d", pe, i, got, src[i])
			}
		}
	}
}

// Scenario 5: sum_reduce over src=[pe+1..pe+4] yields [3,5,7,9] on both PEs.
func TestE2ESumReduce(t *testing.T) {
	w := newTwoPEWorld(t)
	const n = 4

	for pe := int32(0); pe < 2; pe++ {
		for i := 0; i < n; i++ {
			writeU64(w.heapAddr(pe, 0x1000+uintptr(i)*8), uint64(pe)+uint64(i)+1)
		}
	}

	want := []uint64{3, 5, 7, 9}
	for pe := int32(0); pe < 2; pe++ {
		if err := w.devices[pe].SumReduce(ishmemproxy.TypeI64, w.heapAddr(pe, 0x2000), w.heapAddr(pe, 0x1000), n); err != nil {
			t.Fatalf("pe %d SumReduce: %v", pe, err)
		}
	}

	for pe := int32(0); pe < 2; pe++ {
		for i := 0; i < n; i++ {
			got := readU64(w.heapAddr(pe, 0x2000+uintptr(i)*8))
			if got != want[i] {
				t.Fatalf("pe %d dest[%d]: got %d, want %d", pe, i, got, want[i])
			}
		}
	}
}

// Scenario 6: put_nbi followed by quiet then get observes the put.
func TestE2EPutNBIThenQuietThenGet(t *testing.T) {
	w := newTwoPEWorld(t)
	src := uint64(777)
	issueAddr := w.heapAddr(0, 0x300)
	verifyAddr := w.heapAddr(1, 0x300)
	writeU64(verifyAddr, 0)

	if err := w.devices[0].PutNBI(ishmemproxy.TypeU64, 1, issueAddr, uintptr(unsafe.Pointer(&src)), 1); err != nil {
		t.Fatalf("PutNBI: %v", err)
	}
	w.devices[0].Quiet()

	var got uint64
	if err := w.devices[0].Get(ishmemproxy.TypeU64, 1, uintptr(unsafe.Pointer(&got)), issueAddr, 1); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != src {
		t.Fatalf("Get after quiet: got %d, want %d", got, src)
	}
}

