// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"sync"
	"testing"
)

func TestCompletionTableAllocateNeverReturnsZero(t *testing.T) {
	ct := NewCompletionTable(16)
	for i := 0; i < 100; i++ {
		slot := ct.Allocate()
		if slot == 0 {
			t.Fatalf("Allocate returned reserved slot 0")
		}
		ct.Free(slot)
	}
}

func TestCompletionTableWaitSignal(t *testing.T) {
	ct := NewCompletionTable(4)
	slot := ct.Allocate()

	done := make(chan struct{})
	go func() {
		ct.Wait(slot)
		close(done)
	}()

	if ct.TryWait(slot) {
		t.Fatalf("TryWait observed completion before Signal")
	}

	ct.SetResult(slot, 0xDEADBEEF)
	ct.Signal(slot)
	<-done

	if got := CompletionResult[uint64](ct, slot); got != 0xDEADBEEF {
		t.Fatalf("CompletionResult: got %#x, want %#x", got, 0xDEADBEEF)
	}
	ct.Free(slot)
}

func TestCompletionTableConcurrentAllocate(t *testing.T) {
	ct := NewCompletionTable(32)
	seen := make([]int32, 33)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				slot := ct.Allocate()
				seen[slot]++
				ct.Free(slot)
			}
		}()
	}
	wg.Wait()

	if seen[0] != 0 {
		t.Fatalf("slot 0 was allocated %d times, want 0", seen[0])
	}
}

func TestCompletionResultTypedWidths(t *testing.T) {
	ct := NewCompletionTable(4)
	slot := ct.Allocate()
	defer ct.Free(slot)

	ct.SetResult(slot, uint64(int32(-5)))
	if got := CompletionResult[int32](ct, slot); got != -5 {
		t.Fatalf("CompletionResult[int32]: got %d, want -5", got)
	}
}
