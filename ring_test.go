// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"testing"

	"code.hybscloud.com/atomix"
)

func TestNewRingRejectsBadCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for non-power-of-two capacity")
		}
	}()
	var pr atomix.Uint32
	NewRing(3, &pr)
}

func TestRingSendPollSingleThreaded(t *testing.T) {
	var pr atomix.Uint32
	r := NewRing(8, &pr)

	for i := 0; i < 5; i++ {
		rec := &Record{Op: OpPut, NElems: uint64(i)}
		r.Send(rec)
	}

	for i := 0; i < 5; i++ {
		rec, ok := r.Poll()
		if !ok {
			t.Fatalf("Poll %d: expected a record", i)
		}
		if rec.NElems != uint64(i) {
			t.Fatalf("Poll %d: got NElems=%d, want %d", i, rec.NElems, i)
		}
	}

	if _, ok := r.Poll(); ok {
		t.Fatalf("Poll: expected empty ring")
	}
}

func TestRingFlowControl(t *testing.T) {
	var pr atomix.Uint32
	r := NewRing(4, &pr)

	for i := 0; i < 4; i++ {
		r.Send(&Record{NElems: uint64(i)})
	}

	done := make(chan struct{})
	go func() {
		r.Send(&Record{NElems: 99})
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Send returned before a slot was freed")
	default:
	}

	if _, ok := r.Poll(); !ok {
		t.Fatalf("Poll: expected a record to free a slot")
	}
	r.Flush()
	<-done
}

func TestRingSequenceStamped(t *testing.T) {
	var pr atomix.Uint32
	r := NewRing(4, &pr)
	rec := &Record{}
	r.Send(rec)
	if rec.Sequence != 0 {
		t.Fatalf("Sequence: got %d, want 0", rec.Sequence)
	}
}
