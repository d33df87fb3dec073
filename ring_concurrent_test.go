// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !race

package ishmemproxy

import (
	"sync"
	"testing"

	"code.hybscloud.com/atomix"
)

// TestRingManyProducersOneConsumer exercises the genuine MPSC path: many
// goroutines calling Send concurrently against one goroutine polling.
// Excluded under -race: the race detector cannot observe the
// atomix-mediated happens-before edge between a slot's payload store and
// its cycle release (see doc.go, "Race detection").
func TestRingManyProducersOneConsumer(t *testing.T) {
	var pr atomix.Uint32
	r := NewRing(64, &pr)

	const producers = 16
	const perProducer = 200
	total := producers * perProducer

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.Send(&Record{DestPE: int32(p), NElems: uint64(i)})
			}
		}(p)
	}

	received := 0
	done := make(chan struct{})
	go func() {
		for received < total {
			if _, ok := r.Poll(); ok {
				received++
			}
		}
		close(done)
	}()

	wg.Wait()
	<-done

	if received != total {
		t.Fatalf("received %d records, want %d", received, total)
	}
}
