// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"context"
	"log/slog"

	"code.hybscloud.com/spin"
)

// Proxy is the host-side loop of spec.md §4.F: one goroutine draining a
// Ring, dispatching each Record through Dispatch, writing results back
// to the CompletionTable, and republishing its consumer position. It
// runs the state machine READY -> PROCESSING -> (REQUEST | EXIT) ->
// READY, where EXIT is reached by an OpKill record and is terminal.
type Proxy struct {
	ring    *Ring
	table   *CompletionTable
	heap    *HeapInfo
	backend Backend
	burst   int
	log     *slog.Logger
}

// NewProxy creates a Proxy over the given Ring/CompletionTable/HeapInfo,
// dispatching into backend. burst bounds how many idle poll iterations
// run before Wait.Once backs off (spec.md §6's MWAIT_BURST).
func NewProxy(ring *Ring, table *CompletionTable, heap *HeapInfo, backend Backend, burst int) *Proxy {
	if burst <= 0 {
		burst = 100
	}
	return &Proxy{ring: ring, table: table, heap: heap, backend: backend, burst: burst, log: slog.Default()}
}

// Run drains the ring until an OpKill record is dispatched or ctx is
// cancelled. A backend failure during dispatch is fatal per spec.md §7:
// Run logs a diagnostic and returns the error rather than retrying or
// skipping the record.
func (p *Proxy) Run(ctx context.Context) error {
	sw := spin.Wait{}
	idle := 0

	for {
		if err := ctx.Err(); err != nil {
			p.ring.Flush()
			return err
		}

		rec, ok := p.ring.Poll()
		if !ok {
			idle++
			if idle >= p.burst {
				sw.Once()
			}
			continue
		}
		idle = 0
		sw.Reset()

		if rec.Op == OpKill {
			p.ring.Flush()
			return nil
		}

		ret, err := Dispatch(ctx, &rec, p.heap, p.backend)
		if err != nil {
			p.log.Error("ishmemproxy: backend dispatch failed", "op", rec.Op, "type", rec.Type, "err", err)
			p.ring.Flush()
			return err
		}

		if rec.Completion != 0 {
			slot := uint32(rec.Completion)
			p.table.SetResult(slot, ret)
			p.table.Signal(slot)
		}
	}
}
