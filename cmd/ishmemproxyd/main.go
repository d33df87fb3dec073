// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command ishmemproxyd is a minimal demonstration of wiring a Device, a
// Proxy and the loopback Backend together for a single-process,
// two-PE world. It is not the parent library's launcher (spec.md §1
// puts "process launch, PE discovery" out of scope); it exists to show
// the wiring this module expects a real launcher to perform.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"code.hybscloud.com/ishmemproxy"
	"code.hybscloud.com/ishmemproxy/internal/backend"
	"code.hybscloud.com/ishmemproxy/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ishmemproxyd: fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	const nPEs = 2
	cfg := config.FromEnv()

	world := backend.NewWorld(nPEs, uintptr(cfg.SymmetricSize))
	devices := make([]*ishmemproxy.Device, nPEs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for pe := int32(0); pe < nPEs; pe++ {
		heap := ishmemproxy.NewHeapInfo(pe, nPEs)
		b := world.PE(pe)
		if err := b.Init(ctx, pe, nPEs); err != nil {
			return fmt.Errorf("pe %d init: %w", pe, err)
		}
		base, err := b.Malloc(uintptr(cfg.SymmetricSize))
		if err != nil {
			return fmt.Errorf("pe %d malloc: %w", pe, err)
		}
		heap.SetHeap(base, uintptr(cfg.SymmetricSize))

		dev := ishmemproxy.NewDevice(heap, b, cfg, cfg.Debug)
		devices[pe] = dev
		go dev.NewProxy().Run(ctx)
	}

	// issueAddr is PE 0's own view of the symmetric address being put
	// to; verifyAddr is PE 1's own real backing pointer for the same
	// offset, used only to read the result back directly in this demo
	// (a real work-item would never see a peer's raw pointer).
	src := uint64(42)
	issueAddr := devices[0].HeapInfo().HeapBase
	verifyAddr := devices[1].HeapInfo().HeapBase
	if err := devices[0].Put(ishmemproxy.TypeU64, 1, issueAddr, uintptr(unsafe.Pointer(&src)), 1); err != nil {
		return err
	}
	devices[0].Quiet()

	got := *(*uint64)(unsafe.Pointer(verifyAddr))
	fmt.Printf("pe1 observed %d\n", got)

	devices[0].Kill()
	devices[1].Kill()
	return nil
}
