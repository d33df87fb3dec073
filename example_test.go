// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy_test

import (
	"context"
	"fmt"
	"unsafe"

	"code.hybscloud.com/ishmemproxy"
	"code.hybscloud.com/ishmemproxy/internal/backend"
	"code.hybscloud.com/ishmemproxy/internal/config"
)

// Example demonstrates the minimal wiring for one PE: a loopback Backend,
// a HeapInfo, a Device and its Proxy, then a blocking Put followed by
// Quiet to observe the result.
func Example() {
	const nPEs = 2
	world := backend.NewWorld(nPEs, 1<<16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	devices := make([]*ishmemproxy.Device, nPEs)
	for pe := int32(0); pe < nPEs; pe++ {
		heap := ishmemproxy.NewHeapInfo(pe, nPEs)
		b := world.PE(pe)
		if err := b.Init(ctx, pe, nPEs); err != nil {
			fmt.Println("init error:", err)
			return
		}
		base, err := b.Malloc(1 << 16)
		if err != nil {
			fmt.Println("malloc error:", err)
			return
		}
		heap.SetHeap(base, 1<<16)
		devices[pe] = ishmemproxy.NewDevice(heap, b, config.Default(), true)
		go devices[pe].NewProxy().Run(ctx)
	}
	defer devices[0].Kill()
	defer devices[1].Kill()

	src := uint64(99)
	issueAddr := devices[0].HeapInfo().HeapBase
	verifyAddr := devices[1].HeapInfo().HeapBase
	if err := devices[0].Put(ishmemproxy.TypeU64, 1, issueAddr, uintptr(unsafe.Pointer(&src)), 1); err != nil {
		fmt.Println("put error:", err)
		return
	}
	devices[0].Quiet()

	fmt.Println(*(*uint64)(unsafe.Pointer(verifyAddr)))
	// Output: 99
}
