// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import "testing"

func TestHeapInfoAdjustSelfIsIdentity(t *testing.T) {
	h := NewHeapInfo(0, 4)
	h.SetHeap(0x1000, 0x100)
	if got := h.AdjustSelf(0x1010); got != 0x1010 {
		t.Fatalf("AdjustSelf: got %#x, want %#x", got, 0x1010)
	}
}

func TestHeapInfoAdjustPeer(t *testing.T) {
	h := NewHeapInfo(0, 4)
	h.SetHeap(0x1000, 0x100)
	h.SetPeerDelta(1, 0x500)
	if got := h.Adjust(1, 0x1010); got != 0x1510 {
		t.Fatalf("Adjust: got %#x, want %#x", got, 0x1510)
	}
}

func TestHeapInfoInHeap(t *testing.T) {
	h := NewHeapInfo(0, 2)
	h.SetHeap(0x2000, 0x100)

	cases := []struct {
		p    uintptr
		want bool
	}{
		{0x2000, true},
		{0x20FF, true},
		{0x2100, false},
		{0x1FFF, false},
	}
	for _, c := range cases {
		if got := h.InHeap(c.p); got != c.want {
			t.Errorf("InHeap(%#x): got %v, want %v", c.p, got, c.want)
		}
	}
}

func TestHeapInfoLocalRankOf(t *testing.T) {
	h := NewHeapInfo(0, 3)
	rank, ok := h.LocalRankOf(2)
	if !ok || rank != 2 {
		t.Fatalf("LocalRankOf(2): got (%d, %v), want (2, true)", rank, ok)
	}
	if _, ok := h.LocalRankOf(99); ok {
		t.Fatalf("LocalRankOf(99): expected not found")
	}
}
