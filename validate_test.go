// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import "testing"

func TestValidatePE(t *testing.T) {
	if err := validatePE(OpPut, 1, 4); err != nil {
		t.Fatalf("validatePE(1, 4): unexpected error %v", err)
	}
	if err := validatePE(OpPut, 4, 4); err == nil {
		t.Fatalf("validatePE(4, 4): expected error")
	}
	if err := validatePE(OpPut, -1, 4); err == nil {
		t.Fatalf("validatePE(-1, 4): expected error")
	}
}

func TestValidateInHeap(t *testing.T) {
	h := NewHeapInfo(0, 2)
	h.SetHeap(0x1000, 0x100)

	if err := validateInHeap(OpPut, h, 0x1000, 0x100); err != nil {
		t.Fatalf("validateInHeap: unexpected error %v", err)
	}
	if err := validateInHeap(OpPut, h, 0x10F0, 0x20); err == nil {
		t.Fatalf("validateInHeap: expected error for out-of-range tail")
	}
}

func TestValidateDisjoint(t *testing.T) {
	if err := validateDisjoint(OpSumReduce, 0x1000, 0x1000, 0x10); err != nil {
		t.Fatalf("validateDisjoint: equal buffers should be allowed, got %v", err)
	}
	if err := validateDisjoint(OpSumReduce, 0x1000, 0x1008, 0x10); err == nil {
		t.Fatalf("validateDisjoint: expected error for overlapping buffers")
	}
	if err := validateDisjoint(OpSumReduce, 0x1000, 0x1010, 0x10); err != nil {
		t.Fatalf("validateDisjoint: adjacent non-overlapping buffers should be allowed, got %v", err)
	}
}

func TestValidateStride(t *testing.T) {
	if err := validateStride(OpIPut, 1); err != nil {
		t.Fatalf("validateStride(1): unexpected error %v", err)
	}
	if err := validateStride(OpIPut, 0); err == nil {
		t.Fatalf("validateStride(0): expected error")
	}
	if err := validateStride(OpIPut, -1); err == nil {
		t.Fatalf("validateStride(-1): expected error")
	}
}
