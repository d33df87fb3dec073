// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

// validatePE checks 0 ≤ pe < nPEs (spec.md §4.G).
func validatePE(op OpCode, pe, nPEs int32) error {
	if pe < 0 || pe >= nPEs {
		return &ValidationError{Op: op, Reason: "PE out of range"}
	}
	return nil
}

// validateInHeap checks that [ptr, ptr+size) lies within the local
// symmetric heap (spec.md §4.G).
func validateInHeap(op OpCode, h *HeapInfo, ptr uintptr, size uint64) error {
	if !h.InHeap(ptr) || !h.InHeap(ptr+uintptr(size)-1) {
		if size == 0 {
			if h.InHeap(ptr) {
				return nil
			}
		}
		return &ValidationError{Op: op, Reason: "pointer range not on symmetric heap"}
	}
	return nil
}

// validateDisjoint checks that two user buffers are disjoint, except
// when they are the same buffer (reduce-in-place is legal; spec.md §4.G).
func validateDisjoint(op OpCode, a, b uintptr, size uint64) error {
	if a == b {
		return nil
	}
	aEnd, bEnd := a+uintptr(size), b+uintptr(size)
	if a < bEnd && b < aEnd {
		return &ValidationError{Op: op, Reason: "buffers overlap"}
	}
	return nil
}

// validateStride checks that a strided-RMA stride is positive (spec.md §4.G).
func validateStride(op OpCode, stride int64) error {
	if stride < 1 {
		return &ValidationError{Op: op, Reason: "stride must be >= 1"}
	}
	return nil
}
