// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"testing"
	"unsafe"
)

func TestRecordSize(t *testing.T) {
	if got := unsafe.Sizeof(Record{}); got != 128 {
		t.Fatalf("Record size: got %d, want 128", got)
	}
}

func TestRecordUnions(t *testing.T) {
	var r Record

	r.SetDstStride(7)
	if got := r.DstStride(); got != 7 {
		t.Fatalf("DstStride: got %d, want 7", got)
	}

	r.SetSrcStride(-3)
	if got := r.SrcStride(); got != -3 {
		t.Fatalf("SrcStride: got %d, want -3", got)
	}

	r.SetCmp(CmpGe)
	if got := r.Cmp(); got != CmpGe {
		t.Fatalf("Cmp: got %v, want %v", got, CmpGe)
	}

	r.SetCmpValue(42)
	if got := r.CmpValue(); got != 42 {
		t.Fatalf("CmpValue: got %d, want 42", got)
	}
}

func TestTypeSizeBytes(t *testing.T) {
	cases := []struct {
		typ  TypeCode
		size int
	}{
		{TypeU8, 1}, {TypeChar, 1}, {TypeMem, 1},
		{TypeU16, 2}, {TypeShort, 2},
		{TypeU32, 4}, {TypeF32, 4}, {TypeInt, 4},
		{TypeU64, 8}, {TypeF64, 8}, {TypeLong, 8}, {TypeSize, 8},
		{TypeLongDouble, 16},
	}
	for _, c := range cases {
		if got := TypeSizeBytes(c.typ); got != c.size {
			t.Errorf("TypeSizeBytes(%v): got %d, want %d", c.typ, got, c.size)
		}
	}
}
