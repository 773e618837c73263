package native

import "testing"

func TestTensorType_StringAndSize(t *testing.T) {
	tests := []struct {
		typ  TensorType
		name string
		size int
	}{
		{Float32, "float32", 4},
		{Int8, "int8", 1},
		{UInt8, "uint8", 1},
		{Bool, "bool", 1},
		{Float16, "float16", 2},
		{BFloat16, "bfloat16", 2},
		{Int64, "int64", 8},
		{Complex64, "complex64", 8},
		{Complex128, "complex128", 16},
		{String, "string", 0},
		{Int4, "int4", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.typ.Size(); got != tt.size {
				t.Errorf("Size() = %d, want %d", got, tt.size)
			}
			parsed, ok := ParseTensorType(tt.name)
			if !ok || parsed != tt.typ {
				t.Errorf("ParseTensorType(%q) = %v, %v; want %v, true", tt.name, parsed, ok, tt.typ)
			}
		})
	}

	if got := TensorType(42).String(); got != "type(42)" {
		t.Errorf("String() = %q, want %q", got, "type(42)")
	}
	if _, ok := ParseTensorType("float128"); ok {
		t.Error("ParseTensorType(float128) should fail")
	}
}

func TestIntArrayOf(t *testing.T) {
	if a := IntArrayOf(nil); !a.IsNull() {
		t.Error("IntArrayOf(nil) should be null")
	}

	empty := IntArrayOf([]int32{})
	if empty.IsNull() || empty.Len != 0 {
		t.Errorf("IntArrayOf([]) = %+v, want non-null with Len 0", empty)
	}

	a := IntArrayOf([]int32{1, 224, 224, 3})
	got := a.Int32s()
	want := []int32{1, 224, 224, 3}
	if len(got) != len(want) {
		t.Fatalf("Int32s() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Int32s()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStatus_String(t *testing.T) {
	if got := StatusOk.String(); got != "ok" {
		t.Errorf("StatusOk.String() = %q, want ok", got)
	}
	if got := StatusUnresolvedOps.String(); got != "unresolved ops" {
		t.Errorf("StatusUnresolvedOps.String() = %q", got)
	}
	if got := Status(42).String(); got != "status(42)" {
		t.Errorf("Status(42).String() = %q", got)
	}
}
