package term

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tflitebridge/native"
	"tflitebridge/status"
)

func TestEncodeScalar(t *testing.T) {
	i8 := int8(-5)
	u8 := uint8(200)
	i32 := int32(-70000)
	f32 := float32(1.5)
	f64 := 2.25
	b := true
	half := floatToHalf(0.5)
	brain := floatToBrain(-2)

	tests := []struct {
		name string
		p    unsafe.Pointer
		typ  native.TensorType
		want any
	}{
		{"int8", unsafe.Pointer(&i8), native.Int8, int8(-5)},
		{"uint8", unsafe.Pointer(&u8), native.UInt8, uint8(200)},
		{"int32", unsafe.Pointer(&i32), native.Int32, int32(-70000)},
		{"float32", unsafe.Pointer(&f32), native.Float32, float32(1.5)},
		{"float64", unsafe.Pointer(&f64), native.Float64, 2.25},
		{"bool", unsafe.Pointer(&b), native.Bool, true},
		{"float16", unsafe.Pointer(&half), native.Float16, float32(0.5)},
		{"bfloat16", unsafe.Pointer(&brain), native.BFloat16, float32(-2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeScalar(tt.p, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeValues_AgreesWithEncodeScalar(t *testing.T) {
	types := []native.TensorType{
		native.Bool, native.Int8, native.UInt8, native.Int16, native.UInt16,
		native.Int32, native.UInt32, native.Int64, native.UInt64,
		native.Float16, native.BFloat16, native.Float32, native.Float64,
		native.Complex64, native.Complex128,
	}
	const n = 4

	for _, typ := range types {
		t.Run(typ.String(), func(t *testing.T) {
			size := typ.Size()
			buf := make([]byte, n*size)
			for i := range buf {
				buf[i] = byte(i % 2)
			}
			tensor := &fakeTensor{typ: typ, buf: buf}

			vals, err := EncodeValues(tensor)
			require.NoError(t, err)
			rv := reflect.ValueOf(vals)
			require.Equal(t, reflect.Slice, rv.Kind())
			require.Equal(t, n, rv.Len())

			for i := 0; i < n; i++ {
				want, err := EncodeScalar(unsafe.Add(tensor.Data(), i*size), typ)
				require.NoError(t, err)
				assert.Equal(t, want, rv.Index(i).Interface(), "element %d", i)
			}
		})
	}
}

func TestEncodeScalar_Unsupported(t *testing.T) {
	var x int32
	for _, typ := range []native.TensorType{native.String, native.Resource, native.Variant, native.Int4, native.NoType} {
		_, err := EncodeScalar(unsafe.Pointer(&x), typ)
		if !errors.Is(err, status.ErrUnsupportedType) {
			t.Errorf("EncodeScalar(%v) error = %v, want ErrUnsupportedType", typ, err)
		}
	}
}

func TestEncodeSequence_EmptyInputs(t *testing.T) {
	got := EncodeSequence(nil, 4, func(v int32) int64 { return int64(v) })
	require.NotNil(t, got)
	assert.Len(t, got, 0)

	data := []int32{1, 2}
	got = EncodeSequence(unsafe.Pointer(&data[0]), 0, func(v int32) int64 { return int64(v) })
	require.NotNil(t, got)
	assert.Len(t, got, 0)
}

func TestEncodeSequence_PreservesOrder(t *testing.T) {
	data := []int32{3, -1, 7, 0}
	got := Int32s(native.IntArrayOf(data))
	assert.Equal(t, []int64{3, -1, 7, 0}, got)
}

func TestEncodeShape(t *testing.T) {
	tests := []struct {
		name   string
		tensor *fakeTensor
		want   Shape
	}{
		{
			name:   "prefers signature",
			tensor: &fakeTensor{dims: []int32{1, 224, 224, 3}, dimsSig: []int32{-1, 224, 224, 3}},
			want:   Shape{-1, 224, 224, 3},
		},
		{
			name:   "null signature falls back to dims",
			tensor: &fakeTensor{dims: []int32{1, 10}},
			want:   Shape{1, 10},
		},
		{
			name:   "empty signature falls back to dims",
			tensor: &fakeTensor{dims: []int32{2, 3}, dimsSig: []int32{}},
			want:   Shape{2, 3},
		},
		{
			name:   "scalar",
			tensor: &fakeTensor{dims: []int32{}},
			want:   Shape{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeShape(tt.tensor))
		})
	}
}

func TestEncodeDims_IgnoresSignature(t *testing.T) {
	tensor := &fakeTensor{dims: []int32{1, 4}, dimsSig: []int32{-1, 4}}
	assert.Equal(t, Shape{1, 4}, EncodeDims(tensor))
}

func TestShape_NumElements(t *testing.T) {
	assert.Equal(t, int64(12), Shape{3, 4}.NumElements())
	assert.Equal(t, int64(1), Shape{}.NumElements())
	assert.Equal(t, int64(-1), Shape{-1, 4}.NumElements())
}

func TestEncodeQuantization(t *testing.T) {
	scale := []float32{0.5, 0.25}
	zp := []int32{3, -2}
	tensor := &fakeTensor{quant: native.Quantization{
		Type:               native.AffineQuantization,
		Scale:              native.FloatArrayOf(scale),
		ZeroPoint:          native.IntArrayOf(zp),
		QuantizedDimension: 3,
	}}

	got := EncodeQuantization(tensor)
	assert.Equal(t, []float64{0.5, 0.25}, got.Scale)
	assert.Equal(t, []int64{3, -2}, got.ZeroPoint)
	assert.Equal(t, 3, got.QuantizedDimension)
	assert.True(t, got.IsQuantized())
	assert.InDelta(t, 0.5*(10-3), got.Dequantize(10, 0), 1e-9)
	assert.InDelta(t, 0.25*(10+2), got.Dequantize(10, 1), 1e-9)
	assert.Equal(t, int64(10), got.Quantize(3.5, 0))
	assert.Equal(t, int64(10), got.Quantize(3.0, 1))
	assert.Equal(t, int64(7), QuantizationParams{}.Quantize(6.6, 0))
}

func TestEncodeQuantization_None(t *testing.T) {
	got := EncodeQuantization(&fakeTensor{})
	require.NotNil(t, got.Scale)
	require.NotNil(t, got.ZeroPoint)
	assert.Empty(t, got.Scale)
	assert.Empty(t, got.ZeroPoint)
	assert.Equal(t, 0, got.QuantizedDimension)
	assert.False(t, got.IsQuantized())
}

func TestEncodeSparsity_Dense(t *testing.T) {
	assert.Nil(t, EncodeSparsity(&fakeTensor{}))
}

func TestEncodeSparsity_Mixed(t *testing.T) {
	tensor := &fakeTensor{sparsity: &native.Sparsity{
		TraversalOrder: native.IntArrayOf([]int32{0, 1}),
		BlockMap:       native.IntArrayOf([]int32{}),
		DimMetadata: []native.DimMetadata{
			{Format: native.DimDense, DenseSize: 4},
			{
				Format:        native.DimSparseCSR,
				ArraySegments: native.IntArrayOf([]int32{0, 2, 3}),
				ArrayIndices:  native.IntArrayOf([]int32{1, 3, 0}),
			},
		},
	}}

	got := EncodeSparsity(tensor)
	require.NotNil(t, got)
	assert.Equal(t, []int64{0, 1}, got.TraversalOrder)
	assert.Equal(t, []int64{}, got.BlockMap)
	require.Len(t, got.DimMetadata, 2)

	for i, dm := range got.DimMetadata {
		switch d := dm.(type) {
		case DenseDim:
			assert.Equal(t, 0, i)
			assert.Equal(t, 4, d.Size)
		case SparseDim:
			assert.Equal(t, 1, i)
			assert.Equal(t, []int64{0, 2, 3}, d.ArraySegments)
			assert.Equal(t, []int64{1, 3, 0}, d.ArrayIndices)
		default:
			t.Fatalf("unexpected dim metadata %T", dm)
		}
	}

	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"traversal_order": [0, 1],
		"block_map": [],
		"dim_metadata": [
			{"format": 0, "dense_size": 4},
			{"format": 1, "array_segments": [0, 2, 3], "array_indices": [1, 3, 0]}
		]
	}`, string(out))
}

func TestEncodeSparsity_NullArraysAreEmpty(t *testing.T) {
	tensor := &fakeTensor{sparsity: &native.Sparsity{
		TraversalOrder: native.IntArrayOf([]int32{0, 1}),
		DimMetadata: []native.DimMetadata{
			{Format: native.DimDense, DenseSize: 2},
			{Format: native.DimSparseCSR, ArraySegments: native.IntArrayOf([]int32{0, 1})},
		},
	}}
	require.True(t, tensor.sparsity.BlockMap.IsNull())

	got := EncodeSparsity(tensor)
	require.NotNil(t, got)
	assert.Equal(t, []int64{0, 1}, got.TraversalOrder)
	assert.NotNil(t, got.BlockMap)
	assert.Empty(t, got.BlockMap)
	require.Len(t, got.DimMetadata, 2)

	sparse, ok := got.DimMetadata[1].(SparseDim)
	require.True(t, ok)
	assert.Equal(t, []int64{0, 1}, sparse.ArraySegments)
	assert.NotNil(t, sparse.ArrayIndices)
	assert.Empty(t, sparse.ArrayIndices)

	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"traversal_order": [0, 1],
		"block_map": [],
		"dim_metadata": [
			{"format": 0, "dense_size": 2},
			{"format": 1, "array_segments": [0, 1], "array_indices": []}
		]
	}`, string(out))
}

func TestDecodeBytes(t *testing.T) {
	t.Run("unallocated tensor", func(t *testing.T) {
		tensor := &fakeTensor{size: 4}
		err := DecodeBytes(tensor, []byte{1, 2, 3, 4})
		assert.True(t, errors.Is(err, status.ErrInvalidInput))
		assert.Equal(t, status.ReasonNotAllocated, status.ReasonOf(err))
	})

	t.Run("nil input", func(t *testing.T) {
		tensor := &fakeTensor{buf: make([]byte, 4)}
		err := DecodeBytes(tensor, nil)
		assert.Equal(t, status.ReasonNoInputData, status.ReasonOf(err))
	})

	t.Run("size mismatch", func(t *testing.T) {
		tensor := &fakeTensor{buf: make([]byte, 4)}
		err := DecodeBytes(tensor, []byte{1, 2, 3, 4, 5})
		assert.True(t, errors.Is(err, status.ErrInvalidInput))
		assert.Equal(t, []byte{0, 0, 0, 0}, tensor.buf, "buffer must be untouched")
	})

	t.Run("round trip", func(t *testing.T) {
		tensor := &fakeTensor{buf: make([]byte, 4)}
		require.NoError(t, DecodeBytes(tensor, []byte{9, 8, 7, 6}))
		assert.Equal(t, []byte{9, 8, 7, 6}, EncodeBytes(tensor))
	})
}

func TestEncodeBytes_Unallocated(t *testing.T) {
	got := EncodeBytes(&fakeTensor{size: 16})
	require.NotNil(t, got)
	assert.Len(t, got, 0)
}

func TestPackAndEncodeValues(t *testing.T) {
	tests := []struct {
		name   string
		typ    native.TensorType
		values any
		want   any
	}{
		{"float32", native.Float32, []float32{1, -2.5}, []float32{1, -2.5}},
		{"float16", native.Float16, []float32{0.5, 2}, []float32{0.5, 2}},
		{"bfloat16", native.BFloat16, []float32{1, -4}, []float32{1, -4}},
		{"int8", native.Int8, []int8{-128, 127}, []int8{-128, 127}},
		{"uint8", native.UInt8, []uint8{0, 255}, []uint8{0, 255}},
		{"int64", native.Int64, []int64{math.MaxInt64}, []int64{math.MaxInt64}},
		{"bool", native.Bool, []bool{true, false}, []bool{true, false}},
		{"string", native.String, []string{"ab", "", "cde"}, []string{"ab", "", "cde"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := PackValues(tt.typ, tt.values)
			require.NoError(t, err)

			got, err := EncodeValues(&fakeTensor{typ: tt.typ, buf: buf})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPackValues_Mismatch(t *testing.T) {
	_, err := PackValues(native.Int8, []float32{1})
	assert.True(t, errors.Is(err, status.ErrInvalidInput))

	_, err = PackValues(native.Float32, []complex64{1})
	assert.True(t, errors.Is(err, status.ErrUnsupportedType))
}

func TestFloat64s_Dequantizes(t *testing.T) {
	buf, err := PackValues(native.UInt8, []uint8{0, 128, 255})
	require.NoError(t, err)

	tensor := &fakeTensor{typ: native.UInt8, buf: buf, quant: native.Quantization{
		Type:      native.AffineQuantization,
		Scale:     native.FloatArrayOf([]float32{0.5}),
		ZeroPoint: native.IntArrayOf([]int32{128}),
	}}

	got, err := Float64s(tensor)
	require.NoError(t, err)
	assert.Equal(t, []float64{-64, 0, 63.5}, got)
}

func TestEncodeStrings_Malformed(t *testing.T) {
	_, err := EncodeStrings([]byte{1, 0})
	assert.True(t, errors.Is(err, status.ErrInvalidInput))

	bad := PackStrings([]string{"abc"})
	_, err = EncodeStrings(bad[:len(bad)-1])
	assert.True(t, errors.Is(err, status.ErrInvalidInput))
}
