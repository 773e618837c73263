package term

import (
	"encoding/json"

	"tflitebridge/native"
)

// Sparsity describes how a sparse tensor is stored.
type Sparsity struct {
	TraversalOrder []int64       `json:"traversal_order" yaml:"traversal_order"`
	BlockMap       []int64       `json:"block_map" yaml:"block_map"`
	DimMetadata    []DimMetadata `json:"dim_metadata" yaml:"dim_metadata"`
}

// DimMetadata is the storage of one traversal dimension: DenseDim or SparseDim.
type DimMetadata interface {
	Format() native.DimensionType
	dimMetadata()
}

// DenseDim is a dense dimension of the given size.
type DenseDim struct {
	Size int
}

// SparseDim is a CSR-compressed dimension.
type SparseDim struct {
	ArraySegments []int64
	ArrayIndices  []int64
}

func (DenseDim) Format() native.DimensionType  { return native.DimDense }
func (SparseDim) Format() native.DimensionType { return native.DimSparseCSR }
func (DenseDim) dimMetadata()                  {}
func (SparseDim) dimMetadata()                 {}

type denseWire struct {
	Format    int `json:"format" yaml:"format"`
	DenseSize int `json:"dense_size" yaml:"dense_size"`
}

type sparseWire struct {
	Format        int     `json:"format" yaml:"format"`
	ArraySegments []int64 `json:"array_segments" yaml:"array_segments"`
	ArrayIndices  []int64 `json:"array_indices" yaml:"array_indices"`
}

func (d DenseDim) MarshalJSON() ([]byte, error) {
	return json.Marshal(denseWire{Format: int(native.DimDense), DenseSize: d.Size})
}

func (d DenseDim) MarshalYAML() (interface{}, error) {
	return denseWire{Format: int(native.DimDense), DenseSize: d.Size}, nil
}

func (d SparseDim) MarshalJSON() ([]byte, error) {
	return json.Marshal(sparseWire{Format: int(native.DimSparseCSR), ArraySegments: d.ArraySegments, ArrayIndices: d.ArrayIndices})
}

func (d SparseDim) MarshalYAML() (interface{}, error) {
	return sparseWire{Format: int(native.DimSparseCSR), ArraySegments: d.ArraySegments, ArrayIndices: d.ArrayIndices}, nil
}

// EncodeSparsity returns nil for dense tensors. A null array inside the
// native record encodes as an empty sequence, like any other absent metadata.
func EncodeSparsity(t native.Tensor) *Sparsity {
	sp := t.Sparsity()
	if sp == nil {
		return nil
	}

	out := &Sparsity{
		TraversalOrder: Int32s(sp.TraversalOrder),
		BlockMap:       Int32s(sp.BlockMap),
		DimMetadata:    make([]DimMetadata, 0, len(sp.DimMetadata)),
	}
	for _, dm := range sp.DimMetadata {
		switch dm.Format {
		case native.DimDense:
			out.DimMetadata = append(out.DimMetadata, DenseDim{Size: dm.DenseSize})
		default:
			out.DimMetadata = append(out.DimMetadata, SparseDim{
				ArraySegments: Int32s(dm.ArraySegments),
				ArrayIndices:  Int32s(dm.ArrayIndices),
			})
		}
	}
	return out
}
