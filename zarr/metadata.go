package zarr

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/nci/stacube/reconcile"
)

const (
	MetadataFile = "zarr.json"
	Format       = 3

	NodeArray = "array"
	NodeGroup = "group"
)

var (
	ErrNotFound        = errors.New("zarr: node not found")
	ErrUnsupportedType = errors.New("zarr: unsupported data type")
	ErrOutOfBounds     = errors.New("zarr: selection out of bounds")
)

type GroupMetadata struct {
	ZarrFormat int                    `json:"zarr_format"`
	NodeType   string                 `json:"node_type"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type ChunkGrid struct {
	Name          string `json:"name"`
	Configuration struct {
		ChunkShape []int `json:"chunk_shape"`
	} `json:"configuration"`
}

type ChunkKeyEncoding struct {
	Name          string `json:"name"`
	Configuration struct {
		Separator string `json:"separator"`
	} `json:"configuration"`
}

type Codec struct {
	Name          string                 `json:"name"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
}

// FillValue serialises NaN and infinities the way Zarr v3 spells them.
type FillValue float64

func (f FillValue) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	}
	return json.Marshal(v)
}

func (f *FillValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "NaN":
			*f = FillValue(math.NaN())
		case "Infinity":
			*f = FillValue(math.Inf(1))
		case "-Infinity":
			*f = FillValue(math.Inf(-1))
		default:
			return fmt.Errorf("zarr: fill value %q", s)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FillValue(v)
	return nil
}

// ArrayMetadata is the zarr.json document of an array.
type ArrayMetadata struct {
	ZarrFormat       int                    `json:"zarr_format"`
	NodeType         string                 `json:"node_type"`
	Shape            []int                  `json:"shape"`
	DataType         reconcile.DataType     `json:"data_type"`
	ChunkGrid        ChunkGrid              `json:"chunk_grid"`
	ChunkKeyEncoding ChunkKeyEncoding       `json:"chunk_key_encoding"`
	FillValue        FillValue              `json:"fill_value"`
	Codecs           []Codec                `json:"codecs"`
	Attributes       map[string]interface{} `json:"attributes,omitempty"`
	DimensionNames   []string               `json:"dimension_names,omitempty"`
}

// NewArrayMetadata describes a regular-chunked, uncompressed,
// little-endian array.
func NewArrayMetadata(shape, chunks []int, dtype reconcile.DataType, fill float64, dims []string) (*ArrayMetadata, error) {
	if dtype.Size() == 0 || dtype == reconcile.Float16 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, dtype)
	}
	if len(chunks) != len(shape) {
		return nil, fmt.Errorf("zarr: chunk shape %v does not match shape %v", chunks, shape)
	}
	if dims != nil && len(dims) != len(shape) {
		return nil, fmt.Errorf("zarr: %d dimension names for %d axes", len(dims), len(shape))
	}
	for i, c := range chunks {
		if c <= 0 || shape[i] < 0 {
			return nil, fmt.Errorf("zarr: invalid chunk shape %v for shape %v", chunks, shape)
		}
	}
	m := &ArrayMetadata{
		ZarrFormat:     Format,
		NodeType:       NodeArray,
		Shape:          append([]int(nil), shape...),
		DataType:       dtype,
		FillValue:      FillValue(fill),
		Codecs:         []Codec{{Name: "bytes", Configuration: map[string]interface{}{"endian": "little"}}},
		DimensionNames: append([]string(nil), dims...),
		Attributes:     map[string]interface{}{},
	}
	m.ChunkGrid.Name = "regular"
	m.ChunkGrid.Configuration.ChunkShape = append([]int(nil), chunks...)
	m.ChunkKeyEncoding.Name = "default"
	m.ChunkKeyEncoding.Configuration.Separator = "/"
	return m, nil
}

func (m *ArrayMetadata) ChunkShape() []int {
	return m.ChunkGrid.Configuration.ChunkShape
}

func (m *ArrayMetadata) validate() error {
	if m.ZarrFormat != Format || m.NodeType != NodeArray {
		return fmt.Errorf("zarr: not a v3 array (format %d, node %q)", m.ZarrFormat, m.NodeType)
	}
	if m.ChunkGrid.Name != "regular" || len(m.ChunkShape()) != len(m.Shape) {
		return fmt.Errorf("zarr: unsupported chunk grid %q", m.ChunkGrid.Name)
	}
	for _, c := range m.Codecs {
		if c.Name != "bytes" {
			return fmt.Errorf("zarr: unsupported codec %q", c.Name)
		}
		if e, ok := c.Configuration["endian"]; ok && e != "little" {
			return fmt.Errorf("zarr: unsupported endianness %v", e)
		}
	}
	if m.DataType.Size() == 0 || m.DataType == reconcile.Float16 {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, m.DataType)
	}
	return nil
}

// Info returns the array description used by the cube synchronizer.
func (m *ArrayMetadata) Info(name string) reconcile.ArrayInfo {
	return reconcile.ArrayInfo{
		Name:           name,
		DataType:       string(m.DataType),
		Shape:          append([]int(nil), m.Shape...),
		Chunks:         append([]int(nil), m.ChunkShape()...),
		DimensionNames: append([]string(nil), m.DimensionNames...),
		Attributes:     reconcile.Fields(m.Attributes),
	}
}
