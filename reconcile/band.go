package reconcile

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DataType is a raster band storage type name.
type DataType string

const (
	Int8    DataType = "int8"
	Int16   DataType = "int16"
	Int32   DataType = "int32"
	Int64   DataType = "int64"
	UInt8   DataType = "uint8"
	UInt16  DataType = "uint16"
	UInt32  DataType = "uint32"
	UInt64  DataType = "uint64"
	Float16 DataType = "float16"
	Float32 DataType = "float32"
	Float64 DataType = "float64"
	Other   DataType = "other"
)

// Size returns the storage width in bytes, 0 for Other.
func (d DataType) Size() int {
	switch d {
	case Int8, UInt8:
		return 1
	case Int16, UInt16, Float16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Int64, UInt64, Float64:
		return 8
	}
	return 0
}

// dtypeTable is filled once and only read afterwards.
var dtypeTable = func() map[string]DataType {
	t := map[string]DataType{}
	add := func(d DataType, names ...string) {
		t[string(d)] = d
		for _, n := range names {
			t[n] = d
		}
	}
	add(Int8, "i1", "signedbyte", "byte_signed")
	add(Int16, "i2", "short")
	add(Int32, "i4")
	add(Int64, "i8")
	add(UInt8, "u1", "byte", "uchar")
	add(UInt16, "u2", "ushort")
	add(UInt32, "u4")
	add(UInt64, "u8")
	add(Float16, "f2", "half")
	add(Float32, "f4", "float", "single")
	add(Float64, "f8", "double")
	return t
}()

// CanonicalDType maps numpy, GDAL and Zarr type names onto a DataType.
// Unknown names map to Other.
func CanonicalDType(name string) DataType {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimLeft(n, "<>|=")
	if d, ok := dtypeTable[n]; ok {
		return d
	}
	return Other
}

// BandDescriptor is one entry of raster:bands.
type BandDescriptor struct {
	DataType          DataType
	NoData            *float64
	Scale             *float64
	Offset            *float64
	Unit              string
	SpatialResolution *float64

	// Provenance records which lookup supplied each resolved value.
	Provenance map[string]Lookup
}

const (
	ScopeEncoding   = "encoding"
	ScopeAttributes = "attributes"
)

var (
	nodataChain = Chain{{ScopeEncoding, "_FillValue"}, {ScopeAttributes, "_FillValue"}, {ScopeAttributes, "nodata"}}
	scaleChain  = Chain{{ScopeEncoding, "scale_factor"}, {ScopeAttributes, "scale_factor"}}
	offsetChain = Chain{{ScopeEncoding, "add_offset"}, {ScopeAttributes, "add_offset"}}
	unitChain   = Chain{{ScopeAttributes, "units"}, {ScopeAttributes, "unit"}}
)

// Describe builds a band descriptor from an array's storage type, its
// encoding parameters and attributes. It never fails.
func Describe(dtype string, encoding, attrs Fields, resolution *float64) BandDescriptor {
	scopes := Scopes{ScopeEncoding: encoding, ScopeAttributes: attrs}
	b := BandDescriptor{
		DataType:   CanonicalDType(dtype),
		Provenance: map[string]Lookup{},
	}
	if v, src, ok := nodataChain.Number(scopes); ok {
		b.NoData = &v
		b.Provenance["nodata"] = src
	}
	if v, src, ok := scaleChain.Number(scopes); ok {
		b.Scale = &v
		b.Provenance["scale"] = src
	}
	if v, src, ok := offsetChain.Number(scopes); ok {
		b.Offset = &v
		b.Provenance["offset"] = src
	}
	if v, src, ok := unitChain.String(scopes); ok {
		b.Unit = v
		b.Provenance["unit"] = src
	}
	if resolution != nil {
		r := math.Abs(*resolution)
		b.SpatialResolution = &r
	}
	return b
}

type bandJSON struct {
	DataType          DataType        `json:"data_type,omitempty"`
	NoData            json.RawMessage `json:"nodata,omitempty"`
	Scale             *float64        `json:"scale,omitempty"`
	Offset            *float64        `json:"offset,omitempty"`
	Unit              string          `json:"unit,omitempty"`
	SpatialResolution *float64        `json:"spatial_resolution,omitempty"`
}

// MarshalJSON writes non-finite nodata values as "nan", "inf" or "-inf".
func (b BandDescriptor) MarshalJSON() ([]byte, error) {
	out := bandJSON{
		DataType:          b.DataType,
		Scale:             b.Scale,
		Offset:            b.Offset,
		Unit:              b.Unit,
		SpatialResolution: b.SpatialResolution,
	}
	if b.NoData != nil {
		out.NoData = json.RawMessage(formatNoData(*b.NoData))
	}
	return json.Marshal(out)
}

func (b *BandDescriptor) UnmarshalJSON(data []byte) error {
	var in bandJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*b = BandDescriptor{
		DataType:          in.DataType,
		Scale:             in.Scale,
		Offset:            in.Offset,
		Unit:              in.Unit,
		SpatialResolution: in.SpatialResolution,
	}
	if len(in.NoData) > 0 && string(in.NoData) != "null" {
		var raw interface{}
		if err := json.Unmarshal(in.NoData, &raw); err != nil {
			return err
		}
		if f, ok := toFloat(raw); ok {
			b.NoData = &f
		}
	}
	return nil
}

func formatNoData(v float64) string {
	switch {
	case math.IsNaN(v):
		return `"nan"`
	case math.IsInf(v, 1):
		return `"inf"`
	case math.IsInf(v, -1):
		return `"-inf"`
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
