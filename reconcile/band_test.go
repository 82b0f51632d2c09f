package reconcile

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func TestCanonicalDType(t *testing.T) {
	tests := map[string]DataType{
		"int8":    Int8,
		"<i2":     Int16,
		">i4":     Int32,
		"int64":   Int64,
		"|u1":     UInt8,
		"Byte":    UInt8,
		"UInt16":  UInt16,
		"uint32":  UInt32,
		"u8":      UInt64,
		"<f2":     Float16,
		"Float32": Float32,
		"float64": Float64,
		"<f8":     Float64,
		"CInt16":  Other,
		"bool":    Other,
		"|S10":    Other,
		"":        Other,
		"object":  Other,
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalDType(in), in)
	}
}

func TestDescribeFallbackChain(t *testing.T) {
	b := Describe("uint8",
		Fields{"_FillValue": 255},
		Fields{"_FillValue": 0, "nodata": 1, "scale_factor": 0.5, "add_offset": -1, "units": "m"},
		floatPtr(-10))

	require.NotNil(t, b.NoData)
	assert.Equal(t, 255.0, *b.NoData)
	assert.Equal(t, Lookup{ScopeEncoding, "_FillValue"}, b.Provenance["nodata"])
	assert.Equal(t, 0.5, *b.Scale)
	assert.Equal(t, -1.0, *b.Offset)
	assert.Equal(t, "m", b.Unit)
	assert.Equal(t, 10.0, *b.SpatialResolution)
	assert.Equal(t, UInt8, b.DataType)

	b = Describe("uint8", nil, Fields{"nodata": 3}, nil)
	assert.Equal(t, 3.0, *b.NoData)
	assert.Equal(t, Lookup{ScopeAttributes, "nodata"}, b.Provenance["nodata"])
	assert.Nil(t, b.SpatialResolution)
}

func TestDescribeZeroIsPresent(t *testing.T) {
	b := Describe("float32",
		Fields{"_FillValue": 0, "scale_factor": 0.0, "add_offset": 0},
		Fields{"_FillValue": -9999, "scale_factor": 2.0, "add_offset": 100},
		nil)

	require.NotNil(t, b.NoData)
	require.NotNil(t, b.Scale)
	require.NotNil(t, b.Offset)
	assert.Equal(t, 0.0, *b.NoData)
	assert.Equal(t, 0.0, *b.Scale)
	assert.Equal(t, 0.0, *b.Offset)
}

func TestDescribeAbsent(t *testing.T) {
	b := Describe("whatever", nil, nil, nil)
	assert.Equal(t, Other, b.DataType)
	assert.Nil(t, b.NoData)
	assert.Nil(t, b.Scale)
	assert.Nil(t, b.Offset)
	assert.Empty(t, b.Unit)
}

func TestBandDescriptorJSON(t *testing.T) {
	b := Describe("float32", Fields{"_FillValue": math.NaN()}, Fields{"scale_factor": 0}, floatPtr(10))
	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data_type":"float32","nodata":"nan","scale":0,"spatial_resolution":10}`, string(out))

	var back BandDescriptor
	require.NoError(t, json.Unmarshal(out, &back))
	require.NotNil(t, back.NoData)
	assert.True(t, math.IsNaN(*back.NoData))
	assert.Equal(t, 0.0, *back.Scale)

	out, err = json.Marshal(BandDescriptor{DataType: Int16, NoData: floatPtr(math.Inf(-1))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data_type":"int16","nodata":"-inf"}`, string(out))
}
