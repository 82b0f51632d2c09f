package raster

import (
	"math"
	"testing"

	"github.com/nci/stacube/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoGridAndDescribe(t *testing.T) {
	nodata, scale := 0.0, 0.0001
	info := &Info{
		Path:         "B04.tif",
		Width:        3,
		Height:       2,
		GeoTransform: [6]float64{600000, 10, 0, 4500000, 0, -10},
		EPSG:         32610,
		Bands:        []Band{{DataType: "UInt16", NoData: &nodata, Scale: &scale, Unit: "none"}},
	}

	g := info.Grid()
	assert.Equal(t, reconcile.Shape{Rows: 2, Cols: 3}, g.Shape)
	assert.Equal(t, reconcile.EPSG(32610), g.CRS)
	assert.Equal(t, reconcile.BBox{600000, 4499980, 600030, 4500000}, g.Bounds())

	d, err := info.Describe(1)
	require.NoError(t, err)
	assert.Equal(t, reconcile.UInt16, d.DataType)
	require.NotNil(t, d.NoData)
	assert.Equal(t, 0.0, *d.NoData)
	require.NotNil(t, d.Scale)
	assert.Equal(t, scale, *d.Scale)
	assert.Nil(t, d.Offset)
	assert.Equal(t, "none", d.Unit)
	assert.Equal(t, 10.0, *d.SpatialResolution)

	_, err = info.Describe(2)
	assert.Error(t, err)
}

func TestFloat32RasterNoData(t *testing.T) {
	r := NewFloat32Raster(2, 2, math.NaN())
	assert.True(t, r.IsNoData(r.Data[0]))
	r.Data[1] = 1
	assert.False(t, r.IsNoData(r.Data[1]))
	assert.Equal(t, 1.0, r.Float64s()[1])

	b := NewFloat32Raster(1, 1, 255)
	assert.True(t, b.IsNoData(255))
	assert.False(t, b.IsNoData(0))
}
