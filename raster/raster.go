// Package raster holds the pixel-level types exchanged with the GDAL
// backend and the interfaces the conversion pipelines program against.
package raster

import (
	"context"
	"fmt"
	"math"

	"github.com/nci/stacube/reconcile"
)

// Band describes one band of an inspected raster. Optional numeric
// fields are nil when the file does not carry them.
type Band struct {
	DataType    string
	NoData      *float64
	Scale       *float64
	Offset      *float64
	Unit        string
	Description string
}

// Info is what Inspect reports about a raster file.
type Info struct {
	Path         string
	Driver       string
	Width        int
	Height       int
	GeoTransform [6]float64
	EPSG         int
	Bands        []Band
}

// Grid rebuilds the native pixel grid of the file.
func (i *Info) Grid() reconcile.GridGeometry {
	g := reconcile.GridGeometry{
		Shape:  reconcile.Shape{Rows: i.Height, Cols: i.Width},
		Affine: reconcile.AffineFromGeoTransform(i.GeoTransform),
	}
	if i.EPSG > 0 {
		g.CRS = reconcile.EPSG(i.EPSG)
	}
	return g
}

// Describe turns band n (1-based, as GDAL counts) into a raster:bands
// entry. Resolution comes from the geotransform.
func (i *Info) Describe(n int) (reconcile.BandDescriptor, error) {
	if n < 1 || n > len(i.Bands) {
		return reconcile.BandDescriptor{}, fmt.Errorf("raster: %s has no band %d", i.Path, n)
	}
	b := i.Bands[n-1]
	enc := reconcile.Fields{}
	attrs := reconcile.Fields{}
	if b.NoData != nil {
		enc["_FillValue"] = *b.NoData
	}
	if b.Scale != nil {
		attrs["scale_factor"] = *b.Scale
	}
	if b.Offset != nil {
		attrs["add_offset"] = *b.Offset
	}
	if b.Unit != "" {
		attrs["units"] = b.Unit
	}
	res := i.GeoTransform[1]
	var resolution *float64
	if res != 0 {
		resolution = &res
	}
	return reconcile.Describe(b.DataType, enc, attrs, resolution), nil
}

// Float32Raster is a single band held in memory, row major.
type Float32Raster struct {
	Data          []float32
	Width, Height int
	NoData        float64
}

// NewFloat32Raster returns a raster filled with nodata.
func NewFloat32Raster(width, height int, nodata float64) *Float32Raster {
	r := &Float32Raster{Data: make([]float32, width*height), Width: width, Height: height, NoData: nodata}
	fill := float32(nodata)
	for i := range r.Data {
		r.Data[i] = fill
	}
	return r
}

// IsNoData reports whether v is the raster's nodata marker. NaN nodata
// matches NaN values.
func (r *Float32Raster) IsNoData(v float32) bool {
	if math.IsNaN(r.NoData) {
		return math.IsNaN(float64(v))
	}
	return float64(v) == float64(float32(r.NoData))
}

// Float64s widens the pixel values.
func (r *Float32Raster) Float64s() []float64 {
	out := make([]float64, len(r.Data))
	for i, v := range r.Data {
		out[i] = float64(v)
	}
	return out
}

type Inspector interface {
	Inspect(path string) (*Info, error)
}

// Warper reprojects one band of a file into a target grid using
// nearest neighbour resampling. Pixels the source does not cover are
// nodata.
type Warper interface {
	Warp(ctx context.Context, path string, band int, grid reconcile.GridGeometry) (*Float32Raster, error)
}

type Encoder interface {
	EncodeGeoTIFF(path string, r *Float32Raster, grid reconcile.GridGeometry) error
}

// Driver bundles the three raster collaborators.
type Driver interface {
	Inspector
	Warper
	Encoder
}
