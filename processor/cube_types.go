package processor

import (
	"time"

	"github.com/nci/stacube/raster"
	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
)

// CubeVariable is one output array, fed by one band of the same asset of
// every item.
type CubeVariable struct {
	Name        string
	Asset       string
	Band        int
	Role        reconcile.VariableRole
	Title       string
	Description string
	Unit        string

	// Set by planning: the stored type, its fill value and the
	// raster:bands entry describing the stored array.
	DataType   reconcile.DataType
	Fill       float64
	Descriptor reconcile.BandDescriptor
}

// CubePlan is everything needed to materialise items into a
// (time, y, x) cube.
type CubePlan struct {
	CRS       reconcile.CRS
	Grid      reconcile.GridGeometry
	Times     []time.Time
	Slices    [][]*stac.Item
	Variables []*CubeVariable

	// NativeExtent is the union of the item grids in CRS, Extent the
	// aggregate of the item bboxes as published.
	NativeExtent reconcile.Extent
	Extent       reconcile.Extent
}

func (p *CubePlan) NumItems() int {
	n := 0
	for _, s := range p.Slices {
		n += len(s)
	}
	return n
}

type WarpTask struct {
	TimeIndex int
	Slot      int
	ItemID    string
	Path      string
	Variable  *CubeVariable
}

type WarpedSlice struct {
	*WarpTask
	Raster *raster.Float32Raster
}
