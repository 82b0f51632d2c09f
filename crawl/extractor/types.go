package extractor

import (
	"time"

	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
)

// GridInfo is the pixel grid an asset's projection fields describe.
type GridInfo struct {
	Shape     [2]int        `json:"shape"`
	Transform []float64     `json:"transform"`
	BBox      []float64     `json:"bbox"`
	CRS       reconcile.CRS `json:"crs"`
}

type AssetInfo struct {
	Key       string                     `json:"key"`
	Href      string                     `json:"href"`
	MediaType string                     `json:"type,omitempty"`
	Roles     []string                   `json:"roles,omitempty"`
	CRS       reconcile.CRS              `json:"crs,omitempty"`
	Grid      *GridInfo                  `json:"grid,omitempty"`
	Bands     []reconcile.BandDescriptor `json:"bands,omitempty"`
}

// ItemInfo is the reconciled view of one STAC item document.
type ItemInfo struct {
	Path       string        `json:"path"`
	ID         string        `json:"id"`
	Collection string        `json:"collection,omitempty"`
	Datetime   *time.Time    `json:"datetime,omitempty"`
	BBox       []float64     `json:"bbox,omitempty"`
	CRS        reconcile.CRS `json:"crs,omitempty"`
	CRSSource  string        `json:"crs_source,omitempty"`
	Footprint  string        `json:"footprint,omitempty"`
	Assets     []*AssetInfo  `json:"assets"`
	Posix      *PosixInfo    `json:"posix,omitempty"`
	Errors     []string      `json:"errors,omitempty"`

	Item *stac.Item `json:"-"`
}

type PosixInfo struct {
	FilePath string    `json:"file_path"`
	INode    uint64    `json:"inode"`
	Size     int64     `json:"size"`
	MTime    time.Time `json:"mtime"`
	CTime    time.Time `json:"ctime"`
	ID       string    `json:"id"`
}
