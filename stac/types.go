package stac

import (
	"encoding/json"
	"time"

	"github.com/nci/stacube/reconcile"
)

const Version = "1.0.0"

// Extension schema URIs.
const (
	ProjectionSchema = "https://stac-extensions.github.io/projection/v2.0.0/schema.json"
	RasterSchema     = "https://stac-extensions.github.io/raster/v1.1.0/schema.json"
	DatacubeSchema   = "https://stac-extensions.github.io/datacube/v2.2.0/schema.json"
	CFSchema         = "https://stac-extensions.github.io/cf/v0.2.0/schema.json"
	ItemAssetsSchema = "https://stac-extensions.github.io/item-assets/v1.0.0/schema.json"
)

// Media types.
const (
	MediaTypeJSON    = "application/json"
	MediaTypeGeoJSON = "application/geo+json"
	MediaTypeGeoTIFF = "image/tiff; application=geotiff"
	MediaTypeCOG     = "image/tiff; application=geotiff; profile=cloud-optimized"
	MediaTypeZarr    = "application/vnd.zarr; version=3"
)

// Link relations.
const (
	RelRoot   = "root"
	RelParent = "parent"
	RelChild  = "child"
	RelItem   = "item"
	RelSelf   = "self"
	RelStore  = "store"
)

type Fields = reconcile.Fields

type Link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Asset is a STAC asset. ExtraFields holds extension fields such as
// proj:* or raster:bands and is serialised inline.
type Asset struct {
	Href        string   `json:"href"`
	Type        string   `json:"type,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	ExtraFields Fields   `json:"-"`
}

var assetKeys = []string{"href", "type", "title", "description", "roles"}

func (a Asset) MarshalJSON() ([]byte, error) {
	type plain Asset
	return marshalInline(plain(a), a.ExtraFields)
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	type plain Asset
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unmarshalExtra(data, assetKeys)
	if err != nil {
		return err
	}
	*a = Asset(p)
	a.ExtraFields = extra
	return nil
}

// ItemAssetDefinition is an entry of a collection's item_assets.
type ItemAssetDefinition struct {
	Type        string   `json:"type,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	ExtraFields Fields   `json:"-"`
}

var itemAssetKeys = []string{"type", "title", "description", "roles"}

func (d ItemAssetDefinition) MarshalJSON() ([]byte, error) {
	type plain ItemAssetDefinition
	return marshalInline(plain(d), d.ExtraFields)
}

func (d *ItemAssetDefinition) UnmarshalJSON(data []byte) error {
	type plain ItemAssetDefinition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unmarshalExtra(data, itemAssetKeys)
	if err != nil {
		return err
	}
	*d = ItemAssetDefinition(p)
	d.ExtraFields = extra
	return nil
}

type SpatialExtent struct {
	BBox [][]float64 `json:"bbox"`
}

type TemporalExtent struct {
	Interval [][]*string `json:"interval"`
}

type Extent struct {
	Spatial  SpatialExtent  `json:"spatial"`
	Temporal TemporalExtent `json:"temporal"`
}

// NewExtent converts an aggregated extent into its STAC form.
func NewExtent(e reconcile.Extent) *Extent {
	start := reconcile.FormatTime(e.Temporal.Start)
	end := reconcile.FormatTime(e.Temporal.End)
	return &Extent{
		Spatial:  SpatialExtent{BBox: [][]float64{e.Spatial.Slice()}},
		Temporal: TemporalExtent{Interval: [][]*string{{&start, &end}}},
	}
}

// Interval returns the first temporal interval. Open ends are nil.
func (e *Extent) Interval() (start, end *time.Time) {
	if e == nil || len(e.Temporal.Interval) == 0 || len(e.Temporal.Interval[0]) != 2 {
		return nil, nil
	}
	return parseTimePtr(e.Temporal.Interval[0][0]), parseTimePtr(e.Temporal.Interval[0][1])
}

// BBox returns the overall spatial bbox.
func (e *Extent) BBox() (reconcile.BBox, bool) {
	if e == nil || len(e.Spatial.BBox) == 0 {
		return reconcile.BBox{}, false
	}
	return reconcile.BBoxFromSlice(e.Spatial.BBox[0])
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := ParseTime(*s)
	if err != nil {
		return nil
	}
	return &t
}

// ParseTime accepts RFC 3339 timestamps, with or without a zone.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t.UTC(), nil
	}
	t, err2 := time.Parse("2006-01-02T15:04:05.999999999", s)
	if err2 == nil {
		return t.UTC(), nil
	}
	return time.Time{}, err
}
