package stac

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nci/stacube/reconcile"
)

type Item struct {
	Type           string            `json:"type"`
	StacVersion    string            `json:"stac_version"`
	StacExtensions []string          `json:"stac_extensions,omitempty"`
	ID             string            `json:"id"`
	Geometry       json.RawMessage   `json:"geometry"`
	BBox           []float64         `json:"bbox,omitempty"`
	Properties     Fields            `json:"properties"`
	Links          []*Link           `json:"links"`
	Assets         map[string]*Asset `json:"assets"`
	Collection     string            `json:"collection,omitempty"`

	href string
}

func NewItem(id string, geometry json.RawMessage, bbox []float64, datetime time.Time) *Item {
	if geometry == nil {
		geometry = json.RawMessage("null")
	}
	it := &Item{
		Type:        TypeItem,
		StacVersion: Version,
		ID:          id,
		Geometry:    geometry,
		BBox:        bbox,
		Properties:  Fields{},
		Links:       []*Link{},
		Assets:      map[string]*Asset{},
	}
	it.SetDatetime(datetime)
	return it
}

func (i *Item) SetDatetime(t time.Time) {
	i.Properties["datetime"] = reconcile.FormatTime(t)
}

// Datetime returns the item datetime, falling back to start_datetime.
func (i *Item) Datetime() *time.Time {
	for _, key := range []string{"datetime", "start_datetime"} {
		if s, ok := i.Properties[key].(string); ok {
			if t, err := ParseTime(s); err == nil {
				return &t
			}
		}
	}
	return nil
}

// Extent returns the extent relevant part of the item. The CRS is taken
// from the item properties when they carry one.
func (i *Item) Extent() reconcile.ItemExtent {
	e := reconcile.ItemExtent{ID: i.ID, Datetime: i.Datetime()}
	if b, ok := reconcile.BBoxFromSlice(i.BBox); ok {
		e.BBox = &b
	}
	if c, err := reconcile.ResolveCRS(i.Properties); err == nil {
		e.CRS = c
	}
	return e
}

// CRS resolves the item CRS from its properties, else from the first
// asset that declares one, in key order.
func (i *Item) CRS() (reconcile.CRS, error) {
	c, err := reconcile.ResolveCRS(i.Properties)
	if err == nil {
		return c, nil
	}
	for _, key := range sortedAssetKeys(i.Assets) {
		if c, aerr := reconcile.ResolveCRS(i.Assets[key].ExtraFields); aerr == nil {
			return c, nil
		}
	}
	return "", reconcile.WithItem(err, i.ID)
}

// Asset returns the asset under key or a MissingRequiredAsset error.
func (i *Item) Asset(key string) (*Asset, error) {
	a, ok := i.Assets[key]
	if !ok || a == nil {
		return nil, reconcile.MissingAsset(i.ID, key)
	}
	return a, nil
}

// AssetFields merges item properties under the asset's own fields, so
// asset level projection fields override item level ones.
func (i *Item) AssetFields(key string) Fields {
	out := Fields{}
	for k, v := range i.Properties {
		out[k] = v
	}
	if a, ok := i.Assets[key]; ok && a != nil {
		for k, v := range a.ExtraFields {
			out[k] = v
		}
	}
	return out
}

func (i *Item) AssetKeys() []string {
	return sortedAssetKeys(i.Assets)
}

func (i *Item) AddExtension(uri string) {
	i.StacExtensions = addExtension(i.StacExtensions, uri)
}

func (i *Item) AddLink(l *Link) {
	i.Links = append(i.Links, l)
}

func (i *Item) AddAsset(key string, a *Asset) {
	if i.Assets == nil {
		i.Assets = map[string]*Asset{}
	}
	i.Assets[key] = a
}

func (i *Item) Href() string { return i.href }

func (i *Item) validate() error {
	if i.Type != TypeItem {
		return fmt.Errorf("stac: %q is not an item (type %q)", i.ID, i.Type)
	}
	if i.ID == "" {
		return fmt.Errorf("stac: item without id")
	}
	if i.Properties == nil {
		i.Properties = Fields{}
	}
	return nil
}
