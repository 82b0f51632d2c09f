package stac

import (
	"sort"
	"strings"

	"github.com/nci/stacube/reconcile"
)

// ApplyDescriptor writes a composed descriptor into a collection: its
// extent, datacube fields, assets and store links.
func (c *Catalog) ApplyDescriptor(d *reconcile.CatalogDescriptor) {
	if !d.Extent.Temporal.Start.IsZero() {
		c.Extent = NewExtent(d.Extent)
	}
	for k, v := range d.CubeFields() {
		c.SetField(k, v)
		c.AddExtension(DatacubeSchema)
	}
	for _, name := range d.AssetNames() {
		a := newAsset(d, name)
		for _, uri := range extensionsOf(a.ExtraFields) {
			c.AddExtension(uri)
		}
		c.AddAsset(name, a)
	}
	for _, l := range d.Links {
		c.AddLink(&Link{Rel: l.Rel, Href: l.Href, Type: l.MediaType, Title: l.Title})
	}
}

// ApplyDescriptor writes a composed descriptor into an item. Datacube and
// projection fields go into the item properties.
func (i *Item) ApplyDescriptor(d *reconcile.CatalogDescriptor) {
	for k, v := range d.CubeFields() {
		i.Properties[k] = v
		i.AddExtension(DatacubeSchema)
	}
	if code := d.CRS.Code(); code > 0 {
		i.Properties[reconcile.FieldEPSG] = code
		i.Properties[reconcile.FieldCode] = d.CRS.Upper()
		i.AddExtension(ProjectionSchema)
	}
	for _, name := range d.AssetNames() {
		a := newAsset(d, name)
		for _, uri := range extensionsOf(a.ExtraFields) {
			i.AddExtension(uri)
		}
		i.AddAsset(name, a)
	}
	for _, l := range d.Links {
		i.AddLink(&Link{Rel: l.Rel, Href: l.Href, Type: l.MediaType, Title: l.Title})
	}
}

func newAsset(d *reconcile.CatalogDescriptor, name string) *Asset {
	ref := d.Assets[name]
	return &Asset{
		Href:        ref.Href,
		Type:        ref.MediaType,
		Title:       ref.Title,
		Description: ref.Description,
		Roles:       ref.Roles,
		ExtraFields: d.AssetFields(name),
	}
}

// extensionsOf lists the schema URIs implied by the field prefixes.
func extensionsOf(f Fields) []string {
	var out []string
	seen := map[string]bool{}
	for k := range f {
		var uri string
		switch {
		case strings.HasPrefix(k, "proj:"):
			uri = ProjectionSchema
		case strings.HasPrefix(k, "raster:"):
			uri = RasterSchema
		case strings.HasPrefix(k, "cube:"):
			uri = DatacubeSchema
		case strings.HasPrefix(k, "cf:"):
			uri = CFSchema
		}
		if uri != "" && !seen[uri] {
			seen[uri] = true
			out = append(out, uri)
		}
	}
	sort.Strings(out)
	return out
}
