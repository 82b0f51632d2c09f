package reconcile

import (
	"fmt"
	"sort"
)

// StoreRef points at an external store location and carries what an
// asset needs to describe it.
type StoreRef struct {
	Href        string
	MediaType   string
	Roles       []string
	Title       string
	Description string

	// CRS is the reference system the asset declares, if any. Grid, when
	// set, supplies it too.
	CRS  CRS
	Grid *GridGeometry

	// Variables names the cube variables the asset exposes, nil for all.
	Variables []string
	Bands     []BandDescriptor
	Extra     Fields
}

// LinkRef is a relation from the composed artifact to a store.
type LinkRef struct {
	Rel       string
	Href      string
	MediaType string
	Title     string
}

// CatalogDescriptor is everything a catalog writer needs to describe one
// output artifact. It carries exactly one CRS.
type CatalogDescriptor struct {
	Extent Extent
	Cube   CubeDescriptor
	Assets map[string]StoreRef
	Links  []LinkRef
	CRS    CRS
}

// Compose assembles a catalog descriptor and checks that the extent, the
// cube and every asset agree on a single CRS.
func Compose(extent Extent, cube CubeDescriptor, assets map[string]StoreRef) (*CatalogDescriptor, error) {
	crs := cube.CRS
	if extent.ReferenceSystem != "" {
		if crs != "" && !crs.Equal(extent.ReferenceSystem) {
			return nil, &Error{
				Kind:   ErrCrsMismatch,
				Detail: fmt.Sprintf("cube %s, extent %s", crs, extent.ReferenceSystem),
			}
		}
		if crs == "" {
			crs = extent.ReferenceSystem
		}
	}

	names := make([]string, 0, len(assets))
	for name := range assets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref := assets[name]
		for _, c := range []CRS{ref.CRS, gridCRS(ref.Grid)} {
			if c == "" {
				continue
			}
			if crs == "" {
				crs = c
				continue
			}
			if !crs.Equal(c) {
				return nil, &Error{
					Kind:   ErrCrsMismatch,
					Asset:  name,
					Detail: fmt.Sprintf("asset %s, expected %s", c, crs),
				}
			}
		}
		for _, v := range ref.Variables {
			if _, ok := cube.Variables[v]; !ok {
				return nil, &Error{
					Kind:   ErrDanglingDimensionReference,
					Asset:  name,
					Detail: fmt.Sprintf("variable %q is not declared", v),
				}
			}
		}
	}

	return &CatalogDescriptor{
		Extent: extent,
		Cube:   cube,
		Assets: assets,
		CRS:    crs,
	}, nil
}

func gridCRS(g *GridGeometry) CRS {
	if g == nil {
		return ""
	}
	return g.CRS
}

// AddLink records a link to a store. It returns d for chaining.
func (d *CatalogDescriptor) AddLink(l LinkRef) *CatalogDescriptor {
	d.Links = append(d.Links, l)
	return d
}

// AssetNames returns the asset keys in sorted order.
func (d *CatalogDescriptor) AssetNames() []string {
	return sortedKeys(d.Assets)
}

// CubeFields returns the datacube fields of the whole artifact.
func (d *CatalogDescriptor) CubeFields() Fields {
	if len(d.Cube.Dimensions) == 0 && len(d.Cube.Variables) == 0 {
		return Fields{}
	}
	return d.Cube.Fields()
}

// AssetFields returns the extension fields of one asset: the datacube
// fields restricted to its variables, projection fields, raster bands and
// a bands list naming its variables.
func (d *CatalogDescriptor) AssetFields(name string) Fields {
	ref, ok := d.Assets[name]
	if !ok {
		return nil
	}
	out := Fields{}
	for k, v := range ref.Extra {
		out[k] = v
	}

	if len(d.Cube.Dimensions) > 0 {
		vars := d.Cube.Variables
		if ref.Variables != nil {
			vars = make(map[string]VariableDescriptor, len(ref.Variables))
			for _, v := range ref.Variables {
				vars[v] = d.Cube.Variables[v]
			}
		}
		out["cube:dimensions"] = d.Cube.Dimensions
		out["cube:variables"] = vars

		var bands []map[string]string
		for _, v := range sortedKeys(vars) {
			b := map[string]string{"name": v}
			if desc := vars[v].Description; desc != "" {
				b["description"] = desc
			}
			bands = append(bands, b)
		}
		if len(bands) > 0 {
			out["bands"] = bands
		}
	}

	if ref.Grid != nil {
		for k, v := range ProjectionFields(*ref.Grid) {
			out[k] = v
		}
	} else if code := d.CRS.Code(); code > 0 {
		out[FieldEPSG] = code
		out[FieldCode] = d.CRS.Upper()
	}

	if len(ref.Bands) > 0 {
		out["raster:bands"] = ref.Bands
	}
	return out
}
