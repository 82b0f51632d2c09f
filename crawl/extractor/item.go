package extractor

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
)

// ExtractItem reads the STAC document at path. Documents that are not
// items (catalogs, collections, other JSON) yield nil without error.
// Reconciliation problems of single assets are recorded in Errors rather
// than failing the whole item.
func ExtractItem(path string) (*ItemInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if stac.DocumentType(data) != stac.TypeItem {
		return nil, nil
	}
	item, err := stac.ParseItem(data, path)
	if err != nil {
		return nil, err
	}
	return ItemInfoFrom(item, path), nil
}

// ItemInfoFrom reconciles an already parsed item.
func ItemInfoFrom(item *stac.Item, path string) *ItemInfo {
	info := &ItemInfo{
		Path:       path,
		ID:         item.ID,
		Collection: item.Collection,
		Datetime:   item.Datetime(),
		BBox:       item.BBox,
		Assets:     []*AssetInfo{},
		Item:       item,
	}

	if crs, src, err := reconcile.ResolveCRSWithSource(item.Properties); err == nil {
		info.CRS, info.CRSSource = crs, src
	}
	if wkt, err := stac.FootprintWKT(item.Geometry); err == nil {
		info.Footprint = wkt
	}

	for _, key := range item.AssetKeys() {
		a := item.Assets[key]
		ai := &AssetInfo{Key: key, Href: a.Href, MediaType: a.Type, Roles: a.Roles}
		fields := item.AssetFields(key)

		if crs, err := reconcile.ResolveCRS(fields); err == nil {
			ai.CRS = crs
			if grid, err := reconcile.GridFromFields(fields); err == nil {
				ai.Grid = &GridInfo{
					Shape:     [2]int{grid.Shape.Rows, grid.Shape.Cols},
					Transform: grid.Affine[:],
					BBox:      grid.Bounds().Slice(),
					CRS:       grid.CRS,
				}
			} else if hasProjection(fields) {
				info.Errors = append(info.Errors, reconcile.WithAsset(err, key).Error())
			}
		}

		bands, err := rasterBands(a.ExtraFields)
		if err != nil {
			info.Errors = append(info.Errors, fmt.Sprintf("asset %s: raster:bands: %v", key, err))
		}
		ai.Bands = bands
		info.Assets = append(info.Assets, ai)
	}
	return info
}

func hasProjection(f reconcile.Fields) bool {
	for _, k := range []string{reconcile.FieldShape, reconcile.FieldTransform, reconcile.FieldBBox} {
		if _, ok := f[k]; ok {
			return true
		}
	}
	return false
}

// rasterBands decodes the raster:bands list of an asset.
func rasterBands(f reconcile.Fields) ([]reconcile.BandDescriptor, error) {
	raw, ok := f["raster:bands"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var bands []reconcile.BandDescriptor
	if err := json.Unmarshal(data, &bands); err != nil {
		return nil, err
	}
	return bands, nil
}
