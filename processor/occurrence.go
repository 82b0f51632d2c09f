package processor

import (
	"errors"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"strings"

	"github.com/nci/stacube/raster"
	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
	"github.com/nci/stacube/utils"
	"github.com/nci/stacube/zarr"
)

// OccurrencePipeline reduces one variable of a cube collection over time
// into a single GeoTIFF published as a one-item catalog.
type OccurrencePipeline struct {
	Env
}

func InitOccurrencePipeline(env Env) *OccurrencePipeline {
	env.normalise(utils.CommandOccurrence)
	return &OccurrencePipeline{Env: env}
}

func (p *OccurrencePipeline) Process(catalogHref string) (*stac.Catalog, error) {
	prof := p.Profile
	coll, err := p.sourceCollection(catalogHref)
	if err != nil {
		return nil, err
	}
	group := prof.MeasurementGroup
	asset, ok := coll.Assets[group]
	if !ok || asset == nil {
		return nil, reconcile.MissingAsset(coll.ID, group)
	}
	grid, err := reconcile.GridFromFields(asset.ExtraFields)
	if err != nil {
		return nil, reconcile.WithAsset(reconcile.WithItem(err, coll.ID), group)
	}

	varName := group
	if len(prof.Variables) > 0 {
		varName = prof.Variables[0].Name
	}
	root, node, err := splitStoreHref(asset.Href)
	if err != nil {
		return nil, err
	}
	store, err := zarr.Open(root)
	if err != nil {
		return nil, err
	}
	arr, err := store.OpenArray(path.Join(node, varName))
	if errors.Is(err, zarr.ErrNotFound) {
		return nil, reconcile.MissingAsset(coll.ID, varName)
	}
	if err != nil {
		return nil, err
	}

	mean, err := meanOverTime(arr, grid.Shape)
	if err != nil {
		return nil, reconcile.WithAsset(err, varName)
	}

	start, end := coll.Extent.Interval()
	if end == nil {
		end = start
	}
	if end == nil {
		return nil, &reconcile.Error{Kind: reconcile.ErrEmptyExtentSet, Item: coll.ID, Field: "extent.temporal"}
	}
	wgs, ok := coll.Extent.BBox()
	if !ok {
		return nil, &reconcile.Error{Kind: reconcile.ErrEmptyExtentSet, Item: coll.ID, Field: "extent.spatial"}
	}

	itemDir := filepath.Join(p.OutputDir, prof.ItemID)
	tif := filepath.Join(itemDir, prof.Output)
	res, _ := grid.Resolution()
	band := reconcile.Describe(string(reconcile.Float32), reconcile.Fields{"_FillValue": math.NaN()}, nil, &res)
	d, err := reconcile.Compose(
		reconcile.Extent{Spatial: wgs, Temporal: reconcile.Interval{Start: *end, End: *end}, ReferenceSystem: grid.CRS},
		reconcile.CubeDescriptor{},
		map[string]reconcile.StoreRef{
			"data": {
				Href:        tif,
				MediaType:   stac.MediaTypeCOG,
				Roles:       []string{"data"},
				Title:       "Water bodies occurrence",
				Description: "Mean of " + varName + " over time",
				Grid:        &grid,
				Bands:       []reconcile.BandDescriptor{band},
			},
		})
	if err != nil {
		return nil, err
	}

	if err := p.Driver.EncodeGeoTIFF(tif, mean, grid); err != nil {
		return nil, fmt.Errorf("encode %s: %w", tif, err)
	}

	item := stac.NewItem(prof.ItemID, stac.BBoxGeometry(wgs), wgs.Slice(), *end)
	item.ApplyDescriptor(d)
	cat := stac.NewCatalog(prof.CatalogID, "", prof.CatalogDescription)
	cat.AddItem(item)
	if err := p.Writer.Save(cat, p.OutputDir); err != nil {
		return nil, err
	}
	if err := p.index(prof.CatalogID, []*stac.Item{item}); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	p.Metrics.Info.NumItems = 1
	p.Metrics.Info.NumAssets = 1
	p.Metrics.Info.NumTimeSlices = arr.Meta.Shape[0]
	p.Metrics.SetExtent(d.Extent)
	p.recordOutputs()
	p.Metrics.Info.FilesWritten++
	p.Log.Info().Str("tif", tif).Int("times", arr.Meta.Shape[0]).Msg("occurrence written")
	return cat, nil
}

// splitStoreHref splits a local href into the store root, ending in
// ".zarr", and the node path inside the store.
func splitStoreHref(href string) (string, string, error) {
	href = filepath.ToSlash(href)
	i := strings.Index(href, ".zarr")
	if i < 0 {
		return "", "", fmt.Errorf("asset href %s is not inside a zarr store", href)
	}
	root := href[:i+len(".zarr")]
	node := strings.Trim(href[i+len(".zarr"):], "/")
	return filepath.FromSlash(root), node, nil
}

// meanOverTime averages a (time, y, x) array along time one slice at a
// time. Fill values and NaNs are ignored; pixels with no valid value are
// NaN.
func meanOverTime(arr *zarr.Array, shape reconcile.Shape) (*raster.Float32Raster, error) {
	s := arr.Meta.Shape
	if len(s) != 3 || s[1] != shape.Rows || s[2] != shape.Cols {
		return nil, &reconcile.Error{
			Kind:   reconcile.ErrShapeMismatch,
			Detail: fmt.Sprintf("array %s shape %v, grid %dx%d", arr.Name(), s, shape.Rows, shape.Cols),
		}
	}
	fill := float64(arr.Meta.FillValue)
	n := shape.Rows * shape.Cols
	sum := make([]float64, n)
	count := make([]int, n)
	for t := 0; t < s[0]; t++ {
		vals, err := arr.ReadRegion([]int{t, 0, 0}, []int{1, shape.Rows, shape.Cols})
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			if math.IsNaN(v) || v == fill {
				continue
			}
			sum[i] += v
			count[i]++
		}
	}

	out := raster.NewFloat32Raster(shape.Cols, shape.Rows, math.NaN())
	for i := range sum {
		if count[i] > 0 {
			out.Data[i] = float32(sum[i] / float64(count[i]))
		}
	}
	return out, nil
}
