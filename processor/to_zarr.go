package processor

import (
	"fmt"
	"path/filepath"

	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
	"github.com/nci/stacube/utils"
)

// ToZarrPipeline materialises the items of a catalog's first collection
// into a chunked (time, y, x) store and publishes it as a collection.
type ToZarrPipeline struct {
	Env
}

func InitToZarrPipeline(env Env) *ToZarrPipeline {
	env.normalise(utils.CommandToZarr)
	return &ToZarrPipeline{Env: env}
}

// sourceCollection reads href and returns its first child collection,
// or the document itself when it is a collection.
func (e *Env) sourceCollection(href string) (*stac.Catalog, error) {
	e.Metrics.Info.Input = append(e.Metrics.Info.Input, href)
	cat, err := e.Reader.ReadCatalog(e.Context, href)
	if err != nil {
		return nil, err
	}
	if cat.IsCollection() {
		return cat, nil
	}
	coll := cat.FirstChild()
	if coll == nil {
		return nil, fmt.Errorf("catalog %s has no collection", cat.ID)
	}
	return coll, nil
}

func (p *ToZarrPipeline) Process(catalogHref string) (*stac.Catalog, error) {
	src, err := p.sourceCollection(catalogHref)
	if err != nil {
		return nil, err
	}
	items := src.AllItems()
	if len(items) == 0 {
		return nil, &reconcile.Error{Kind: reconcile.ErrEmptyExtentSet, Detail: "collection " + src.ID + " has no items"}
	}

	vars, err := cubeVariables(p.Profile, items[0], src.ItemAssets)
	if err != nil {
		return nil, err
	}
	plan, err := p.planCube(items, vars)
	if err != nil {
		return nil, err
	}
	p.Log.Info().Str("collection", src.ID).Int("items", plan.NumItems()).Int("times", len(plan.Times)).
		Int("rows", plan.Grid.Shape.Rows).Int("cols", plan.Grid.Shape.Cols).Msg("cube planned")

	collID := src.ID
	if p.Profile.CollectionID != "" {
		collID = p.Profile.CollectionID
	}
	group := p.Profile.MeasurementGroup
	storeRoot := filepath.Join(p.OutputDir, collID, collID+".zarr")

	cs, err := p.createCubeStore(storeRoot, group, plan,
		map[string]interface{}{"title": src.Title, "description": src.Description},
		map[string]interface{}{"description": "Measurements"})
	if err != nil {
		return nil, err
	}
	if err := p.loadCube(plan, cs); err != nil {
		return nil, err
	}
	cube, err := p.describeCube(plan, cs)
	if err != nil {
		return nil, err
	}

	assets := map[string]reconcile.StoreRef{
		group: {
			Href:        filepath.Join(storeRoot, group),
			MediaType:   stac.MediaTypeZarr,
			Roles:       []string{"data", "zarr"},
			Title:       "Measurements",
			Description: "All measurements of the cube",
			Grid:        &plan.Grid,
		},
	}
	for _, v := range plan.Variables {
		assets[v.Name] = reconcile.StoreRef{
			Href:        filepath.Join(storeRoot, group, v.Name),
			MediaType:   stac.MediaTypeZarr,
			Roles:       []string{"data", "zarr"},
			Title:       v.Title,
			Description: v.Description,
			Grid:        &plan.Grid,
			Variables:   []string{v.Name},
			Bands:       []reconcile.BandDescriptor{v.Descriptor},
		}
	}

	d, err := reconcile.Compose(plan.Extent, cube, assets)
	if err != nil {
		return nil, err
	}
	d.AddLink(reconcile.LinkRef{Rel: stac.RelStore, Href: storeRoot, MediaType: stac.MediaTypeZarr, Title: "Zarr store"})

	title := src.Title
	if p.Profile.CollectionTitle != "" {
		title = p.Profile.CollectionTitle
	}
	desc := src.Description
	if p.Profile.CollectionDescription != "" {
		desc = p.Profile.CollectionDescription
	}
	coll := stac.NewCollection(collID, title, desc, nil)
	coll.ApplyDescriptor(d)
	coll.ItemAssets = src.ItemAssets
	if len(coll.ItemAssets) > 0 {
		coll.AddExtension(stac.ItemAssetsSchema)
	}

	catID := collID
	if p.Profile.CatalogID != "" {
		catID = p.Profile.CatalogID
	}
	cat := stac.NewCatalog(catID, "", desc)
	cat.AddChild(coll)

	// Store links are written relative to the collection document.
	for _, l := range coll.LinksByRel(stac.RelStore) {
		if rel, err := filepath.Rel(filepath.Join(p.OutputDir, collID), l.Href); err == nil {
			l.Href = filepath.ToSlash(rel)
		}
	}
	if err := p.Writer.Save(cat, p.OutputDir); err != nil {
		return nil, err
	}
	if err := p.index(collID, items); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	p.Metrics.Info.NumItems = plan.NumItems()
	p.Metrics.Info.NumAssets = len(assets)
	p.Metrics.Info.NumTimeSlices = len(plan.Times)
	p.Metrics.SetExtent(plan.Extent)
	p.recordOutputs()
	p.Log.Info().Str("store", storeRoot).Int64("chunks", p.Metrics.Info.NumChunks).Msg("cube written")
	return cat, nil
}
