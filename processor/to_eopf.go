package processor

import (
	"fmt"
	"path/filepath"

	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
	"github.com/nci/stacube/utils"
)

// ToEOPFPipeline writes the items of a catalog as an EOPF style product:
// a store whose root group embeds the describing item, plus that item as
// a standalone document.
type ToEOPFPipeline struct {
	Env
}

func InitToEOPFPipeline(env Env) *ToEOPFPipeline {
	env.normalise(utils.CommandToEOPF)
	return &ToEOPFPipeline{Env: env}
}

// hrefData is what href templates can reference.
type hrefData struct {
	Product string
	Group   string
	Item    string
}

func (p *ToEOPFPipeline) Process(catalogHref string) (*stac.Item, error) {
	prof := p.Profile
	templates, err := utils.NewHrefTemplates(prof.Templates)
	if err != nil {
		return nil, err
	}

	src, err := p.sourceCollection(catalogHref)
	if err != nil {
		return nil, err
	}
	items := src.AllItems()
	if len(items) == 0 {
		return nil, &reconcile.Error{Kind: reconcile.ErrEmptyExtentSet, Detail: "collection " + src.ID + " has no items"}
	}
	vars, err := cubeVariables(prof, items[0], src.ItemAssets)
	if err != nil {
		return nil, err
	}
	plan, err := p.planCube(items, vars)
	if err != nil {
		return nil, err
	}

	group := prof.MeasurementGroup
	data := hrefData{Product: prof.Product, Group: group, Item: prof.ItemID}
	storeHref, err := renderOr(templates, "store", data, prof.Product+".zarr")
	if err != nil {
		return nil, err
	}
	storeRoot := filepath.Join(p.OutputDir, filepath.FromSlash(storeHref))

	cs, err := p.createCubeStore(storeRoot, group, plan,
		map[string]interface{}{"title": prof.Product},
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

	names := make([]string, 0, len(plan.Variables))
	var bands []reconcile.BandDescriptor
	for _, v := range plan.Variables {
		names = append(names, v.Name)
		bands = append(bands, v.Descriptor)
	}
	assets := map[string]reconcile.StoreRef{
		"store": {
			Href:        storeHref,
			MediaType:   stac.MediaTypeZarr,
			Roles:       []string{"data", "zarr", "store"},
			Title:       "Product store",
			Description: prof.Product,
		},
		"raster": {
			Href:      storeHref + "/" + group,
			MediaType: stac.MediaTypeZarr,
			Roles:     []string{"data"},
			Title:     "Raster bands",
			Grid:      &plan.Grid,
			Bands:     bands,
		},
	}
	if _, ok := prof.Templates["data-variable"]; ok {
		href, err := templates.Render("data-variable", data)
		if err != nil {
			return nil, err
		}
		assets["data-variable"] = reconcile.StoreRef{
			Href:      href,
			MediaType: stac.MediaTypeZarr,
			Roles:     []string{"data", "variable"},
			Title:     "Measurement variable",
			Variables: names,
			Extra: reconcile.Fields{
				"variables": map[string]interface{}{
					"measurement": map[string]interface{}{"enum": names},
				},
			},
		}
	}

	d, err := reconcile.Compose(plan.Extent, cube, assets)
	if err != nil {
		return nil, err
	}

	bounds := plan.Grid.Bounds()
	item := stac.NewItem(prof.ItemID, stac.BBoxGeometry(plan.Extent.Spatial), bounds.Slice(), plan.Extent.Temporal.Start)
	item.Properties["start_datetime"] = reconcile.FormatTime(plan.Extent.Temporal.Start)
	item.Properties["end_datetime"] = reconcile.FormatTime(plan.Extent.Temporal.End)
	item.Properties["title"] = prof.Product
	if len(prof.Parameters) > 0 {
		item.Properties["cf:parameter"] = prof.Parameters
		item.AddExtension(stac.CFSchema)
	}
	for k, v := range reconcile.ProjectionFields(plan.Grid) {
		item.Properties[k] = v
	}
	item.ApplyDescriptor(d)

	if err := cs.Store.SetAttributes("", map[string]interface{}{
		"title":          prof.Product,
		"stac_discovery": item,
	}); err != nil {
		return nil, fmt.Errorf("store attributes: %w", err)
	}

	out := filepath.Join(p.OutputDir, prof.Output)
	if err := p.Writer.SaveItem(item, out); err != nil {
		return nil, err
	}
	if err := p.index(src.ID, []*stac.Item{item}); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	p.Metrics.Info.NumItems = plan.NumItems()
	p.Metrics.Info.NumAssets = len(assets)
	p.Metrics.Info.NumTimeSlices = len(plan.Times)
	p.Metrics.SetExtent(plan.Extent)
	p.recordOutputs()
	p.Log.Info().Str("item", out).Str("store", storeRoot).Msg("product written")
	return item, nil
}

func renderOr(t *utils.HrefTemplates, name string, data interface{}, fallback string) (string, error) {
	for _, n := range t.Names() {
		if n == name {
			return t.Render(name, data)
		}
	}
	return fallback, nil
}
