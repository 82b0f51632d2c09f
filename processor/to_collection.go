package processor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
	"github.com/nci/stacube/utils"
)

// CollectionInput is one source item and the raster files of its output
// assets, in the order of the profile's assets.
type CollectionInput struct {
	Item  string
	Files []string
}

// ToCollectionPipeline publishes per-item rasters as a self-contained
// catalog holding one collection.
type ToCollectionPipeline struct {
	Env
}

func InitToCollectionPipeline(env Env) *ToCollectionPipeline {
	env.normalise(utils.CommandToCollection)
	return &ToCollectionPipeline{Env: env}
}

type copyJob struct {
	src, dst string
}

func (p *ToCollectionPipeline) Process(inputs []CollectionInput) (*stac.Catalog, error) {
	if len(inputs) == 0 {
		return nil, &reconcile.Error{Kind: reconcile.ErrEmptyExtentSet, Detail: "no input items"}
	}
	prof := p.Profile
	collDir := filepath.Join(p.OutputDir, prof.CollectionID)

	var (
		items   []*stac.Item
		extents []reconcile.ItemExtent
		copies  []copyJob
	)
	for _, in := range inputs {
		p.Metrics.Info.Input = append(p.Metrics.Info.Input, in.Item)
		if len(in.Files) != len(prof.Assets) {
			return nil, fmt.Errorf("item %s: %d asset files for %d assets", in.Item, len(in.Files), len(prof.Assets))
		}
		src, err := p.Reader.ReadFirstItem(p.Context, in.Item)
		if err != nil {
			return nil, err
		}
		item, jobs, err := p.composeItem(src, in.Files, filepath.Join(collDir, src.ID))
		if err != nil {
			return nil, reconcile.WithItem(err, src.ID)
		}
		items = append(items, item)
		extents = append(extents, item.Extent())
		copies = append(copies, jobs...)
		p.Log.Info().Str("item", item.ID).Int("assets", len(item.Assets)).Msg("item composed")
	}

	ext, err := reconcile.Aggregate(extents)
	if err != nil {
		return nil, err
	}
	d, err := reconcile.Compose(ext, reconcile.CubeDescriptor{}, nil)
	if err != nil {
		return nil, err
	}

	coll := stac.NewCollection(prof.CollectionID, prof.CollectionTitle, prof.CollectionDescription, nil)
	coll.ApplyDescriptor(d)
	coll.ItemAssets = map[string]*stac.ItemAssetDefinition{}
	for _, ap := range prof.Assets {
		coll.ItemAssets[ap.Key] = &stac.ItemAssetDefinition{
			Type:        ap.MediaType,
			Title:       ap.Title,
			Description: ap.Description,
			Roles:       ap.Roles,
		}
	}
	coll.AddExtension(stac.ItemAssetsSchema)
	for _, it := range items {
		coll.AddItem(it)
	}

	cat := stac.NewCatalog(prof.CatalogID, "", prof.CatalogDescription)
	cat.AddChild(coll)

	for _, job := range copies {
		n, err := copyFile(job.src, job.dst)
		if err != nil {
			return nil, err
		}
		p.Metrics.AddChunks(0, n)
	}
	if err := p.Writer.Save(cat, p.OutputDir); err != nil {
		return nil, err
	}
	if err := p.index(coll.ID, items); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	p.Metrics.Info.NumItems = len(items)
	p.Metrics.Info.NumAssets = len(items) * len(prof.Assets)
	p.Metrics.SetExtent(ext)
	p.recordOutputs()
	p.Metrics.Info.FilesWritten += len(copies)
	p.Log.Info().Str("collection", coll.ID).Int("items", len(items)).Str("dir", p.OutputDir).Msg("catalog saved")
	return cat, nil
}

// composeItem builds the output item for src whose asset files will be
// copied into itemDir.
func (p *ToCollectionPipeline) composeItem(src *stac.Item, files []string, itemDir string) (*stac.Item, []copyJob, error) {
	dt := src.Datetime()
	if dt == nil {
		return nil, nil, &reconcile.Error{Kind: reconcile.ErrEmptyExtentSet, Item: src.ID, Field: "datetime"}
	}

	assets := map[string]reconcile.StoreRef{}
	var jobs []copyJob
	used := map[string]bool{}
	for i, ap := range p.Profile.Assets {
		file := files[i]
		info, err := p.Driver.Inspect(file)
		if err != nil {
			return nil, nil, fmt.Errorf("inspect %s: %w", file, err)
		}
		grid := info.Grid()
		if grid.CRS == "" {
			return nil, nil, &reconcile.Error{Kind: reconcile.ErrMissingCrs, Asset: ap.Key, Detail: file}
		}
		band, err := info.Describe(1)
		if err != nil {
			return nil, nil, err
		}

		name := filepath.Base(file)
		if used[name] {
			name = ap.Key + filepath.Ext(file)
		}
		used[name] = true
		dst := filepath.Join(itemDir, name)
		jobs = append(jobs, copyJob{src: file, dst: dst})

		assets[ap.Key] = reconcile.StoreRef{
			Href:        dst,
			MediaType:   ap.MediaType,
			Roles:       ap.Roles,
			Title:       ap.Title,
			Description: ap.Description,
			Grid:        &grid,
			Bands:       []reconcile.BandDescriptor{band},
		}
	}

	d, err := reconcile.Compose(reconcile.Extent{}, reconcile.CubeDescriptor{}, assets)
	if err != nil {
		return nil, nil, err
	}
	item := stac.NewItem(src.ID, src.Geometry, src.BBox, *dt)
	item.ApplyDescriptor(d)
	return item, jobs, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}
