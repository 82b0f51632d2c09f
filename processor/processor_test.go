package processor

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nci/stacube/raster"
	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
	"github.com/nci/stacube/utils"
	"github.com/nci/stacube/zarr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	testGT  = [6]float64{600000, 10, 0, 4500020, 0, -10}
	testWGS = reconcile.BBox{-121.8, 40.6, -121.79, 40.61}
	day1    = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	day2    = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	nodata  = 255.0
)

type fakeFile struct {
	info *raster.Info
	data []float32
}

// fakeDriver serves 3x2 rasters from memory, keyed by file base name so
// that copied files resolve to the same raster.
type fakeDriver struct {
	mu       sync.Mutex
	files    map[string]*fakeFile
	encoded  map[string]*raster.Float32Raster
	badShape bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{files: map[string]*fakeFile{}, encoded: map[string]*raster.Float32Raster{}}
}

func (f *fakeDriver) add(t *testing.T, dir, name string, epsg int, dtype string, nd *float64, data []float32) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("raster "+name), 0644))
	f.files[name] = &fakeFile{
		info: &raster.Info{
			Driver:       "GTiff",
			Width:        3,
			Height:       2,
			GeoTransform: testGT,
			EPSG:         epsg,
			Bands:        []raster.Band{{DataType: dtype, NoData: nd}},
		},
		data: data,
	}
	return path
}

func (f *fakeDriver) lookup(path string) (*fakeFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[filepath.Base(path)]
	if !ok {
		return nil, errors.New("no such raster: " + path)
	}
	return ff, nil
}

func (f *fakeDriver) Inspect(path string) (*raster.Info, error) {
	ff, err := f.lookup(path)
	if err != nil {
		return nil, err
	}
	info := *ff.info
	info.Path = path
	return &info, nil
}

// Warp resamples with nearest neighbour from the native grid.
func (f *fakeDriver) Warp(ctx context.Context, path string, band int, grid reconcile.GridGeometry) (*raster.Float32Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ff, err := f.lookup(path)
	if err != nil {
		return nil, err
	}
	nd := math.NaN()
	if b := ff.info.Bands[band-1]; b.NoData != nil {
		nd = *b.NoData
	}
	if f.badShape {
		return raster.NewFloat32Raster(1, 1, nd), nil
	}
	out := raster.NewFloat32Raster(grid.Shape.Cols, grid.Shape.Rows, nd)
	gt := ff.info.GeoTransform
	for r := 0; r < grid.Shape.Rows; r++ {
		for c := 0; c < grid.Shape.Cols; c++ {
			x, y := grid.Affine.Apply(float64(c)+0.5, float64(r)+0.5)
			sc := int(math.Floor((x - gt[0]) / gt[1]))
			sr := int(math.Floor((y - gt[3]) / gt[5]))
			if sc < 0 || sr < 0 || sc >= ff.info.Width || sr >= ff.info.Height {
				continue
			}
			out.Data[r*grid.Shape.Cols+c] = ff.data[sr*ff.info.Width+sc]
		}
	}
	return out, nil
}

func (f *fakeDriver) EncodeGeoTIFF(path string, r *raster.Float32Raster, grid reconcile.GridGeometry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f.mu.Lock()
	f.encoded[filepath.Base(path)] = r
	f.mu.Unlock()
	return os.WriteFile(path, []byte("encoded"), 0644)
}

func testEnv(drv raster.Driver, out string, prof *utils.Profile) Env {
	return Env{
		Context:     context.Background(),
		Driver:      drv,
		Log:         zerolog.Nop(),
		Profile:     prof,
		Concurrency: 2,
		OutputDir:   out,
	}
}

func writeSourceItem(t *testing.T, dir, id string, dt time.Time) string {
	t.Helper()
	item := stac.NewItem(id, stac.BBoxGeometry(testWGS), testWGS.Slice(), dt)
	path := filepath.Join(dir, id+".json")
	require.NoError(t, stac.NewWriter(zerolog.Nop()).SaveItem(item, path))
	return path
}

var (
	waterA = []float32{1, 0, 1, 255, 1, 0}
	waterB = []float32{1, 1, 0, 0, 255, 1}
	ndwiA  = []float32{0.5, -0.25, 0, 0.75, 1, -1}
	ndwiB  = []float32{0.25, 0.5, -0.5, 0, 0.125, 1}
)

// collectionInputs writes two source items with a water and an ndwi
// raster each.
func collectionInputs(t *testing.T, drv *fakeDriver, ndwiEPSG int) []CollectionInput {
	return collectionInputsAt(t, drv, ndwiEPSG, day1, day2)
}

// collectionInputsAt is collectionInputs with the item datetimes given;
// one datetime yields only the first item.
func collectionInputsAt(t *testing.T, drv *fakeDriver, ndwiEPSG int, times ...time.Time) []CollectionInput {
	t.Helper()
	src := t.TempDir()
	var inputs []CollectionInput
	for i, c := range []struct {
		id          string
		water, ndwi []float32
	}{
		{"S2-A", waterA, ndwiA},
		{"S2-B", waterB, ndwiB},
	}[:len(times)] {
		inputs = append(inputs, CollectionInput{
			Item: writeSourceItem(t, src, c.id, times[i]),
			Files: []string{
				drv.add(t, src, c.id+"_wb.tif", 32610, "UInt8", &nodata, c.water),
				drv.add(t, src, c.id+"_ndwi.tif", ndwiEPSG, "Float32", nil, c.ndwi),
			},
		})
	}
	return inputs
}

func buildCollection(t *testing.T, drv *fakeDriver) string {
	return buildCollectionAt(t, drv, day1, day2)
}

func buildCollectionAt(t *testing.T, drv *fakeDriver, times ...time.Time) string {
	t.Helper()
	out := t.TempDir()
	p := InitToCollectionPipeline(testEnv(drv, out, nil))
	_, err := p.Process(collectionInputsAt(t, drv, 32610, times...))
	require.NoError(t, err)
	return out
}

func buildCube(t *testing.T, drv *fakeDriver) string {
	t.Helper()
	out := t.TempDir()
	p := InitToZarrPipeline(testEnv(drv, out, nil))
	_, err := p.Process(buildCollection(t, drv))
	require.NoError(t, err)
	return out
}

func TestToCollection(t *testing.T) {
	drv := newFakeDriver()
	out := t.TempDir()
	p := InitToCollectionPipeline(testEnv(drv, out, nil))
	cat, err := p.Process(collectionInputs(t, drv, 32610))
	require.NoError(t, err)
	assert.Equal(t, "catalog", cat.ID)

	assert.FileExists(t, filepath.Join(out, "catalog.json"))
	assert.FileExists(t, filepath.Join(out, "water-bodies", "collection.json"))
	assert.FileExists(t, filepath.Join(out, "water-bodies", "S2-A", "S2-A.json"))
	assert.FileExists(t, filepath.Join(out, "water-bodies", "S2-B", "S2-B_ndwi.tif"))

	read, err := stac.NewReader(stac.NewFetcher("", zerolog.Nop()), zerolog.Nop()).ReadCatalog(context.Background(), out)
	require.NoError(t, err)
	coll := read.FirstChild()
	require.NotNil(t, coll)
	assert.Equal(t, "water-bodies", coll.ID)
	assert.Contains(t, coll.ItemAssets, "ndwi")
	start, end := coll.Extent.Interval()
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.True(t, start.Equal(day1))
	assert.True(t, end.Equal(day2))
	bbox, ok := coll.Extent.BBox()
	require.True(t, ok)
	assert.Equal(t, testWGS, bbox)

	items := read.AllItems()
	require.Len(t, items, 2)
	for _, it := range items {
		crs, err := it.CRS()
		require.NoError(t, err)
		assert.Equal(t, reconcile.EPSG(32610), crs)
		assert.ElementsMatch(t, []string{"ndwi", "water-bodies"}, it.AssetKeys())
		assert.Contains(t, it.Assets["water-bodies"].ExtraFields, "raster:bands")
		assert.FileExists(t, it.Assets["water-bodies"].Href)
	}

	assert.Equal(t, 2, p.Metrics.Info.NumItems)
	assert.Equal(t, 4, p.Metrics.Info.NumAssets)
}

func TestToCollectionCrsMismatch(t *testing.T) {
	drv := newFakeDriver()
	p := InitToCollectionPipeline(testEnv(drv, t.TempDir(), nil))
	_, err := p.Process(collectionInputs(t, drv, 32611))
	require.Error(t, err)
	assert.True(t, errors.Is(err, reconcile.ErrCrsMismatch), err.Error())
	var re *reconcile.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "S2-A", re.Item)
}

func TestToCollectionFileCount(t *testing.T) {
	drv := newFakeDriver()
	p := InitToCollectionPipeline(testEnv(drv, t.TempDir(), nil))
	inputs := collectionInputs(t, drv, 32610)
	inputs[1].Files = inputs[1].Files[:1]
	_, err := p.Process(inputs)
	assert.Error(t, err)
}

func TestToZarr(t *testing.T) {
	drv := newFakeDriver()
	src := buildCollection(t, drv)
	out := t.TempDir()
	p := InitToZarrPipeline(testEnv(drv, out, nil))
	cat, err := p.Process(src)
	require.NoError(t, err)
	assert.Equal(t, "water-bodies", cat.ID)
	assert.Equal(t, int64(4), p.Metrics.Info.NumChunks)
	assert.Equal(t, 2, p.Metrics.Info.NumTimeSlices)

	store, err := zarr.Open(filepath.Join(out, "water-bodies", "water-bodies.zarr"))
	require.NoError(t, err)
	water, err := store.OpenArray("measurements/water-bodies")
	require.NoError(t, err)
	assert.Equal(t, reconcile.UInt8, water.Meta.DataType)
	assert.Equal(t, []int{2, 2, 3}, water.Meta.Shape)
	vals, err := water.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1, 255, 1, 0, 1, 1, 0, 0, 255, 1}, vals)

	ndwi, err := store.OpenArray("measurements/ndwi")
	require.NoError(t, err)
	assert.Equal(t, reconcile.Float32, ndwi.Meta.DataType)
	vals, err = ndwi.ReadRegion([]int{1, 0, 0}, []int{1, 2, 3})
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{0.25, 0.5, -0.5, 0, 0.125, 1}, vals); diff != "" {
		t.Errorf("ndwi second slice (-want +got):\n%s", diff)
	}

	tarr, err := store.OpenArray("measurements/time")
	require.NoError(t, err)
	times, err := tarr.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []float64{float64(day1.UnixMilli()), float64(day2.UnixMilli())}, times)

	xs, err := store.OpenArray("measurements/x")
	require.NoError(t, err)
	xv, err := xs.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []float64{600005, 600015, 600025}, xv)

	read, err := stac.NewReader(stac.NewFetcher("", zerolog.Nop()), zerolog.Nop()).ReadCatalog(context.Background(), out)
	require.NoError(t, err)
	coll := read.FirstChild()
	require.NotNil(t, coll)
	assert.Contains(t, coll.ExtraFields, "cube:dimensions")
	assert.Contains(t, coll.ExtraFields, "cube:variables")
	for _, key := range []string{"measurements", "ndwi", "water-bodies"} {
		require.Contains(t, coll.Assets, key)
		assert.Equal(t, stac.MediaTypeZarr, coll.Assets[key].Type)
	}
	assert.Contains(t, coll.Assets["water-bodies"].ExtraFields, "raster:bands")
	links := coll.LinksByRel(stac.RelStore)
	require.Len(t, links, 1)
	assert.Equal(t, "water-bodies.zarr", links[0].Href)
	assert.Empty(t, read.AllItems())
}

func TestToZarrMissingAsset(t *testing.T) {
	drv := newFakeDriver()
	src := buildCollection(t, drv)
	prof := utils.DefaultProfile(utils.CommandToZarr)
	prof.Variables = []utils.VariableProfile{{Name: "swir"}}
	p := InitToZarrPipeline(testEnv(drv, t.TempDir(), prof))
	_, err := p.Process(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, reconcile.ErrMissingRequiredAsset), err.Error())
}

func TestToZarrWarpShapeMismatch(t *testing.T) {
	drv := newFakeDriver()
	src := buildCollection(t, drv)
	drv.badShape = true
	p := InitToZarrPipeline(testEnv(drv, t.TempDir(), nil))
	_, err := p.Process(src)
	require.Error(t, err)
	assert.Equal(t, reconcile.ErrShapeMismatch, reconcile.KindOf(err))
}

func TestToZarrSelector(t *testing.T) {
	drv := newFakeDriver()
	src := buildCollection(t, drv)
	prof := utils.DefaultProfile(utils.CommandToZarr)
	prof.AssetSelector = `key != "ndwi"`
	out := t.TempDir()
	p := InitToZarrPipeline(testEnv(drv, out, prof))
	_, err := p.Process(src)
	require.NoError(t, err)

	store, err := zarr.Open(filepath.Join(out, "water-bodies", "water-bodies.zarr"))
	require.NoError(t, err)
	arrays, err := store.Arrays("measurements")
	require.NoError(t, err)
	assert.Contains(t, arrays, "water-bodies")
	assert.NotContains(t, arrays, "ndwi")
}

func TestToZarrSubSecondTimes(t *testing.T) {
	drv := newFakeDriver()
	t1 := day1.Add(200 * time.Millisecond)
	t2 := day1.Add(700 * time.Millisecond)
	out := t.TempDir()
	p := InitToZarrPipeline(testEnv(drv, out, nil))
	_, err := p.Process(buildCollectionAt(t, drv, t1, t2))
	require.NoError(t, err)

	store, err := zarr.Open(filepath.Join(out, "water-bodies", "water-bodies.zarr"))
	require.NoError(t, err)
	tarr, err := store.OpenArray("measurements/time")
	require.NoError(t, err)
	assert.Equal(t, "milliseconds since 1970-01-01T00:00:00Z", tarr.Meta.Attributes["units"])
	times, err := tarr.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []float64{float64(t1.UnixMilli()), float64(t2.UnixMilli())}, times)

	read, err := stac.NewReader(stac.NewFetcher("", zerolog.Nop()), zerolog.Nop()).ReadCatalog(context.Background(), out)
	require.NoError(t, err)
	coll := read.FirstChild()
	require.NotNil(t, coll)
	raw, err := json.Marshal(coll.ExtraFields["cube:dimensions"])
	require.NoError(t, err)
	var dims map[string]reconcile.DimensionDescriptor
	require.NoError(t, json.Unmarshal(raw, &dims))
	require.Contains(t, dims, "time")
	assert.Equal(t, [2]string{reconcile.FormatTime(t1), reconcile.FormatTime(t2)}, dims["time"].TemporalExtent)
}

func TestToZarrRerunReplacesStore(t *testing.T) {
	drv := newFakeDriver()
	out := t.TempDir()
	_, err := InitToZarrPipeline(testEnv(drv, out, nil)).Process(buildCollection(t, drv))
	require.NoError(t, err)

	prof := utils.DefaultProfile(utils.CommandToZarr)
	prof.AssetSelector = `key == "water-bodies"`
	_, err = InitToZarrPipeline(testEnv(drv, out, prof)).Process(buildCollectionAt(t, drv, day1))
	require.NoError(t, err)

	store, err := zarr.Open(filepath.Join(out, "water-bodies", "water-bodies.zarr"))
	require.NoError(t, err)
	arrays, err := store.Arrays("measurements")
	require.NoError(t, err)
	assert.NotContains(t, arrays, "ndwi")
	require.Contains(t, arrays, "water-bodies")
	assert.Equal(t, []int{1, 2, 3}, arrays["water-bodies"].Meta.Shape)
	vals, err := arrays["water-bodies"].ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1, 255, 1, 0}, vals)
}

func TestToEOPF(t *testing.T) {
	drv := newFakeDriver()
	src := buildCollection(t, drv)
	prof := utils.DefaultProfile(utils.CommandToEOPF)
	prof.Variables[0].Asset = "water-bodies"
	out := t.TempDir()
	p := InitToEOPFPipeline(testEnv(drv, out, prof))
	item, err := p.Process(src)
	require.NoError(t, err)

	assert.Equal(t, "water-bodies", item.ID)
	assert.FileExists(t, filepath.Join(out, "item.json"))
	assert.ElementsMatch(t, []string{"data-variable", "raster", "store"}, item.AssetKeys())
	assert.Equal(t, "water_bodies_eopf.zarr/measurements/{measurement}", item.Assets["data-variable"].Href)
	assert.Equal(t, []float64{600000, 4500000, 600030, 4500020}, item.BBox)
	assert.Equal(t, reconcile.FormatTime(day1), item.Properties["start_datetime"])
	assert.Equal(t, reconcile.FormatTime(day2), item.Properties["end_datetime"])
	assert.Contains(t, item.Properties, "cf:parameter")
	assert.Contains(t, item.StacExtensions, stac.CFSchema)

	store, err := zarr.Open(filepath.Join(out, "water_bodies_eopf.zarr"))
	require.NoError(t, err)
	root, err := store.Group("")
	require.NoError(t, err)
	assert.Contains(t, root.Attributes, "stac_discovery")
	water, err := store.OpenArray("measurements/water")
	require.NoError(t, err)
	vals, err := water.ReadRegion([]int{0, 0, 0}, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1, 255, 1, 0}, vals)
}

func TestOccurrence(t *testing.T) {
	drv := newFakeDriver()
	cube := buildCube(t, drv)
	out := t.TempDir()
	p := InitOccurrencePipeline(testEnv(drv, out, nil))
	cat, err := p.Process(cube)
	require.NoError(t, err)
	assert.Equal(t, "catalog", cat.ID)

	assert.FileExists(t, filepath.Join(out, "occurrence", "water_bodies_mean.tif"))
	assert.FileExists(t, filepath.Join(out, "occurrence", "occurrence.json"))
	mean := drv.encoded["water_bodies_mean.tif"]
	require.NotNil(t, mean)
	assert.Equal(t, []float32{1, 0.5, 0.5, 0, 1, 0.5}, mean.Data)
	assert.True(t, math.IsNaN(mean.NoData))

	items := cat.AllItems()
	require.Len(t, items, 1)
	dt := items[0].Datetime()
	require.NotNil(t, dt)
	assert.True(t, dt.Equal(day2))
	assert.Contains(t, items[0].Assets["data"].ExtraFields, "raster:bands")
}

func TestOccurrenceMissingGroup(t *testing.T) {
	drv := newFakeDriver()
	src := buildCollection(t, drv)
	p := InitOccurrencePipeline(testEnv(drv, t.TempDir(), nil))
	_, err := p.Process(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, reconcile.ErrMissingRequiredAsset), err.Error())
}

func TestSplitStoreHref(t *testing.T) {
	root, node, err := splitStoreHref("/data/out/wb.zarr/measurements")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/data/out/wb.zarr"), root)
	assert.Equal(t, "measurements", node)

	_, _, err = splitStoreHref("/data/out/wb.tif")
	assert.Error(t, err)
}

func TestMosaic(t *testing.T) {
	a := raster.NewFloat32Raster(2, 2, 255)
	a.Data = []float32{1, 255, 255, 0}
	b := raster.NewFloat32Raster(2, 2, math.NaN())
	b.Data = []float32{7, 3, float32(math.NaN()), 9}
	got := mosaic([]*raster.Float32Raster{a, b}, 4, 255)
	assert.Equal(t, []float64{1, 3, 255, 0}, got)
}

func TestConcLimiter(t *testing.T) {
	l := NewConcLimiter(2)
	var running, peak int32
	for i := 0; i < 10; i++ {
		l.Increase()
		go func() {
			defer l.Decrease()
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
		}()
	}
	l.Wait()
	assert.LessOrEqual(t, peak, int32(2))
	assert.Equal(t, int32(0), atomic.LoadInt32(&running))

	assert.Equal(t, 1, cap(NewConcLimiter(0).Pool))
}
