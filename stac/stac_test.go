package stac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nci/stacube/reconcile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree(t *testing.T, dir string) *Catalog {
	t.Helper()
	t1 := time.Date(2021, 7, 13, 10, 25, 59, 0, time.UTC)

	item := NewItem("S2B_10TFK_20210713_0_L2A", BBoxGeometry(reconcile.BBox{-121.4, 39.4, -120.1, 40.4}), []float64{-121.4, 39.4, -120.1, 40.4}, t1)
	item.Properties["proj:epsg"] = 32610
	item.AddAsset("red", &Asset{
		Href:        filepath.Join(dir, "data", "red.tif"),
		Type:        MediaTypeCOG,
		Roles:       []string{"data"},
		ExtraFields: Fields{"proj:shape": []int{10980, 10980}},
	})

	col := NewCollection("sentinel-2", "Sentinel-2", "Sentinel-2 L2A", nil)
	col.AddItem(item)
	cat := NewCatalog("catalog", "", "root catalog")
	cat.AddChild(col)
	return cat
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cat := sampleTree(t, dir)

	w := NewWriter(zerolog.Nop())
	require.NoError(t, w.Save(cat, dir))
	assert.FileExists(t, filepath.Join(dir, "catalog.json"))
	assert.FileExists(t, filepath.Join(dir, "sentinel-2", "collection.json"))
	itemPath := filepath.Join(dir, "sentinel-2", "S2B_10TFK_20210713_0_L2A", "S2B_10TFK_20210713_0_L2A.json")
	assert.FileExists(t, itemPath)
	assert.Len(t, w.Written(), 3)

	raw, err := os.ReadFile(itemPath)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	asset := doc["assets"].(map[string]interface{})["red"].(map[string]interface{})
	assert.Equal(t, "../../data/red.tif", asset["href"])
	assert.Equal(t, []interface{}{10980.0, 10980.0}, asset["proj:shape"])
	assert.Equal(t, "sentinel-2", doc["collection"])
	assert.NotContains(t, string(raw), `"self"`)

	r := NewReader(NewFetcher("", zerolog.Nop()), zerolog.Nop())
	back, err := r.ReadCatalog(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "catalog", back.ID)
	require.NotNil(t, back.FirstChild())
	assert.True(t, back.FirstChild().IsCollection())

	items := back.AllItems()
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, filepath.Join(dir, "data", "red.tif"), it.Assets["red"].Href)

	crs, err := it.CRS()
	require.NoError(t, err)
	assert.Equal(t, reconcile.CRS("epsg:32610"), crs)

	ext := it.Extent()
	require.NotNil(t, ext.BBox)
	require.NotNil(t, ext.Datetime)
	assert.Equal(t, reconcile.BBox{-121.4, 39.4, -120.1, 40.4}, *ext.BBox)

	first, err := r.ReadFirstItem(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, it.ID, first.ID)
}

func TestItemMissingAsset(t *testing.T) {
	it := NewItem("a", nil, nil, time.Now())
	_, err := it.Asset("measurements")
	assert.ErrorIs(t, err, reconcile.ErrMissingRequiredAsset)
}

func TestItemCRSFromAsset(t *testing.T) {
	it := NewItem("a", nil, nil, time.Now())
	it.AddAsset("b", &Asset{Href: "b.tif", ExtraFields: Fields{"proj:code": "EPSG:3577"}})
	crs, err := it.CRS()
	require.NoError(t, err)
	assert.Equal(t, reconcile.EPSG(3577), crs)

	_, err = NewItem("c", nil, nil, time.Now()).CRS()
	assert.ErrorIs(t, err, reconcile.ErrMissingCrs)
}

func TestAssetExtraFieldsInline(t *testing.T) {
	a := Asset{Href: "x.zarr", Roles: []string{"data"}, ExtraFields: Fields{"proj:epsg": 4326, "href": "ignored"}}
	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"href":"x.zarr","roles":["data"],"proj:epsg":4326}`, string(out))

	var back Asset
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "x.zarr", back.Href)
	assert.Equal(t, Fields{"proj:epsg": 4326.0}, back.ExtraFields)
}

func TestApplyDescriptor(t *testing.T) {
	t1 := time.Date(2021, 7, 13, 0, 0, 0, 0, time.UTC)
	cube, err := reconcile.Synchronize(reconcile.CubeInput{
		Dimensions: map[string]reconcile.DatasetDimension{
			"x":    {Size: 2, Values: []float64{0, 10}},
			"y":    {Size: 2, Values: []float64{0, 10}},
			"time": {Size: 1, Times: []time.Time{t1}},
		},
		Variables: map[string]reconcile.VariableSpec{"water": {Dimensions: []string{"time", "y", "x"}}},
		CRS:       "epsg:32633",
	})
	require.NoError(t, err)
	desc, err := reconcile.Compose(reconcile.Extent{Spatial: reconcile.BBox{0, 0, 10, 10}, Temporal: reconcile.Interval{Start: t1, End: t1}}, cube,
		map[string]reconcile.StoreRef{"water": {Href: "w.zarr/measurements/water", MediaType: MediaTypeZarr, Bands: []reconcile.BandDescriptor{{DataType: reconcile.UInt8}}}})
	require.NoError(t, err)
	desc.AddLink(reconcile.LinkRef{Rel: RelStore, Href: "w.zarr", MediaType: MediaTypeZarr})

	col := NewCollection("water", "", "water", nil)
	col.ApplyDescriptor(desc)

	require.NotNil(t, col.Extent)
	start, end := col.Extent.Interval()
	require.NotNil(t, start)
	assert.Equal(t, t1, *end)
	assert.Contains(t, col.ExtraFields, "cube:dimensions")
	assert.Contains(t, col.StacExtensions, DatacubeSchema)
	assert.Contains(t, col.StacExtensions, RasterSchema)
	assert.Contains(t, col.StacExtensions, ProjectionSchema)
	assert.Len(t, col.LinksByRel(RelStore), 1)

	out, err := json.Marshal(col)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), `"cube:variables"`))
}

func TestRemoteFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/catalog.json":
			w.Write([]byte(`{"type":"Catalog","stac_version":"1.0.0","id":"remote","description":"d","links":[{"rel":"item","href":"./items/a.json"}]}`))
		case "/items/a.json":
			w.Write([]byte(`{"type":"Feature","stac_version":"1.0.0","id":"a","geometry":null,"properties":{"datetime":"2021-01-01T00:00:00Z"},"links":[],"assets":{"data":{"href":"a.tif"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := NewReader(NewFetcher("", zerolog.Nop()), zerolog.Nop())
	cat, err := r.ReadCatalog(context.Background(), srv.URL+"/catalog.json")
	require.NoError(t, err)
	require.Len(t, cat.Items(), 1)
	assert.Equal(t, srv.URL+"/items/a.tif", cat.Items()[0].Assets["data"].Href)

	_, err = r.ReadCatalog(context.Background(), srv.URL+"/missing.json")
	assert.Error(t, err)
}

func TestFootprintWKT(t *testing.T) {
	wkt, err := FootprintWKT(BBoxGeometry(reconcile.BBox{0, 0, 1, 1}))
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(wkt), "POLYGON")

	_, err = FootprintWKT(nil)
	assert.Error(t, err)
}
