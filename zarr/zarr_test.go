package zarr

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nci/stacube/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkProjections(t *testing.T) {
	projs, err := chunkProjections([]int{5, 5}, []int{2, 3}, []int{1, 2}, []int{3, 2})
	require.NoError(t, err)

	want := []chunkProjection{
		{ChunkCoords: []int{0, 0}, ChunkSelection: [][2]int{{1, 2}, {2, 3}}, OutSelection: [][2]int{{0, 1}, {0, 1}}},
		{ChunkCoords: []int{0, 1}, ChunkSelection: [][2]int{{1, 2}, {0, 1}}, OutSelection: [][2]int{{0, 1}, {1, 2}}},
		{ChunkCoords: []int{1, 0}, ChunkSelection: [][2]int{{0, 2}, {2, 3}}, OutSelection: [][2]int{{1, 3}, {0, 1}}},
		{ChunkCoords: []int{1, 1}, ChunkSelection: [][2]int{{0, 2}, {0, 1}}, OutSelection: [][2]int{{1, 3}, {1, 2}}},
	}
	if diff := cmp.Diff(want, projs); diff != "" {
		t.Errorf("projections mismatch (-want +got):\n%s", diff)
	}

	_, err = chunkProjections([]int{5}, []int{2}, []int{4}, []int{2})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestChunkKey(t *testing.T) {
	assert.Equal(t, "c/0/1/2", chunkKey([]int{0, 1, 2}, "/"))
	assert.Equal(t, "c", chunkKey(nil, "/"))
}

func TestCodecRoundTrip(t *testing.T) {
	in := []float64{-3, 0, 7, 120}
	for _, dt := range []reconcile.DataType{reconcile.Int8, reconcile.Int16, reconcile.UInt16, reconcile.Int32, reconcile.Int64, reconcile.Float32, reconcile.Float64} {
		buf, err := encode(dt, in)
		require.NoError(t, err, dt)
		assert.Len(t, buf, dt.Size()*len(in))
		out, err := decode(dt, buf)
		require.NoError(t, err, dt)
		if dt == reconcile.UInt16 {
			continue
		}
		assert.Equal(t, in, out, dt)
	}

	buf, err := encode(reconcile.UInt16, []float64{1})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0}, buf)

	_, err = encode(reconcile.Float16, in)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = decode(reconcile.Int32, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestFillValueJSON(t *testing.T) {
	out, err := json.Marshal(FillValue(math.NaN()))
	require.NoError(t, err)
	assert.Equal(t, `"NaN"`, string(out))

	out, err = json.Marshal(FillValue(math.Inf(-1)))
	require.NoError(t, err)
	assert.Equal(t, `"-Infinity"`, string(out))

	var f FillValue
	require.NoError(t, json.Unmarshal([]byte(`"NaN"`), &f))
	assert.True(t, math.IsNaN(float64(f)))
	require.NoError(t, json.Unmarshal([]byte(`255`), &f))
	assert.Equal(t, FillValue(255), f)
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &f))
}

func TestStoreArrayRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cube.zarr")
	s, err := Create(dir, map[string]interface{}{"title": "cube"})
	require.NoError(t, err)
	require.NoError(t, s.CreateGroup("measurements", nil))

	meta, err := NewArrayMetadata([]int{1, 3, 5}, []int{1, 2, 2}, reconcile.UInt8, 255, []string{"time", "y", "x"})
	require.NoError(t, err)
	meta.Attributes["units"] = "percent"
	arr, err := s.CreateArray("measurements/water", meta)
	require.NoError(t, err)

	values := make([]float64, 15)
	for i := range values {
		values[i] = float64(i)
	}
	require.NoError(t, arr.WriteRegion([]int{0, 0, 0}, []int{1, 3, 5}, values))
	assert.FileExists(t, filepath.Join(dir, "measurements", "water", "c", "0", "1", "2"))

	s2, err := Open(dir)
	require.NoError(t, err)
	back, err := s2.OpenArray("measurements/water")
	require.NoError(t, err)
	all, err := back.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, values, all)

	sub, err := back.ReadRegion([]int{0, 1, 1}, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 7, 8, 11, 12, 13}, sub)

	info := back.Info()
	assert.Equal(t, "water", info.Name)
	assert.Equal(t, "uint8", info.DataType)
	assert.Equal(t, []int{1, 3, 5}, info.Shape)
	assert.Equal(t, []string{"time", "y", "x"}, info.DimensionNames)
	assert.Equal(t, "percent", info.Attributes["units"])

	arrays, err := s2.Arrays("measurements")
	require.NoError(t, err)
	assert.Contains(t, arrays, "water")

	g, err := s2.Group("")
	require.NoError(t, err)
	assert.Equal(t, "cube", g.Attributes["title"])
}

func TestPartialWriteKeepsFill(t *testing.T) {
	s, err := Create(t.TempDir(), nil)
	require.NoError(t, err)
	meta, err := NewArrayMetadata([]int{4, 4}, []int{4, 4}, reconcile.Float32, math.NaN(), []string{"y", "x"})
	require.NoError(t, err)
	arr, err := s.CreateArray("v", meta)
	require.NoError(t, err)

	require.NoError(t, arr.WriteRegion([]int{1, 1}, []int{1, 2}, []float64{1.5, 2.5}))
	all, err := arr.ReadAll()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(all[0]))
	assert.Equal(t, 1.5, all[5])
	assert.Equal(t, 2.5, all[6])
	assert.True(t, math.IsNaN(all[7]))

	raw, err := os.ReadFile(filepath.Join(s.Root, "v", MetadataFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"fill_value": "NaN"`)
	assert.Contains(t, string(raw), `"endian": "little"`)
}

func TestInvalidArrays(t *testing.T) {
	_, err := NewArrayMetadata([]int{2}, []int{0}, reconcile.UInt8, 0, nil)
	assert.Error(t, err)
	_, err = NewArrayMetadata([]int{2}, []int{1}, reconcile.Other, 0, nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = NewArrayMetadata([]int{2, 2}, []int{1, 1}, reconcile.UInt8, 0, []string{"x"})
	assert.Error(t, err)

	s, err := Create(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = s.OpenArray("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.OpenArray("")
	assert.Error(t, err)
}

func TestCreateReplacesExistingStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cube.zarr")
	s, err := Create(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateGroup("g", nil))
	meta, err := NewArrayMetadata([]int{2, 2}, []int{1, 2}, reconcile.Float64, 0, []string{"y", "x"})
	require.NoError(t, err)
	stale, err := s.CreateArray("g/stale", meta)
	require.NoError(t, err)
	require.NoError(t, stale.WriteRegion([]int{0, 0}, []int{2, 2}, []float64{1, 2, 3, 4}))
	kept, err := s.CreateArray("g/v", meta)
	require.NoError(t, err)
	require.NoError(t, kept.WriteRegion([]int{0, 0}, []int{2, 2}, []float64{1, 2, 3, 4}))

	s, err = Create(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateGroup("g", nil))
	narrow, err := NewArrayMetadata([]int{2, 2}, []int{2, 2}, reconcile.UInt8, 9, []string{"y", "x"})
	require.NoError(t, err)
	v, err := s.CreateArray("g/v", narrow)
	require.NoError(t, err)
	require.NoError(t, v.WriteRegion([]int{0, 0}, []int{1, 1}, []float64{5}))

	arrays, err := s.Arrays("g")
	require.NoError(t, err)
	assert.NotContains(t, arrays, "stale")
	all, err := v.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 9, 9, 9}, all)
}

func TestCreateArrayDropsOldChunks(t *testing.T) {
	s, err := Create(t.TempDir(), nil)
	require.NoError(t, err)
	wide, err := NewArrayMetadata([]int{3}, []int{2}, reconcile.Float64, 0, nil)
	require.NoError(t, err)
	arr, err := s.CreateArray("v", wide)
	require.NoError(t, err)
	require.NoError(t, arr.WriteRegion([]int{0}, []int{3}, []float64{1, 2, 3}))

	narrow, err := NewArrayMetadata([]int{3}, []int{2}, reconcile.UInt8, 7, nil)
	require.NoError(t, err)
	arr, err = s.CreateArray("v", narrow)
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(s.Root, "v", "c"))
	require.NoError(t, arr.WriteRegion([]int{0}, []int{1}, []float64{4}))
	all, err := arr.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 7, 7}, all)
}
