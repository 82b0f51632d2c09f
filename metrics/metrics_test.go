package metrics

import (
	"bytes"
	"errors"
	"fmt"
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

type recorder struct {
	infos []*ConversionInfo
}

func (r *recorder) Log(info *ConversionInfo) {
	r.infos = append(r.infos, info)
}

func TestCollectorFinish(t *testing.T) {
	rec := &recorder{}
	m := NewCollector("to-zarr", "run-1", rec)
	m.AddChunks(4, 1024)
	m.AddChunks(1, 10)
	t1 := time.Date(2021, 7, 13, 0, 0, 0, 0, time.UTC)
	m.SetExtent(reconcile.Extent{Spatial: reconcile.BBox{0, 1, 2, 3}, Temporal: reconcile.Interval{Start: t1, End: t1}, ReferenceSystem: reconcile.EPSG(32633)})

	err := fmt.Errorf("to-zarr: %w", reconcile.MissingAsset("a", "measurements"))
	m.Finish(err)

	require.Len(t, rec.infos, 1)
	info := rec.infos[0]
	assert.Equal(t, int64(5), info.NumChunks)
	assert.Equal(t, int64(1034), info.BytesWritten)
	assert.Equal(t, reconcile.ErrMissingRequiredAsset.Error(), info.ErrorKind)
	assert.Equal(t, "2021-07-13T00:00:00Z", info.Extent.Start)

	out, err := info.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"command":"to-zarr"`)
	assert.Contains(t, out, `"bbox":[0,1,2,3]`)
}

func TestCollectorPlainError(t *testing.T) {
	rec := &recorder{}
	NewCollector("occurrence", "run-2", rec).Finish(errors.New("disk full"))
	assert.Equal(t, "disk full", rec.infos[0].Error)
	assert.Empty(t, rec.infos[0].ErrorKind)
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(zerolog.New(&buf))
	l.Log(&ConversionInfo{Command: "to-eopf", NumItems: 2})
	assert.Contains(t, buf.String(), `"metrics":{"command":"to-eopf"`)
	assert.Contains(t, buf.String(), `"num_items":2`)
}

func TestFileLoggerRotation(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLogger(dir, 10, 2, zerolog.Nop())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		l.Log(&ConversionInfo{Command: fmt.Sprintf("run%d", i)})
	}
	l.Close()

	raw, err := os.ReadFile(filepath.Join(dir, "metrics.log"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "\n"))
	assert.Contains(t, string(raw), "run4")

	matches, err := filepath.Glob(filepath.Join(dir, "metrics.log.*"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}
