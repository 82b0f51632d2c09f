package mas

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItem(id string, t time.Time) *stac.Item {
	bbox := reconcile.BBox{14.1, 45.2, 14.3, 45.4}
	it := stac.NewItem(id, stac.BBoxGeometry(bbox), bbox.Slice(), t)
	it.Properties["proj:epsg"] = 32633
	it.Collection = "water-bodies"
	return it
}

func TestRecordFromItem(t *testing.T) {
	when := time.Date(2021, 7, 13, 10, 0, 0, 0, time.UTC)
	r := RecordFromItem(testItem("S2B_1", when), "")

	assert.Equal(t, "water-bodies", r.Collection)
	assert.Equal(t, "S2B_1", r.ItemID)
	assert.Equal(t, "EPSG:32633", r.CRS)
	require.NotNil(t, r.Datetime)
	assert.True(t, when.Equal(*r.Datetime))
	assert.Equal(t, []float64{14.1, 45.2, 14.3, 45.4}, r.BBox)
	assert.Contains(t, strings.ToUpper(r.Footprint), "POLYGON")

	bare := stac.NewItem("bare", nil, nil, when)
	r = RecordFromItem(bare, "other")
	assert.Equal(t, "other", r.Collection)
	assert.Empty(t, r.CRS)
	assert.Empty(t, r.Footprint)
}

func TestFilterWhere(t *testing.T) {
	since := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args, err := Filter{Collection: "c", BBox: []float64{0, 1, 2, 3}, Since: &since}.where()
	require.NoError(t, err)
	assert.Equal(t, " where collection = $1 and bbox[1] <= $2 and bbox[3] >= $3 and bbox[2] <= $4 and bbox[4] >= $5 and datetime >= $6", where)
	if diff := cmp.Diff([]interface{}{"c", 2.0, 0.0, 3.0, 1.0, since}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	where, args, err = Filter{}.where()
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Empty(t, args)

	_, _, err = Filter{BBox: []float64{1, 2}}.where()
	assert.Error(t, err)
}

// TestIndexQuery needs a scratch Postgres database.
func TestIndexQuery(t *testing.T) {
	dsn := os.Getenv("STACUBE_TEST_MAS_DSN")
	if dsn == "" {
		t.Skip("STACUBE_TEST_MAS_DSN not set")
	}
	ix, err := Open(dsn, zerolog.Nop())
	require.NoError(t, err)
	defer ix.Close()

	ctx := context.Background()
	collection := "test-" + ix.Batch()
	t1 := time.Date(2021, 7, 13, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	items := []*stac.Item{testItem("a", t1), testItem("b", t2)}
	require.NoError(t, ix.IndexItems(ctx, collection, items))
	// upsert is idempotent
	require.NoError(t, ix.IndexItems(ctx, collection, items))

	all, err := ix.Query(ctx, Filter{Collection: collection})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ItemID)
	assert.Equal(t, ix.Batch(), all[0].Batch)

	later, err := ix.Query(ctx, Filter{Collection: collection, Since: &t2})
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, "b", later[0].ItemID)

	none, err := ix.Query(ctx, Filter{Collection: collection, BBox: []float64{100, 0, 101, 1}})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = ix.db.ExecContext(ctx, "delete from stac_items where collection = $1", collection)
	require.NoError(t, err)
}
