// Package mas keeps a Postgres index of the STAC items produced or
// crawled by the tools: identity, time, native CRS, bbox and footprint.
package mas

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/nci/stacube/stac"
	"github.com/rs/zerolog"
)

const schema = `create table if not exists stac_items (
	collection  text not null,
	item_id     text not null,
	href        text not null default '',
	datetime    timestamptz,
	crs         text,
	bbox        double precision[],
	footprint   text,
	batch       uuid not null,
	indexed_at  timestamptz not null default now(),
	primary key (collection, item_id)
)`

const upsert = `insert into stac_items (collection, item_id, href, datetime, crs, bbox, footprint, batch)
	values ($1, $2, $3, $4, nullif($5,''), $6, nullif($7,''), $8)
	on conflict (collection, item_id) do update set
		href = excluded.href,
		datetime = excluded.datetime,
		crs = excluded.crs,
		bbox = excluded.bbox,
		footprint = excluded.footprint,
		batch = excluded.batch,
		indexed_at = now()`

// Record is one indexed item.
type Record struct {
	Collection string     `json:"collection"`
	ItemID     string     `json:"item_id"`
	Href       string     `json:"href"`
	Datetime   *time.Time `json:"datetime,omitempty"`
	CRS        string     `json:"crs,omitempty"`
	BBox       []float64  `json:"bbox,omitempty"`
	Footprint  string     `json:"footprint,omitempty"`
	Batch      string     `json:"batch,omitempty"`
}

// RecordFromItem extracts the indexed fields of an item. A missing CRS or
// geometry leaves the column null.
func RecordFromItem(item *stac.Item, collection string) Record {
	r := Record{
		Collection: collection,
		ItemID:     item.ID,
		Href:       item.Href(),
		Datetime:   item.Datetime(),
		BBox:       item.BBox,
	}
	if r.Collection == "" {
		r.Collection = item.Collection
	}
	if crs, err := item.CRS(); err == nil {
		r.CRS = crs.Upper()
	}
	if wkt, err := stac.FootprintWKT(item.Geometry); err == nil {
		r.Footprint = wkt
	}
	return r
}

type Indexer struct {
	db    *sql.DB
	batch uuid.UUID
	log   zerolog.Logger
}

// Open connects to Postgres. dsn is a lib/pq connection string or URL.
func Open(dsn string, log zerolog.Logger) (*Indexer, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(4)
	return NewIndexer(db, log), nil
}

// NewIndexer wraps an open database. Every Index call of this indexer
// is tagged with the same batch id.
func NewIndexer(db *sql.DB, log zerolog.Logger) *Indexer {
	return &Indexer{db: db, batch: uuid.New(), log: log}
}

// SetPool bounds the open and idle connections.
func (ix *Indexer) SetPool(n int) {
	if n <= 0 {
		return
	}
	ix.db.SetMaxOpenConns(n)
	ix.db.SetMaxIdleConns(n)
}

func (ix *Indexer) Batch() string {
	return ix.batch.String()
}

func (ix *Indexer) Close() error {
	return ix.db.Close()
}

func (ix *Indexer) EnsureSchema(ctx context.Context) error {
	_, err := ix.db.ExecContext(ctx, schema)
	return err
}

// Index upserts records in one transaction.
func (ix *Indexer) Index(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ix.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("mas: schema: %w", err)
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		var dt interface{}
		if r.Datetime != nil {
			dt = r.Datetime.UTC()
		}
		if _, err := stmt.ExecContext(ctx, r.Collection, r.ItemID, r.Href, dt, r.CRS, pq.Array(r.BBox), r.Footprint, ix.batch.String()); err != nil {
			tx.Rollback()
			return fmt.Errorf("mas: index %s/%s: %w", r.Collection, r.ItemID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	ix.log.Info().Str("batch", ix.Batch()).Int("items", len(records)).Msg("indexed items")
	return nil
}

// IndexItems indexes items under collection.
func (ix *Indexer) IndexItems(ctx context.Context, collection string, items []*stac.Item) error {
	records := make([]Record, 0, len(items))
	for _, it := range items {
		records = append(records, RecordFromItem(it, collection))
	}
	return ix.Index(ctx, records)
}
