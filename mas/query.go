package mas

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Filter selects indexed items. Zero fields do not constrain the query.
// BBox is matched against the stored item bbox in the same CRS as the
// items were indexed with, normally WGS84.
type Filter struct {
	Collection string     `json:"collection"`
	BBox       []float64  `json:"bbox,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// where renders the filter into a where clause and its arguments.
func (f Filter) where() (string, []interface{}, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Collection != "" {
		conds = append(conds, "collection = "+arg(f.Collection))
	}
	if len(f.BBox) > 0 {
		if len(f.BBox) != 4 {
			return "", nil, fmt.Errorf("mas: bbox needs 4 values, got %d", len(f.BBox))
		}
		// bbox[1..4] are minx, miny, maxx, maxy; postgres arrays are 1-based.
		conds = append(conds,
			"bbox[1] <= "+arg(f.BBox[2]),
			"bbox[3] >= "+arg(f.BBox[0]),
			"bbox[2] <= "+arg(f.BBox[3]),
			"bbox[4] >= "+arg(f.BBox[1]),
		)
	}
	if f.Since != nil {
		conds = append(conds, "datetime >= "+arg(f.Since.UTC()))
	}
	if f.Until != nil {
		conds = append(conds, "datetime <= "+arg(f.Until.UTC()))
	}

	if len(conds) == 0 {
		return "", args, nil
	}
	return " where " + strings.Join(conds, " and "), args, nil
}

// Query returns the matching records ordered by datetime then item id.
func (ix *Indexer) Query(ctx context.Context, f Filter) ([]Record, error) {
	where, args, err := f.where()
	if err != nil {
		return nil, err
	}
	q := `select collection, item_id, href, datetime, coalesce(crs,''), bbox, coalesce(footprint,''), batch
		from stac_items` + where + ` order by datetime nulls last, item_id`
	if f.Limit > 0 {
		q += fmt.Sprintf(" limit %d", f.Limit)
	}

	rows, err := ix.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var dt sql.NullTime
		var bbox pq.Float64Array
		if err := rows.Scan(&r.Collection, &r.ItemID, &r.Href, &dt, &r.CRS, &bbox, &r.Footprint, &r.Batch); err != nil {
			return nil, err
		}
		if dt.Valid {
			t := dt.Time.UTC()
			r.Datetime = &t
		}
		r.BBox = []float64(bbox)
		out = append(out, r)
	}
	return out, rows.Err()
}
