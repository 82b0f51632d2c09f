package reconcile

import (
	"sort"
	"time"
)

// ItemExtent is the extent-relevant part of one item. Nil fields are
// excluded from the matching aggregate.
type ItemExtent struct {
	ID       string
	BBox     *BBox
	Datetime *time.Time
	CRS      CRS
}

type Interval struct {
	Start time.Time
	End   time.Time
}

// Extent is a collection level extent. ReferenceSystem is the native CRS
// shared by the aggregated items, empty when none carried one.
type Extent struct {
	Spatial         BBox
	Temporal        Interval
	ReferenceSystem CRS
}

// Aggregate folds item extents into one. The result only depends on the
// multiset of inputs.
func Aggregate(items []ItemExtent) (Extent, error) {
	if len(items) == 0 {
		return Extent{}, newError(ErrEmptyExtentSet, "no items")
	}

	var (
		ext      Extent
		haveBBox bool
		haveTime bool
	)
	for _, it := range items {
		if it.BBox != nil {
			if haveBBox {
				ext.Spatial = ext.Spatial.Union(*it.BBox)
			} else {
				ext.Spatial = *it.BBox
				haveBBox = true
			}
		}
		if it.Datetime != nil {
			t := it.Datetime.UTC()
			if !haveTime {
				ext.Temporal = Interval{Start: t, End: t}
				haveTime = true
			} else {
				if t.Before(ext.Temporal.Start) {
					ext.Temporal.Start = t
				}
				if t.After(ext.Temporal.End) {
					ext.Temporal.End = t
				}
			}
		}
	}
	if !haveBBox {
		return Extent{}, newError(ErrEmptyExtentSet, "no item carries a bbox")
	}
	if !haveTime {
		return Extent{}, newError(ErrEmptyExtentSet, "no item carries a datetime")
	}

	crs, err := sharedCRS(items)
	if err != nil {
		return Extent{}, err
	}
	ext.ReferenceSystem = crs
	return ext, nil
}

// sharedCRS checks that every item carrying a CRS carries the same one.
// Items are visited in id order so the reported offender is stable.
func sharedCRS(items []ItemExtent) (CRS, error) {
	sorted := make([]ItemExtent, 0, len(items))
	for _, it := range items {
		if it.CRS != "" {
			sorted = append(sorted, it)
		}
	}
	if len(sorted) == 0 {
		return "", nil
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	first := sorted[0]
	for _, it := range sorted[1:] {
		if !it.CRS.Equal(first.CRS) {
			return "", &Error{
				Kind:   ErrCrsMismatch,
				Item:   it.ID,
				Detail: string(it.CRS) + " != " + string(first.CRS) + " of " + first.ID,
			}
		}
	}
	if c, err := ParseCRS(string(first.CRS)); err == nil {
		return c, nil
	}
	return first.CRS, nil
}
