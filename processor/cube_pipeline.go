package processor

import (
	"context"
	"path"
	"sort"
	"time"

	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/zarr"
)

const timeUnits = "milliseconds since 1970-01-01T00:00:00Z"

// CubeStore is a materialised cube: the store, the group holding the
// arrays and one array per variable.
type CubeStore struct {
	Store  *zarr.Store
	Group  string
	Arrays map[string]*zarr.Array
}

// createCubeStore lays out the store at root: a group holding the x, y
// and time coordinate arrays and one (time, y, x) array per variable.
func (e *Env) createCubeStore(root, group string, plan *CubePlan, rootAttrs, groupAttrs map[string]interface{}) (*CubeStore, error) {
	store, err := zarr.Create(root, rootAttrs)
	if err != nil {
		return nil, err
	}
	if err := store.CreateGroup(group, groupAttrs); err != nil {
		return nil, err
	}
	cs := &CubeStore{Store: store, Group: group, Arrays: map[string]*zarr.Array{}}

	rows, cols := plan.Grid.Shape.Rows, plan.Grid.Shape.Cols
	millis := make([]float64, len(plan.Times))
	for i, t := range plan.Times {
		millis[i] = float64(t.UnixMilli())
	}
	coords := []struct {
		name   string
		dtype  reconcile.DataType
		values []float64
		attrs  map[string]interface{}
	}{
		{"time", reconcile.Int64, millis, map[string]interface{}{"standard_name": "time", "units": timeUnits, "calendar": "proleptic_gregorian"}},
		{"y", reconcile.Float64, plan.Grid.YCoords(), map[string]interface{}{"standard_name": "projection_y_coordinate"}},
		{"x", reconcile.Float64, plan.Grid.XCoords(), map[string]interface{}{"standard_name": "projection_x_coordinate"}},
	}
	for _, c := range coords {
		n := len(c.values)
		meta, err := zarr.NewArrayMetadata([]int{n}, []int{max(n, 1)}, c.dtype, 0, []string{c.name})
		if err != nil {
			return nil, err
		}
		meta.Attributes = c.attrs
		arr, err := store.CreateArray(path.Join(group, c.name), meta)
		if err != nil {
			return nil, err
		}
		if err := arr.WriteRegion([]int{0}, []int{n}, c.values); err != nil {
			return nil, err
		}
	}

	ch := e.Profile.Chunks
	for _, v := range plan.Variables {
		shape := []int{len(plan.Times), rows, cols}
		chunks := []int{min(ch.Time, shape[0]), min(ch.Y, rows), min(ch.X, cols)}
		meta, err := zarr.NewArrayMetadata(shape, chunks, v.DataType, v.Fill, []string{"time", "y", "x"})
		if err != nil {
			return nil, err
		}
		if v.Title != "" {
			meta.Attributes["title"] = v.Title
		}
		if v.Description != "" {
			meta.Attributes["description"] = v.Description
		}
		if v.Unit != "" {
			meta.Attributes["units"] = v.Unit
		}
		if code := plan.CRS.Code(); code > 0 {
			meta.Attributes["proj:epsg"] = code
		}
		arr, err := store.CreateArray(path.Join(group, v.Name), meta)
		if err != nil {
			return nil, err
		}
		cs.Arrays[v.Name] = arr
	}
	return cs, nil
}

// loadCube warps every item into the cube arrays. The first error
// cancels the remaining work and is returned.
func (e *Env) loadCube(plan *CubePlan, cs *CubeStore) error {
	ctx, cancel := context.WithCancel(e.Context)
	defer cancel()
	errChan := make(chan error, 1)

	i := NewCubeIndexer(ctx)
	w := NewCubeWarper(ctx, cancel, e.Driver, plan.Grid, errChan, e.Log)
	m := NewCubeWriter(ctx, cancel, plan, cs.Arrays, errChan, e.Metrics, e.Concurrency, e.Log)

	go func() {
		i.In <- plan
		close(i.In)
	}()

	w.In = i.Out
	m.In = w.Out

	go i.Run()
	go w.Run(NewConcLimiter(e.Concurrency))
	m.Run()

	select {
	case err := <-errChan:
		return err
	default:
	}
	return e.Context.Err()
}

// describeCube synchronizes the datacube descriptor with what the store
// actually holds.
func (e *Env) describeCube(plan *CubePlan, cs *CubeStore) (reconcile.CubeDescriptor, error) {
	arrays, err := cs.Store.Arrays(cs.Group)
	if err != nil {
		return reconcile.CubeDescriptor{}, err
	}
	names := make([]string, 0, len(arrays))
	for n := range arrays {
		names = append(names, n)
	}
	sort.Strings(names)
	infos := make([]reconcile.ArrayInfo, 0, len(names))
	for _, n := range names {
		infos = append(infos, arrays[n].Info())
	}

	stored := map[string][]float64{}
	for _, n := range []string{"time", "y", "x"} {
		arr, ok := arrays[n]
		if !ok {
			return reconcile.CubeDescriptor{}, &reconcile.Error{Kind: reconcile.ErrShapeMismatch, Field: n, Detail: "coordinate array missing from store"}
		}
		if stored[n], err = arr.ReadAll(); err != nil {
			return reconcile.CubeDescriptor{}, err
		}
	}
	times := make([]time.Time, len(stored["time"]))
	for i, ms := range stored["time"] {
		times[i] = time.UnixMilli(int64(ms)).UTC()
	}
	coords := map[string]reconcile.DatasetDimension{
		"x":    {Values: stored["x"], Description: "projection x coordinate"},
		"y":    {Values: stored["y"], Description: "projection y coordinate"},
		"time": {Times: times},
	}
	declared := map[string]reconcile.VariableSpec{}
	for _, v := range plan.Variables {
		declared[v.Name] = reconcile.VariableSpec{Role: v.Role, Description: v.Description, Unit: v.Unit}
	}
	in, err := reconcile.InputFromArrays(infos, coords, declared, plan.CRS)
	if err != nil {
		return reconcile.CubeDescriptor{}, err
	}
	return reconcile.Synchronize(in)
}
