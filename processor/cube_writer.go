package processor

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/nci/stacube/metrics"
	"github.com/nci/stacube/raster"
	"github.com/nci/stacube/zarr"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type sliceKey struct {
	TimeIndex int
	Variable  string
}

// CubeWriter mosaics the warped slices of one (time, variable) pair in
// item order, first valid pixel wins, and writes the result into the
// variable's array.
type CubeWriter struct {
	Context     context.Context
	In          chan *WarpedSlice
	Error       chan error
	Cancel      context.CancelFunc
	Plan        *CubePlan
	Arrays      map[string]*zarr.Array
	Metrics     *metrics.Collector
	Log         zerolog.Logger
	Concurrency int

	locks map[sliceKey]*sync.Mutex
}

func NewCubeWriter(ctx context.Context, cancel context.CancelFunc, plan *CubePlan, arrays map[string]*zarr.Array, errChan chan error, m *metrics.Collector, conc int, log zerolog.Logger) *CubeWriter {
	w := &CubeWriter{
		Context:     ctx,
		In:          make(chan *WarpedSlice, 100),
		Error:       errChan,
		Cancel:      cancel,
		Plan:        plan,
		Arrays:      arrays,
		Metrics:     m,
		Log:         log,
		Concurrency: conc,
		locks:       map[sliceKey]*sync.Mutex{},
	}
	// Slices sharing a time chunk of one array touch the same chunk files.
	for _, v := range plan.Variables {
		arr := arrays[v.Name]
		ct := arr.Meta.ChunkShape()[0]
		for t := range plan.Slices {
			k := sliceKey{TimeIndex: t / ct, Variable: v.Name}
			if _, ok := w.locks[k]; !ok {
				w.locks[k] = &sync.Mutex{}
			}
		}
	}
	return w
}

func (w *CubeWriter) Run() {
	pending := map[sliceKey][]*raster.Float32Raster{}
	filled := map[sliceKey]int{}

	var g errgroup.Group
	g.SetLimit(w.Concurrency)
	for s := range w.In {
		if w.Context.Err() != nil {
			continue
		}
		k := sliceKey{TimeIndex: s.TimeIndex, Variable: s.Variable.Name}
		slots, ok := pending[k]
		if !ok {
			slots = make([]*raster.Float32Raster, len(w.Plan.Slices[s.TimeIndex]))
			pending[k] = slots
		}
		slots[s.Slot] = s.Raster
		filled[k]++
		if filled[k] < len(slots) {
			continue
		}
		delete(pending, k)
		delete(filled, k)

		v := s.Variable
		t := s.TimeIndex
		g.Go(func() error {
			if err := w.write(v, t, slots); err != nil {
				w.sendError(err)
			}
			return nil
		})
	}
	g.Wait()
}

func (w *CubeWriter) write(v *CubeVariable, t int, slots []*raster.Float32Raster) error {
	arr := w.Arrays[v.Name]
	rows, cols := w.Plan.Grid.Shape.Rows, w.Plan.Grid.Shape.Cols
	values := mosaic(slots, rows*cols, v.Fill)

	chunks := arr.Meta.ChunkShape()
	lock := w.locks[sliceKey{TimeIndex: t / chunks[0], Variable: v.Name}]
	lock.Lock()
	err := arr.WriteRegion([]int{t, 0, 0}, []int{1, rows, cols}, values)
	lock.Unlock()
	if err != nil {
		return fmt.Errorf("write %s time %d: %w", v.Name, t, err)
	}

	n := int64(ceilDiv(rows, chunks[1]) * ceilDiv(cols, chunks[2]))
	size := int64(chunks[0]*chunks[1]*chunks[2]) * int64(v.DataType.Size())
	w.Metrics.AddChunks(n, n*size)
	w.Log.Debug().Str("variable", v.Name).Int("time", t).Int64("chunks", n).Msg("slice written")
	return nil
}

func (w *CubeWriter) sendError(err error) {
	select {
	case w.Error <- err:
	default:
	}
	w.Cancel()
}

// mosaic takes, per pixel, the first slot holding a valid value.
func mosaic(slots []*raster.Float32Raster, n int, fill float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = fill
		for _, r := range slots {
			px := r.Data[i]
			if r.IsNoData(px) || math.IsNaN(float64(px)) {
				continue
			}
			out[i] = float64(px)
			break
		}
	}
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
