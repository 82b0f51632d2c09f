package processor

import (
	"context"
	"fmt"

	"github.com/nci/stacube/raster"
	"github.com/nci/stacube/reconcile"
	"github.com/rs/zerolog"
)

// CubeWarper resamples every task's band into the cube grid, at most
// ConcLimit warps at a time.
type CubeWarper struct {
	Context context.Context
	In      chan *WarpTask
	Out     chan *WarpedSlice
	Error   chan error
	Cancel  context.CancelFunc
	Warper  raster.Warper
	Grid    reconcile.GridGeometry
	Log     zerolog.Logger
}

func NewCubeWarper(ctx context.Context, cancel context.CancelFunc, warper raster.Warper, grid reconcile.GridGeometry, errChan chan error, log zerolog.Logger) *CubeWarper {
	return &CubeWarper{
		Context: ctx,
		In:      make(chan *WarpTask, 100),
		Out:     make(chan *WarpedSlice, 100),
		Error:   errChan,
		Cancel:  cancel,
		Warper:  warper,
		Grid:    grid,
		Log:     log,
	}
}

func (w *CubeWarper) Run(limiter *ConcLimiter) {
	defer close(w.Out)
	for task := range w.In {
		if w.Context.Err() != nil {
			continue
		}
		limiter.Increase()
		go func(task *WarpTask) {
			defer limiter.Decrease()
			r, err := w.Warper.Warp(w.Context, task.Path, task.Variable.Band, w.Grid)
			if err != nil {
				w.sendError(fmt.Errorf("warp item %s asset %s: %w", task.ItemID, task.Variable.Asset, err))
				return
			}
			if r.Width != w.Grid.Shape.Cols || r.Height != w.Grid.Shape.Rows {
				w.sendError(&reconcile.Error{
					Kind:   reconcile.ErrShapeMismatch,
					Item:   task.ItemID,
					Asset:  task.Variable.Asset,
					Detail: fmt.Sprintf("warped %dx%d, grid %dx%d", r.Height, r.Width, w.Grid.Shape.Rows, w.Grid.Shape.Cols),
				})
				return
			}
			w.Log.Debug().Str("item", task.ItemID).Str("variable", task.Variable.Name).Int("time", task.TimeIndex).Msg("warped")
			w.Out <- &WarpedSlice{WarpTask: task, Raster: r}
		}(task)
	}
	limiter.Wait()
}

func (w *CubeWarper) sendError(err error) {
	select {
	case w.Error <- err:
	default:
	}
	w.Cancel()
}
