package processor

import (
	"context"
)

// CubeIndexer expands a plan into one warp task per item, variable and
// time slice.
type CubeIndexer struct {
	Context context.Context
	In      chan *CubePlan
	Out     chan *WarpTask
}

func NewCubeIndexer(ctx context.Context) *CubeIndexer {
	return &CubeIndexer{
		Context: ctx,
		In:      make(chan *CubePlan, 1),
		Out:     make(chan *WarpTask, 100),
	}
}

func (p *CubeIndexer) Run() {
	defer close(p.Out)
	for plan := range p.In {
		for t, items := range plan.Slices {
			for _, v := range plan.Variables {
				for slot, it := range items {
					task := &WarpTask{
						TimeIndex: t,
						Slot:      slot,
						ItemID:    it.ID,
						Path:      it.Assets[v.Asset].Href,
						Variable:  v,
					}
					select {
					case <-p.Context.Done():
						return
					case p.Out <- task:
					}
				}
			}
		}
	}
}
