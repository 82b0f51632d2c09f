package processor

import (
	"context"
	"path/filepath"
	"runtime"

	"github.com/nci/stacube/metrics"
	"github.com/nci/stacube/raster"
	"github.com/nci/stacube/stac"
	"github.com/nci/stacube/utils"
	"github.com/rs/zerolog"
)

// Indexer receives the items a conversion produced or consumed.
type Indexer interface {
	IndexItems(ctx context.Context, collection string, items []*stac.Item) error
}

// Env carries the collaborators every conversion pipeline uses.
type Env struct {
	Context     context.Context
	Driver      raster.Driver
	Reader      *stac.Reader
	Writer      *stac.Writer
	Profile     *utils.Profile
	Log         zerolog.Logger
	Indexer     Indexer
	Metrics     *metrics.Collector
	Concurrency int
	OutputDir   string
}

// normalise fills the optional fields.
func (e *Env) normalise(command string) {
	if e.Context == nil {
		e.Context = context.Background()
	}
	if e.Profile == nil {
		e.Profile = utils.DefaultProfile(command)
	}
	if e.Reader == nil {
		e.Reader = stac.NewReader(stac.NewFetcher("", e.Log), e.Log)
	}
	if e.Writer == nil {
		e.Writer = stac.NewWriter(e.Log)
	}
	if e.Metrics == nil {
		e.Metrics = metrics.NewCollector(command, "", nil)
	}
	if e.Concurrency < 1 {
		e.Concurrency = runtime.NumCPU()
	}
	if e.OutputDir == "" {
		e.OutputDir = "."
	}
	if abs, err := filepath.Abs(e.OutputDir); err == nil {
		e.OutputDir = abs
	}
	e.Metrics.Info.OutputDir = e.OutputDir
}

func (e *Env) index(collection string, items []*stac.Item) error {
	if e.Indexer == nil || len(items) == 0 {
		return nil
	}
	return e.Indexer.IndexItems(e.Context, collection, items)
}

func (e *Env) recordOutputs() {
	e.Metrics.Info.FilesWritten = len(e.Writer.Written())
}
