package main

/* stacube converts raster products between STAC catalogs and Zarr
   datacubes. Each subcommand reads a catalog (or per-item rasters),
   reconciles the metadata of its items and assets into one
   descriptor, and writes the result as a self-contained catalog, a
   (time, y, x) Zarr store or a single GeoTIFF. The metadata of every
   run is emitted as a metrics record; produced items can be indexed
   into the MAS postgres database. */

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/nci/stacube/mas"
	"github.com/nci/stacube/metrics"
	proc "github.com/nci/stacube/processor"
	"github.com/nci/stacube/raster/gdalprocess"
	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
	"github.com/nci/stacube/utils"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	maxMetricsFileSize = 10 * 1024 * 1024
	maxMetricsFiles    = 10
)

// app holds what PersistentPreRunE resolves for every subcommand.
type app struct {
	v        *viper.Viper
	settings *utils.Settings
	log      zerolog.Logger
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "stacube",
		Short:         "Reconcile STAC catalogs and Zarr datacubes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.settings = utils.SettingsFrom(a.v)
			a.log = utils.NewLogger(a.settings.LogConfig())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String(utils.KeyLogLevel, "info", "log level: trace, debug, info, warn, error")
	pf.String(utils.KeyLogFormat, "auto", "log format: json, console or auto")
	pf.String(utils.KeyLogOutput, "stderr", "log output: stderr, stdout, discard or a file path")
	pf.String(utils.KeyMemcache, "", "memcache address used to cache remote STAC documents")
	pf.String(utils.KeyMasDSN, "", "postgres DSN of the MAS index, empty disables indexing")
	pf.Int(utils.KeyConcurrency, a.v.GetInt(utils.KeyConcurrency), "number of rasters warped concurrently")
	pf.String(utils.KeyProfile, "", "conversion profile file or directory of profiles")
	pf.String(utils.KeyMetricsDir, "", "directory of rotated metrics logs, empty logs metrics with the process logger")
	if err := a.v.BindPFlags(pf); err != nil {
		panic("binding persistent flags: " + err.Error())
	}

	root.AddCommand(
		newToCollectionCommand(a),
		newToZarrCommand(a),
		newToEOPFCommand(a),
		newOccurrenceCommand(a),
	)
	return root
}

// env assembles the pipeline environment of command. The returned func
// finishes the metrics record and releases the collaborators.
func (a *app) env(ctx context.Context, command, outputDir string) (proc.Env, func(error), error) {
	s := a.settings
	profile, err := utils.ResolveProfile(s.Profile, command)
	if err != nil {
		return proc.Env{}, nil, fmt.Errorf("profile: %w", err)
	}

	var closers []func()
	var mlog metrics.Logger = metrics.NewZerologLogger(a.log)
	if s.MetricsDir != "" {
		fl, err := metrics.NewFileLogger(s.MetricsDir, maxMetricsFileSize, maxMetricsFiles, a.log)
		if err != nil {
			return proc.Env{}, nil, err
		}
		mlog = fl
		closers = append(closers, fl.Close)
	}
	runID := uuid.New().String()
	collector := metrics.NewCollector(command, runID, mlog)

	gdalprocess.InitGdal()
	env := proc.Env{
		Context:     ctx,
		Driver:      gdalprocess.New(a.log),
		Reader:      stac.NewReader(stac.NewFetcher(s.Memcache, a.log), a.log),
		Writer:      stac.NewWriter(a.log),
		Profile:     profile,
		Log:         a.log.With().Str("command", command).Str("run_id", runID).Logger(),
		Metrics:     collector,
		Concurrency: s.Concurrency,
		OutputDir:   outputDir,
	}
	if s.MasDSN != "" {
		ix, err := mas.Open(s.MasDSN, a.log)
		if err != nil {
			return proc.Env{}, nil, err
		}
		if err := ix.EnsureSchema(ctx); err != nil {
			ix.Close()
			return proc.Env{}, nil, err
		}
		env.Indexer = ix
		closers = append(closers, func() { ix.Close() })
	}

	finish := func(err error) {
		collector.Finish(err)
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return env, finish, nil
}

// exitCode maps an error to the process status: 10 and up for the
// reconciliation error kinds, 1 for anything else.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	kind := reconcile.KindOf(err)
	for i, k := range reconcile.Kinds {
		if k == kind {
			return 10 + i
		}
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}

func main() {
	utils.LoadEnvFiles()
	a := &app{v: utils.NewViper(), log: zerolog.New(os.Stderr).With().Timestamp().Logger()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(a).ExecuteContext(ctx)
	stop()
	if err != nil {
		a.log.Error().Err(err).Msg("stacube failed")
	}
	os.Exit(exitCode(err))
}
