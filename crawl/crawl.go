package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	extr "github.com/nci/stacube/crawl/extractor"
	"github.com/nci/stacube/mas"
	"github.com/nci/stacube/stac"
	"github.com/nci/stacube/utils"
	"github.com/rs/zerolog"
)

func main() {
	conc := flag.Int("conc", runtime.NumCPU(), "number of directories crawled concurrently")
	pattern := flag.String("pattern", "", `filter expression over "path" and "type" (d or f), e.g. type == "d" || path =~ "json$"`)
	followSymlink := flag.Bool("follow-symlink", false, "follow symbolic links")
	outputFormat := flag.String("fmt", "json", "output format: json or tsv")
	dsn := flag.String("mas-dsn", "", "index crawled items into this postgres database, defaults to STACUBE_MAS_DSN")
	flag.Parse()

	utils.LoadEnvFiles()
	settings := utils.SettingsFrom(utils.NewViper())
	log := utils.NewLogger(settings.LogConfig())

	if flag.NArg() != 1 {
		log.Fatal().Msg("Please provide the root directory of a STAC catalog")
	}
	if *dsn == "" {
		*dsn = settings.MasDSN
	}

	var items []*stac.Item
	var onItem func(*extr.ItemInfo)
	if *dsn != "" {
		onItem = func(info *extr.ItemInfo) {
			items = append(items, info.Item)
		}
	}

	crawlErr := extr.ExtractPosix(flag.Arg(0), *conc, *pattern, *followSymlink, *outputFormat, os.Stdout, onItem)
	if crawlErr != nil {
		os.Stderr.Write([]byte(crawlErr.Error() + "\n"))
	}

	if *dsn != "" && len(items) > 0 {
		if err := indexItems(*dsn, items, log); err != nil {
			log.Error().Err(err).Msg("indexing failed")
			os.Exit(1)
		}
	}
}

func indexItems(dsn string, items []*stac.Item, log zerolog.Logger) error {
	ix, err := mas.Open(dsn, log)
	if err != nil {
		return fmt.Errorf("database open failed: %w", err)
	}
	defer ix.Close()
	return ix.IndexItems(context.Background(), "", items)
}
