package main

import (
	"fmt"

	proc "github.com/nci/stacube/processor"
	"github.com/nci/stacube/utils"
	"github.com/spf13/cobra"
)

func newToCollectionCommand(a *app) *cobra.Command {
	var items, otsu, ndwi []string
	cmd := &cobra.Command{
		Use:   utils.CommandToCollection,
		Short: "Publish per-item water bodies and NDWI rasters as a STAC catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if len(items) == 0 {
				return fmt.Errorf("at least one --input-item is required")
			}
			if len(otsu) != len(items) || len(ndwi) != len(items) {
				return fmt.Errorf("got %d items, %d --otsu and %d --ndwi rasters; counts must match", len(items), len(otsu), len(ndwi))
			}
			env, finish, err := a.env(cmd.Context(), utils.CommandToCollection, ".")
			if err != nil {
				return err
			}
			defer func() { finish(err) }()

			inputs := make([]proc.CollectionInput, len(items))
			for i := range items {
				inputs[i] = proc.CollectionInput{Item: items[i], Files: []string{otsu[i], ndwi[i]}}
			}
			_, err = proc.InitToCollectionPipeline(env).Process(inputs)
			return err
		},
	}
	cmd.Flags().StringArrayVar(&items, "input-item", nil, "source STAC item or catalog, repeatable")
	cmd.Flags().StringArrayVar(&otsu, "otsu", nil, "water bodies raster of the matching item, repeatable")
	cmd.Flags().StringArrayVar(&ndwi, "ndwi", nil, "NDWI raster of the matching item, repeatable")
	return cmd
}

func newToZarrCommand(a *app) *cobra.Command {
	var catalog string
	cmd := &cobra.Command{
		Use:   utils.CommandToZarr,
		Short: "Load the items of a STAC catalog into a Zarr datacube collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			env, finish, err := a.env(cmd.Context(), utils.CommandToZarr, ".")
			if err != nil {
				return err
			}
			defer func() { finish(err) }()
			_, err = proc.InitToZarrPipeline(env).Process(catalog)
			return err
		},
	}
	cmd.Flags().StringVar(&catalog, "stac-catalog", "", "catalog.json or directory holding it")
	cmd.MarkFlagRequired("stac-catalog")
	return cmd
}

func newToEOPFCommand(a *app) *cobra.Command {
	var catalog, outputDir string
	cmd := &cobra.Command{
		Use:   utils.CommandToEOPF,
		Short: "Write the items of a STAC catalog as an EOPF Zarr product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			env, finish, err := a.env(cmd.Context(), utils.CommandToEOPF, outputDir)
			if err != nil {
				return err
			}
			defer func() { finish(err) }()
			_, err = proc.InitToEOPFPipeline(env).Process(catalog)
			return err
		},
	}
	cmd.Flags().StringVar(&catalog, "stac-catalog", "", "catalog.json or directory holding it")
	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "directory receiving the product")
	cmd.MarkFlagRequired("stac-catalog")
	return cmd
}

func newOccurrenceCommand(a *app) *cobra.Command {
	var catalog string
	cmd := &cobra.Command{
		Use:   utils.CommandOccurrence,
		Short: "Average a datacube variable over time into a GeoTIFF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			env, finish, err := a.env(cmd.Context(), utils.CommandOccurrence, ".")
			if err != nil {
				return err
			}
			defer func() { finish(err) }()
			_, err = proc.InitOccurrencePipeline(env).Process(catalog)
			return err
		},
	}
	cmd.Flags().StringVar(&catalog, "stac-catalog", "", "datacube collection catalog, as written by to-zarr")
	cmd.MarkFlagRequired("stac-catalog")
	return cmd
}
