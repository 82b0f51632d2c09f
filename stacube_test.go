package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 130, exitCode(fmt.Errorf("warp: %w", context.Canceled)))

	for i, kind := range reconcile.Kinds {
		err := fmt.Errorf("wrapped: %w", &reconcile.Error{Kind: kind, Item: "a"})
		assert.Equal(t, 10+i, exitCode(err), kind.Error())
	}
	assert.Equal(t, 15, exitCode(reconcile.MissingAsset("a", "data")))
}

func runCLI(args ...string) error {
	a := &app{v: utils.NewViper()}
	root := newRootCommand(a)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestToCollectionFlagCounts(t *testing.T) {
	err := runCLI("to-collection", "--log-output", "discard",
		"--input-item", "a.json", "--input-item", "b.json",
		"--otsu", "a_wb.tif", "--ndwi", "a_ndwi.tif", "--ndwi", "b_ndwi.tif")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "counts must match")

	err = runCLI("to-collection", "--log-output", "discard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--input-item")
}

func TestRequiredCatalogFlag(t *testing.T) {
	for _, cmd := range []string{"to-zarr", "to-eopf", "occurrence"} {
		err := runCLI(cmd, "--log-output", "discard")
		require.Error(t, err, cmd)
		assert.Contains(t, err.Error(), "stac-catalog", cmd)
	}
}
