package main

import (
	"testing"
	"time"

	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestIndexItemsUnreachableDatabase(t *testing.T) {
	bbox := reconcile.BBox{147, -36, 148, -35}
	item := stac.NewItem("S2-A", stac.BBoxGeometry(bbox), bbox.Slice(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	err := indexItems("postgres://stacube@127.0.0.1:1/mas?sslmode=disable&connect_timeout=1", []*stac.Item{item}, zerolog.Nop())
	assert.Error(t, err)
}
