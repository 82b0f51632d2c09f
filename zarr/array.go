package zarr

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/nci/stacube/reconcile"
)

// Array is an open array node. Values cross the API as float64 and are
// converted to the stored data type on write.
//
// Concurrent WriteRegion calls are safe as long as they touch disjoint
// chunks.
type Array struct {
	store *Store
	node  string
	Meta  *ArrayMetadata
}

func (a *Array) Name() string {
	return path.Base(a.node)
}

func (a *Array) Path() string {
	return a.node
}

func (a *Array) Info() reconcile.ArrayInfo {
	return a.Meta.Info(a.Name())
}

func (a *Array) chunkPath(coords []int) string {
	key := chunkKey(coords, a.Meta.ChunkKeyEncoding.Configuration.Separator)
	return filepath.Join(a.store.nodePath(a.node), filepath.FromSlash(key))
}

func (a *Array) checkChunk(coords []int) error {
	shape, chunks := a.Meta.Shape, a.Meta.ChunkShape()
	if len(coords) != len(shape) {
		return fmt.Errorf("zarr: chunk rank %d for array rank %d", len(coords), len(shape))
	}
	for d, c := range coords {
		n := (shape[d] + chunks[d] - 1) / chunks[d]
		if c < 0 || c >= n {
			return fmt.Errorf("%w: chunk %v", ErrOutOfBounds, coords)
		}
	}
	return nil
}

// ReadChunk returns the full chunk at coords. A chunk that was never
// written reads as the fill value.
func (a *Array) ReadChunk(coords []int) ([]float64, error) {
	if err := a.checkChunk(coords); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.chunkPath(coords))
	if errors.Is(err, os.ErrNotExist) {
		out := make([]float64, product(a.Meta.ChunkShape()))
		fill := float64(a.Meta.FillValue)
		for i := range out {
			out[i] = fill
		}
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	values, err := decode(a.Meta.DataType, data)
	if err != nil {
		return nil, err
	}
	if len(values) != product(a.Meta.ChunkShape()) {
		return nil, fmt.Errorf("zarr: chunk %v holds %d values, want %d", coords, len(values), product(a.Meta.ChunkShape()))
	}
	return values, nil
}

// WriteChunk stores a full chunk.
func (a *Array) WriteChunk(coords []int, values []float64) error {
	if err := a.checkChunk(coords); err != nil {
		return err
	}
	if len(values) != product(a.Meta.ChunkShape()) {
		return fmt.Errorf("zarr: chunk %v given %d values, want %d", coords, len(values), product(a.Meta.ChunkShape()))
	}
	data, err := encode(a.Meta.DataType, values)
	if err != nil {
		return err
	}
	p := a.chunkPath(coords)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0644)
}

// WriteRegion writes values (C order, extents count) at start. Chunks
// only partly covered are read, merged and rewritten.
func (a *Array) WriteRegion(start, count []int, values []float64) error {
	if len(values) != product(count) {
		return fmt.Errorf("zarr: region %v given %d values", count, len(values))
	}
	projs, err := chunkProjections(a.Meta.Shape, a.Meta.ChunkShape(), start, count)
	if err != nil {
		return err
	}
	chunks := a.Meta.ChunkShape()
	for _, p := range projs {
		var buf []float64
		if covers(p.ChunkSelection, chunks) {
			buf = make([]float64, product(chunks))
		} else if buf, err = a.ReadChunk(p.ChunkCoords); err != nil {
			return err
		}
		copyBox(buf, chunks, p.ChunkSelection, values, count, p.OutSelection)
		if err := a.WriteChunk(p.ChunkCoords, buf); err != nil {
			return err
		}
	}
	return nil
}

// ReadRegion reads the box [start, start+count) in C order.
func (a *Array) ReadRegion(start, count []int) ([]float64, error) {
	projs, err := chunkProjections(a.Meta.Shape, a.Meta.ChunkShape(), start, count)
	if err != nil {
		return nil, err
	}
	out := make([]float64, product(count))
	chunks := a.Meta.ChunkShape()
	for _, p := range projs {
		buf, err := a.ReadChunk(p.ChunkCoords)
		if err != nil {
			return nil, err
		}
		copyBox(out, count, p.OutSelection, buf, chunks, p.ChunkSelection)
	}
	return out, nil
}

// ReadAll reads the whole array.
func (a *Array) ReadAll() ([]float64, error) {
	return a.ReadRegion(make([]int, len(a.Meta.Shape)), a.Meta.Shape)
}

func covers(sel [][2]int, chunks []int) bool {
	for d, s := range sel {
		if s[0] != 0 || s[1] != chunks[d] {
			return false
		}
	}
	return true
}
