package zarr

import (
	"fmt"
	"strconv"
	"strings"
)

// chunkProjection maps one chunk onto a rectangular selection: the part
// of the chunk that is touched and where it lands in the selection.
type chunkProjection struct {
	ChunkCoords    []int
	ChunkSelection [][2]int
	OutSelection   [][2]int
}

// chunkProjections lists every chunk intersecting the box
// [start, start+count) in C order.
func chunkProjections(shape, chunks, start, count []int) ([]chunkProjection, error) {
	if len(start) != len(shape) || len(count) != len(shape) {
		return nil, fmt.Errorf("zarr: selection rank %d/%d for array rank %d", len(start), len(count), len(shape))
	}
	for d := range shape {
		if start[d] < 0 || count[d] < 0 || start[d]+count[d] > shape[d] {
			return nil, fmt.Errorf("%w: axis %d [%d, %d) of %d", ErrOutOfBounds, d, start[d], start[d]+count[d], shape[d])
		}
		if count[d] == 0 {
			return nil, nil
		}
	}

	lo := make([]int, len(shape))
	hi := make([]int, len(shape))
	for d := range shape {
		lo[d] = start[d] / chunks[d]
		hi[d] = (start[d] + count[d] - 1) / chunks[d]
	}

	var out []chunkProjection
	cur := append([]int(nil), lo...)
	for {
		p := chunkProjection{
			ChunkCoords:    append([]int(nil), cur...),
			ChunkSelection: make([][2]int, len(shape)),
			OutSelection:   make([][2]int, len(shape)),
		}
		for d := range shape {
			origin := cur[d] * chunks[d]
			from := max(start[d], origin)
			to := min(start[d]+count[d], origin+chunks[d])
			p.ChunkSelection[d] = [2]int{from - origin, to - origin}
			p.OutSelection[d] = [2]int{from - start[d], to - start[d]}
		}
		out = append(out, p)

		d := len(shape) - 1
		for ; d >= 0; d-- {
			cur[d]++
			if cur[d] <= hi[d] {
				break
			}
			cur[d] = lo[d]
		}
		if d < 0 {
			return out, nil
		}
	}
}

// chunkKey renders the default v3 key "c/i/j/k".
func chunkKey(coords []int, sep string) string {
	parts := make([]string, 0, len(coords)+1)
	parts = append(parts, "c")
	for _, c := range coords {
		parts = append(parts, strconv.Itoa(c))
	}
	return strings.Join(parts, sep)
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// copyBox copies the box sel of src (shape srcShape) into the box dst
// of dst (shape dstShape). Both boxes have equal extents.
func copyBox(dst []float64, dstShape []int, dstSel [][2]int, src []float64, srcShape []int, srcSel [][2]int) {
	rank := len(dstShape)
	if rank == 0 {
		dst[0] = src[0]
		return
	}
	idx := make([]int, rank)
	for {
		di, si := 0, 0
		for d := 0; d < rank; d++ {
			di = di*dstShape[d] + dstSel[d][0] + idx[d]
			si = si*srcShape[d] + srcSel[d][0] + idx[d]
		}
		// innermost axis is contiguous in both
		n := dstSel[rank-1][1] - dstSel[rank-1][0]
		copy(dst[di:di+n], src[si:si+n])

		d := rank - 2
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < dstSel[d][1]-dstSel[d][0] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return
		}
	}
}
