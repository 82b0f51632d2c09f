package reconcile

import (
	"math"
)

// BBox is (xmin, ymin, xmax, ymax).
type BBox [4]float64

func (b BBox) Width() float64  { return b[2] - b[0] }
func (b BBox) Height() float64 { return b[3] - b[1] }

// Union returns the coordinate-wise union of b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		math.Min(b[0], o[0]),
		math.Min(b[1], o[1]),
		math.Max(b[2], o[2]),
		math.Max(b[3], o[3]),
	}
}

// Slice returns the bbox as a []float64 for serialisation.
func (b BBox) Slice() []float64 {
	return []float64{b[0], b[1], b[2], b[3]}
}

// BBoxFromSlice accepts 4 values, or 6 values in 3D (xmin, ymin, zmin,
// xmax, ymax, zmax) order.
func BBoxFromSlice(v []float64) (BBox, bool) {
	switch len(v) {
	case 4:
		return BBox{v[0], v[1], v[2], v[3]}, true
	case 6:
		return BBox{v[0], v[1], v[3], v[4]}, true
	}
	return BBox{}, false
}

// Affine maps pixel (col, row) to world (x, y):
// x = a*col + b*row + c; y = d*col + e*row + f.
type Affine [6]float64

func (t Affine) Apply(col, row float64) (float64, float64) {
	return t[0]*col + t[1]*row + t[2], t[3]*col + t[4]*row + t[5]
}

// GeoTransform returns the coefficients in GDAL order.
func (t Affine) GeoTransform() [6]float64 {
	return [6]float64{t[2], t[0], t[1], t[5], t[3], t[4]}
}

// AffineFromGeoTransform is the inverse of Affine.GeoTransform.
func AffineFromGeoTransform(gt [6]float64) Affine {
	return Affine{gt[1], gt[2], gt[0], gt[4], gt[5], gt[3]}
}

// Shape is a pixel grid size.
type Shape struct {
	Rows int
	Cols int
}

// GridGeometry is a north-up pixel grid with its georeferencing.
type GridGeometry struct {
	Shape  Shape
	Affine Affine
	CRS    CRS
}

// Reconstruct derives a north-up, pixel-registered grid whose upper-left
// corner is (xmin, ymax). The bbox ordering is not checked.
func Reconstruct(bbox BBox, shape Shape, crs CRS) (GridGeometry, error) {
	if shape.Rows <= 0 || shape.Cols <= 0 {
		return GridGeometry{}, newError(ErrDegenerateGrid, "shape %dx%d", shape.Rows, shape.Cols)
	}
	xres := bbox.Width() / float64(shape.Cols)
	yres := bbox.Height() / float64(shape.Rows)
	return GridGeometry{
		Shape:  shape,
		Affine: Affine{xres, 0, bbox[0], 0, -yres, bbox[3]},
		CRS:    crs,
	}, nil
}

// Resolution returns the absolute pixel size along x and y.
func (g GridGeometry) Resolution() (float64, float64) {
	return math.Abs(g.Affine[0]), math.Abs(g.Affine[4])
}

// Bounds returns the world bbox covered by the grid.
func (g GridGeometry) Bounds() BBox {
	x0, y0 := g.Affine.Apply(0, 0)
	x1, y1 := g.Affine.Apply(float64(g.Shape.Cols), float64(g.Shape.Rows))
	return BBox{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
}

// XCoords returns the x coordinate of every column centre.
func (g GridGeometry) XCoords() []float64 {
	out := make([]float64, g.Shape.Cols)
	for i := range out {
		out[i], _ = g.Affine.Apply(float64(i)+0.5, 0)
	}
	return out
}

// YCoords returns the y coordinate of every row centre.
func (g GridGeometry) YCoords() []float64 {
	out := make([]float64, g.Shape.Rows)
	for j := range out {
		_, out[j] = g.Affine.Apply(0, float64(j)+0.5)
	}
	return out
}

// SnapGrid covers bbox with square pixels of size res whose edges fall
// on multiples of res.
func SnapGrid(bbox BBox, res float64, crs CRS) (GridGeometry, error) {
	if !(res > 0) {
		return GridGeometry{}, newError(ErrDegenerateGrid, "resolution %v", res)
	}
	const eps = 1e-9
	snapped := BBox{
		math.Floor(bbox[0]/res+eps) * res,
		math.Floor(bbox[1]/res+eps) * res,
		math.Ceil(bbox[2]/res-eps) * res,
		math.Ceil(bbox[3]/res-eps) * res,
	}
	shape := Shape{
		Rows: int(math.Round(snapped.Height() / res)),
		Cols: int(math.Round(snapped.Width() / res)),
	}
	return Reconstruct(snapped, shape, crs)
}

const (
	FieldBBox      = "proj:bbox"
	FieldShape     = "proj:shape"
	FieldTransform = "proj:transform"
)

// GridFromFields rebuilds a grid from asset projection fields. The bbox
// comes from proj:bbox, else from proj:transform applied to proj:shape.
func GridFromFields(fields Fields) (GridGeometry, error) {
	crs, err := ResolveCRS(fields)
	if err != nil {
		return GridGeometry{}, err
	}
	rawShape, ok := toFloats(fields[FieldShape])
	if !ok || len(rawShape) != 2 {
		return GridGeometry{}, &Error{Kind: ErrMissingProjection, Field: FieldShape}
	}
	shape := Shape{Rows: int(rawShape[0]), Cols: int(rawShape[1])}

	if v, ok := toFloats(fields[FieldBBox]); ok {
		if bbox, ok := BBoxFromSlice(v); ok {
			return Reconstruct(bbox, shape, crs)
		}
	}
	if v, ok := toFloats(fields[FieldTransform]); ok && len(v) >= 6 {
		if shape.Rows <= 0 || shape.Cols <= 0 {
			return GridGeometry{}, newError(ErrDegenerateGrid, "shape %dx%d", shape.Rows, shape.Cols)
		}
		return GridGeometry{
			Shape:  shape,
			Affine: Affine{v[0], v[1], v[2], v[3], v[4], v[5]},
			CRS:    crs,
		}, nil
	}
	return GridGeometry{}, &Error{Kind: ErrMissingProjection, Field: FieldBBox + "|" + FieldTransform}
}

// ProjectionFields returns the proj extension fields describing g.
func ProjectionFields(g GridGeometry) Fields {
	f := Fields{
		FieldShape:     []int{g.Shape.Rows, g.Shape.Cols},
		FieldTransform: g.Affine[:],
		FieldBBox:      g.Bounds().Slice(),
	}
	if code := g.CRS.Code(); code > 0 {
		f[FieldEPSG] = code
		f[FieldCode] = g.CRS.Upper()
	}
	return f
}
