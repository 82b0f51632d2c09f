package reconcile

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

type DimensionType string

const (
	DimensionSpatial  DimensionType = "spatial"
	DimensionTemporal DimensionType = "temporal"
	DimensionOther    DimensionType = "other"
)

type VariableRole string

const (
	RoleData      VariableRole = "data"
	RoleAuxiliary VariableRole = "auxiliary"
)

// DatasetDimension describes one axis of a materialised array. Values
// holds numeric coordinates, Times temporal ones. Either may be the full
// coordinate vector or just its bounds.
type DatasetDimension struct {
	Size        int
	Chunk       int
	Values      []float64
	Times       []time.Time
	Step        *float64
	Description string
	Unit        string
}

type VariableSpec struct {
	Dimensions  []string
	Role        VariableRole
	Description string
	Unit        string
}

// CubeInput is what Synchronize reads: the dataset dimensions, the
// declared variables and the resolved CRS.
type CubeInput struct {
	Dimensions map[string]DatasetDimension
	Variables  map[string]VariableSpec
	CRS        CRS
}

type DimensionDescriptor struct {
	Type            DimensionType
	Axis            string
	Extent          [2]float64
	TemporalExtent  [2]string
	ReferenceSystem CRS
	Step            *float64
	Description     string
	Unit            string

	// Size and Chunk are carried for regeneration only.
	Size  int
	Chunk int
}

type VariableDescriptor struct {
	Type        VariableRole
	Dimensions  []string
	Chunks      []int
	Description string
	Unit        string
}

type CubeDescriptor struct {
	Dimensions map[string]DimensionDescriptor
	Variables  map[string]VariableDescriptor
	CRS        CRS
}

const timeLayout = time.RFC3339Nano

// FormatTime renders an instant as an ISO 8601 UTC string with a Z suffix.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

var spatialAxes = map[string]string{"x": "x", "y": "y", "z": "z"}

// Synchronize derives a datacube descriptor from the dataset dimensions
// and the declared variables. Every variable must only reference
// declared dimensions.
func Synchronize(in CubeInput) (CubeDescriptor, error) {
	out := CubeDescriptor{
		Dimensions: make(map[string]DimensionDescriptor, len(in.Dimensions)),
		Variables:  make(map[string]VariableDescriptor, len(in.Variables)),
		CRS:        in.CRS,
	}

	for _, name := range sortedKeys(in.Dimensions) {
		d, err := describeDimension(name, in.Dimensions[name], in.CRS)
		if err != nil {
			return CubeDescriptor{}, err
		}
		out.Dimensions[name] = d
	}

	for _, name := range sortedKeys(in.Variables) {
		vs := in.Variables[name]
		v := VariableDescriptor{
			Type:        vs.Role,
			Dimensions:  append([]string(nil), vs.Dimensions...),
			Description: vs.Description,
			Unit:        vs.Unit,
		}
		if v.Type == "" {
			v.Type = RoleData
		}
		chunked := true
		for _, dim := range vs.Dimensions {
			dd, ok := in.Dimensions[dim]
			if !ok {
				return CubeDescriptor{}, &Error{
					Kind:   ErrDanglingDimensionReference,
					Field:  name,
					Detail: fmt.Sprintf("dimension %q is not declared", dim),
				}
			}
			if dd.Chunk <= 0 {
				chunked = false
			}
			v.Chunks = append(v.Chunks, dd.Chunk)
		}
		if !chunked {
			v.Chunks = nil
		}
		out.Variables[name] = v
	}
	return out, nil
}

func describeDimension(name string, dim DatasetDimension, crs CRS) (DimensionDescriptor, error) {
	d := DimensionDescriptor{
		Description: dim.Description,
		Unit:        dim.Unit,
		Size:        dim.Size,
		Chunk:       dim.Chunk,
	}

	if len(dim.Times) > 0 {
		start, end := dim.Times[0], dim.Times[0]
		for _, t := range dim.Times[1:] {
			if t.Before(start) {
				start = t
			}
			if t.After(end) {
				end = t
			}
		}
		d.Type = DimensionTemporal
		d.TemporalExtent = [2]string{FormatTime(start), FormatTime(end)}
		return d, nil
	}

	if len(dim.Values) == 0 {
		return DimensionDescriptor{}, &Error{Kind: ErrMissingCoordinates, Field: name}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range dim.Values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	d.Extent = [2]float64{lo, hi}
	d.Step = dim.Step
	if d.Step == nil {
		d.Step = regularStep(dim.Values, dim.Size)
	}

	if axis, ok := spatialAxes[name]; ok {
		d.Type = DimensionSpatial
		d.Axis = axis
		if axis != "z" {
			if crs == "" {
				return DimensionDescriptor{}, &Error{Kind: ErrMissingCrs, Field: name}
			}
			d.ReferenceSystem = crs
		}
		return d, nil
	}
	d.Type = DimensionOther
	return d, nil
}

// regularStep returns the common spacing of a full coordinate vector, or
// nil if the vector is partial or irregular.
func regularStep(values []float64, size int) *float64 {
	if len(values) < 3 || len(values) != size {
		return nil
	}
	step := values[1] - values[0]
	if step == 0 {
		return nil
	}
	tol := math.Abs(step) * 1e-9
	for i := 2; i < len(values); i++ {
		if math.Abs(values[i]-values[i-1]-step) > tol {
			return nil
		}
	}
	return &step
}

// Input turns a descriptor back into synchronizer input so that a
// catalog entry can be regenerated from it.
func (c CubeDescriptor) Input() CubeInput {
	in := CubeInput{
		Dimensions: make(map[string]DatasetDimension, len(c.Dimensions)),
		Variables:  make(map[string]VariableSpec, len(c.Variables)),
		CRS:        c.CRS,
	}
	for name, d := range c.Dimensions {
		dim := DatasetDimension{
			Size:        d.Size,
			Chunk:       d.Chunk,
			Step:        d.Step,
			Description: d.Description,
			Unit:        d.Unit,
		}
		if d.Type == DimensionTemporal {
			for _, s := range d.TemporalExtent {
				t, err := time.Parse(timeLayout, s)
				if err == nil {
					dim.Times = append(dim.Times, t)
				}
			}
		} else {
			dim.Values = []float64{d.Extent[0], d.Extent[1]}
		}
		in.Dimensions[name] = dim
	}
	for name, v := range c.Variables {
		in.Variables[name] = VariableSpec{
			Dimensions:  append([]string(nil), v.Dimensions...),
			Role:        v.Type,
			Description: v.Description,
			Unit:        v.Unit,
		}
	}
	return in
}

// ArrayInfo is the metadata of one stored array.
type ArrayInfo struct {
	Name           string
	DataType       string
	Shape          []int
	Chunks         []int
	DimensionNames []string
	Attributes     Fields
}

// InputFromArrays builds synchronizer input from stored arrays. coords
// supplies the coordinates of every dimension; only arrays named in declared
// become variables, or every non-coordinate array when declared is nil.
func InputFromArrays(arrays []ArrayInfo, coords map[string]DatasetDimension, declared map[string]VariableSpec, crs CRS) (CubeInput, error) {
	in := CubeInput{
		Dimensions: map[string]DatasetDimension{},
		Variables:  map[string]VariableSpec{},
		CRS:        crs,
	}
	for _, a := range arrays {
		if len(a.DimensionNames) != len(a.Shape) {
			return CubeInput{}, &Error{
				Kind:   ErrShapeMismatch,
				Field:  a.Name,
				Detail: fmt.Sprintf("%d dimension names for %d axes", len(a.DimensionNames), len(a.Shape)),
			}
		}
		for i, dim := range a.DimensionNames {
			size := a.Shape[i]
			chunk := 0
			if i < len(a.Chunks) {
				chunk = a.Chunks[i]
			}
			if prev, ok := in.Dimensions[dim]; ok {
				if prev.Size != size {
					return CubeInput{}, &Error{
						Kind:   ErrShapeMismatch,
						Field:  a.Name,
						Detail: fmt.Sprintf("dimension %q has length %d, expected %d", dim, size, prev.Size),
					}
				}
				continue
			}
			c, ok := coords[dim]
			if !ok {
				return CubeInput{}, &Error{Kind: ErrMissingCoordinates, Field: dim}
			}
			n := len(c.Values) + len(c.Times)
			if n > 2 && n != size {
				return CubeInput{}, &Error{
					Kind:   ErrShapeMismatch,
					Field:  dim,
					Detail: fmt.Sprintf("%d coordinates for length %d", n, size),
				}
			}
			c.Size = size
			c.Chunk = chunk
			in.Dimensions[dim] = c
		}

		if _, isCoord := coords[a.Name]; isCoord {
			continue
		}
		vs, ok := declared[a.Name]
		if declared != nil && !ok {
			continue
		}
		if len(vs.Dimensions) == 0 {
			vs.Dimensions = append([]string(nil), a.DimensionNames...)
		}
		in.Variables[a.Name] = vs
	}
	return in, nil
}

// Fields returns the cube:dimensions and cube:variables fields.
func (c CubeDescriptor) Fields() Fields {
	return Fields{
		"cube:dimensions": c.Dimensions,
		"cube:variables":  c.Variables,
	}
}

type dimensionJSON struct {
	Type            DimensionType `json:"type"`
	Axis            string        `json:"axis,omitempty"`
	Description     string        `json:"description,omitempty"`
	Extent          []interface{} `json:"extent,omitempty"`
	Step            *float64      `json:"step,omitempty"`
	Unit            string        `json:"unit,omitempty"`
	ReferenceSystem interface{}   `json:"reference_system,omitempty"`
}

func (d DimensionDescriptor) MarshalJSON() ([]byte, error) {
	out := dimensionJSON{
		Type:        d.Type,
		Axis:        d.Axis,
		Description: d.Description,
		Step:        d.Step,
		Unit:        d.Unit,
	}
	if d.Type == DimensionTemporal {
		out.Extent = []interface{}{d.TemporalExtent[0], d.TemporalExtent[1]}
	} else {
		out.Extent = []interface{}{d.Extent[0], d.Extent[1]}
	}
	if d.ReferenceSystem != "" {
		if code := d.ReferenceSystem.Code(); code > 0 {
			out.ReferenceSystem = code
		} else {
			out.ReferenceSystem = string(d.ReferenceSystem)
		}
	}
	return json.Marshal(out)
}

func (d *DimensionDescriptor) UnmarshalJSON(data []byte) error {
	var in dimensionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*d = DimensionDescriptor{
		Type:        in.Type,
		Axis:        in.Axis,
		Description: in.Description,
		Step:        in.Step,
		Unit:        in.Unit,
	}
	if len(in.Extent) == 2 {
		if d.Type == DimensionTemporal {
			d.TemporalExtent[0], _ = in.Extent[0].(string)
			d.TemporalExtent[1], _ = in.Extent[1].(string)
		} else {
			d.Extent[0], _ = toFloat(in.Extent[0])
			d.Extent[1], _ = toFloat(in.Extent[1])
		}
	}
	switch rs := in.ReferenceSystem.(type) {
	case float64:
		if isIntegral(rs) && rs > 0 {
			d.ReferenceSystem = EPSG(int(rs))
		}
	case string:
		if c, err := ParseCRS(rs); err == nil {
			d.ReferenceSystem = c
		} else {
			d.ReferenceSystem = CRS(rs)
		}
	}
	return nil
}

func (v VariableDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        VariableRole `json:"type"`
		Dimensions  []string     `json:"dimensions"`
		Chunks      []int        `json:"chunks,omitempty"`
		Description string       `json:"description,omitempty"`
		Unit        string       `json:"unit,omitempty"`
	}{v.Type, v.Dimensions, v.Chunks, v.Description, v.Unit})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
