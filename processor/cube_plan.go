package processor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nci/stacube/reconcile"
	"github.com/nci/stacube/stac"
	"github.com/nci/stacube/utils"
)

// cubeVariables lists the variables of a cube: the profile variables
// when declared, otherwise one per asset key of the first item accepted
// by the profile's asset selector.
func cubeVariables(p *utils.Profile, first *stac.Item, itemAssets map[string]*stac.ItemAssetDefinition) ([]*CubeVariable, error) {
	var vars []*CubeVariable
	if len(p.Variables) > 0 {
		for _, vp := range p.Variables {
			v := &CubeVariable{
				Name:        vp.Name,
				Asset:       vp.Asset,
				Band:        vp.Band,
				Role:        reconcile.VariableRole(vp.Role),
				Description: vp.Description,
				Unit:        vp.Unit,
			}
			if v.Asset == "" {
				v.Asset = v.Name
			}
			vars = append(vars, v)
		}
	} else {
		selector, err := utils.CompileExpression(p.AssetSelector, utils.SelectorVariables...)
		if err != nil {
			return nil, err
		}
		for _, key := range first.AssetKeys() {
			a := first.Assets[key]
			role := ""
			if len(a.Roles) > 0 {
				role = a.Roles[0]
			}
			ok, err := selector.Match(map[string]interface{}{"key": key, "type": a.Type, "title": a.Title, "role": role})
			if err != nil {
				return nil, fmt.Errorf("asset_selector: %v", err)
			}
			if ok {
				vars = append(vars, &CubeVariable{Name: key, Asset: key})
			}
		}
	}

	for _, v := range vars {
		if v.Band < 1 {
			v.Band = 1
		}
		if v.Role == "" {
			v.Role = reconcile.RoleData
		}
		if def, ok := itemAssets[v.Asset]; ok && def != nil {
			v.Title = def.Title
			if v.Description == "" {
				v.Description = def.Description
			}
		} else if a, ok := first.Assets[v.Asset]; ok && a != nil {
			v.Title = a.Title
			if v.Description == "" {
				v.Description = a.Description
			}
		}
	}
	if len(vars) == 0 {
		return nil, reconcile.MissingAsset(first.ID, "any asset accepted by the selector")
	}
	return vars, nil
}

// planCube resolves the common grid, the time slices and the stored type
// of every variable. Items without a datetime are left out.
func (e *Env) planCube(items []*stac.Item, vars []*CubeVariable) (*CubePlan, error) {
	if len(items) == 0 {
		return nil, &reconcile.Error{Kind: reconcile.ErrEmptyExtentSet, Detail: "no items"}
	}
	crs, err := items[0].CRS()
	if err != nil {
		return nil, err
	}

	var native, published []reconcile.ItemExtent
	byTime := map[int64][]*stac.Item{}
	for _, it := range items {
		dt := it.Datetime()
		if dt == nil {
			e.Log.Warn().Str("item", it.ID).Msg("item has no datetime, skipped")
			continue
		}
		for _, v := range vars {
			if _, err := it.Asset(v.Asset); err != nil {
				return nil, err
			}
		}
		grid, err := e.assetGrid(it, vars[0].Asset)
		if err != nil {
			return nil, err
		}
		bounds := grid.Bounds()
		native = append(native, reconcile.ItemExtent{ID: it.ID, BBox: &bounds, Datetime: dt, CRS: grid.CRS})
		published = append(published, it.Extent())
		key := dt.UnixMilli()
		byTime[key] = append(byTime[key], it)
	}

	nativeExt, err := reconcile.Aggregate(native)
	if err != nil {
		return nil, err
	}
	if nativeExt.ReferenceSystem != "" && !nativeExt.ReferenceSystem.Equal(crs) {
		return nil, &reconcile.Error{
			Kind:   reconcile.ErrCrsMismatch,
			Item:   items[0].ID,
			Detail: fmt.Sprintf("item %s, assets %s", crs, nativeExt.ReferenceSystem),
		}
	}
	ext, err := reconcile.Aggregate(published)
	if err != nil {
		return nil, err
	}
	grid, err := reconcile.SnapGrid(nativeExt.Spatial, e.Profile.Resolution, crs)
	if err != nil {
		return nil, err
	}

	plan := &CubePlan{
		CRS:          crs,
		Grid:         grid,
		Variables:    vars,
		NativeExtent: nativeExt,
		Extent:       ext,
	}
	keys := make([]int64, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		plan.Times = append(plan.Times, time.UnixMilli(k).UTC())
		plan.Slices = append(plan.Slices, byTime[k])
	}

	first := plan.Slices[0][0]
	for _, v := range vars {
		if err := e.describeVariable(first, v); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// assetGrid rebuilds an asset's native grid from its projection fields,
// inspecting the file when they are incomplete.
func (e *Env) assetGrid(it *stac.Item, key string) (reconcile.GridGeometry, error) {
	grid, err := reconcile.GridFromFields(it.AssetFields(key))
	if err == nil {
		return grid, nil
	}
	info, ierr := e.Driver.Inspect(it.Assets[key].Href)
	if ierr != nil {
		return reconcile.GridGeometry{}, reconcile.WithItem(reconcile.WithAsset(err, key), it.ID)
	}
	grid = info.Grid()
	if grid.CRS == "" {
		return reconcile.GridGeometry{}, reconcile.WithItem(reconcile.WithAsset(err, key), it.ID)
	}
	return grid, nil
}

// describeVariable inspects the variable's asset of item to pick the
// stored type. Integer bands keep their type when they carry a nodata
// value; everything else is stored as float32 with NaN fill.
func (e *Env) describeVariable(it *stac.Item, v *CubeVariable) error {
	info, err := e.Driver.Inspect(it.Assets[v.Asset].Href)
	if err != nil {
		return fmt.Errorf("inspect %s asset %s: %w", it.ID, v.Asset, err)
	}
	src, err := info.Describe(v.Band)
	if err != nil {
		return err
	}

	v.DataType, v.Fill = reconcile.Float32, math.NaN()
	switch src.DataType {
	case reconcile.Other, reconcile.Float16:
	default:
		if src.NoData != nil {
			v.DataType, v.Fill = src.DataType, *src.NoData
		} else if src.DataType == reconcile.Float64 {
			v.DataType = reconcile.Float64
		}
	}
	if v.Unit == "" {
		v.Unit = src.Unit
	}

	attrs := reconcile.Fields{}
	if src.Scale != nil {
		attrs["scale_factor"] = *src.Scale
	}
	if src.Offset != nil {
		attrs["add_offset"] = *src.Offset
	}
	if v.Unit != "" {
		attrs["units"] = v.Unit
	}
	res := e.Profile.Resolution
	v.Descriptor = reconcile.Describe(string(v.DataType), reconcile.Fields{"_FillValue": v.Fill}, attrs, &res)
	return nil
}
