package stac

import (
	"encoding/json"
	"fmt"
	"sort"

	geo "github.com/nci/geometry"
	"github.com/nci/stacube/reconcile"
)

// BBoxGeometry returns the GeoJSON polygon covering bbox.
func BBoxGeometry(b reconcile.BBox) json.RawMessage {
	ring := [][2]float64{
		{b[0], b[1]}, {b[2], b[1]}, {b[2], b[3]}, {b[0], b[3]}, {b[0], b[1]},
	}
	out, _ := json.Marshal(map[string]interface{}{
		"type":        "Polygon",
		"coordinates": [][][2]float64{ring},
	})
	return out
}

// FootprintWKT converts a GeoJSON geometry into WKT.
func FootprintWKT(geometry json.RawMessage) (string, error) {
	if len(geometry) == 0 || string(geometry) == "null" {
		return "", fmt.Errorf("stac: empty geometry")
	}
	doc := fmt.Sprintf(`{"type":"Feature","properties":{},"geometry":%s}`, geometry)
	var feat geo.Feature
	if err := json.Unmarshal([]byte(doc), &feat); err != nil {
		return "", fmt.Errorf("stac: problem unmarshalling GeoJSON geometry: %v", err)
	}
	if feat.Geometry == nil {
		return "", fmt.Errorf("stac: unsupported geometry %s", geometry)
	}
	return feat.Geometry.MarshalWKT(), nil
}

func sortedAssetKeys(assets map[string]*Asset) []string {
	keys := make([]string, 0, len(assets))
	for k := range assets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
