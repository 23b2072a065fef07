// Package cellkey quantizes coordinates onto H3 cells. The result
// cache keys a query point by the cell it falls in, so nearby points
// share entries; invalidation maps an affected region onto the same
// cell space to find what to evict.
package cellkey

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
)

// DefaultResolution trades locality for hit rate: at res 8 a cell is
// roughly 0.7 km2, small enough that co-located queries see the same
// geographic context.
const DefaultResolution = 8

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// ForPoint returns the cell the query point falls in.
func ForPoint(p model.QueryPoint, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell for (%.6f, %.6f): %w", p.Lat, p.Lon, err)
	}
	return cell.String(), nil
}

// ForBBox polyfills a lon/lat rectangle, returned sorted and unique.
func ForBBox(x1, y1, x2, y2 float64, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	outer := h3.GeoLoop{
		{Lat: y1, Lng: x1},
		{Lat: y1, Lng: x2},
		{Lat: y2, Lng: x2},
		{Lat: y2, Lng: x1},
	}
	return polyfill(outer, nil, res)
}

// ForPolygonGeoJSON polyfills a GeoJSON Polygon or MultiPolygon.
func ForPolygonGeoJSON(raw []byte, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}

	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	switch hdr.Type {
	case "Polygon":
		var tmp struct {
			Coordinates [][][]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(raw, &tmp); err != nil {
			return nil, fmt.Errorf("parse polygon coords: %w", err)
		}
		outer, holes, err := ringsToLoops(tmp.Coordinates)
		if err != nil {
			return nil, err
		}
		return polyfill(outer, holes, res)

	case "MultiPolygon":
		var tmp struct {
			Coordinates [][][][]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(raw, &tmp); err != nil {
			return nil, fmt.Errorf("parse multipolygon coords: %w", err)
		}
		if len(tmp.Coordinates) == 0 {
			return nil, errors.New("empty multipolygon")
		}
		seen := make(map[string]struct{})
		var out []string
		for pi, rings := range tmp.Coordinates {
			outer, holes, err := ringsToLoops(rings)
			if err != nil {
				return nil, fmt.Errorf("polygon %d: %w", pi, err)
			}
			cells, err := polyfill(outer, holes, res)
			if err != nil {
				return nil, err
			}
			for _, c := range cells {
				if _, ok := seen[c]; !ok {
					seen[c] = struct{}{}
					out = append(out, c)
				}
			}
		}
		sort.Strings(out)
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported GeoJSON type: %s", hdr.Type)
	}
}

func ringsToLoops(rings [][][]float64) (h3.GeoLoop, []h3.GeoLoop, error) {
	if len(rings) == 0 {
		return nil, nil, errors.New("empty polygon")
	}
	outer := toLoop(rings[0])
	if len(outer) < 3 {
		return nil, nil, errors.New("outer ring has < 3 distinct vertices")
	}
	var holes []h3.GeoLoop
	for i := 1; i < len(rings); i++ {
		h := toLoop(rings[i])
		if len(h) < 3 {
			return nil, nil, fmt.Errorf("hole %d has < 3 distinct vertices", i-1)
		}
		holes = append(holes, h)
	}
	return outer, holes, nil
}

// toLoop converts a GeoJSON ring [[lon,lat], ...] to an h3.GeoLoop,
// dropping an explicit closing vertex if present.
func toLoop(coords [][]float64) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(coords))
	for _, xy := range coords {
		if len(xy) != 2 {
			continue
		}
		loop = append(loop, h3.LatLng{Lat: xy[1], Lng: xy[0]})
	}
	if len(loop) >= 2 {
		last, first := loop[len(loop)-1], loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}

func polyfill(outer h3.GeoLoop, holes []h3.GeoLoop, res int) ([]string, error) {
	if len(outer) < 3 {
		return nil, errors.New("outer ring has < 3 distinct vertices")
	}
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer, Holes: holes}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(cells))
	seen := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
