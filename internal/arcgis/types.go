package arcgis

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/geometry"
)

// ServiceError is the error object a feature service embeds in an
// otherwise-200 response.
type ServiceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error %d: %s", e.Code, e.Message)
}

type spatialReference struct {
	WKID       int `json:"wkid"`
	LatestWKID int `json:"latestWkid"`
}

// featureSet is the wire shape of one query response page.
type featureSet struct {
	Features              []featureJSON     `json:"features"`
	ExceededTransferLimit bool              `json:"exceededTransferLimit"`
	SpatialReference      *spatialReference `json:"spatialReference"`
	Error                 *ServiceError     `json:"error"`
}

type featureJSON struct {
	Attributes map[string]any  `json:"attributes"`
	Geometry   json.RawMessage `json:"geometry"`
}

// geometryJSON covers all four esri geometry shapes; which members are
// present decides the kind.
type geometryJSON struct {
	X      *float64      `json:"x"`
	Y      *float64      `json:"y"`
	Points [][]float64   `json:"points"`
	Paths  [][][]float64 `json:"paths"`
	Rings  [][][]float64 `json:"rings"`
}

var errNoGeometry = errors.New("feature has no recognizable geometry")

// parseGeometry decodes one feature geometry into the model union.
// Unrecognized or empty shapes return errNoGeometry so the caller can
// drop the feature with a warning rather than inventing coordinates.
func parseGeometry(raw json.RawMessage) (*model.Geometry, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errNoGeometry
	}
	var g geometryJSON
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}

	switch {
	case len(g.Rings) > 0:
		rings, err := toPairs(g.Rings)
		if err != nil {
			return nil, fmt.Errorf("polygon: %w", err)
		}
		return &model.Geometry{Kind: model.KindPolygon, Rings: rings}, nil
	case len(g.Paths) > 0:
		paths, err := toPairs(g.Paths)
		if err != nil {
			return nil, fmt.Errorf("polyline: %w", err)
		}
		return &model.Geometry{Kind: model.KindPolyline, Paths: paths}, nil
	case len(g.Points) > 0:
		pts := make([]model.XY, 0, len(g.Points))
		for i, p := range g.Points {
			if len(p) < 2 {
				return nil, fmt.Errorf("multipoint: point %d has %d coordinates", i, len(p))
			}
			pts = append(pts, model.XY{X: p[0], Y: p[1]})
		}
		return &model.Geometry{Kind: model.KindMultiPoint, Points: pts}, nil
	case g.X != nil && g.Y != nil:
		return &model.Geometry{Kind: model.KindPoint, Point: model.XY{X: *g.X, Y: *g.Y}}, nil
	default:
		return nil, errNoGeometry
	}
}

func toPairs(in [][][]float64) ([][]model.XY, error) {
	out := make([][]model.XY, 0, len(in))
	for i, seq := range in {
		pairs := make([]model.XY, 0, len(seq))
		for j, c := range seq {
			if len(c) < 2 {
				return nil, fmt.Errorf("sequence %d vertex %d has %d coordinates", i, j, len(c))
			}
			pairs = append(pairs, model.XY{X: c[0], Y: c[1]})
		}
		out = append(out, pairs)
	}
	return out, nil
}

// normalizeFor brings a parsed geometry into WGS84. An explicit Web
// Mercator wkid on the response wins over the magnitude heuristic.
func normalizeFor(g *model.Geometry, sr *spatialReference) *model.Geometry {
	if g == nil {
		return nil
	}
	if sr != nil && isWebMercator(sr) {
		return geometry.ReprojectWebMercator(g)
	}
	return geometry.NormalizeGeometry(g)
}

func isWebMercator(sr *spatialReference) bool {
	switch {
	case sr.WKID == 3857 || sr.WKID == 102100:
		return true
	case sr.LatestWKID == 3857:
		return true
	}
	return false
}
