// Package invalidation defines the change events upstream publishers
// emit when features in a layer are edited. Each event names the
// affected region so the consumer can evict exactly the cells whose
// cached results may be stale.
package invalidation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Event struct {
	Version   int             `json:"version"`
	Op        string          `json:"op"`
	Layer     string          `json:"layer"`
	TS        time.Time       `json:"ts"`
	FeatureID any             `json:"feature_id,omitempty"`
	Source    string          `json:"source,omitempty"`
	BBox      *BBox           `json:"bbox,omitempty"`
	Geometry  json.RawMessage `json:"geometry,omitempty"`
}

// BBox is a lon/lat rectangle in EPSG:4326.
type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return fmt.Errorf("op must be insert|update|delete")
	}
	if strings.TrimSpace(e.Layer) == "" {
		return fmt.Errorf("layer is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	hasBBox := e.BBox != nil
	hasGeom := len(e.Geometry) > 0
	if hasBBox == hasGeom {
		return fmt.Errorf("exactly one of bbox or geometry is required")
	}
	if hasBBox {
		return e.BBox.validate()
	}
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(e.Geometry, &hdr); err != nil {
		return fmt.Errorf("geometry parse: %w", err)
	}
	if hdr.Type != "Polygon" && hdr.Type != "MultiPolygon" {
		return fmt.Errorf("geometry.type must be Polygon or MultiPolygon")
	}
	return nil
}

func (bb BBox) validate() error {
	if bb.SRID != "EPSG:4326" {
		return fmt.Errorf("bbox.srid must be EPSG:4326")
	}
	if bb.X1 < -180 || bb.X1 > 180 || bb.X2 < -180 || bb.X2 > 180 {
		return fmt.Errorf("bbox longitude out of range")
	}
	if bb.Y1 < -90 || bb.Y1 > 90 || bb.Y2 < -90 || bb.Y2 > 90 {
		return fmt.Errorf("bbox latitude out of range")
	}
	if bb.X2 <= bb.X1 || bb.Y2 <= bb.Y1 {
		return fmt.Errorf("bbox must satisfy x2>x1 and y2>y1")
	}
	return nil
}

// DedupeKey identifies the logical entity an event mutates, so a
// replayed or re-delivered event can be dropped when a newer one for
// the same entity was already applied.
func (e Event) DedupeKey() string {
	return fmt.Sprintf("%s/%v", e.Layer, e.FeatureID)
}
