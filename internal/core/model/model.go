// Package model defines core domain types shared across the service.
package model

import "fmt"

// QueryPoint is the immutable query input in WGS84 degrees.
type QueryPoint struct {
	Lat float64
	Lon float64
}

func (p QueryPoint) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %.6f out of range [-90,90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %.6f out of range [-180,180]", p.Lon)
	}
	return nil
}

// RadiusSpec carries the caller's requested radius and the value
// actually used after the layer cap is applied. Capped == 0 means
// containment only, no proximity pass.
type RadiusSpec struct {
	RequestedMiles float64
	CappedMiles    float64
}

// Cap clamps the requested radius to the layer maximum.
func Cap(requested, layerCap float64) RadiusSpec {
	if requested < 0 {
		requested = 0
	}
	capped := requested
	if layerCap > 0 && capped > layerCap {
		capped = layerCap
	}
	return RadiusSpec{RequestedMiles: requested, CappedMiles: capped}
}

// QueryRequest is a validated enrichment request: where, how far out,
// and which layers. Layers empty means every configured layer.
type QueryRequest struct {
	Point       QueryPoint
	RadiusMiles float64
	Layers      string
}

// GeometryKind tags the union of geometry shapes a layer serves.
type GeometryKind string

const (
	KindPoint      GeometryKind = "point"
	KindMultiPoint GeometryKind = "multipoint"
	KindPolyline   GeometryKind = "polyline"
	KindPolygon    GeometryKind = "polygon"
)

func ParseGeometryKind(s string) (GeometryKind, error) {
	switch GeometryKind(s) {
	case KindPoint, KindMultiPoint, KindPolyline, KindPolygon:
		return GeometryKind(s), nil
	}
	return "", fmt.Errorf("unknown geometry kind %q", s)
}

// XY is one coordinate pair as served by the feature service
// (x=lon, y=lat when the spatial reference is WGS84).
type XY struct {
	X float64
	Y float64
}

// Geometry is the tagged union over the shapes a feature service
// returns. Exactly one group of fields is populated per Kind.
// Polygon rings follow the convention ring[0] = outer boundary,
// rings[1:] = holes.
type Geometry struct {
	Kind   GeometryKind
	Point  XY
	Points []XY   // multipoint
	Paths  [][]XY // polyline
	Rings  [][]XY // polygon
}

// RawFeature is one feature as received from the service: an
// attribute record with inconsistent casing plus its geometry.
// Read-only once received.
type RawFeature struct {
	Attributes map[string]any
	Geometry   *Geometry
}

// EvaluatedFeature is a RawFeature after the containment/distance
// passes. Immutable after creation.
type EvaluatedFeature struct {
	ID            string
	Raw           RawFeature
	DistanceMiles float64
	IsContaining  bool
}

// ResultSet is the ordered, id-unique output of one layer query:
// containing features first, then ascending distance.
type ResultSet []EvaluatedFeature
