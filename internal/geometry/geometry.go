// Package geometry implements the spherical and planar primitives the
// evaluators are built on: ray-casting containment, haversine distance,
// point-to-segment projection, and minimum-distance searches over
// polylines and polygon boundaries. All distances are in miles.
package geometry

import (
	"math"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
)

// EarthRadiusMiles is the mean Earth radius used by the haversine formula.
const EarthRadiusMiles = 3959.0

const webMercatorHalfCircumference = 20037508.34

// PointInRing reports whether p lies inside the ring using the
// even-odd ray-casting rule. Edges with equal latitudes at both
// endpoints never produce a crossing, which also guards the division.
func PointInRing(p model.QueryPoint, ring []model.XY) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x := p.Lon
	y := p.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].X, ring[i].Y
		xj, yj := ring[j].X, ring[j].Y
		if (yi > y) == (yj > y) {
			continue
		}
		if x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// PointInPolygon reports containment in a ringed polygon: inside the
// outer ring and outside every hole.
func PointInPolygon(p model.QueryPoint, rings [][]model.XY) bool {
	if len(rings) == 0 {
		return false
	}
	if !PointInRing(p, rings[0]) {
		return false
	}
	for i := 1; i < len(rings); i++ {
		if PointInRing(p, rings[i]) {
			return false
		}
	}
	return true
}

// HaversineMiles returns the great-circle distance between two
// lat/lon points.
func HaversineMiles(a, b model.QueryPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusMiles * 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

// DistancePointToSegmentMiles projects p onto the segment a-b, clamps
// the projection parameter to [0,1], and returns the haversine
// distance to the clamped point. A degenerate segment collapses to the
// distance to its endpoint.
func DistancePointToSegmentMiles(p model.QueryPoint, a, b model.XY) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y

	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return HaversineMiles(p, model.QueryPoint{Lat: a.Y, Lon: a.X})
	}

	t := ((p.Lon-a.X)*dx + (p.Lat-a.Y)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	proj := model.QueryPoint{Lat: a.Y + t*dy, Lon: a.X + t*dx}
	return HaversineMiles(p, proj)
}

// DistanceToPolylineMiles is the minimum segment distance over all
// paths. Returns +Inf for an empty path set.
func DistanceToPolylineMiles(p model.QueryPoint, paths [][]model.XY) float64 {
	best := math.Inf(1)
	for _, path := range paths {
		for i := 1; i < len(path); i++ {
			if d := DistancePointToSegmentMiles(p, path[i-1], path[i]); d < best {
				best = d
			}
		}
		if len(path) == 1 {
			if d := HaversineMiles(p, model.QueryPoint{Lat: path[0].Y, Lon: path[0].X}); d < best {
				best = d
			}
		}
	}
	return best
}

// DistanceToPolygonBoundaryMiles is the minimum segment distance over
// every ring, outer boundary and holes alike. Callers are expected to
// have ruled out containment first; a contained point has distance 0
// by definition.
func DistanceToPolygonBoundaryMiles(p model.QueryPoint, rings [][]model.XY) float64 {
	best := math.Inf(1)
	for _, ring := range rings {
		n := len(ring)
		if n == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			if d := DistancePointToSegmentMiles(p, ring[i], ring[j]); d < best {
				best = d
			}
		}
	}
	return best
}

// NormalizeCRS converts a coordinate that looks like Web Mercator
// (EPSG:3857) back to WGS84 lon/lat. The magnitude check is
// best-effort: any projected system whose coordinates exceed the WGS84
// range is indistinguishable from Web Mercator here, so callers should
// prefer an explicit spatial reference from the service response when
// one is available.
func NormalizeCRS(c model.XY) (lon, lat float64) {
	if math.Abs(c.X) <= 180 && math.Abs(c.Y) <= 90 {
		return c.X, c.Y
	}
	return mercatorToWGS84(c)
}

func mercatorToWGS84(c model.XY) (lon, lat float64) {
	lon = c.X / webMercatorHalfCircumference * 180
	lat = 180 / math.Pi * (2*math.Atan(math.Exp(c.Y/webMercatorHalfCircumference*math.Pi)) - math.Pi/2)
	return lon, lat
}

// NormalizeGeometry rewrites every coordinate of g into WGS84 using
// NormalizeCRS. The input is not modified.
func NormalizeGeometry(g *model.Geometry) *model.Geometry {
	return mapGeometry(g, func(c model.XY) model.XY {
		lon, lat := NormalizeCRS(c)
		return model.XY{X: lon, Y: lat}
	})
}

// ReprojectWebMercator rewrites every coordinate of g from Web
// Mercator into WGS84 regardless of magnitude. The input is not
// modified.
func ReprojectWebMercator(g *model.Geometry) *model.Geometry {
	return mapGeometry(g, func(c model.XY) model.XY {
		lon, lat := mercatorToWGS84(c)
		return model.XY{X: lon, Y: lat}
	})
}

func mapGeometry(g *model.Geometry, f func(model.XY) model.XY) *model.Geometry {
	if g == nil {
		return nil
	}
	out := &model.Geometry{Kind: g.Kind}
	switch g.Kind {
	case model.KindPoint:
		out.Point = f(g.Point)
	case model.KindMultiPoint:
		out.Points = make([]model.XY, len(g.Points))
		for i, p := range g.Points {
			out.Points[i] = f(p)
		}
	case model.KindPolyline:
		out.Paths = mapNested(g.Paths, f)
	case model.KindPolygon:
		out.Rings = mapNested(g.Rings, f)
	}
	return out
}

func mapNested(in [][]model.XY, f func(model.XY) model.XY) [][]model.XY {
	out := make([][]model.XY, len(in))
	for i, seq := range in {
		out[i] = make([]model.XY, len(seq))
		for j, c := range seq {
			out[i][j] = f(c)
		}
	}
	return out
}
