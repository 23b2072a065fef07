package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/attr"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/geometry"
)

// defaultIDAliases covers the object-id spellings observed across
// services; layer config can prepend its own via the "id" alias entry.
var defaultIDAliases = []string{"OBJECTID", "objectid", "ObjectId", "FID", "OID", "GlobalID"}

// FeatureID returns a stable identifier for a feature: the service's
// object id when one resolves, otherwise a hash of the attribute
// record so dedup still works on id-less services.
func FeatureID(f model.RawFeature, extraAliases []string) string {
	aliases := extraAliases
	aliases = append(aliases, defaultIDAliases...)
	if s := attr.String(f.Attributes, aliases...); s != "" {
		return s
	}
	return syntheticID(f)
}

func syntheticID(f model.RawFeature) string {
	keys := make([]string, 0, len(f.Attributes))
	for k := range f.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, f.Attributes[k])
	}
	if g := f.Geometry; g != nil {
		fmt.Fprintf(&b, "kind=%s;n=%d", g.Kind, len(g.Points)+len(g.Paths)+len(g.Rings))
		if g.Kind == model.KindPoint {
			fmt.Fprintf(&b, ";pt=%.8f,%.8f", g.Point.X, g.Point.Y)
		}
	}
	return fmt.Sprintf("synthetic:%016x", xxhash.Sum64String(b.String()))
}

// Contains re-verifies containment client-side. The service-side
// intersects predicate is looser than true point-in-polygon, so a
// containment-pass feature is only accepted after this check passes.
// Non-polygon geometry never contains.
func Contains(p model.QueryPoint, f model.RawFeature) bool {
	g := f.Geometry
	if g == nil || g.Kind != model.KindPolygon {
		return false
	}
	return geometry.PointInPolygon(p, g.Rings)
}

// Distance computes the scalar distance in miles from the query point
// to the feature, using the primitive matching its geometry kind.
// isContaining short-circuits polygons to 0.
func Distance(p model.QueryPoint, f model.RawFeature, isContaining bool) (float64, error) {
	g := f.Geometry
	if g == nil {
		return 0, fmt.Errorf("feature has no geometry")
	}
	switch g.Kind {
	case model.KindPoint:
		return geometry.HaversineMiles(p, model.QueryPoint{Lat: g.Point.Y, Lon: g.Point.X}), nil
	case model.KindMultiPoint:
		if len(g.Points) == 0 {
			return 0, fmt.Errorf("multipoint has no points")
		}
		best := math.Inf(1)
		for _, pt := range g.Points {
			if d := geometry.HaversineMiles(p, model.QueryPoint{Lat: pt.Y, Lon: pt.X}); d < best {
				best = d
			}
		}
		return best, nil
	case model.KindPolyline:
		d := geometry.DistanceToPolylineMiles(p, g.Paths)
		if math.IsInf(d, 1) {
			return 0, fmt.Errorf("polyline has no segments")
		}
		return d, nil
	case model.KindPolygon:
		if isContaining {
			return 0, nil
		}
		d := geometry.DistanceToPolygonBoundaryMiles(p, g.Rings)
		if math.IsInf(d, 1) {
			return 0, fmt.Errorf("polygon has no rings")
		}
		return d, nil
	default:
		return 0, fmt.Errorf("unknown geometry kind %q", g.Kind)
	}
}
