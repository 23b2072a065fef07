package arcgis

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
)

const metersPerMile = 1609.344

// QueryEndpoint joins a service base URL and layer id into the query
// endpoint for that layer.
func QueryEndpoint(serviceURL, layerID string) string {
	base := strings.TrimRight(serviceURL, "/")
	if layerID == "" {
		return base + "/query"
	}
	return base + "/" + layerID + "/query"
}

// Filter is the spatial predicate for one query pass: a bare point for
// containment, or a point plus a buffer distance for proximity.
type Filter struct {
	Point       model.QueryPoint
	RadiusMiles float64 // 0 means containment (intersects) only
	BatchSize   int     // per-query page size, 0 means the fetcher default
}

// BuildQueryParams renders the filter into feature service query
// parameters. Offset and count drive pagination and are set on every
// page request.
func BuildQueryParams(f Filter, offset, count int) url.Values {
	params := url.Values{}
	params.Set("f", "json")
	params.Set("where", "1=1")
	params.Set("outFields", "*")
	params.Set("geometry", pointJSON(f.Point))
	params.Set("geometryType", "esriGeometryPoint")
	params.Set("spatialRel", "esriSpatialRelIntersects")
	params.Set("inSR", "4326")
	params.Set("outSR", "4326")
	params.Set("returnGeometry", "true")

	if f.RadiusMiles > 0 {
		meters := f.RadiusMiles * metersPerMile
		params.Set("distance", strconv.FormatFloat(meters, 'f', 2, 64))
		params.Set("units", "esriSRUnit_Meter")
	}

	if count > 0 {
		params.Set("resultRecordCount", strconv.Itoa(count))
		params.Set("resultOffset", strconv.Itoa(offset))
	}
	return params
}

func pointJSON(p model.QueryPoint) string {
	return fmt.Sprintf(`{"x":%.8f,"y":%.8f,"spatialReference":{"wkid":4326}}`, p.Lon, p.Lat)
}
