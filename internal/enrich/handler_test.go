package enrich

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/arcgis"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/router"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/engine"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/layers"
)

type fakeSource struct {
	mu    sync.Mutex
	feats map[string][]model.RawFeature
	calls int
}

func (s *fakeSource) FetchAll(_ context.Context, _ string, layer string, _ arcgis.Filter) ([]model.RawFeature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.feats[layer], nil
}

type memStore struct {
	mu   sync.Mutex
	data map[string]model.ResultSet
}

func (m *memStore) key(layer string, p model.QueryPoint, r float64) string {
	b, _ := json.Marshal(struct {
		L string
		P model.QueryPoint
		R float64
	}{layer, p, r})
	return string(b)
}

func (m *memStore) Get(_ context.Context, layer string, p model.QueryPoint, r float64) (model.ResultSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.data[m.key(layer, p, r)]
	return rs, ok
}

func (m *memStore) Put(_ context.Context, layer string, p model.QueryPoint, r float64, rs model.ResultSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]model.ResultSet{}
	}
	m.data[m.key(layer, p, r)] = rs
}

func testRegistry(t *testing.T) *layers.Registry {
	t.Helper()
	reg, err := layers.Parse([]byte(`
layers:
  - name: counties
    service_url: https://gis.example.test/arcgis/rest/services/Counties/FeatureServer
    layer_id: "0"
    geometry_kind: polygon
    radius_cap_miles: 100
  - name: stations
    service_url: https://gis.example.test/arcgis/rest/services/Stations/FeatureServer
    layer_id: "0"
    geometry_kind: point
    radius_cap_miles: 25
`))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func county(id float64) model.RawFeature {
	return model.RawFeature{
		Attributes: map[string]any{"OBJECTID": id, "NAME": "Alpine"},
		Geometry: &model.Geometry{
			Kind: model.KindPolygon,
			Rings: [][]model.XY{{
				{X: -121, Y: 37}, {X: -119, Y: 37}, {X: -119, Y: 39}, {X: -121, Y: 39}, {X: -121, Y: 37},
			}},
		},
	}
}

func station(id float64, lat, lon float64) model.RawFeature {
	return model.RawFeature{
		Attributes: map[string]any{"OBJECTID": id},
		Geometry:   &model.Geometry{Kind: model.KindPoint, Point: model.XY{X: lon, Y: lat}},
	}
}

func doEnrich(t *testing.T, h *Handler, url string) (int, enrichResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.HandleEnrich(h)(rec, httptest.NewRequest("GET", url, nil))
	var resp enrichResponse
	if rec.Code == 200 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
		}
	}
	return rec.Code, resp
}

func TestHandleEnrich_AllLayers(t *testing.T) {
	src := &fakeSource{feats: map[string][]model.RawFeature{
		"counties": {county(7)},
		"stations": {station(12, 38.1, -120.1)},
	}}
	h := New(nil, testRegistry(t), engine.New(nil, src), nil, 0, 4)

	code, resp := doEnrich(t, h, "/enrich?lat=38&lon=-120&radius=25")
	if code != 200 {
		t.Fatalf("status %d", code)
	}
	if resp.Query.Lat != 38 || resp.Query.RadiusMiles != 25 {
		t.Fatalf("query echo = %+v", resp.Query)
	}
	if len(resp.Layers) != 2 {
		t.Fatalf("got %d layers", len(resp.Layers))
	}
	if resp.Layers[0].Layer != "counties" || resp.Layers[1].Layer != "stations" {
		t.Fatalf("layer order = %s, %s", resp.Layers[0].Layer, resp.Layers[1].Layer)
	}
	if len(resp.Layers[0].Results) != 1 || !resp.Layers[0].Results[0].IsContaining {
		t.Fatalf("counties = %+v", resp.Layers[0])
	}
	if got := resp.Layers[0].Results[0].Attributes["NAME"]; got != "Alpine" {
		t.Fatalf("attributes not carried: %v", got)
	}
	if len(resp.Layers[1].Results) != 1 || resp.Layers[1].Results[0].IsContaining {
		t.Fatalf("stations = %+v", resp.Layers[1])
	}
}

func TestHandleEnrich_LayerSubsetAndUnknown(t *testing.T) {
	src := &fakeSource{feats: map[string][]model.RawFeature{"counties": {county(7)}}}
	h := New(nil, testRegistry(t), engine.New(nil, src), nil, 0, 4)

	code, resp := doEnrich(t, h, "/enrich?lat=38&lon=-120&layers=counties")
	if code != 200 || len(resp.Layers) != 1 || resp.Layers[0].Layer != "counties" {
		t.Fatalf("code=%d layers=%+v", code, resp.Layers)
	}

	code, _ = doEnrich(t, h, "/enrich?lat=38&lon=-120&layers=nope")
	if code != 400 {
		t.Fatalf("unknown layer: status %d, want 400", code)
	}
}

func TestHandleEnrich_CacheHitSkipsLiveQuery(t *testing.T) {
	src := &fakeSource{feats: map[string][]model.RawFeature{
		"stations": {station(12, 38.1, -120.1)},
	}}
	store := &memStore{}
	h := New(nil, testRegistry(t), engine.New(nil, src), store, 0, 4)

	code, first := doEnrich(t, h, "/enrich?lat=38&lon=-120&radius=10&layers=stations")
	if code != 200 || first.Layers[0].Cached {
		t.Fatalf("first request must be live: code=%d %+v", code, first.Layers)
	}
	callsAfterFirst := src.calls

	code, second := doEnrich(t, h, "/enrich?lat=38&lon=-120&radius=10&layers=stations")
	if code != 200 {
		t.Fatalf("status %d", code)
	}
	if !second.Layers[0].Cached {
		t.Fatalf("second request must be served from cache: %+v", second.Layers[0])
	}
	if src.calls != callsAfterFirst {
		t.Fatalf("cache hit must not fetch; calls %d -> %d", callsAfterFirst, src.calls)
	}
	if len(second.Layers[0].Results) != len(first.Layers[0].Results) {
		t.Fatalf("cached results differ: %+v vs %+v", second.Layers[0], first.Layers[0])
	}
}

func TestHandleEnrich_RequestedRadiusSharesCacheEntryAfterCap(t *testing.T) {
	src := &fakeSource{feats: map[string][]model.RawFeature{
		"stations": {station(12, 38.1, -120.1)},
	}}
	store := &memStore{}
	h := New(nil, testRegistry(t), engine.New(nil, src), store, 0, 4)

	// cap for stations is 25; both requests collapse to the same entry
	doEnrich(t, h, "/enrich?lat=38&lon=-120&radius=100&layers=stations")
	_, resp := doEnrich(t, h, "/enrich?lat=38&lon=-120&radius=200&layers=stations")
	if !resp.Layers[0].Cached {
		t.Fatalf("capped radii must share the cache entry: %+v", resp.Layers[0])
	}
}

func TestReadiness(t *testing.T) {
	h := New(nil, testRegistry(t), engine.New(nil, &fakeSource{}), nil, 0, 4)
	ready, names := h.Readiness()
	if !ready || len(names) != 2 {
		t.Fatalf("ready=%v names=%v", ready, names)
	}
}
