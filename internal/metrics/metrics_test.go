package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProvider_RegistersStandardCollectors_AndIdentity(t *testing.T) {
	p := Init(Config{
		Build:        BuildInfo{Version: "test", Revision: "r", Branch: "b", BuildDate: "now"},
		LayerCount:   3,
		CacheEnabled: true,
	})

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "smoke"})
	p.Register(g)
	g.Set(42)

	if n := testutil.CollectAndCount(g); n == 0 {
		t.Fatalf("expected at least 1 sample from test_gauge, got %d", n)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()

	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go_goroutines in payload; got:\n%s", body)
	}
	if !strings.Contains(body, `enrichment_build_info{`) {
		t.Fatalf("expected enrichment_build_info in payload; got:\n%s", body)
	}
	if !strings.Contains(body, "enrichment_layers_configured 3") {
		t.Fatalf("expected enrichment_layers_configured 3 in payload; got:\n%s", body)
	}
	if !strings.Contains(body, "enrichment_cache_enabled 1") {
		t.Fatalf("expected enrichment_cache_enabled 1 in payload; got:\n%s", body)
	}
}

func TestProvider_CacheDisabledReportsZero(t *testing.T) {
	p := Init(Config{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)

	if !strings.Contains(rr.Body.String(), "enrichment_cache_enabled 0") {
		t.Fatalf("expected enrichment_cache_enabled 0; got:\n%s", rr.Body.String())
	}
}
