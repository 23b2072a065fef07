package arcgis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
)

func newTestFetcher(t *testing.T, batch int) *Fetcher {
	t.Helper()
	f := New(nil, &http.Client{Timeout: 5 * time.Second}, WithBatchSize(batch), WithPageDelay(0))
	f.sleep = func(context.Context, time.Duration) {}
	return f
}

func pointFeature(id int) string {
	return fmt.Sprintf(`{"attributes":{"OBJECTID":%d},"geometry":{"x":-120.0,"y":38.0}}`, id)
}

func TestFetchAll_PaginatesUntilPartialBatch(t *testing.T) {
	const batch = 2
	var offsets []int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		off, _ := strconv.Atoi(r.URL.Query().Get("resultOffset"))
		offsets = append(offsets, off)

		// three full pages with the transfer-limit flag, then a partial page
		if len(offsets) <= 3 {
			fmt.Fprintf(w, `{"features":[%s,%s],"exceededTransferLimit":true}`,
				pointFeature(off), pointFeature(off+1))
			return
		}
		fmt.Fprintf(w, `{"features":[%s]}`, pointFeature(off))
	}))
	defer srv.Close()

	f := newTestFetcher(t, batch)
	got, err := f.FetchAll(context.Background(), srv.URL, "test:layer", Filter{
		Point: model.QueryPoint{Lat: 38, Lon: -120},
	})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("features = %d, want 7", len(got))
	}
	wantOffsets := []int{0, 2, 4, 6}
	if len(offsets) != len(wantOffsets) {
		t.Fatalf("requests = %d, want %d", len(offsets), len(wantOffsets))
	}
	for i, w := range wantOffsets {
		if offsets[i] != w {
			t.Fatalf("request %d offset = %d, want %d", i, offsets[i], w)
		}
	}
}

func TestFetchAll_FilterBatchSizeOverridesDefault(t *testing.T) {
	var counts []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("resultRecordCount"))
		counts = append(counts, n)
		off, _ := strconv.Atoi(r.URL.Query().Get("resultOffset"))

		if len(counts) == 1 {
			fmt.Fprintf(w, `{"features":[%s,%s],"exceededTransferLimit":true}`,
				pointFeature(off), pointFeature(off+1))
			return
		}
		fmt.Fprintf(w, `{"features":[%s]}`, pointFeature(off))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 100)
	got, err := f.FetchAll(context.Background(), srv.URL, "test:layer", Filter{
		Point:     model.QueryPoint{Lat: 38, Lon: -120},
		BatchSize: 2,
	})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("features = %d, want 3", len(got))
	}
	// every page must request the per-query size, not the default
	if len(counts) != 2 || counts[0] != 2 || counts[1] != 2 {
		t.Fatalf("resultRecordCount per page = %v, want [2 2]", counts)
	}
}

func TestFetchAll_ServiceErrorReturnsAccumulated(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprintf(w, `{"features":[%s,%s],"exceededTransferLimit":true}`,
				pointFeature(1), pointFeature(2))
			return
		}
		fmt.Fprint(w, `{"error":{"code":500,"message":"query failed"}}`)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 2)
	got, err := f.FetchAll(context.Background(), srv.URL, "test:layer", Filter{
		Point: model.QueryPoint{Lat: 38, Lon: -120},
	})
	if err == nil || !strings.Contains(err.Error(), "query failed") {
		t.Fatalf("err = %v, want service error", err)
	}
	if len(got) != 2 {
		t.Fatalf("accumulated features = %d, want 2 (page one kept)", len(got))
	}
}

func TestFetchAll_ErrorOnFirstPageYieldsEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error":{"code":400,"message":"bad geometry"}}`)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 100)
	got, err := f.FetchAll(context.Background(), srv.URL, "test:layer", Filter{
		Point: model.QueryPoint{Lat: 38, Lon: -120},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(got) != 0 {
		t.Fatalf("features = %d, want 0", len(got))
	}
}

func TestFetchAll_StopsAtRecordCeiling(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		off, _ := strconv.Atoi(r.URL.Query().Get("resultOffset"))
		fmt.Fprintf(w, `{"features":[%s,%s],"exceededTransferLimit":true}`,
			pointFeature(off), pointFeature(off+1))
	}))
	defer srv.Close()

	f := New(nil, &http.Client{Timeout: 5 * time.Second},
		WithBatchSize(2), WithMaxRecords(6), WithPageDelay(0))
	f.sleep = func(context.Context, time.Duration) {}

	got, err := f.FetchAll(context.Background(), srv.URL, "test:layer", Filter{
		Point: model.QueryPoint{Lat: 38, Lon: -120},
	})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if requests != 3 {
		t.Fatalf("requests = %d, want 3", requests)
	}
	if len(got) != 6 {
		t.Fatalf("features = %d, want 6", len(got))
	}
}

func TestFetchAll_SkipsMalformedGeometry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"features":[
			%s,
			{"attributes":{"OBJECTID":9},"geometry":null},
			{"attributes":{"OBJECTID":10},"geometry":{"rings":[[[1]]]}}
		]}`, pointFeature(1))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 100)
	got, err := f.FetchAll(context.Background(), srv.URL, "test:layer", Filter{
		Point: model.QueryPoint{Lat: 38, Lon: -120},
	})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("features = %d, want 1 (malformed dropped)", len(got))
	}
	if got[0].Geometry == nil || got[0].Geometry.Kind != model.KindPoint {
		t.Fatalf("surviving feature geometry = %+v", got[0].Geometry)
	}
}

func TestFetchAll_ReprojectsDeclaredWebMercator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"spatialReference":{"wkid":102100,"latestWkid":3857},
			"features":[{"attributes":{"OBJECTID":1},"geometry":{"x":-13358338.893,"y":4579425.813}}]
		}`)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 100)
	got, err := f.FetchAll(context.Background(), srv.URL, "test:layer", Filter{
		Point: model.QueryPoint{Lat: 38, Lon: -120},
	})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("features = %d, want 1", len(got))
	}
	p := got[0].Geometry.Point
	if p.X < -120.001 || p.X > -119.999 || p.Y < 37.999 || p.Y > 38.001 {
		t.Fatalf("reprojected point = %+v, want ~(-120,38)", p)
	}
}
