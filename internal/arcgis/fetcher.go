// Package arcgis speaks the spatial query protocol of ArcGIS-style
// feature services: filtered point queries, offset pagination under
// server transfer limits, and tolerant decoding of the feature
// payloads that come back.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/observability"
)

const (
	// DefaultBatchSize matches the transfer limit most services enforce.
	DefaultBatchSize = 1000
	// DefaultMaxRecords is the runaway-pagination safety ceiling.
	DefaultMaxRecords = 100000
	// DefaultPageDelay spaces out batch requests against rate-limited services.
	DefaultPageDelay = 100 * time.Millisecond
)

type Option func(*Fetcher)

func WithBatchSize(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

func WithMaxRecords(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxRecords = n
		}
	}
}

func WithPageDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.delay = d
		}
	}
}

// Fetcher issues paginated spatial queries against one or more
// feature service endpoints. Batches within one query are inherently
// sequential (each page's transfer-limit flag gates the next);
// distinct queries may run concurrently on a shared Fetcher.
type Fetcher struct {
	logger     *slog.Logger
	client     *http.Client
	batchSize  int
	maxRecords int
	delay      time.Duration
	sleep      func(context.Context, time.Duration) // for tests
}

func New(logger *slog.Logger, client *http.Client, opts ...Option) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		logger:     logger,
		client:     client,
		batchSize:  DefaultBatchSize,
		maxRecords: DefaultMaxRecords,
		delay:      DefaultPageDelay,
		sleep:      sleepCtx,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// FetchAll runs one spatial query to exhaustion: it follows the
// offset pagination until the server has no more features, the last
// batch comes back partial without a transfer-limit flag, or the
// record ceiling is hit. A transport or service error stops the loop;
// whatever was accumulated up to that point is returned alongside the
// error so a partial answer survives a flaky upstream.
func (f *Fetcher) FetchAll(ctx context.Context, endpoint, layer string, filter Filter) ([]model.RawFeature, error) {
	var out []model.RawFeature
	offset := 0
	total := 0
	pageSize := f.pageSize(filter)

	for {
		page, err := f.fetchPage(ctx, endpoint, layer, filter, offset)
		if err != nil {
			return out, err
		}
		if page.Error != nil {
			return out, fmt.Errorf("layer %s offset %d: %w", layer, offset, page.Error)
		}

		out = append(out, f.decodeFeatures(layer, page)...)

		batch := len(page.Features)
		total += batch
		if batch == 0 {
			return out, nil
		}
		if batch < pageSize && !page.ExceededTransferLimit {
			return out, nil
		}
		if total >= f.maxRecords {
			observability.IncFetchTruncated(layer)
			f.logger.Warn("fetch stopped at record ceiling",
				"layer", layer, "records", total, "ceiling", f.maxRecords)
			return out, nil
		}

		offset += batch
		f.sleep(ctx, f.delay)
		if ctx.Err() != nil {
			return out, fmt.Errorf("layer %s: %w", layer, ctx.Err())
		}
	}
}

// pageSize resolves the page size for one query: a positive
// Filter.BatchSize wins over the fetcher-wide default.
func (f *Fetcher) pageSize(filter Filter) int {
	if filter.BatchSize > 0 {
		return filter.BatchSize
	}
	return f.batchSize
}

func (f *Fetcher) fetchPage(ctx context.Context, endpoint, layer string, filter Filter, offset int) (*featureSet, error) {
	params := BuildQueryParams(filter, offset, f.pageSize(filter))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	observability.IncFetchPage(layer)
	if err != nil {
		return nil, fmt.Errorf("layer %s offset %d: %w", layer, offset, err)
	}
	defer func() { _ = resp.Body.Close() }()

	observability.ObserveUpstreamLatency("feature_service", time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("layer %s offset %d: upstream status %d: %s", layer, offset, resp.StatusCode, string(b))
	}

	var fs featureSet
	if err := json.NewDecoder(resp.Body).Decode(&fs); err != nil {
		return nil, fmt.Errorf("layer %s offset %d: decode response: %w", layer, offset, err)
	}
	return &fs, nil
}

// decodeFeatures converts one page's features into the model shape,
// normalizing coordinates to WGS84. A feature whose geometry cannot be
// parsed is dropped with a warning; it never aborts the batch.
func (f *Fetcher) decodeFeatures(layer string, page *featureSet) []model.RawFeature {
	out := make([]model.RawFeature, 0, len(page.Features))
	for i, fj := range page.Features {
		g, err := parseGeometry(fj.Geometry)
		if err != nil {
			observability.IncFeatureDropped("malformed_geometry")
			f.logger.Warn("dropping feature with unusable geometry",
				"layer", layer, "index", i, "err", err)
			continue
		}
		out = append(out, model.RawFeature{
			Attributes: fj.Attributes,
			Geometry:   normalizeFor(g, page.SpatialReference),
		})
	}
	return out
}
