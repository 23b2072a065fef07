// Package engine evaluates spatial context queries: which configured
// features contain a point, which lie within a radius of it, and how
// far away each one is. It consumes raw features from the arcgis
// fetcher and produces ordered, deduplicated result sets.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/arcgis"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/observability"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/layers"
	mylog "github.com/AtoZ-LocIntel/enrichment-engine/internal/logger"
)

// FeatureSource is the fetch capability the coordinator depends on.
type FeatureSource interface {
	FetchAll(ctx context.Context, endpoint, layer string, filter arcgis.Filter) ([]model.RawFeature, error)
}

// Coordinator runs the per-layer query state machine: containment
// pass, proximity pass, merge, finalize. One Coordinator is shared by
// all layers; each query owns its own result set, so layers run
// concurrently with no locking.
type Coordinator struct {
	logger *slog.Logger
	source FeatureSource
}

func New(logger *slog.Logger, source FeatureSource) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{logger: logger, source: source}
}

// LayerResult is one layer's outcome within a multi-layer query.
// Status is "ok" even for partial results; "error" means the layer
// produced nothing useful. Err is informational either way.
type LayerResult struct {
	Layer   string
	Status  string
	Err     error
	Results model.ResultSet
}

// QueryLayer evaluates one layer. It never returns an error: a
// failing pass is logged and the accumulated partial results are
// returned, so one bad upstream cannot abort a multi-layer query.
func (c *Coordinator) QueryLayer(ctx context.Context, layer layers.Layer, p model.QueryPoint, radiusMiles float64) LayerResult {
	start := time.Now()
	ctx = mylog.WithLayer(ctx, layer.Name)
	rs := model.Cap(radiusMiles, layer.RadiusCapMiles)
	endpoint := arcgis.QueryEndpoint(layer.ServiceURL, layer.LayerID)
	idAliases := layer.Aliases["id"]

	asm := newAssembler()
	var firstErr error

	// containment pass: polygon layers only, zero-tolerance point filter
	if layer.Kind() == model.KindPolygon {
		feats, err := c.source.FetchAll(ctx, endpoint, layer.Name, arcgis.Filter{
			Point:     p,
			BatchSize: layer.BatchSize,
		})
		if err != nil {
			firstErr = fmt.Errorf("containment pass: %w", err)
			c.logger.WarnContext(ctx, "containment pass failed, keeping partial results",
				"fetched", len(feats), "err", err)
		}
		for _, f := range feats {
			if !Contains(p, f) {
				continue
			}
			asm.add(model.EvaluatedFeature{
				ID:            FeatureID(f, idAliases),
				Raw:           f,
				DistanceMiles: 0,
				IsContaining:  true,
			})
		}
	}

	// proximity pass: buffered point filter, all geometry kinds
	if rs.CappedMiles > 0 {
		feats, err := c.source.FetchAll(ctx, endpoint, layer.Name, arcgis.Filter{
			Point:       p,
			RadiusMiles: rs.CappedMiles,
			BatchSize:   layer.BatchSize,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("proximity pass: %w", err)
			}
			c.logger.WarnContext(ctx, "proximity pass failed, keeping partial results",
				"fetched", len(feats), "err", err)
		}
		for _, f := range feats {
			id := FeatureID(f, idAliases)
			if asm.hasContaining(id) {
				// containment result is authoritative, keep distance 0
				continue
			}
			d, err := Distance(p, f, false)
			if err != nil {
				observability.IncFeatureDropped("unresolvable_geometry")
				c.logger.WarnContext(ctx, "dropping feature with unresolvable geometry",
					"id", id, "err", err)
				continue
			}
			if d > rs.CappedMiles {
				continue
			}
			asm.add(model.EvaluatedFeature{
				ID:            id,
				Raw:           f,
				DistanceMiles: d,
				IsContaining:  false,
			})
		}
	}

	results := asm.finalize()
	status := "ok"
	if firstErr != nil && len(results) == 0 {
		status = "error"
	}
	observability.ObserveLayerQuery(layer.Name, status, time.Since(start).Seconds())
	c.logger.DebugContext(ctx, "layer query done",
		"results", len(results),
		"radius_mi", rs.CappedMiles,
		"status", status,
		"dur", time.Since(start).String())

	return LayerResult{Layer: layer.Name, Status: status, Err: firstErr, Results: results}
}

// QueryLayers runs one state machine instance per layer across a
// bounded worker pool. Results come back in the order the layers were
// given. A panic inside one layer is contained to that layer's slot.
func (c *Coordinator) QueryLayers(ctx context.Context, ls []layers.Layer, p model.QueryPoint, radiusMiles float64, maxWorkers int) []LayerResult {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	if maxWorkers > len(ls) {
		maxWorkers = len(ls)
	}

	out := make([]LayerResult, len(ls))
	jobs := make(chan int)

	var wg sync.WaitGroup
	wg.Add(maxWorkers)
	for range maxWorkers {
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = c.queryLayerSafe(ctx, ls[i], p, radiusMiles)
			}
		}()
	}

	for i := range ls {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			for i := range out {
				if out[i].Layer == "" {
					out[i] = LayerResult{Layer: ls[i].Name, Status: "error", Err: ctx.Err()}
				}
			}
			return out
		}
	}
	close(jobs)
	wg.Wait()
	return out
}

func (c *Coordinator) queryLayerSafe(ctx context.Context, layer layers.Layer, p model.QueryPoint, radiusMiles float64) (res LayerResult) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("layer query panicked", "layer", layer.Name, "panic", rec)
			res = LayerResult{Layer: layer.Name, Status: "error", Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return c.QueryLayer(ctx, layer, p, radiusMiles)
}
