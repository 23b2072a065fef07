// Package enrich implements the enrichment endpoint: it resolves the
// requested layers, serves what the result cache already knows, runs
// live queries for the rest, and renders the combined answer.
package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/engine"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/layers"
)

// LayerStore is the optional result cache in front of live queries.
type LayerStore interface {
	Get(ctx context.Context, layer string, p model.QueryPoint, radiusMiles float64) (model.ResultSet, bool)
	Put(ctx context.Context, layer string, p model.QueryPoint, radiusMiles float64, rs model.ResultSet)
}

type Handler struct {
	logger     *slog.Logger
	reg        *layers.Registry
	coord      *engine.Coordinator
	cache      LayerStore
	opTimeout  time.Duration
	maxWorkers int
}

func New(logger *slog.Logger, reg *layers.Registry, coord *engine.Coordinator, cache LayerStore, opTimeout time.Duration, maxWorkers int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opTimeout <= 0 {
		opTimeout = 250 * time.Millisecond
	}
	return &Handler{
		logger:     logger,
		reg:        reg,
		coord:      coord,
		cache:      cache,
		opTimeout:  opTimeout,
		maxWorkers: maxWorkers,
	}
}

// Readiness reports the configured layers once the registry loaded.
func (h *Handler) Readiness() (bool, []string) {
	if h.reg == nil {
		return false, nil
	}
	all := h.reg.All()
	names := make([]string, 0, len(all))
	for _, l := range all {
		names = append(names, l.Name)
	}
	return len(names) > 0, names
}

type featureResponse struct {
	ID            string         `json:"id"`
	DistanceMiles float64        `json:"distance_miles"`
	IsContaining  bool           `json:"is_containing"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

type layerResponse struct {
	Layer   string            `json:"layer"`
	Status  string            `json:"status"`
	Error   string            `json:"error,omitempty"`
	Cached  bool              `json:"cached,omitempty"`
	Results []featureResponse `json:"results"`
}

type enrichResponse struct {
	Query struct {
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
		RadiusMiles float64 `json:"radius_miles"`
	} `json:"query"`
	Layers []layerResponse `json:"layers"`
}

func (h *Handler) HandleEnrich(ctx context.Context, w http.ResponseWriter, _ *http.Request, q model.QueryRequest) {
	selected, err := h.reg.Select(q.Layers)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := make([]layerResponse, len(selected))

	// cache pass: anything already known skips the live query
	var live []layers.Layer
	liveIdx := make([]int, 0, len(selected))
	for i, l := range selected {
		if h.cache != nil {
			capped := model.Cap(q.RadiusMiles, l.RadiusCapMiles).CappedMiles
			cctx, cancel := context.WithTimeout(ctx, h.opTimeout)
			rs, ok := h.cache.Get(cctx, l.Name, q.Point, capped)
			cancel()
			if ok {
				out[i] = renderLayer(l.Name, engine.LayerResult{Layer: l.Name, Status: "ok", Results: rs})
				out[i].Cached = true
				continue
			}
		}
		live = append(live, l)
		liveIdx = append(liveIdx, i)
	}

	if len(live) > 0 {
		results := h.coord.QueryLayers(ctx, live, q.Point, q.RadiusMiles, h.maxWorkers)
		for j, res := range results {
			out[liveIdx[j]] = renderLayer(live[j].Name, res)
			if h.cache != nil && res.Status == "ok" && res.Err == nil {
				capped := model.Cap(q.RadiusMiles, live[j].RadiusCapMiles).CappedMiles
				cctx, cancel := context.WithTimeout(ctx, h.opTimeout)
				h.cache.Put(cctx, live[j].Name, q.Point, capped, res.Results)
				cancel()
			}
		}
	}

	var resp enrichResponse
	resp.Query.Lat = q.Point.Lat
	resp.Query.Lon = q.Point.Lon
	resp.Query.RadiusMiles = q.RadiusMiles
	resp.Layers = out

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("response encode failed", "err", err)
	}
}

func renderLayer(name string, res engine.LayerResult) layerResponse {
	lr := layerResponse{
		Layer:   name,
		Status:  res.Status,
		Results: make([]featureResponse, 0, len(res.Results)),
	}
	if res.Err != nil {
		lr.Error = res.Err.Error()
	}
	for _, f := range res.Results {
		lr.Results = append(lr.Results, featureResponse{
			ID:            f.ID,
			DistanceMiles: f.DistanceMiles,
			IsContaining:  f.IsContaining,
			Attributes:    f.Raw.Attributes,
		})
	}
	return lr
}
