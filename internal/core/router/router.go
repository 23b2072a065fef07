package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/observability"
)

// QueryHandler serves a validated enrichment request.
type QueryHandler interface {
	HandleEnrich(ctx context.Context, w http.ResponseWriter, r *http.Request, q model.QueryRequest)
}

// MaxRadiusMiles bounds what a caller may ask for before per-layer
// caps apply.
const MaxRadiusMiles = 500

// HandleEnrich validates input query params and calls the handler.
func HandleEnrich(h QueryHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		q, err := ParseQueryRequest(r)
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			observability.ObserveHTTP(r.Method, "/enrich", http.StatusBadRequest, time.Since(start).Seconds())
			return
		}

		h.HandleEnrich(r.Context(), sw, r, q)
		observability.ObserveHTTP(r.Method, "/enrich", sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func ParseQueryRequest(r *http.Request) (model.QueryRequest, error) {
	qs := r.URL.Query()

	lat, err := parseFloat(qs.Get("lat"))
	if err != nil {
		return model.QueryRequest{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := parseFloat(qs.Get("lon"))
	if err != nil {
		return model.QueryRequest{}, fmt.Errorf("lon: %w", err)
	}
	p := model.QueryPoint{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return model.QueryRequest{}, err
	}

	radius := 0.0
	if raw := strings.TrimSpace(qs.Get("radius")); raw != "" {
		radius, err = parseFloat(raw)
		if err != nil {
			return model.QueryRequest{}, fmt.Errorf("radius: %w", err)
		}
		if radius < 0 {
			return model.QueryRequest{}, errors.New("radius must be >= 0")
		}
		if radius > MaxRadiusMiles {
			return model.QueryRequest{}, fmt.Errorf("radius must be <= %d miles", MaxRadiusMiles)
		}
	}

	return model.QueryRequest{
		Point:       p,
		RadiusMiles: radius,
		Layers:      strings.TrimSpace(qs.Get("layers")),
	}, nil
}

func parseFloat(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("missing required parameter")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not a finite number")
	}
	return f, nil
}
