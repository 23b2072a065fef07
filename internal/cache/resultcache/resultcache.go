// Package resultcache stores evaluated layer results keyed by the H3
// cell the query point falls in. Lookups are best effort: any cache
// failure degrades to a live upstream query, never to a request error.
//
// A hit returns the result set computed for the first point seen in
// the cell, so cached distances are accurate to the cell size (about
// 0.7 km2 at the default resolution), not to the exact query point.
package resultcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/cache"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/cache/cellkey"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/cache/keys"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
)

type Store struct {
	cache      cache.Interface
	res        int
	defaultTTL time.Duration
	ttlByLayer map[string]time.Duration
	logger     *slog.Logger
}

func New(c cache.Interface, res int, defaultTTL time.Duration, ttlByLayer map[string]time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if res < 0 || res > 15 {
		res = cellkey.DefaultResolution
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Store{
		cache:      c,
		res:        res,
		defaultTTL: defaultTTL,
		ttlByLayer: ttlByLayer,
		logger:     logger,
	}
}

func (s *Store) ttlFor(layer string) time.Duration {
	if d, ok := s.ttlByLayer[layer]; ok && d > 0 {
		return d
	}
	return s.defaultTTL
}

// Get returns the cached result set for (layer, cell-of-point,
// radius). A cached empty set is a hit: "nothing nearby" is a valid
// answer worth remembering.
func (s *Store) Get(ctx context.Context, layer string, p model.QueryPoint, radiusMiles float64) (model.ResultSet, bool) {
	cell, err := cellkey.ForPoint(p, s.res)
	if err != nil {
		s.logger.Debug("cache get skipped", "layer", layer, "err", err)
		return nil, false
	}
	key := keys.Result(layer, s.res, cell, radiusMiles)

	vals, err := s.cache.MGet(ctx, []string{key})
	if err != nil {
		s.logger.Debug("cache get failed, falling through", "layer", layer, "err", err)
		return nil, false
	}
	raw, ok := vals[key]
	if !ok {
		return nil, false
	}

	var rs model.ResultSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		s.logger.Warn("cache entry undecodable, evicting", "layer", layer, "key", key, "err", err)
		_ = s.cache.Del(ctx, key)
		return nil, false
	}
	return rs, true
}

// Put stores a result set and records its key in the per-cell index
// so invalidation can find it. Index updates are read-modify-write;
// a lost entry under concurrent writers only delays eviction until
// the TTL fires.
func (s *Store) Put(ctx context.Context, layer string, p model.QueryPoint, radiusMiles float64, rs model.ResultSet) {
	cell, err := cellkey.ForPoint(p, s.res)
	if err != nil {
		s.logger.Debug("cache put skipped", "layer", layer, "err", err)
		return
	}
	key := keys.Result(layer, s.res, cell, radiusMiles)

	payload, err := json.Marshal(rs)
	if err != nil {
		s.logger.Warn("cache put encode failed", "layer", layer, "err", err)
		return
	}

	ttl := s.ttlFor(layer)
	if err := s.cache.Set(ctx, key, payload, ttl); err != nil {
		s.logger.Debug("cache put failed", "layer", layer, "err", err)
		return
	}
	s.indexKey(ctx, layer, cell, key, ttl)
}

func (s *Store) indexKey(ctx context.Context, layer, cell, resultKey string, ttl time.Duration) {
	idxKey := keys.CellIndex(layer, s.res, cell)

	var listed []string
	if vals, err := s.cache.MGet(ctx, []string{idxKey}); err == nil {
		if raw, ok := vals[idxKey]; ok {
			if err := json.Unmarshal(raw, &listed); err != nil {
				listed = nil
			}
		}
	}
	for _, k := range listed {
		if k == resultKey {
			return
		}
	}
	listed = append(listed, resultKey)

	payload, err := json.Marshal(listed)
	if err != nil {
		return
	}
	// the index must outlive the entries it lists
	if err := s.cache.Set(ctx, idxKey, payload, 2*ttl); err != nil {
		s.logger.Debug("cell index update failed", "layer", layer, "cell", cell, "err", err)
	}
}

// InvalidateCells evicts every cached result stored under the given
// cells for one layer, returning the number of keys deleted.
func (s *Store) InvalidateCells(ctx context.Context, layer string, cells []string) (int, error) {
	if len(cells) == 0 {
		return 0, nil
	}

	idxKeys := make([]string, 0, len(cells))
	for _, cell := range cells {
		idxKeys = append(idxKeys, keys.CellIndex(layer, s.res, cell))
	}

	vals, err := s.cache.MGet(ctx, idxKeys)
	if err != nil {
		return 0, err
	}

	delKeys := make([]string, 0, len(idxKeys))
	for _, idxKey := range idxKeys {
		raw, ok := vals[idxKey]
		if !ok {
			continue
		}
		var listed []string
		if err := json.Unmarshal(raw, &listed); err != nil {
			delKeys = append(delKeys, idxKey)
			continue
		}
		delKeys = append(delKeys, listed...)
		delKeys = append(delKeys, idxKey)
	}
	if len(delKeys) == 0 {
		return 0, nil
	}

	if err := s.cache.Del(ctx, delKeys...); err != nil {
		return 0, err
	}
	return len(delKeys), nil
}

// Resolution is the cell resolution the store quantizes with.
func (s *Store) Resolution() int { return s.res }
