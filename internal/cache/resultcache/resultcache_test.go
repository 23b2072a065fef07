package resultcache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/cache/cellkey"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/cache/redisstore"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	return New(rc, 8, time.Minute, nil, nil), mr
}

func sampleResults() model.ResultSet {
	return model.ResultSet{
		{
			ID:            "7",
			Raw:           model.RawFeature{Attributes: map[string]any{"NAME": "Alpine"}},
			DistanceMiles: 0,
			IsContaining:  true,
		},
		{
			ID:            "8",
			Raw:           model.RawFeature{Attributes: map[string]any{"NAME": "Mono"}},
			DistanceMiles: 4.2,
		},
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := model.QueryPoint{Lat: 38.5, Lon: -120.2}

	if _, ok := s.Get(ctx, "counties", p, 25); ok {
		t.Fatalf("expected miss before Put")
	}

	s.Put(ctx, "counties", p, 25, sampleResults())

	got, ok := s.Get(ctx, "counties", p, 25)
	if !ok {
		t.Fatalf("expected hit after Put")
	}
	if len(got) != 2 || got[0].ID != "7" || !got[0].IsContaining || got[1].DistanceMiles != 4.2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestGet_RadiusAndLayerAreIdentity(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := model.QueryPoint{Lat: 38.5, Lon: -120.2}

	s.Put(ctx, "counties", p, 25, sampleResults())

	if _, ok := s.Get(ctx, "counties", p, 5); ok {
		t.Fatalf("different radius must miss")
	}
	if _, ok := s.Get(ctx, "parcels", p, 25); ok {
		t.Fatalf("different layer must miss")
	}
}

func TestGet_NearbyPointsShareCell(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := model.QueryPoint{Lat: 38.5, Lon: -120.2}
	// a few meters away, same res-8 cell
	q := model.QueryPoint{Lat: 38.50001, Lon: -120.20001}

	cp, _ := cellkey.ForPoint(p, 8)
	cq, _ := cellkey.ForPoint(q, 8)
	if cp != cq {
		t.Skipf("points landed in different cells (%s vs %s)", cp, cq)
	}

	s.Put(ctx, "counties", p, 25, sampleResults())
	if _, ok := s.Get(ctx, "counties", q, 25); !ok {
		t.Fatalf("co-located point must hit the same entry")
	}
}

func TestPut_EmptyResultSetIsAHit(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := model.QueryPoint{Lat: 38.5, Lon: -120.2}

	s.Put(ctx, "counties", p, 25, model.ResultSet{})

	got, ok := s.Get(ctx, "counties", p, 25)
	if !ok {
		t.Fatalf("cached empty set must be a hit")
	}
	if len(got) != 0 {
		t.Fatalf("got %+v, want empty", got)
	}
}

func TestInvalidateCells_EvictsEveryRadius(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := model.QueryPoint{Lat: 38.5, Lon: -120.2}

	s.Put(ctx, "counties", p, 5, sampleResults())
	s.Put(ctx, "counties", p, 25, sampleResults())

	cell, err := cellkey.ForPoint(p, 8)
	if err != nil {
		t.Fatalf("cell: %v", err)
	}

	n, err := s.InvalidateCells(ctx, "counties", []string{cell})
	if err != nil {
		t.Fatalf("InvalidateCells: %v", err)
	}
	// two result keys plus the index key
	if n != 3 {
		t.Fatalf("deleted %d keys, want 3", n)
	}

	if _, ok := s.Get(ctx, "counties", p, 5); ok {
		t.Fatalf("5 mi entry must be gone")
	}
	if _, ok := s.Get(ctx, "counties", p, 25); ok {
		t.Fatalf("25 mi entry must be gone")
	}
}

func TestInvalidateCells_UnknownCellIsNoop(t *testing.T) {
	s, _ := newStore(t)
	n, err := s.InvalidateCells(context.Background(), "counties", []string{"8828308281fffff"})
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v, want 0 nil", n, err)
	}
}

func TestGet_UndecodableEntryEvictsAndMisses(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	p := model.QueryPoint{Lat: 38.5, Lon: -120.2}

	s.Put(ctx, "counties", p, 25, sampleResults())

	// corrupt every key in place
	for _, k := range mr.Keys() {
		if err := mr.Set(k, "{not json"); err != nil {
			t.Fatalf("corrupt %s: %v", k, err)
		}
	}

	if _, ok := s.Get(ctx, "counties", p, 25); ok {
		t.Fatalf("corrupt entry must miss")
	}
	if _, ok := s.Get(ctx, "counties", p, 25); ok {
		t.Fatalf("corrupt entry must stay evicted")
	}
}
