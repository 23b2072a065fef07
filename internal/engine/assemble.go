package engine

import (
	"sort"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
)

// assembler merges the containment and proximity passes into one
// id-unique result set. Containment status is authoritative: a
// proximity duplicate of a containing feature is discarded, and a
// containing entry replaces an earlier non-containing one.
type assembler struct {
	index map[string]int
	out   []model.EvaluatedFeature
}

func newAssembler() *assembler {
	return &assembler{index: map[string]int{}}
}

func (a *assembler) add(f model.EvaluatedFeature) {
	if i, ok := a.index[f.ID]; ok {
		if f.IsContaining && !a.out[i].IsContaining {
			a.out[i] = f
		}
		return
	}
	a.index[f.ID] = len(a.out)
	a.out = append(a.out, f)
}

// has reports whether id is already present as a containing feature,
// letting the proximity pass skip re-evaluating it.
func (a *assembler) hasContaining(id string) bool {
	i, ok := a.index[id]
	return ok && a.out[i].IsContaining
}

// finalize applies the result ordering: containing features first,
// then ascending distance. Equal distances keep encounter order.
func (a *assembler) finalize() model.ResultSet {
	sort.SliceStable(a.out, func(i, j int) bool {
		x, y := a.out[i], a.out[j]
		if x.IsContaining != y.IsContaining {
			return x.IsContaining
		}
		return x.DistanceMiles < y.DistanceMiles
	})
	return model.ResultSet(a.out)
}
