package retrieve

import (
	"sort"

	"github.com/arborlabs/arbor/backend/pkg/store"
)

// DefaultRRFK is the standard reciprocal rank fusion damping constant.
const DefaultRRFK = 60

// Result is a chunk surviving retrieval, carrying both the fused rank
// score and the best raw score any single ranking gave it.
type Result struct {
	store.ScoredChunk
	RRFScore      float64
	GraphExpanded bool
}

// FuseRankedLists merges ranked result lists with reciprocal rank fusion.
// A chunk appearing at zero-based rank r in a list contributes
// 1/(k+r+1) to its fused score, so agreement across lists beats a single
// high placement. Ties break on the best raw score, then chunk index,
// then id, which keeps the ordering stable across runs.
func FuseRankedLists(lists [][]store.ScoredChunk, k int) []Result {
	if k <= 0 {
		k = DefaultRRFK
	}

	byID := make(map[string]*Result)
	order := make([]string, 0)
	for _, list := range lists {
		for rank, sc := range list {
			res, ok := byID[sc.ID]
			if !ok {
				res = &Result{ScoredChunk: sc}
				byID[sc.ID] = res
				order = append(order, sc.ID)
			}
			res.RRFScore += 1 / float64(k+rank+1)
			if sc.Score > res.Score {
				res.Score = sc.Score
			}
		}
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].ID < out[j].ID
	})
	return out
}
