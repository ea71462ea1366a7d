package classifier

import (
	"cmp"
	"slices"
	"sort"
)

// Resolve merges candidates from any number of recognizers into a
// non-overlapping list sorted by start offset.
//
// Candidates are ranked by score (desc), span length (desc), start (asc),
// entity type (asc) and recognizer name (asc), then accepted greedily when
// they do not overlap anything accepted before them. The last two keys make
// the outcome independent of input order.
func Resolve(candidates []Detection) []Detection {
	if len(candidates) == 0 {
		return []Detection{}
	}
	ranked := slices.Clone(candidates)
	slices.SortFunc(ranked, rankDetections)

	accepted := make([]Detection, 0, len(ranked))
	for _, d := range ranked {
		if d.Start >= d.End {
			continue
		}
		// accepted is kept sorted by Start, so only the neighbours of the
		// insertion point can overlap d.
		i := sort.Search(len(accepted), func(i int) bool { return accepted[i].Start >= d.Start })
		if i < len(accepted) && accepted[i].Start < d.End {
			continue
		}
		if i > 0 && accepted[i-1].End > d.Start {
			continue
		}
		accepted = slices.Insert(accepted, i, d)
	}
	return accepted
}

func rankDetections(a, b Detection) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Len(), a.Len()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(a.EntityType, b.EntityType); c != 0 {
		return c
	}
	return cmp.Compare(a.Recognizer, b.Recognizer)
}
