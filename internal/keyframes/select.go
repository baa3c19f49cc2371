package keyframes

import "sort"

// selectCandidates applies the two invariants every strategy shares: no two
// selected frames closer than minInterval, and at most maxFrames results
// keeping the highest-scored candidates when the cap binds. The returned
// sequence is ordered by timestamp ascending.
func selectCandidates(candidates []candidate, minInterval float64, maxFrames int) []candidate {
	if len(candidates) == 0 || maxFrames <= 0 {
		return nil
	}

	// Highest score first; earlier timestamp wins ties so uniform strategies
	// (all scores equal) stay deterministic.
	ranked := append([]candidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Timestamp < ranked[j].Timestamp
	})

	var selected []candidate
	for _, cand := range ranked {
		if len(selected) == maxFrames {
			break
		}
		tooClose := false
		for _, kept := range selected {
			if abs(kept.Timestamp-cand.Timestamp) < minInterval {
				tooClose = true
				break
			}
		}
		if !tooClose {
			selected = append(selected, cand)
		}
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Timestamp < selected[j].Timestamp
	})
	return selected
}

// localMaxima keeps candidates whose score is not exceeded by either
// neighbor in timestamp order.
func localMaxima(candidates []candidate) []candidate {
	if len(candidates) <= 2 {
		return candidates
	}
	sorted := append([]candidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	var peaks []candidate
	for i, cand := range sorted {
		if i > 0 && sorted[i-1].Score > cand.Score {
			continue
		}
		if i < len(sorted)-1 && sorted[i+1].Score > cand.Score {
			continue
		}
		peaks = append(peaks, cand)
	}
	return peaks
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
