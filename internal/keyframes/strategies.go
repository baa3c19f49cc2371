package keyframes

import (
	"strings"
	"unicode"

	"clipnote/internal/config"
	"clipnote/internal/transcript"
)

// uniformCandidates samples at a fixed interval derived from the target
// count, skipping the very start and end of the video.
func uniformCandidates(duration float64, target int) []candidate {
	if duration <= 0 || target <= 0 {
		return nil
	}
	interval := duration / float64(target+1)
	out := make([]candidate, 0, target)
	for i := 1; i <= target; i++ {
		out = append(out, candidate{Timestamp: interval * float64(i)})
	}
	return out
}

// keywordCandidates emits one candidate per transcript segment containing a
// configured keyword. The score is the number of distinct keywords matched
// so denser matches survive the cap.
func keywordCandidates(tr *transcript.Transcript, keywords []string) []candidate {
	if tr.Empty() || len(keywords) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}
	if len(normalized) == 0 {
		return nil
	}

	var out []candidate
	for _, seg := range tr.Segments {
		text := strings.ToLower(seg.Text)
		matches := 0
		for _, kw := range normalized {
			if strings.Contains(text, kw) {
				matches++
			}
		}
		if matches > 0 {
			mid := seg.Start + seg.Duration()/2
			out = append(out, candidate{Timestamp: mid, Score: float64(matches)})
		}
	}
	return out
}

// semanticCandidates scores fixed time windows by lexical novelty against
// the preceding window and keeps the local maxima.
func semanticCandidates(tr *transcript.Transcript, windowSeconds float64) []candidate {
	if tr.Empty() || windowSeconds <= 0 {
		return nil
	}
	duration := tr.Duration()
	if duration <= 0 {
		return nil
	}

	var windows []candidate
	previous := map[string]struct{}{}
	for start := 0.0; start < duration; start += windowSeconds {
		text := tr.Window(start+windowSeconds/2, windowSeconds/2)
		tokens := tokenize(text)
		if len(tokens) == 0 {
			previous = map[string]struct{}{}
			continue
		}
		novel := 0
		current := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			current[token] = struct{}{}
			if _, seen := previous[token]; !seen {
				novel++
			}
		}
		windows = append(windows, candidate{
			Timestamp: start + windowSeconds/2,
			Score:     float64(novel) / float64(len(tokens)),
		})
		previous = current
	}
	return localMaxima(windows)
}

// sampleTimestamps returns evenly spaced capture positions used by the
// visual and hybrid strategies.
func sampleTimestamps(duration, interval float64) []float64 {
	if duration <= 0 || interval <= 0 {
		return nil
	}
	var out []float64
	for ts := interval; ts < duration; ts += interval {
		out = append(out, ts)
	}
	return out
}

// mergeHybrid combines semantic and visual candidate scores with a weighted
// sum. Scores are normalized to [0,1] per source, and timestamps are
// bucketed onto the sampling grid so the two sources line up.
func mergeHybrid(semantic, visual []candidate, interval float64, cfg config.Keyframes) []candidate {
	semWeight := cfg.SemanticScoreWeight
	visWeight := cfg.VisualScoreWeight
	if semWeight <= 0 && visWeight <= 0 {
		semWeight, visWeight = 0.5, 0.5
	}
	if interval <= 0 {
		interval = 1
	}

	type bucket struct {
		timestamp float64
		score     float64
	}
	merged := map[int]*bucket{}
	add := func(cands []candidate, weight float64) {
		for _, cand := range cands {
			slot := int(cand.Timestamp / interval)
			b, ok := merged[slot]
			if !ok {
				b = &bucket{timestamp: cand.Timestamp}
				merged[slot] = b
			}
			b.score += cand.Score * weight
		}
	}
	add(normalizeScores(semantic), semWeight)
	add(normalizeScores(visual), visWeight)

	out := make([]candidate, 0, len(merged))
	for _, b := range merged {
		out = append(out, candidate{Timestamp: b.timestamp, Score: b.score})
	}
	return localMaxima(out)
}

func normalizeScores(candidates []candidate) []candidate {
	var max float64
	for _, cand := range candidates {
		if cand.Score > max {
			max = cand.Score
		}
	}
	if max == 0 {
		return candidates
	}
	out := make([]candidate, len(candidates))
	for i, cand := range candidates {
		cand.Score /= max
		out[i] = cand
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
