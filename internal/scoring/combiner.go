package scoring

import "sort"

// CombinedScore is the fused risk value derived from all responding
// sources. Degraded is true whenever at least one expected source did
// not contribute; SurvivingWeight reports how much of the configured
// weight mass actually backed the score.
type CombinedScore struct {
	Score               float64  `json:"score"`
	ContributingSources []string `json:"contributingSources"`
	Degraded            bool     `json:"degraded"`
	SurvivingWeight     float64  `json:"survivingWeight"`
}

// Combine fuses sub-scores into one combined score by weighted average
// over the ok sources, with weights renormalized to sum to one over the
// survivors. Sources absent from the weight map get weight 1, so a nil
// map means a plain mean.
//
// Zero ok sources yields Score 0 with no contributors; whether that is a
// hard failure or a conservative decision belongs to the caller.
func Combine(subs []SubScore, weights map[string]float64, minSurvivingWeight float64) CombinedScore {
	var (
		cs          CombinedScore
		weightedSum float64
		okWeight    float64
		totalWeight float64
	)

	for _, ss := range subs {
		w := 1.0
		if weights != nil {
			if configured, ok := weights[ss.SourceID]; ok {
				w = configured
			}
		}
		if w <= 0 {
			continue
		}
		totalWeight += w

		if !ss.Usable() {
			cs.Degraded = true
			continue
		}
		weightedSum += clamp(ss.Score) * w
		okWeight += w
		cs.ContributingSources = append(cs.ContributingSources, ss.SourceID)
	}

	if okWeight == 0 || totalWeight == 0 {
		cs.Degraded = true
		return cs
	}

	cs.Score = clamp(weightedSum / okWeight)
	cs.SurvivingWeight = okWeight / totalWeight
	if cs.SurvivingWeight < minSurvivingWeight {
		cs.Degraded = true
	}
	sort.Strings(cs.ContributingSources)
	return cs
}

// TopFactors merges the factors of the contributing sub-scores and
// returns the n strongest by absolute impact, for decision reasons.
func TopFactors(subs []SubScore, n int) []Factor {
	var all []Factor
	for _, ss := range subs {
		if ss.Usable() {
			all = append(all, ss.Factors...)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return abs(all[i].Impact) > abs(all[j].Impact)
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
