package scoring

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/Rivega42/FRADECT/internal/features"
	"github.com/Rivega42/FRADECT/internal/logging"
)

// Predictor is one member of the model ensemble. It maps a feature vector
// to a fraud probability in [0, 1]. Predictors are expected to be fast and
// local; slow external signals belong behind an EnrichmentClient instead.
type Predictor interface {
	Name() string
	Predict(ctx context.Context, fv *features.Vector) (float64, error)
}

// WeightedPredictor pairs an ensemble member with its nominal weight.
type WeightedPredictor struct {
	Predictor Predictor
	Weight    float64
}

// ModelScorer runs a weighted predictor ensemble as one scoring source.
// Members that error are dropped and the remaining weights renormalized,
// so a single bad predictor degrades confidence instead of the request.
type ModelScorer struct {
	id      string
	members []WeightedPredictor
}

// NewModelScorer builds a model source from the given ensemble. Weights
// need not sum to one; combination renormalizes over responders.
func NewModelScorer(id string, members []WeightedPredictor) *ModelScorer {
	return &ModelScorer{id: id, members: members}
}

func (m *ModelScorer) ID() string { return m.id }

type prediction struct {
	name   string
	p      float64
	weight float64
}

// Score runs every ensemble member and blends the survivors.
func (m *ModelScorer) Score(ctx context.Context, fv *features.Vector) SubScore {
	start := time.Now()

	if len(m.members) == 0 {
		return errSubScore(m.id, StatusError, errors.New("empty ensemble"), time.Since(start))
	}

	var (
		preds       []prediction
		totalWeight float64
	)
	for _, member := range m.members {
		if ctx.Err() != nil {
			return errSubScore(m.id, StatusTimeout, ctx.Err(), time.Since(start))
		}
		p, err := member.Predictor.Predict(ctx, fv)
		if err != nil {
			logging.L(ctx).Warn("ensemble member failed",
				"source", m.id, "predictor", member.Predictor.Name(), "error", err)
			continue
		}
		preds = append(preds, prediction{member.Predictor.Name(), clamp01(p), member.Weight})
		totalWeight += member.Weight
	}

	if len(preds) == 0 || totalWeight <= 0 {
		return errSubScore(m.id, StatusError, errors.New("no ensemble member produced a prediction"), time.Since(start))
	}

	var blended float64
	for _, pr := range preds {
		blended += pr.p * (pr.weight / totalWeight)
	}

	// Agreement drives confidence: tightly clustered predictions are
	// trustworthy, a split ensemble is not.
	var variance float64
	for _, pr := range preds {
		d := pr.p - blended
		variance += d * d
	}
	variance /= float64(len(preds))
	confidence := clamp01(1 - 2*math.Sqrt(variance))

	factors := modelFactors(preds, blended)

	return SubScore{
		SourceID:   m.id,
		Score:      clamp(blended * MaxScore),
		Confidence: confidence,
		Factors:    factors,
		Status:     StatusOK,
		Elapsed:    time.Since(start),
	}
}

// modelFactors reports the members that pulled hardest away from the
// blend, as explanation rather than exhaustive attribution.
func modelFactors(preds []prediction, blended float64) []Factor {
	factors := make([]Factor, 0, len(preds))
	for _, pr := range preds {
		delta := pr.p - blended
		if math.Abs(delta) < 0.05 {
			continue
		}
		factors = append(factors, Factor{
			Name:        "model_" + pr.name,
			Impact:      delta * MaxScore,
			Description: "ensemble member diverges from blended prediction",
		})
	}
	sort.Slice(factors, func(i, j int) bool {
		return math.Abs(factors[i].Impact) > math.Abs(factors[j].Impact)
	})
	return factors
}

var _ Source = (*ModelScorer)(nil)
