package scoring

import (
	"context"
	"math"

	"github.com/Rivega42/FRADECT/internal/features"
)

// DefaultEnsemble is the built-in model ensemble: five heuristic members
// standing in for trained models behind the same Predictor seam, so a real
// model serving client can replace any member without touching the scorer.
func DefaultEnsemble() []WeightedPredictor {
	return []WeightedPredictor{
		{Predictor: amountModel{}, Weight: 0.35},
		{Predictor: velocityModel{}, Weight: 0.30},
		{Predictor: behaviorModel{}, Weight: 0.20},
		{Predictor: networkModel{}, Weight: 0.10},
		{Predictor: freshnessModel{}, Weight: 0.05},
	}
}

// amountModel scores on transaction size and its deviation from the
// customer's historical average.
type amountModel struct{}

func (amountModel) Name() string { return "amount" }

func (amountModel) Predict(_ context.Context, fv *features.Vector) (float64, error) {
	amount := fv.Number("amount", 0)

	// Sigmoid centered near 2000: small orders score low, very large
	// orders saturate rather than grow without bound.
	p := 1 / (1 + math.Exp(-(amount-2000)/800))

	if dev := fv.Number("amount_deviation_from_avg", 0); dev > 2 {
		p = math.Min(1, p+0.15*math.Min(dev/5, 1))
	}
	return p, nil
}

// velocityModel scores on recent transaction frequency and spend rate.
type velocityModel struct{}

func (velocityModel) Name() string { return "velocity" }

func (velocityModel) Predict(_ context.Context, fv *features.Vector) (float64, error) {
	p := 0.1

	if perHour := fv.Number("transactions_last_hour", 0); perHour > 3 {
		p += 0.2 * math.Min(perHour/10, 1)
	}
	if perDay := fv.Number("transactions_last_day", 0); perDay > 10 {
		p += 0.25 * math.Min(perDay/40, 1)
	}
	if spend := fv.Number("amount_velocity_24h", 0); spend > 5000 {
		p += 0.25 * math.Min(spend/25000, 1)
	}
	return clamp01(p), nil
}

// behaviorModel scores on who the customer is and how they behave.
type behaviorModel struct{}

func (behaviorModel) Name() string { return "behavior" }

func (behaviorModel) Predict(_ context.Context, fv *features.Vector) (float64, error) {
	p := 0.1

	if fv.Flag("customer_is_new") {
		p += 0.15
		if fv.Number("amount", 0) > 1000 {
			p += 0.15
		}
	}
	if chargebacks := fv.Number("customer_chargeback_count", 0); chargebacks > 0 {
		p += 0.25 * math.Min(chargebacks/3, 1)
	}
	if rate := fv.Number("customer_return_rate", 0); rate > 0.5 {
		p += 0.1
	}
	return clamp01(p), nil
}

// networkModel scores on connection and identity signals.
type networkModel struct{}

func (networkModel) Name() string { return "network" }

func (networkModel) Predict(_ context.Context, fv *features.Vector) (float64, error) {
	p := 0.1

	if fv.Flag("ip_is_vpn") {
		p += 0.2
	}
	if fv.Flag("email_is_disposable") {
		p += 0.25
	}
	if v := fv.Get("addresses_match"); !v.IsAbsent() && !v.Bool {
		p += 0.15
	}
	p += 0.003 * fv.Number("shipping_country_risk", 0)
	return clamp01(p), nil
}

// freshnessModel scores on timing: night-time weekend activity from new
// accounts is the classic fraud window.
type freshnessModel struct{}

func (freshnessModel) Name() string { return "freshness" }

func (freshnessModel) Predict(_ context.Context, fv *features.Vector) (float64, error) {
	p := 0.1

	if fv.Flag("is_night") {
		p += 0.15
	}
	if fv.Flag("is_night") && fv.Flag("customer_is_new") {
		p += 0.1
	}
	if age := fv.Get("customer_age_days"); !age.IsAbsent() && age.AsNumber(0) < 7 {
		p += 0.15
	}
	return clamp01(p), nil
}
