package features

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/Rivega42/FRADECT/internal/event"
	"github.com/Rivega42/FRADECT/internal/logging"
)

// historyFeatures are pulled from the feature store for every event that
// carries an entity id. None are mandatory: a lookup miss records the
// feature as absent and scoring proceeds.
var historyFeatures = []string{
	"customer_age_days",
	"customer_total_orders",
	"customer_avg_order_value",
	"customer_return_rate",
	"customer_chargeback_count",
	"transactions_last_hour",
	"transactions_last_day",
	"amount_velocity_24h",
}

// Assembler builds feature vectors from events and the injected
// feature-store lookup.
type Assembler struct {
	lookup Lookup
}

// NewAssembler creates an assembler backed by the given feature lookup.
// A nil lookup is valid: all history features assemble as absent.
func NewAssembler(lookup Lookup) *Assembler {
	return &Assembler{lookup: lookup}
}

// Assemble builds the feature vector for an event. Deterministic: the same
// event against the same store snapshot yields the same vector, which is
// what makes audit replay possible. Temporal features derive from the
// event's OccurredAt, never from the wall clock.
//
// The event must already be validated; Assemble does not re-check
// mandatory payload fields.
func (a *Assembler) Assemble(ctx context.Context, e *event.Event) (*Vector, error) {
	fv := &Vector{
		Features:   make(map[string]Value, 32),
		ComputedAt: time.Now().UTC(),
	}

	a.payloadFeatures(e, fv)
	a.temporalFeatures(e, fv)
	a.historyFeatures(ctx, e, fv)
	a.crossFeatures(fv)

	return fv, nil
}

// payloadFeatures extracts base features from the event payload.
func (a *Assembler) payloadFeatures(e *event.Event, fv *Vector) {
	amount := e.Amount()
	fv.Features["amount"] = Number(amount)
	fv.Features["amount_log"] = Number(math.Log1p(amount))
	fv.Features["event_kind"] = Category(string(e.Kind))

	// Routing context travels on the vector so sources stay event-agnostic.
	if id := e.EntityID(); id != "" {
		fv.Features["entity_id"] = Category(id)
	} else {
		fv.Features["entity_id"] = Absent()
	}
	if e.Context.Module != "" {
		fv.Features["module"] = Category(e.Context.Module)
	} else {
		fv.Features["module"] = Absent()
	}

	putString := func(name, field string) {
		if s, ok := e.Payload[field].(string); ok && s != "" {
			fv.Features[name] = Category(s)
		} else {
			fv.Features[name] = Absent()
		}
	}
	putString("currency", "currency")
	putString("payment_method", "payment_method")
	putString("country", "country")

	if ip, ok := e.Payload["ip_address"].(string); ok && ip != "" {
		fv.Features["has_ip"] = Flag(true)
		fv.Features["ip_is_vpn"] = Flag(boolField(e.Payload, "ip_is_vpn"))
	} else {
		fv.Features["has_ip"] = Flag(false)
		fv.Features["ip_is_vpn"] = Absent()
	}

	if email, ok := e.Payload["customer_email"].(string); ok && email != "" {
		fv.Features["has_email"] = Flag(true)
		fv.Features["email_is_disposable"] = Flag(disposableEmail(email))
	} else {
		fv.Features["has_email"] = Flag(false)
		fv.Features["email_is_disposable"] = Absent()
	}

	ship, shipOK := e.Payload["shipping_country"].(string)
	bill, billOK := e.Payload["billing_country"].(string)
	if shipOK && billOK {
		fv.Features["addresses_match"] = Flag(strings.EqualFold(ship, bill))
	} else {
		fv.Features["addresses_match"] = Absent()
	}
	if shipOK {
		fv.Features["shipping_country_risk"] = Number(countryRisk(ship))
	} else {
		fv.Features["shipping_country_risk"] = Absent()
	}
}

// temporalFeatures derive from the event timestamp so replays reproduce
// the original vector.
func (a *Assembler) temporalFeatures(e *event.Event, fv *Vector) {
	at := e.OccurredAt.UTC()
	fv.Features["hour_of_day"] = Number(float64(at.Hour()))
	fv.Features["day_of_week"] = Number(float64(at.Weekday()))
	fv.Features["is_weekend"] = Flag(at.Weekday() == time.Saturday || at.Weekday() == time.Sunday)
	fv.Features["is_night"] = Flag(at.Hour() < 6 || at.Hour() > 22)
}

// historyFeatures pulls derived features from the feature store. A failed
// lookup degrades to explicit absence rather than failing assembly:
// downstream adapters are required to handle absent features anyway.
func (a *Assembler) historyFeatures(ctx context.Context, e *event.Event, fv *Vector) {
	markAbsent := func() {
		for _, name := range historyFeatures {
			fv.Features[name] = Absent()
		}
	}

	entityID := e.EntityID()
	if a.lookup == nil || entityID == "" {
		markAbsent()
		fv.Features["customer_is_new"] = Absent()
		return
	}

	values, err := a.lookup.Get(ctx, entityID, historyFeatures)
	if err != nil {
		logging.L(ctx).Warn("feature lookup failed, assembling with absent history",
			"entity_id", entityID, "error", err)
		markAbsent()
		fv.Features["customer_is_new"] = Absent()
		return
	}

	for _, name := range historyFeatures {
		if v, ok := values[name]; ok {
			fv.Features[name] = v
		} else {
			fv.Features[name] = Absent()
		}
	}

	orders := fv.Get("customer_total_orders")
	if orders.IsAbsent() {
		fv.Features["customer_is_new"] = Absent()
	} else {
		fv.Features["customer_is_new"] = Flag(orders.AsNumber(0) == 0)
	}
}

// crossFeatures combine already-assembled features. Absent inputs
// propagate absence.
func (a *Assembler) crossFeatures(fv *Vector) {
	amount := fv.Number("amount", 0)

	isNew := fv.Get("customer_is_new")
	if isNew.IsAbsent() {
		fv.Features["new_customer_amount"] = Absent()
	} else {
		fv.Features["new_customer_amount"] = Number(isNew.AsNumber(0) * amount)
	}

	avg := fv.Get("customer_avg_order_value")
	if avg.IsAbsent() || avg.AsNumber(0) <= 0 {
		fv.Features["amount_deviation_from_avg"] = Absent()
	} else {
		mean := avg.AsNumber(0)
		fv.Features["amount_deviation_from_avg"] = Number(math.Abs(amount-mean) / mean)
	}
}

// disposableDomains is the short list of throwaway email providers the
// assembler flags without an external call.
var disposableDomains = []string{
	"tempmail.com", "guerrillamail.com", "10minutemail.com",
	"maildrop.cc", "mailinator.com", "temp-mail.org",
	"throwaway.email", "yopmail.com",
}

func disposableEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range disposableDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// highRiskCountries carry an elevated base risk for shipping destinations.
var highRiskCountries = map[string]bool{
	"NG": true, "GH": true, "PK": true, "ID": true, "VN": true, "BD": true,
}

func countryRisk(country string) float64 {
	if highRiskCountries[strings.ToUpper(country)] {
		return 80
	}
	return 0
}

func boolField(payload map[string]any, field string) bool {
	b, _ := payload[field].(bool)
	return b
}
