package decisions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rivega42/FRADECT/internal/event"
	"github.com/Rivega42/FRADECT/internal/policy"
	"github.com/Rivega42/FRADECT/internal/scoring"
)

func testRecord(id, eventID string) *Record {
	return &Record{
		ID:       id,
		EventID:  eventID,
		TenantID: "t1",
		Module:   "ecommerce",
		Event:    &event.Event{ID: eventID, Kind: event.KindTransaction},
		CombinedScore: scoring.CombinedScore{
			Score:               675,
			ContributingSources: []string{"model", "rules"},
			Degraded:            true,
		},
		Decision:  policy.Decision{Action: policy.ActionReview, Score: 675},
		CreatedAt: time.Now().UTC(),
		Outcome:   OutcomeUnknown,
	}
}

func TestCreateIdempotentOnEvent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, created, err := s.Create(ctx, testRecord("dec_1", "evt_1"))
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	// Replay of the same event, even with a different record id.
	second, created, err := s.Create(ctx, testRecord("dec_2", "evt_1"))
	if err != nil {
		t.Fatalf("replay create: %v", err)
	}
	if created {
		t.Error("replay must not create a second record")
	}
	if second.ID != first.ID {
		t.Errorf("replay returned %s, want original %s", second.ID, first.ID)
	}

	if _, err := s.Get(ctx, "dec_2"); !errors.Is(err, ErrRecordNotFound) {
		t.Error("the replayed record must not have been stored")
	}
}

func TestRecordOutcomeOneShot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, _, err := s.Create(ctx, testRecord("dec_1", "evt_1")); err != nil {
		t.Fatal(err)
	}

	rec, err := s.RecordOutcome(ctx, "dec_1", OutcomeConfirmedFraud)
	if err != nil {
		t.Fatalf("first outcome: %v", err)
	}
	if rec.Outcome != OutcomeConfirmedFraud || rec.OutcomeAt == nil {
		t.Errorf("outcome not recorded: %+v", rec)
	}

	_, err = s.RecordOutcome(ctx, "dec_1", OutcomeConfirmedGood)
	var dup *DuplicateOutcomeError
	if !errors.As(err, &dup) {
		t.Fatalf("second outcome error = %v, want *DuplicateOutcomeError", err)
	}
	if dup.Existing != OutcomeConfirmedFraud {
		t.Errorf("duplicate error reports %s, want the first outcome", dup.Existing)
	}

	// First outcome unchanged.
	got, _ := s.Get(ctx, "dec_1")
	if got.Outcome != OutcomeConfirmedFraud {
		t.Errorf("stored outcome changed to %s", got.Outcome)
	}
}

func TestRecordOutcomeUnknownRecord(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.RecordOutcome(context.Background(), "dec_missing", OutcomeConfirmedGood); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestGetByEvent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, _, err := s.Create(ctx, testRecord("dec_1", "evt_1")); err != nil {
		t.Fatal(err)
	}

	rec, err := s.GetByEvent(ctx, "evt_1")
	if err != nil || rec.ID != "dec_1" {
		t.Errorf("GetByEvent = %+v, %v", rec, err)
	}
	if _, err := s.GetByEvent(ctx, "evt_nope"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestListByTenantMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i, id := range []string{"dec_a", "dec_b", "dec_c"} {
		rec := testRecord(id, "evt_"+id)
		rec.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		if _, _, err := s.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	other := testRecord("dec_x", "evt_x")
	other.TenantID = "t2"
	if _, _, err := s.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListByTenant(ctx, "t1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "dec_c" || list[1].ID != "dec_b" {
		t.Errorf("list = %v", list)
	}
}

func TestOutcomeValid(t *testing.T) {
	for _, o := range []Outcome{OutcomeConfirmedFraud, OutcomeFalsePositive, OutcomeConfirmedGood} {
		if !o.Valid() {
			t.Errorf("%s should be recordable", o)
		}
	}
	if OutcomeUnknown.Valid() {
		t.Error("unknown is the initial state, not a recordable label")
	}
	if Outcome("maybe").Valid() {
		t.Error("arbitrary labels must be rejected")
	}
}
