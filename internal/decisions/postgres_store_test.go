package decisions

import (
	"context"
	"errors"
	"testing"

	"github.com/Rivega42/FRADECT/internal/testutil"
)

func TestPostgresCreateIdempotent(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db)

	first, created, err := s.Create(ctx, testRecord("dec_pg1", "evt_pg1"))
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	second, created, err := s.Create(ctx, testRecord("dec_pg2", "evt_pg1"))
	if err != nil {
		t.Fatalf("replay create: %v", err)
	}
	if created || second.ID != first.ID {
		t.Errorf("replay: created=%v id=%s, want false/%s", created, second.ID, first.ID)
	}
}

func TestPostgresRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db)

	if _, _, err := s.Create(ctx, testRecord("dec_pg1", "evt_pg1")); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Get(ctx, "dec_pg1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.CombinedScore.Score != 675 || !rec.CombinedScore.Degraded {
		t.Errorf("combined score did not survive storage: %+v", rec.CombinedScore)
	}
	if rec.Event == nil || rec.Event.ID != "evt_pg1" {
		t.Errorf("event snapshot did not survive storage: %+v", rec.Event)
	}

	byEvent, err := s.GetByEvent(ctx, "evt_pg1")
	if err != nil || byEvent.ID != "dec_pg1" {
		t.Errorf("GetByEvent = %+v, %v", byEvent, err)
	}
}

func TestPostgresOutcomeOneShot(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db)

	if _, _, err := s.Create(ctx, testRecord("dec_pg1", "evt_pg1")); err != nil {
		t.Fatal(err)
	}

	rec, err := s.RecordOutcome(ctx, "dec_pg1", OutcomeFalsePositive)
	if err != nil {
		t.Fatalf("first outcome: %v", err)
	}
	if rec.Outcome != OutcomeFalsePositive || rec.OutcomeAt == nil {
		t.Errorf("outcome not recorded: %+v", rec)
	}

	_, err = s.RecordOutcome(ctx, "dec_pg1", OutcomeConfirmedGood)
	var dup *DuplicateOutcomeError
	if !errors.As(err, &dup) || dup.Existing != OutcomeFalsePositive {
		t.Errorf("second outcome err = %v, want duplicate with first outcome", err)
	}

	if _, err := s.RecordOutcome(ctx, "dec_missing", OutcomeConfirmedGood); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("missing record err = %v, want ErrRecordNotFound", err)
	}
}

func TestPostgresListByTenant(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db)

	for _, id := range []string{"dec_a", "dec_b"} {
		if _, _, err := s.Create(ctx, testRecord(id, "evt_"+id)); err != nil {
			t.Fatal(err)
		}
	}
	other := testRecord("dec_x", "evt_x")
	other.TenantID = "t2"
	if _, _, err := s.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListByTenant(ctx, "t1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("list len = %d, want 2", len(list))
	}
}
