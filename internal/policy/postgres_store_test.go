package policy

import (
	"context"
	"testing"

	"github.com/Rivega42/FRADECT/internal/testutil"
)

func TestPostgresPolicyRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db)

	if _, err := s.Get(ctx, "t1", "ecommerce"); err == nil {
		t.Fatal("missing policy must error")
	} else if _, ok := err.(*UnknownPolicyError); !ok {
		t.Fatalf("error type = %T, want *UnknownPolicyError", err)
	}

	p := Default("t1", "ecommerce")
	p.EVEnabled = true
	p.EstimatedMarginRate = 0.25
	if err := s.Put(ctx, p); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "t1", "ecommerce")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ApproveBelow != 300 || got.DeclineAt != 800 || !got.EVEnabled {
		t.Errorf("policy did not survive storage: %+v", got)
	}
	if got.SourceWeights["model"] != 0.5 {
		t.Errorf("weights did not survive storage: %v", got.SourceWeights)
	}
	if got.MinSurvivingWeight == nil || *got.MinSurvivingWeight != 0.5 {
		t.Errorf("surviving-weight floor did not survive storage: %v", got.MinSurvivingWeight)
	}
}

func TestPostgresPolicyUpsert(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db)

	if err := s.Put(ctx, Default("t1", "ecommerce")); err != nil {
		t.Fatal(err)
	}

	updated := Default("t1", "ecommerce")
	updated.Version = "v2"
	updated.DeclineAt = 900
	if err := s.Put(ctx, updated); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Get(ctx, "t1", "ecommerce")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "v2" || got.DeclineAt != 900 {
		t.Errorf("upsert not applied: %+v", got)
	}

	list, err := s.ListByTenant(ctx, "t1")
	if err != nil || len(list) != 1 {
		t.Errorf("list = %v, %v; want exactly one policy", list, err)
	}
}
