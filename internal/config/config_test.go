package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultScoringBudgetMS, cfg.ScoringBudgetMS)
	assert.Equal(t, DefaultAdapterBudgetMS, cfg.AdapterBudgetMS)
	assert.Equal(t, DefaultBatchWorkers, cfg.BatchWorkers)
	assert.Equal(t, DefaultMinWeight, cfg.MinSurvivingWeight)
	assert.Equal(t, 300*time.Millisecond, cfg.ScoringBudget())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SCORING_BUDGET_MS", "500")
	t.Setenv("ADAPTER_BUDGET_MS", "400")
	t.Setenv("MIN_SURVIVING_WEIGHT", "0.7")
	t.Setenv("BATCH_JOB_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.ScoringBudgetMS)
	assert.Equal(t, 400*time.Millisecond, cfg.AdapterBudget())
	assert.Equal(t, 0.7, cfg.MinSurvivingWeight)
	assert.Equal(t, 30*time.Minute, cfg.BatchJobTTL)
}

func TestValidateRejectsAdapterBudgetAboveOverall(t *testing.T) {
	t.Setenv("SCORING_BUDGET_MS", "100")
	t.Setenv("ADAPTER_BUDGET_MS", "200")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADAPTER_BUDGET_MS")
}

func TestValidateRejectsBadMinWeight(t *testing.T) {
	t.Setenv("MIN_SURVIVING_WEIGHT", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_SURVIVING_WEIGHT")
}

func TestInvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("SCORING_BUDGET_MS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultScoringBudgetMS, cfg.ScoringBudgetMS)
}

func TestEnvHelpers(t *testing.T) {
	cfg := &Config{Env: "production", ScoringBudgetMS: 1, AdapterBudgetMS: 1, BatchWorkers: 1}
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}
