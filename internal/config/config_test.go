package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndOptions(t *testing.T) {
	cfg, err := Load(WithMockAI(true), WithWorkerConcurrency(10))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Worker.Concurrency)
	assert.Equal(t, 15, cfg.Export.MapyPointLimit)
	assert.Equal(t, 25, cfg.Export.GooglePointLimit)
	assert.True(t, cfg.AI.UseMock)
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("ITINERARY_WORKER_CONCURRENCY", "3")
	t.Setenv("ITINERARY_SPEND_CAP", "25.5")

	cfg, err := Load(WithMockAI(true))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Worker.Concurrency)
	assert.Equal(t, 25.5, cfg.Spend.Cap)
}

func TestOptionsOverrideEnvironment(t *testing.T) {
	t.Setenv("ITINERARY_WORKER_CONCURRENCY", "3")

	cfg, err := Load(WithMockAI(true), WithWorkerConcurrency(7))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Worker.Concurrency)
}

func TestValidateRejectsRedisProviderWithoutURL(t *testing.T) {
	cfg := Default()
	cfg.AI.UseMock = true
	cfg.Store.Provider = "redis"
	cfg.Store.RedisURL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingAIKeyWithoutMock(t *testing.T) {
	cfg := Default()
	cfg.AI.APIKey = ""
	cfg.AI.UseMock = false
	assert.Error(t, cfg.Validate())
}

func TestLoadFileOverridesOnlyFieldsPresentInDocument(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("worker:\n  concurrency: 9\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg := Default()
	cfg.AI.UseMock = true
	require.NoError(t, LoadFile(f.Name(), cfg))

	assert.Equal(t, 9, cfg.Worker.Concurrency)
	assert.Equal(t, 15, cfg.Export.MapyPointLimit) // untouched by the file
}
