package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProfileProviderFallsBackToOwnerDefault(t *testing.T) {
	p := NewMemoryProfileProvider()
	p.SetDefault("owner1", NewPreferences("forest", "gravel", 3, 80))

	prefs, err := p.ResolvePreferences(context.Background(), "owner1", "any-note")
	require.NoError(t, err)
	assert.True(t, prefs.Complete())
	assert.Equal(t, "forest", prefs.Terrain)
}

func TestMemoryProfileProviderPrefersNoteOverride(t *testing.T) {
	p := NewMemoryProfileProvider()
	p.SetDefault("owner1", NewPreferences("forest", "gravel", 3, 80))
	p.Set("owner1", "note1", NewPreferences("coastal", "paved", 4, 120))

	prefs, err := p.ResolvePreferences(context.Background(), "owner1", "note1")
	require.NoError(t, err)
	assert.Equal(t, "coastal", prefs.Terrain)
}

func TestMemoryNoteProviderReturnsNotFoundForUnknownNote(t *testing.T) {
	p := NewMemoryNoteProvider()
	_, err := p.GetNote(context.Background(), "owner1", "missing")
	assert.Equal(t, ErrNoteNotFound, err)
}
