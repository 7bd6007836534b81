package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, c.Species)

	neem, ok := c.Lookup("neem")
	require.True(t, ok)
	assert.Equal(t, "Azadirachta indica", neem.ScientificName)
	assert.Positive(t, neem.CO2PerYearKg)

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	listings := c.SeedListings(now)
	require.Len(t, listings, len(c.Trees))
	for _, l := range listings {
		assert.Equal(t, domain.TreeStatusAvailable, l.Status)
		assert.NotEmpty(t, l.CommonName)
		assert.Equal(t, now, l.CreatedAt)
	}
}

func TestParseRejectsUnknownSpecies(t *testing.T) {
	doc := []byte(`
species:
  - id: neem
    commonName: Neem
trees:
  - name: Lost
    speciesId: oak
`)
	_, err := Parse(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown species")
}
