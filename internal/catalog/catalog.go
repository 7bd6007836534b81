// Package catalog holds the built-in species catalog and the initial tree
// listings used to seed an empty trees collection.
package catalog

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
)

//go:embed species.yaml
var rawCatalog []byte

// Species describes a tree species offered for adoption.
type Species struct {
	ID             string  `yaml:"id" json:"id"`
	CommonName     string  `yaml:"commonName" json:"commonName"`
	ScientificName string  `yaml:"scientificName" json:"scientificName"`
	CO2PerYearKg   float64 `yaml:"co2PerYearKg" json:"co2PerYearKg"`
	NativeRegion   string  `yaml:"nativeRegion" json:"nativeRegion"`
	Description    string  `yaml:"description" json:"description"`
	ImageURL       string  `yaml:"imageUrl" json:"imageUrl"`
}

type seedTree struct {
	Name      string          `yaml:"name"`
	SpeciesID string          `yaml:"speciesId"`
	Location  domain.Location `yaml:"location"`
	HeightCm  int             `yaml:"heightCm"`
}

// Catalog is the parsed species catalog.
type Catalog struct {
	Species []Species  `yaml:"species"`
	Trees   []seedTree `yaml:"trees"`

	byID map[string]Species
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(rawCatalog)
}

// Parse decodes a catalog document and checks every seed tree references a
// known species.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse species catalog: %w", err)
	}

	c.byID = make(map[string]Species, len(c.Species))
	for _, s := range c.Species {
		if s.ID == "" {
			return nil, fmt.Errorf("species %q has no id", s.CommonName)
		}
		c.byID[s.ID] = s
	}
	for _, t := range c.Trees {
		if _, ok := c.byID[t.SpeciesID]; !ok {
			return nil, fmt.Errorf("tree %q references unknown species %q", t.Name, t.SpeciesID)
		}
	}
	return &c, nil
}

// Lookup returns the species with the given id.
func (c *Catalog) Lookup(id string) (Species, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// SeedListings builds available tree listings for the seed trees.
func (c *Catalog) SeedListings(now time.Time) []domain.TreeListing {
	listings := make([]domain.TreeListing, 0, len(c.Trees))
	for _, t := range c.Trees {
		s := c.byID[t.SpeciesID]
		listings = append(listings, domain.TreeListing{
			Name:           t.Name,
			SpeciesID:      s.ID,
			CommonName:     s.CommonName,
			ScientificName: s.ScientificName,
			Description:    s.Description,
			ImageURL:       s.ImageURL,
			CO2PerYearKg:   s.CO2PerYearKg,
			Location:       t.Location,
			Health: domain.HealthSnapshot{
				Status:          "healthy",
				HeightCm:        t.HeightCm,
				LastInspectedAt: now,
			},
			Status:    domain.TreeStatusAvailable,
			CreatedAt: now,
		})
	}
	return listings
}
