package domain

import "time"

// Tree listing statuses.
const (
	TreeStatusAvailable = "available"
	TreeStatusAdopted   = "adopted"
)

// Location is where a tree is planted.
type Location struct {
	Region    string  `json:"region" firestore:"region" yaml:"region"`
	Latitude  float64 `json:"latitude" firestore:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" firestore:"longitude" yaml:"longitude"`
}

// HealthSnapshot is the last recorded health state of a tree.
type HealthSnapshot struct {
	Status          string    `json:"status" firestore:"status"`
	HeightCm        int       `json:"heightCm" firestore:"heightCm"`
	LastInspectedAt time.Time `json:"lastInspectedAt" firestore:"lastInspectedAt"`
}

// TreeListing is a single adoptable tree.
type TreeListing struct {
	ID             string         `json:"id" firestore:"-"`
	Name           string         `json:"name" firestore:"name"`
	SpeciesID      string         `json:"speciesId" firestore:"speciesId"`
	CommonName     string         `json:"commonName" firestore:"commonName"`
	ScientificName string         `json:"scientificName" firestore:"scientificName"`
	Description    string         `json:"description,omitempty" firestore:"description"`
	ImageURL       string         `json:"imageUrl,omitempty" firestore:"imageUrl"`
	CO2PerYearKg   float64        `json:"co2PerYearKg" firestore:"co2PerYearKg"`
	Location       Location       `json:"location" firestore:"location"`
	Health         HealthSnapshot `json:"health" firestore:"health"`
	Status         string         `json:"status" firestore:"status"`
	AdoptedBy      *string        `json:"adoptedBy,omitempty" firestore:"adoptedBy"`
	AdoptedAt      *time.Time     `json:"adoptedAt,omitempty" firestore:"adoptedAt"`
	CreatedAt      time.Time      `json:"createdAt" firestore:"createdAt"`
}

// IsAvailable reports whether the tree can still be adopted.
func (t TreeListing) IsAvailable() bool {
	return t.Status == "" || t.Status == TreeStatusAvailable
}

// ImpactKg is the CO2 a tree absorbs over years of adoption.
func (t TreeListing) ImpactKg(years int) float64 {
	return t.CO2PerYearKg * float64(years)
}
