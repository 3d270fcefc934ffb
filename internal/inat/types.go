package inat

import (
	"time"
)

// Quality grades assigned by the upstream API.
const (
	QualityResearch = "research"
	QualityNeedsID  = "needs_id"
	QualityCasual   = "casual"
)

// Taxon is the taxonomic classification attached to an observation.
type Taxon struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"` // scientific name
	PreferredCommonName string `json:"preferred_common_name"`
	Rank                string `json:"rank"`
}

// Photo is a single photo reference.
type Photo struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// ObservationPhoto wraps a photo as nested in the observation payload.
type ObservationPhoto struct {
	Photo Photo `json:"photo"`
}

// User identifies the observer.
type User struct {
	Login string `json:"login"`
}

// Observation is a single sighting record from the upstream API.
// Fields are immutable once fetched; only the rarity enrichment fields
// are filled in locally.
type Observation struct {
	ID           int64              `json:"id"`
	CreatedAt    time.Time          `json:"created_at"`
	ObservedOn   string             `json:"observed_on"` // calendar date, may be empty
	Taxon        Taxon              `json:"taxon"`
	PlaceGuess   string             `json:"place_guess"`
	Photos       []ObservationPhoto `json:"photos"`
	QualityGrade string             `json:"quality_grade"`
	User         User               `json:"user"`
	Obscured     bool               `json:"obscured"`
	URI          string             `json:"uri"`

	// Enrichment fields, not part of the API payload.
	RarityCount  *int   `json:"-"`
	RarityMethod string `json:"-"`
}

// observedOnLayout is the calendar date format of the observed_on field.
const observedOnLayout = "2006-01-02"

// ObservedOnDate parses the observed_on calendar date. The second return
// value is false when the observation carries no usable date.
func (o *Observation) ObservedOnDate() (time.Time, bool) {
	if o.ObservedOn == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(observedOnLayout, o.ObservedOn)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DisplayName returns the common name when known, the scientific name otherwise.
func (o *Observation) DisplayName() string {
	if o.Taxon.PreferredCommonName != "" {
		return o.Taxon.PreferredCommonName
	}
	return o.Taxon.Name
}

// SearchResponse is the upstream observations search payload.
type SearchResponse struct {
	TotalResults int           `json:"total_results"`
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
	Results      []Observation `json:"results"`
}
