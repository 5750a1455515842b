// Package model defines the shared domain types for the listings pipeline.
package model

import "time"

// Section is a geographic search anchor seeded from the gazetteer. Rows are
// immutable once seeded; population drives per-section query intensity.
type Section struct {
	ID         int64   `json:"section_id" db:"section_id"`
	Name       string  `json:"name" db:"name"`
	Lat        float64 `json:"lat" db:"lat"`
	Lon        float64 `json:"lon" db:"lon"`
	Population float64 `json:"population" db:"population"`
}

// Company is a discovered business listing keyed by its external place id.
// Identity fields are overwritten on rediscovery; DetailUpdatedAt is stamped
// only by the enricher.
type Company struct {
	PlaceID         string     `json:"place_id" db:"place_id"`
	Name            string     `json:"name" db:"name"`
	SectionID       int64      `json:"section_id" db:"section_id"`
	Country         string     `json:"country" db:"country"`
	State           string     `json:"state" db:"state"`
	City            string     `json:"city" db:"city"`
	Address         string     `json:"address" db:"address"`
	PostalCode      string     `json:"postal_code" db:"postal_code"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	DetailUpdatedAt *time.Time `json:"detail_updated_at,omitempty" db:"detail_updated_at"`
}

// Address holds the structured fields parsed from a free-text formatted
// address. Any field may be empty.
type Address struct {
	Country    string `json:"country"`
	State      string `json:"state"`
	City       string `json:"city"`
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
}

// Review is one normalized place review. The JSON keys match the serialized
// form consumed by downstream reporting.
type Review struct {
	AuthorName              string  `json:"author_name"`
	AuthorURL               string  `json:"author_url"`
	Language                string  `json:"language"`
	OriginalLanguage        string  `json:"original_language"`
	ProfilePhotoURL         string  `json:"profile_photo_url"`
	Rating                  float64 `json:"rating"`
	RelativeTimeDescription string  `json:"relative_time_description"`
	Text                    string  `json:"text"`
	Time                    int64   `json:"time"`
	Translated              bool    `json:"translated"`
}

// CompanyDetails is the 1:0..1 enrichment record for a company. Reviews and
// OpeningHours hold JSON-serialized lists; the row is fully replaced on each
// enrichment run.
type CompanyDetails struct {
	PlaceID      string    `json:"place_id" db:"place_id"`
	Website      string    `json:"website" db:"website"`
	Phone        string    `json:"phone_number" db:"phone_number"`
	TotalReviews int       `json:"total_reviews" db:"total_reviews"`
	AvgRating    float64   `json:"avg_reviews" db:"avg_reviews"`
	Reviews      string    `json:"reviews" db:"reviews"`
	OpeningHours string    `json:"opening_hours" db:"opening_hours"`
	PhotoURL     string    `json:"place_photo" db:"place_photo"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// CostRecord tracks cumulative API spend for one calendar month.
type CostRecord struct {
	Year       int     `json:"year" db:"year"`
	Month      int     `json:"month" db:"month"`
	Cost       float64 `json:"cost" db:"cost"`
	QueryCount int     `json:"query_count" db:"query_count"`
}

// Run records one pipeline invocation for bookkeeping.
type Run struct {
	ID         string     `json:"id" db:"id"`
	Kind       string     `json:"kind" db:"kind"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Sections   int        `json:"sections" db:"sections"`
	Companies  int        `json:"companies" db:"companies"`
	Details    int        `json:"details" db:"details"`
}

// RunStats holds the counters written when a run completes.
type RunStats struct {
	Sections  int `json:"sections"`
	Companies int `json:"companies"`
	Details   int `json:"details"`
}

// ExportRow is one flat record of the Company ⋈ CompanyDetails report join.
type ExportRow struct {
	PlaceID      string    `json:"place_id"`
	Name         string    `json:"name"`
	State        string    `json:"state"`
	City         string    `json:"city"`
	PostalCode   string    `json:"postal_code"`
	Address      string    `json:"address"`
	Website      string    `json:"website"`
	Phone        string    `json:"phone_number"`
	TotalReviews int       `json:"total_reviews"`
	AvgRating    float64   `json:"avg_reviews"`
	PhotoURL     string    `json:"place_photo"`
	UpdatedAt    time.Time `json:"updated_at"`
	OpeningHours string    `json:"opening_hours"`
	Reviews      string    `json:"reviews"`
}
