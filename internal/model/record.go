package model

import "time"

// RecordStatus is the lifecycle state of a stored service request.
type RecordStatus string

const (
	RecordStatusNew        RecordStatus = "new"
	RecordStatusInProgress RecordStatus = "in_progress"
	RecordStatusResolved   RecordStatus = "resolved"
	RecordStatusClosed     RecordStatus = "closed"
	RecordStatusInvalid    RecordStatus = "invalid"
)

// ReviewThresholds holds the per-signal confidence floors below which
// a record is flagged for human review. These are policy knobs, not
// correctness invariants.
type ReviewThresholds struct {
	Triage         float64 `yaml:"triage" mapstructure:"triage"`
	Validation     float64 `yaml:"validation" mapstructure:"validation"`
	Classification float64 `yaml:"classification" mapstructure:"classification"`
	Overall        float64 `yaml:"overall" mapstructure:"overall"`
}

// DefaultReviewThresholds returns the standard review policy.
func DefaultReviewThresholds() ReviewThresholds {
	return ReviewThresholds{
		Triage:         0.75,
		Validation:     0.80,
		Classification: 0.75,
		Overall:        0.70,
	}
}

// ConfidenceSet carries per-sub-decision confidence scores for a
// processed request. Geocoding is zero when no geocode was attempted.
type ConfidenceSet struct {
	Triage         float64 `json:"triage"`
	Validation     float64 `json:"validation"`
	Classification float64 `json:"classification"`
	Geocoding      float64 `json:"geocoding,omitempty"`
	Overall        float64 `json:"overall"`
}

// NeedsReview reports whether any sub-signal falls below its
// threshold or the overall score is low.
func (c ConfidenceSet) NeedsReview(t ReviewThresholds) bool {
	if c.Overall < t.Overall {
		return true
	}
	if c.Triage < t.Triage {
		return true
	}
	if c.Validation < t.Validation {
		return true
	}
	return c.Classification < t.Classification
}

// CanonicalRecord is the fully validated, storage-ready form of a
// processed request. A record with IsValid true always carries a
// non-empty category.
type CanonicalRecord struct {
	ID              string        `json:"id,omitempty"`
	RawInput        string        `json:"raw_input"`
	IsEmergency     bool          `json:"is_emergency"`
	IsValid         bool          `json:"is_valid"`
	Status          RecordStatus  `json:"status"`
	Category        string        `json:"category,omitempty"`
	Subcategory     string        `json:"subcategory,omitempty"`
	Department      string        `json:"department,omitempty"`
	Address         string        `json:"address,omitempty"`
	LocationDetails string        `json:"location_details,omitempty"`
	Description     string        `json:"description,omitempty"`
	Priority        Priority      `json:"priority"`
	Notes           string        `json:"notes,omitempty"`
	Reason          string        `json:"reason"`
	Latitude        *float64      `json:"latitude,omitempty"`
	Longitude       *float64      `json:"longitude,omitempty"`
	GeocodeSource   string        `json:"geocode_source,omitempty"`
	GeocodeQuality  string        `json:"geocode_quality,omitempty"`
	Confidence      ConfidenceSet `json:"confidence"`
	NeedsReview     bool          `json:"needs_review"`
	ExternalID      string        `json:"external_id,omitempty"`
	Source          string        `json:"source,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}
