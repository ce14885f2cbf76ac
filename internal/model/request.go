package model

import "strings"

// Recommendation is the routing decision derived from a classification.
type Recommendation string

const (
	RecommendRedirect911   Recommendation = "REDIRECT_TO_911"
	RecommendExpedite      Recommendation = "EXPEDITE"
	RecommendRedirectOther Recommendation = "REDIRECT_TO_OTHER_SERVICE"
	RecommendProcessNormal Recommendation = "PROCESS_NORMALLY"
)

// Classification is the triage verdict for a raw citizen message.
// Recommendation is always computed from the two booleans by the
// pipeline's resolver — it is never taken from the model response.
type Classification struct {
	IsEmergency    bool           `json:"is_emergency"`
	BelongsIn311   bool           `json:"belongs_in_311"`
	Reason         string         `json:"reason"`
	Confidence     float64        `json:"confidence"`
	Recommendation Recommendation `json:"recommendation"`
}

// Priority is the urgency tier assigned to a service request.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority normalizes a priority string from a model response.
// Unrecognized values fall back to medium.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow
	case PriorityMedium:
		return PriorityMedium
	case PriorityHigh:
		return PriorityHigh
	case PriorityCritical:
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// UnknownField is the sentinel for information the extractor looked
// for but could not find in the message. Consumers rely on it to
// distinguish "asked and found nothing" from "never populated".
const UnknownField = "Unknown"

// ExtractedRequest is the structured service request pulled from a
// message. Created fresh per pipeline run; only the expedite priority
// override mutates it after construction.
type ExtractedRequest struct {
	Category        string   `json:"category"`
	Subcategory     string   `json:"subcategory"`
	Address         string   `json:"address"`
	LocationDetails string   `json:"location_details,omitempty"`
	Description     string   `json:"description"`
	Priority        Priority `json:"priority"`
	Notes           string   `json:"notes,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// HasAddress reports whether the extractor found a usable street
// address (anything other than empty or the Unknown sentinel).
func (r *ExtractedRequest) HasAddress() bool {
	return r != nil && r.Address != "" && !strings.EqualFold(r.Address, UnknownField)
}
