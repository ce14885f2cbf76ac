package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-stack/triage311/internal/model"
	"github.com/civic-stack/triage311/pkg/geocode"
)

// Placeholder category for valid requests whose extraction failed. The
// record still enters the queue so no resident report is lost, but the
// low classification confidence guarantees a review flag.
const (
	placeholderCategory           = "General Request"
	placeholderCategoryConfidence = 0.2
)

// departmentByCategory routes common categories to city departments.
// Categories not listed fall through to constituent services for
// manual routing.
var departmentByCategory = map[string]string{
	"public works":   "Public Works Department",
	"sanitation":     "Public Works Department",
	"transportation": "Transportation Department",
	"parking":        "Transportation Department",
	"parks":          "Parks and Recreation Department",
	"housing":        "Inspectional Services",
	"environment":    "Inspectional Services",
	"animal control": "Animal Control",
	"water":          "Water and Sewer Commission",
	"sewer":          "Water and Sewer Commission",
	"snow":           "Public Works Department",
	"trees":          "Parks and Recreation Department",
}

const defaultDepartment = "Constituent Services"

// departmentFor maps an extracted category onto a department by
// substring match against the known routing table.
func departmentFor(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" || strings.EqualFold(c, model.UnknownField) {
		return defaultDepartment
	}
	for key, dept := range departmentByCategory {
		if strings.Contains(c, key) {
			return dept
		}
	}
	return defaultDepartment
}

// geocodeQualityConfidence maps the geocoder's match quality onto a
// confidence score. The Census client emits exactly these two labels.
var geocodeQualityConfidence = map[string]float64{
	"rooftop":     0.95,
	"approximate": 0.60,
}

// Assembler turns pipeline results into storage-ready canonical
// records: department routing, optional geocoding, confidence rollup,
// and the human-review flag.
type Assembler struct {
	thresholds model.ReviewThresholds
	geocoder   geocode.Client // nil disables geocoding
}

// NewAssembler creates an Assembler. Pass a nil geocoder to skip
// address resolution.
func NewAssembler(thresholds model.ReviewThresholds, geocoder geocode.Client) *Assembler {
	return &Assembler{
		thresholds: thresholds,
		geocoder:   geocoder,
	}
}

// Assemble builds a canonical record from a pipeline result. Every
// result yields a record: terminal routings become invalid records
// preserving the classification reason, and extraction failures become
// placeholder records flagged for review.
func (a *Assembler) Assemble(ctx context.Context, result *model.Result) *model.CanonicalRecord {
	cls := result.Classification

	rec := &model.CanonicalRecord{
		ID:          uuid.New().String(),
		RawInput:    result.RawInput,
		IsEmergency: cls.IsEmergency,
		Reason:      cls.Reason,
		Source:      "triage",
		CreatedAt:   time.Now().UTC(),
	}
	rec.Confidence.Triage = cls.Confidence
	rec.Confidence.Validation = cls.Confidence

	switch result.Outcome {
	case model.OutcomeEmergency, model.OutcomeNonServiceable:
		rec.IsValid = false
		rec.Status = model.RecordStatusInvalid
		rec.Priority = model.PriorityLow
		if result.Outcome == model.OutcomeEmergency {
			rec.Priority = model.PriorityCritical
		}
		rec.Description = result.Action

	case model.OutcomeExtractionFailed:
		rec.IsValid = true
		rec.Status = model.RecordStatusNew
		rec.Category = placeholderCategory
		rec.Subcategory = model.UnknownField
		rec.Department = defaultDepartment
		rec.Description = result.RawInput
		rec.Priority = model.PriorityMedium
		if result.Classification.Recommendation == model.RecommendExpedite {
			rec.Priority = model.PriorityCritical
		}
		rec.Notes = result.Message
		rec.Confidence.Classification = placeholderCategoryConfidence

	case model.OutcomeProcessed:
		ext := result.Extracted
		rec.IsValid = true
		rec.Status = model.RecordStatusNew
		rec.Category = ext.Category
		rec.Subcategory = ext.Subcategory
		rec.Department = departmentFor(ext.Category)
		rec.Address = ext.Address
		rec.LocationDetails = ext.LocationDetails
		rec.Description = ext.Description
		rec.Priority = ext.Priority
		rec.Notes = ext.Notes
		rec.Confidence.Classification = ext.Confidence

		a.geocodeRecord(ctx, rec, ext)
	}

	rec.Confidence.Overall = overallConfidence(rec.Confidence)
	rec.NeedsReview = rec.Confidence.NeedsReview(a.thresholds)

	return rec
}

// geocodeRecord resolves the extracted address when a geocoder is
// configured. Geocoding failures never fail assembly; the record just
// ships without coordinates.
func (a *Assembler) geocodeRecord(ctx context.Context, rec *model.CanonicalRecord, ext *model.ExtractedRequest) {
	if a.geocoder == nil || !ext.HasAddress() {
		return
	}

	result, err := a.geocoder.Geocode(ctx, ext.Address)
	if err != nil {
		zap.L().Warn("assemble: geocode failed",
			zap.String("address", ext.Address),
			zap.Error(err),
		)
		return
	}
	if !result.Matched {
		zap.L().Debug("assemble: address did not geocode", zap.String("address", ext.Address))
		return
	}

	lat, lon := result.Latitude, result.Longitude
	rec.Latitude = &lat
	rec.Longitude = &lon
	rec.GeocodeSource = result.Source
	rec.GeocodeQuality = result.Quality
	if conf, ok := geocodeQualityConfidence[result.Quality]; ok {
		rec.Confidence.Geocoding = conf
	}
}

// overallConfidence averages the populated sub-signals. Geocoding only
// participates when a geocode was attempted and matched.
func overallConfidence(c model.ConfidenceSet) float64 {
	sum := c.Triage + c.Validation + c.Classification
	n := 3.0
	if c.Geocoding > 0 {
		sum += c.Geocoding
		n++
	}
	return sum / n
}
