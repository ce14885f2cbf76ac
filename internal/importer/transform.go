// Package importer loads historical 311 export files into the store:
// row transformation, reference data extraction, and batched upserts.
package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/civic-stack/triage311/internal/fetcher"
	"github.com/civic-stack/triage311/internal/model"
)

// slaEmergencyWindow marks a request as an emergency when the export's
// SLA target falls within this window of the open time. Historical
// exports carry no explicit emergency flag, so the SLA is the best
// available signal.
const slaEmergencyWindow = 24 * time.Hour

// datetimeLayouts are the timestamp formats seen across city exports.
var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 03:04:05 PM",
	"2006-01-02",
}

// parseDatetime tries each known layout. Returns zero time when nothing
// matches.
func parseDatetime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// statusFromExport maps export case statuses onto record statuses.
func statusFromExport(s string) model.RecordStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closed":
		return model.RecordStatusClosed
	case "in progress":
		return model.RecordStatusInProgress
	case "resolved":
		return model.RecordStatusResolved
	default:
		return model.RecordStatusNew
	}
}

// TransformRow converts one export row into a canonical record.
// Returns an error for rows missing the external case ID; those cannot
// be imported idempotently.
func TransformRow(row []string, idx map[string]int) (*model.CanonicalRecord, error) {
	externalID := fetcher.Field(row, idx, "case_enquiry_id")
	if externalID == "" {
		return nil, eris.New("importer: row missing case_enquiry_id")
	}

	title := fetcher.Field(row, idx, "case_title")
	if title == "" {
		title = model.UnknownField
	}
	address := fetcher.Field(row, idx, "location")
	if address == "" {
		address = "Unknown location"
	}
	// Exports carry no original resident text; synthesize a summary.
	summary := fmt.Sprintf("%s - %s", title, address)

	department := strings.TrimSpace(fetcher.Field(row, idx, "subject"))

	createdAt := parseDatetime(fetcher.Field(row, idx, "open_dt"))
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var latitude, longitude *float64
	if lat, err := strconv.ParseFloat(fetcher.Field(row, idx, "latitude"), 64); err == nil {
		if lon, err := strconv.ParseFloat(fetcher.Field(row, idx, "longitude"), 64); err == nil {
			latitude, longitude = &lat, &lon
		}
	}

	// SLA within 24h of open marks the request as a potential emergency.
	isEmergency := false
	if target := parseDatetime(fetcher.Field(row, idx, "sla_target_dt")); !target.IsZero() && !createdAt.IsZero() {
		if diff := target.Sub(createdAt); diff > 0 && diff < slaEmergencyWindow {
			isEmergency = true
		}
	}

	priority := model.PriorityMedium
	if isEmergency {
		priority = model.PriorityHigh
	}

	// Valid records always carry a category; some exports leave reason blank.
	category := strings.TrimSpace(fetcher.Field(row, idx, "reason"))
	if category == "" {
		category = "General Request"
	}

	rec := &model.CanonicalRecord{
		ID:          uuid.New().String(),
		ExternalID:  externalID,
		RawInput:    summary,
		IsEmergency: isEmergency,
		IsValid:     true, // imported requests were accepted by the source system
		Status:      statusFromExport(fetcher.Field(row, idx, "case_status")),
		Category:    category,
		Subcategory: title,
		Department:  department,
		Address:     address,
		Description: summary,
		Priority:    priority,
		Notes:       fetcher.Field(row, idx, "closure_reason"),
		Latitude:    latitude,
		Longitude:   longitude,
		Source:      fetcher.Field(row, idx, "source"),
		CreatedAt:   createdAt,
	}
	return rec, nil
}
