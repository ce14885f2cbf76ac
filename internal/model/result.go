package model

// Outcome tags the terminal state of a pipeline run.
type Outcome string

const (
	OutcomeEmergency        Outcome = "emergency"
	OutcomeNonServiceable   Outcome = "non_serviceable"
	OutcomeProcessed        Outcome = "processed"
	OutcomeExtractionFailed Outcome = "extraction_failed"
)

// Processing status values, set only on processed results.
const (
	StatusExpedited = "expedited"
	StatusNormal    = "normal"
)

// TokenUsage tallies model token consumption across pipeline stages.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates usage from another stage.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Result is the pipeline's tagged output. Exactly one outcome is set,
// and the classification's recommendation always agrees with it:
// emergency ⇔ REDIRECT_TO_911, non_serviceable ⇔
// REDIRECT_TO_OTHER_SERVICE, processed/extraction_failed ⇔
// EXPEDITE or PROCESS_NORMALLY. Extracted is non-nil only on
// processed.
type Result struct {
	Outcome        Outcome           `json:"outcome"`
	Status         string            `json:"status,omitempty"`
	Action         string            `json:"action,omitempty"`
	Message        string            `json:"message,omitempty"`
	RawInput       string            `json:"raw_input"`
	Classification Classification    `json:"classification"`
	Extracted      *ExtractedRequest `json:"extracted,omitempty"`
	Usage          TokenUsage        `json:"usage"`
}

// Terminal reports whether the outcome skipped extraction entirely.
func (r *Result) Terminal() bool {
	return r.Outcome == OutcomeEmergency || r.Outcome == OutcomeNonServiceable
}
