package pipeline

import "github.com/civic-stack/triage311/internal/model"

// Resolve maps the two classification booleans onto a routing
// recommendation. Emergencies outside 311 go to 911; emergencies inside
// 311 are expedited; non-emergencies outside 311 are redirected; the
// rest flow through normal intake.
func Resolve(isEmergency, belongsIn311 bool) model.Recommendation {
	switch {
	case isEmergency && !belongsIn311:
		return model.RecommendRedirect911
	case isEmergency:
		return model.RecommendExpedite
	case !belongsIn311:
		return model.RecommendRedirectOther
	default:
		return model.RecommendProcessNormal
	}
}
