package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civic-stack/triage311/internal/model"
)

func TestResolve_AllCombinations(t *testing.T) {
	tests := []struct {
		name         string
		isEmergency  bool
		belongsIn311 bool
		want         model.Recommendation
	}{
		{"emergency outside 311", true, false, model.RecommendRedirect911},
		{"emergency inside 311", true, true, model.RecommendExpedite},
		{"non-emergency outside 311", false, false, model.RecommendRedirectOther},
		{"non-emergency inside 311", false, true, model.RecommendProcessNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.isEmergency, tt.belongsIn311))
		})
	}
}
