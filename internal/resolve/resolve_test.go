package resolve

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthlens/provider-directory/internal/model"
)

type fakeGenerator struct {
	lastSystem  string
	lastPayload any
	reply       string
	err         error
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, system string, payload any, out any) error {
	f.lastSystem = system
	f.lastPayload = payload
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.reply), out)
}

func sampleCandidates() []model.Candidate {
	seen := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []model.Candidate{
		{Value: "555-0101", SourceType: model.SourcePDF, ReliabilityScore: 0.8, SeenAt: seen},
		{Value: "555-0199", SourceType: model.SourceCurrentDB, ReliabilityScore: 0.6, SeenAt: seen.AddDate(0, -2, 0)},
	}
}

func TestResolveField(t *testing.T) {
	gen := &fakeGenerator{reply: `{"final_value": "555-0101", "confidence": 0.91, "reason": "newer upload from a more reliable source"}`}
	r := New(gen)

	res, err := r.ResolveField(context.Background(), "Dr. Jane Doe", model.FieldPhone, sampleCandidates())
	require.NoError(t, err)
	assert.Equal(t, "555-0101", res.FinalValue)
	assert.InDelta(t, 0.91, res.Confidence, 0.001)
	assert.NotEmpty(t, res.Reason)

	req, ok := gen.lastPayload.(resolveRequest)
	require.True(t, ok)
	assert.Equal(t, "Dr. Jane Doe", req.ProviderName)
	assert.Equal(t, model.FieldPhone, req.Field)
	assert.Len(t, req.Candidates, 2)
	assert.Contains(t, gen.lastSystem, "final_value")
}

func TestResolveField_RequiresTwoCandidates(t *testing.T) {
	r := New(&fakeGenerator{})

	_, err := r.ResolveField(context.Background(), "Dr. Jane Doe", model.FieldPhone, sampleCandidates()[:1])
	require.Error(t, err)

	_, err = r.ResolveField(context.Background(), "Dr. Jane Doe", model.FieldPhone, nil)
	require.Error(t, err)
}

func TestResolveField_GatewayErrorPropagates(t *testing.T) {
	gen := &fakeGenerator{err: eris.New("rate limited")}
	r := New(gen)

	_, err := r.ResolveField(context.Background(), "Dr. Jane Doe", model.FieldAddress, sampleCandidates())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adjudicate")
}

func TestResolveField_EmptyFinalValueRejected(t *testing.T) {
	gen := &fakeGenerator{reply: `{"final_value": "", "confidence": 0.2, "reason": "unsure"}`}
	r := New(gen)

	_, err := r.ResolveField(context.Background(), "Dr. Jane Doe", model.FieldPhone, sampleCandidates())
	require.Error(t, err)
}
