package source

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthlens/provider-directory/internal/model"
)

type stubSource struct {
	name   string
	fields map[string]bool
	cands  []model.Candidate
	err    error
	calls  int
}

func (s *stubSource) Name() string               { return s.name }
func (s *stubSource) Supports(field string) bool { return s.fields[field] }

func (s *stubSource) FetchCandidates(_ context.Context, _ *model.Provider, _ string) ([]model.Candidate, error) {
	s.calls++
	return s.cands, s.err
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	src := &stubSource{name: "state-board"}
	require.NoError(t, r.Register(src))

	got, ok := r.Get("state-board")
	require.True(t, ok)
	assert.Equal(t, src, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubSource{name: "state-board"}))
	err := r.Register(&stubSource{name: "state-board"})
	require.Error(t, err)
}

func TestRegistry_ListPreservesOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubSource{name: "b"}))
	require.NoError(t, r.Register(&stubSource{name: "a"}))
	assert.Equal(t, []string{"b", "a"}, r.List())
}

func TestRegistry_FetchAll(t *testing.T) {
	phone := map[string]bool{model.FieldPhone: true}
	good := &stubSource{
		name:   "insurer-roster",
		fields: phone,
		cands:  []model.Candidate{{Value: "555-0101", SourceType: model.SourceAPI, ReliabilityScore: 0.7}},
	}
	failing := &stubSource{name: "flaky-scrape", fields: phone, err: eris.New("timeout")}
	addressOnly := &stubSource{name: "address-db", fields: map[string]bool{model.FieldAddress: true}}

	r := NewRegistry()
	require.NoError(t, r.Register(good))
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(addressOnly))

	got := r.FetchAll(context.Background(), &model.Provider{ID: "p1"}, model.FieldPhone)
	require.Len(t, got, 1)
	assert.Equal(t, "555-0101", got[0].Value)

	assert.Equal(t, 1, good.calls)
	assert.Equal(t, 1, failing.calls, "failing source is still consulted")
	assert.Equal(t, 0, addressOnly.calls, "unsupported field is never fetched")
}

func TestStaticProvider(t *testing.T) {
	s := NewStatic("static", []StaticEntry{
		{Field: model.FieldPhone, Value: "555-0150", Reliability: 0.5},
		{Field: model.FieldPhone, Value: "555-0160", Reliability: 0.9},
		{Field: model.FieldAddress, Value: "9 Elm St", Reliability: 0.6},
	})

	assert.True(t, s.Supports(model.FieldPhone))
	assert.True(t, s.Supports(model.FieldAddress))
	assert.False(t, s.Supports(model.FieldLicenseID))

	cands, err := s.FetchCandidates(context.Background(), &model.Provider{}, model.FieldPhone)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "555-0160", cands[0].Value, "higher reliability first")
	assert.Equal(t, model.SourceAPI, cands[0].SourceType)
	assert.False(t, cands[0].SeenAt.IsZero())

	none, err := s.FetchCandidates(context.Background(), &model.Provider{}, model.FieldLicenseID)
	require.NoError(t, err)
	assert.Empty(t, none)
}
