package extract

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthlens/provider-directory/internal/gateway"
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

func TestExtractProviders(t *testing.T) {
	gen := &fakeGenerator{reply: `{
		"providers": [
			{
				"full_name": "Dr. Jane Doe",
				"speciality": "Cardiology",
				"phone": "555-0101",
				"address": "1 Main St, Springfield",
				"license_id": "MD-1234",
				"source_page": 3,
				"extraction_confidence": 0.92
			},
			{
				"full_name": "Dr. John Roe",
				"speciality": "Dermatology",
				"phone": "555-0102",
				"address": "2 Oak Ave, Springfield",
				"extraction_confidence": 0.74
			}
		]
	}`}
	ex := New(gen)

	got := ex.ExtractProviders(context.Background(), "raw directory text")
	require.Len(t, got, 2)

	assert.Equal(t, "Dr. Jane Doe", got[0].FullName)
	assert.Equal(t, "Cardiology", got[0].Speciality)
	assert.Equal(t, "MD-1234", got[0].LicenseID)
	require.NotNil(t, got[0].SourcePage)
	assert.Equal(t, 3, *got[0].SourcePage)
	assert.InDelta(t, 0.92, got[0].ExtractionConfidence, 0.001)

	assert.Nil(t, got[1].SourcePage)
	assert.Equal(t, "raw directory text", gen.lastPayload)
	assert.Contains(t, gen.lastSystem, "extraction_confidence")
}

func TestExtractProviders_EmptyDocument(t *testing.T) {
	gen := &fakeGenerator{reply: `{"providers": []}`}
	ex := New(gen)

	got := ex.ExtractProviders(context.Background(), "cover page, no providers")
	assert.Empty(t, got)
}

func TestExtractProviders_GatewayErrorDegradesToEmpty(t *testing.T) {
	gen := &fakeGenerator{err: eris.New("model unreachable")}
	ex := New(gen)

	got := ex.ExtractProviders(context.Background(), "some text")
	assert.Empty(t, got)
}

func TestExtractProviders_ParseErrorDegradesToEmpty(t *testing.T) {
	gen := &fakeGenerator{err: &gateway.ParseError{Raw: "not json", Err: eris.New("bad")}}
	ex := New(gen)

	got := ex.ExtractProviders(context.Background(), "some text")
	assert.Empty(t, got)
}
