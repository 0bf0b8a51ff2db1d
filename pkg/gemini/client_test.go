package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthlens/provider-directory/internal/resilience"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-key",
		WithBaseURL(srv.URL),
		WithModel("gemini-pro"),
		WithHTTPClient(srv.Client()),
	)
	return srv, c
}

func successBody(text string) []byte {
	b, _ := json.Marshal(generateResponse{
		Candidates: []candidate{{
			Content: content{
				Role:  "model",
				Parts: []part{{Text: text}},
			},
		}},
	})
	return b
}

func TestGenerateText_Success(t *testing.T) {
	var gotPath string
	var gotReq generateRequest
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write(successBody(`{"answer": 1}`))
	})

	text, err := c.GenerateText(context.Background(), "You are a scorer.", "payload")
	require.NoError(t, err)
	assert.Equal(t, `{"answer": 1}`, text)
	assert.Equal(t, "/models/gemini-pro:generateContent", gotPath)
	require.Len(t, gotReq.Contents, 1)
	assert.Equal(t, "user", gotReq.Contents[0].Role)
	assert.Contains(t, gotReq.Contents[0].Parts[0].Text, "You are a scorer.")
	assert.Contains(t, gotReq.Contents[0].Parts[0].Text, "payload")
	assert.InDelta(t, 0.2, gotReq.GenerationConfig.Temperature, 0.001)
}

func TestGenerateText_RateLimitedIsTransient(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := c.GenerateText(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	assert.True(t, resilience.IsTransient(err))
}

func TestGenerateText_ModelNotFoundIsFatal(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})

	_, err := c.GenerateText(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrModelNotFound))
	assert.False(t, resilience.IsTransient(err))
}

func TestGenerateText_BadRequestNotTransient(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid argument", http.StatusBadRequest)
	})

	_, err := c.GenerateText(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.False(t, eris.Is(err, ErrModelNotFound))
}

func TestGenerateText_EmptyCandidates(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	})

	_, err := c.GenerateText(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty or unexpected response")
}

func TestGenerateText_MissingAPIKey(t *testing.T) {
	c := NewClient("")
	_, err := c.GenerateText(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is not set")
}
