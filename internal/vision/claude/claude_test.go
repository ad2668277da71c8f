package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/bloom/internal/vision"
)

func messageResponse(text string) map[string]any {
	return map[string]any{
		"id":          "msg_01",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-3-5-haiku-latest",
		"stop_reason": "end_turn",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"usage": map[string]any{"input_tokens": 10, "output_tokens": 20},
	}
}

func newServer(t *testing.T, text string, seen *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(messageResponse(text)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClaudeIdentify(t *testing.T) {
	var body map[string]any
	server := newServer(t, "NAME: Ficus\nFACT: It grows fast. It loves light.", &body)

	identifier := NewClaudeIdentifier("sk-test", "claude-3-5-haiku-latest")
	identifier.baseURL = server.URL

	got, err := identifier.Identify(context.Background(), bytes.NewReader([]byte{0xFF, 0xD8}), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "Ficus", got.Name)
	assert.Equal(t, "It grows fast. It loves light.", got.FunFact)

	assert.Equal(t, "claude-3-5-haiku-latest", body["model"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
}

func TestClaudeIdentifyUnparseable(t *testing.T) {
	server := newServer(t, "I am not sure what this is.", nil)

	identifier := NewClaudeIdentifier("sk-test", "claude-3-5-haiku-latest")
	identifier.baseURL = server.URL

	_, err := identifier.Identify(context.Background(), bytes.NewReader([]byte{0xFF, 0xD8}), "image/jpeg")
	assert.ErrorIs(t, err, vision.ErrNameMissing)
}

func TestClaudeIdentifyAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"rate limited"}}`))
	}))
	defer server.Close()

	identifier := NewClaudeIdentifier("sk-test", "claude-3-5-haiku-latest")
	identifier.baseURL = server.URL

	_, err := identifier.Identify(context.Background(), bytes.NewReader([]byte{0xFF, 0xD8}), "image/jpeg")
	require.Error(t, err)

	var verr *vision.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "claude", verr.Backend)
	assert.Contains(t, err.Error(), "failed to identify")
}

func TestClaudeGenerateFact(t *testing.T) {
	server := newServer(t, "  Oaks host hundreds of insects. Acorns feed jays.  ", nil)

	identifier := NewClaudeIdentifier("sk-test", "claude-3-5-haiku-latest")
	identifier.baseURL = server.URL

	fact, err := identifier.GenerateFact(context.Background(), "Oak")
	require.NoError(t, err)
	assert.Equal(t, "Oaks host hundreds of insects. Acorns feed jays.", fact)
}

func TestClaudeIdentifyReadError(t *testing.T) {
	identifier := NewClaudeIdentifier("sk-test", "claude-3-5-haiku-latest")

	_, err := identifier.Identify(context.Background(), &errReader{}, "image/jpeg")
	var verr *vision.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, backendName, verr.Backend)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// errReader always returns an error on Read.
type errReader struct{}

func (e *errReader) Read(_ []byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestNormaliseMIME(t *testing.T) {
	assert.Equal(t, "image/png", normaliseMIME("image/png"))
	assert.Equal(t, "image/jpeg", normaliseMIME("image/heic"))
}
