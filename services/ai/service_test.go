package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stopthephish/phishwatch/config"
	"github.com/stopthephish/phishwatch/dto"
	"github.com/stopthephish/phishwatch/internal/enum"
)

func newEmail() *dto.EmailMessage {
	return &dto.EmailMessage{
		UID:     8,
		Sender:  "attacker@evil.example",
		Subject: "verify your account",
		Body:    "Click https://evil.example/login",
	}
}

func chatServer(t *testing.T, content string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, "attacker@evil.example")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func newService(endpoint string) *aiService {
	return NewAIService(&config.ClassifierConfig{
		Endpoint: endpoint,
		APIKey:   "test-key",
		Model:    "gpt-4o-mini",
		Timeout:  5 * time.Second,
	}).(*aiService)
}

func TestClassifyEmail_PhishingVerdict(t *testing.T) {
	server := chatServer(t, `{"classification": "phishing", "reason": "credential lure", "advice": "do not click"}`)
	defer server.Close()

	result, err := newService(server.URL).ClassifyEmail(context.Background(), newEmail())

	require.NoError(t, err)
	assert.Equal(t, enum.VerdictPhishing, result.Classification)
	assert.Equal(t, "credential lure", result.Reason)
	assert.Equal(t, "do not click", result.Advice)
}

func TestClassifyEmail_FencedVerdictIsAccepted(t *testing.T) {
	server := chatServer(t, "```json\n{\"classification\": \"legitimate\", \"reason\": \"known newsletter\", \"advice\": \"none\"}\n```")
	defer server.Close()

	result, err := newService(server.URL).ClassifyEmail(context.Background(), newEmail())

	require.NoError(t, err)
	assert.Equal(t, enum.VerdictLegitimate, result.Classification)
}

func TestClassifyEmail_MalformedVerdict(t *testing.T) {
	server := chatServer(t, "I think this is probably phishing.")
	defer server.Close()

	_, err := newService(server.URL).ClassifyEmail(context.Background(), newEmail())

	assert.Error(t, err)
}

func TestClassifyEmail_UnknownClassification(t *testing.T) {
	server := chatServer(t, `{"classification": "suspicious", "reason": "", "advice": ""}`)
	defer server.Close()

	_, err := newService(server.URL).ClassifyEmail(context.Background(), newEmail())

	assert.Error(t, err)
}

func TestClassifyEmail_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newService(server.URL).ClassifyEmail(context.Background(), newEmail())

	assert.Error(t, err)
}
