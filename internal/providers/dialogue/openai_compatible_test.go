package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/rumormill/internal/core"
)

func chatCompletion(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func newTestProvider(url string) *OpenAICompatible {
	return NewOpenAICompatible(OpenAICompatibleConfig{
		BaseURL:    url,
		APIKey:     "test-key",
		Model:      "test-model",
		AuthHeader: "Authorization",
		AuthPrefix: "Bearer ",
		ExtraHeaders: map[string]string{
			"X-Title": "RumorMill",
		},
	})
}

func TestOpenAICompatible_Generate(t *testing.T) {
	var gotPath, gotAuth, gotTitle string
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotTitle = r.Header.Get("X-Title")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		fmt.Fprint(w, chatCompletion(`{"utterance": "The ledger pages were re-inked.", "monologue": "Too neat.", "rumor_delta": 0.2, "sentiment": "tense", "new_memory": "ledger re-inked"}`))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	got, err := p.Generate(context.Background(), core.GenerationRequest{
		Speaker:  core.SpeakerProfile{Name: "Mara", Title: "Mara, the Grumpy Shopkeeper", Voice: "grumpy", Mood: "grumpy"},
		Listener: core.SpeakerProfile{Name: "Rylan", Title: "Rylan, the Anxious Guard", Voice: "anxious", Mood: "anxious"},
		Topic:    "the shop ledger",
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "RumorMill", gotTitle)
	assert.Equal(t, "test-model", gotPayload["model"])
	assert.InDelta(t, 0.9, gotPayload["temperature"], 1e-9)

	messages, ok := gotPayload["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)

	assert.Equal(t, "The ledger pages were re-inked.", got.Utterance)
	assert.Equal(t, "tense", got.Sentiment)
	assert.InDelta(t, 0.2, got.RumorDelta, 1e-9)
}

func TestOpenAICompatible_StrictLowersTemperature(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, chatCompletion(`{"utterance": "Fine.", "rumor_delta": 0.05, "sentiment": "worried", "new_memory": "fine"}`))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Generate(context.Background(), core.GenerationRequest{Strict: true, Topic: "x"})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, gotPayload["temperature"], 1e-9)

	system, ok := gotPayload["messages"].([]any)[0].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, system["content"], "could not be parsed")
}

func TestOpenAICompatible_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, chatCompletion(`{"utterance": "Recovered.", "rumor_delta": 0.1, "sentiment": "worried", "new_memory": "recovered"}`))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	got, err := p.Generate(context.Background(), core.GenerationRequest{Topic: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Recovered.", got.Utterance)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAICompatible_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "bad key"}`)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Generate(context.Background(), core.GenerationRequest{Topic: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAICompatible_MalformedModelOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatCompletion("I would rather describe the scene in prose."))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Generate(context.Background(), core.GenerationRequest{Topic: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidResponse))
}

func TestOpenAICompatible_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Generate(context.Background(), core.GenerationRequest{Topic: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty choices")
}
