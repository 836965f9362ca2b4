package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mock "spiralcodex/rotor/internal/providers"
	"spiralcodex/rotor/pkg/catalog"
	"spiralcodex/rotor/pkg/providers"
)

func testDescriptor(baseURL string) catalog.Descriptor {
	return catalog.Descriptor{
		ID:             "huggingface",
		Family:         catalog.FamilyHuggingFace,
		BaseURL:        baseURL,
		ModelsEndpoint: "models",
		ChatEndpoint:   "models",
		DefaultModel:   "default-model",
	}
}

// instantBackoff is the production policy with the sleep removed.
func instantBackoff() providers.Backoff {
	b := providers.DefaultBackoff()
	b.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return b
}

func newTestClient(t *testing.T, ms *mock.MockServer) *Client {
	t.Helper()

	client, err := NewWithBackoff(testDescriptor(ms.URL()), "test-key", instantBackoff())
	if err != nil {
		t.Fatalf("NewWithBackoff() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestChatPostsFlattenedPromptToModelPath(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(mock.MockGeneration("the answer"))
	}))
	defer server.Close()

	client, err := NewWithBackoff(testDescriptor(server.URL), "test-key", instantBackoff())
	if err != nil {
		t.Fatalf("NewWithBackoff() error = %v", err)
	}
	defer client.Close()

	resp, err := client.Chat(context.Background(), "org/model", []providers.Message{
		{Role: providers.RoleSystem, Content: "be brief"},
		{Role: providers.RoleUser, Content: "what is Go"},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if gotPath != "/models/org/model" {
		t.Errorf("request path = %q, want %q", gotPath, "/models/org/model")
	}
	wantPrompt := "system: be brief\nuser: what is Go\n"
	if gotBody["inputs"] != wantPrompt {
		t.Errorf("inputs = %q, want %q", gotBody["inputs"], wantPrompt)
	}
	if resp.Content != "the answer" {
		t.Errorf("Content = %q, want %q", resp.Content, "the answer")
	}
}

func TestChatRetriesWhileModelLoads(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetSequence("/models/m",
		mock.MockLoadingError(),
		mock.MockLoadingError(),
		mock.MockResponse{StatusCode: http.StatusOK, Body: mock.MockGeneration("ready now")},
	)

	client := newTestClient(t, ms)

	resp, err := client.Chat(context.Background(), "m", []providers.Message{
		{Role: providers.RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != "ready now" {
		t.Errorf("Content = %q, want %q", resp.Content, "ready now")
	}
	if got := ms.RequestCount(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestChatExhaustsRetriesOnPersistent503(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetResponse("/models/m", mock.MockLoadingError())

	client := newTestClient(t, ms)

	_, err := client.Chat(context.Background(), "m", []providers.Message{
		{Role: providers.RoleUser, Content: "hi"},
	})
	if !errors.Is(err, providers.ErrRetriesExhausted) {
		t.Fatalf("Chat() error = %v, want ErrRetriesExhausted", err)
	}
	if got := ms.RequestCount(); got != providers.DefaultMaxAttempts {
		t.Errorf("requests = %d, want %d", got, providers.DefaultMaxAttempts)
	}
}

func TestChatAuthErrorNotRetried(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetResponse("/models/m", mock.MockAuthError())

	client := newTestClient(t, ms)

	_, err := client.Chat(context.Background(), "m", nil)
	if !errors.Is(err, providers.ErrAuth) {
		t.Fatalf("Chat() error = %v, want ErrAuth", err)
	}
	if got := ms.RequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1 (auth errors must not retry)", got)
	}
}

func TestChatSynthesizesUsage(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetResponse("/models/m", mock.MockResponse{
		StatusCode: http.StatusOK,
		Body:       mock.MockGeneration("three word reply"),
	})

	client := newTestClient(t, ms)

	resp, err := client.Chat(context.Background(), "m", []providers.Message{
		{Role: providers.RoleUser, Content: "two words"},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	// Prompt flattens to "user: two words\n" -> 3 fields.
	if resp.Usage.PromptTokens != 3 {
		t.Errorf("PromptTokens = %d, want 3", resp.Usage.PromptTokens)
	}
	if resp.Usage.CompletionTokens != 3 {
		t.Errorf("CompletionTokens = %d, want 3", resp.Usage.CompletionTokens)
	}
	if resp.Usage.TotalTokens != 6 {
		t.Errorf("TotalTokens = %d, want 6", resp.Usage.TotalTokens)
	}
}

func TestChatEmptyGenerationsIsParseError(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetResponse("/models/m", mock.MockResponse{
		StatusCode: http.StatusOK,
		Body:       []map[string]interface{}{},
	})

	client := newTestClient(t, ms)

	_, err := client.Chat(context.Background(), "m", nil)

	var parseErr *providers.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Chat() error type = %T, want *ParseError", err)
	}
}

func TestFlattenMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []providers.Message
		want     string
	}{
		{
			name: "roles preserved",
			messages: []providers.Message{
				{Role: providers.RoleSystem, Content: "a"},
				{Role: providers.RoleUser, Content: "b"},
				{Role: providers.RoleAssistant, Content: "c"},
			},
			want: "system: a\nuser: b\nassistant: c\n",
		},
		{
			name:     "missing role defaults to user",
			messages: []providers.Message{{Content: "hello"}},
			want:     "user: hello\n",
		},
		{
			name: "empty",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FlattenMessages(tt.messages); got != tt.want {
				t.Errorf("FlattenMessages() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSynthesizeUsage(t *testing.T) {
	u := SynthesizeUsage("one two three", "four five")
	if u.PromptTokens != 3 || u.CompletionTokens != 2 || u.TotalTokens != 5 {
		t.Errorf("SynthesizeUsage() = %+v, want 3/2/5", u)
	}
}
