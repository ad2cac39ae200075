package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/chat-moderator/backend/pipeline"
	"github.com/onnwee/chat-moderator/backend/testutil"
)

func newOpenAIClient(t *testing.T, m *testutil.MockAIServer) *Client {
	t.Helper()
	c, err := New(Options{
		Provider:        ProviderOpenAI,
		APIKey:          "sk-test",
		BaseURL:         m.URL + "/v1",
		GenerationModel: "gpt-4o-mini",
		Timeout:         5 * time.Second,
		HTTPClient:      m.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{Provider: ProviderOpenAI}); err == nil {
		t.Error("expected error without api key")
	}
	if _, err := New(Options{Provider: ProviderOllama}); err == nil {
		t.Error("expected error without ollama host")
	}
	if _, err := New(Options{Provider: "bard", APIKey: "x"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	c, err := New(Options{APIKey: "sk"})
	if err != nil || c.Provider() != ProviderOpenAI {
		t.Errorf("default provider: c=%v err=%v", c, err)
	}
}

func TestClassifyOpenAIModeration(t *testing.T) {
	m := testutil.NewMockAIServer(t)
	m.MockModerationResponse(true,
		map[string]bool{"harassment": true, "hate": false, "violence/graphic": true},
		map[string]float64{"harassment": 0.82, "hate": 0.12, "violence/graphic": 0.55},
	)
	c := newOpenAIClient(t, m)

	v, err := c.Classify(context.Background(), "texte agressif")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !v.Flagged {
		t.Fatal("expected flagged verdict")
	}
	flagged := v.FlaggedCategories()
	if len(flagged) != 2 || flagged[0].Category != pipeline.CategoryHarassment || flagged[1].Category != pipeline.CategoryViolenceGraphic {
		t.Fatalf("flagged categories = %+v", flagged)
	}
	if d := flagged[0].Score - 0.82; d > 1e-6 || d < -1e-6 {
		t.Errorf("harassment score = %v", flagged[0].Score)
	}
	if got := v.Categories[pipeline.CategoryHate]; got.Flagged || got.Score < 0.11 {
		t.Errorf("hate = %+v", got)
	}

	reqs := m.Requests()
	if len(reqs) != 1 || reqs[0].Path != "/v1/moderations" {
		t.Fatalf("requests = %+v", reqs)
	}
	if reqs[0].Body["model"] != "omni-moderation-latest" || reqs[0].Body["input"] != "texte agressif" {
		t.Errorf("moderation body = %v", reqs[0].Body)
	}
	if reqs[0].Auth != "Bearer sk-test" {
		t.Errorf("auth header = %q", reqs[0].Auth)
	}
}

func TestClassifyOpenAIErrorCarriesStatus(t *testing.T) {
	m := testutil.NewMockAIServer(t)
	m.MockError("/v1/moderations", http.StatusUnauthorized, "Incorrect API key provided")
	c := newOpenAIClient(t, m)

	_, err := c.Classify(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := pipeline.ClassifyError(err); got != pipeline.ErrorClassFatal {
		t.Errorf("ClassifyError(%v) = %v, want fatal", err, got)
	}
}

func TestGenerateOpenAI(t *testing.T) {
	m := testutil.NewMockAIServer(t)
	m.MockChatResponse("<think>hmm</think>\n\nBonjour Alice!")
	c := newOpenAIClient(t, m)

	got, err := c.Generate(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Bonjour Alice!" {
		t.Errorf("Generate = %q", got)
	}
	reqs := m.Requests()
	if len(reqs) != 1 || reqs[0].Path != "/v1/chat/completions" {
		t.Fatalf("requests = %+v", reqs)
	}
	msgs, _ := reqs[0].Body["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", reqs[0].Body["messages"])
	}
	first, _ := msgs[0].(map[string]interface{})
	second, _ := msgs[1].(map[string]interface{})
	if first["role"] != "system" || first["content"] != "system prompt" || second["role"] != "user" || second["content"] != "user prompt" {
		t.Errorf("messages = %v", msgs)
	}
	if reqs[0].Body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", reqs[0].Body["model"])
	}
}

func TestGenerateServerErrorIsRetryable(t *testing.T) {
	m := testutil.NewMockAIServer(t)
	m.MockError("/v1/chat/completions", http.StatusServiceUnavailable, "overloaded")
	c := newOpenAIClient(t, m)

	_, err := c.Generate(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := pipeline.ClassifyError(err); got != pipeline.ErrorClassRetryable {
		t.Errorf("ClassifyError(%v) = %v, want retryable", err, got)
	}
}

func TestOllamaProvider(t *testing.T) {
	m := testutil.NewMockAIServer(t)
	m.MockChatResponse("<thinking>ok</thinking><flagged>true</flagged><reason>harassment, hate_speech</reason><category_scores>0.6</category_scores>")
	c, err := New(Options{Provider: ProviderOllama, OllamaHost: m.URL + "/", GenerationModel: "llama3", HTTPClient: m.Client()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	v, err := c.Classify(context.Background(), "La France aux Français")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !v.Flagged {
		t.Fatal("expected flagged")
	}
	if r := v.Categories[pipeline.CategoryHarassment]; !r.Flagged || r.Score != 0.6 {
		t.Errorf("harassment = %+v", r)
	}
	if r := v.Categories[pipeline.CategoryHate]; !r.Flagged {
		t.Errorf("hate = %+v", r)
	}

	reqs := m.Requests()
	if len(reqs) != 1 || reqs[0].Path != "/v1/chat/completions" {
		t.Fatalf("requests = %+v", reqs)
	}
	if reqs[0].Body["model"] != "llama3" {
		t.Errorf("model = %v", reqs[0].Body["model"])
	}
	msgs, _ := reqs[0].Body["messages"].([]interface{})
	user, _ := msgs[1].(map[string]interface{})
	if content, _ := user["content"].(string); !strings.HasSuffix(content, "La France aux Français") {
		t.Errorf("user message = %q", content)
	}
}

func TestTimeoutBoundsCalls(t *testing.T) {
	m := testutil.NewMockAIServer(t)
	m.Handlers["/v1/chat/completions"] = func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}
	c, err := New(Options{APIKey: "sk", BaseURL: m.URL + "/v1", Timeout: 50 * time.Millisecond, HTTPClient: m.Client()})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Generate(context.Background(), "s", "u")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestClassifyOpenAIIllicitCategories(t *testing.T) {
	m := testutil.NewMockAIServer(t)
	m.MockModerationResponse(true,
		map[string]bool{"illicit": true, "illicit/violent": false, "hate": false},
		map[string]float64{"illicit": 0.91, "illicit/violent": 0.2, "hate": 0.01},
	)
	c := newOpenAIClient(t, m)

	v, err := c.Classify(context.Background(), "x")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	flagged := v.FlaggedCategories()
	if len(flagged) != 1 || flagged[0].Category != pipeline.CategoryIllicit {
		t.Fatalf("flagged categories = %+v", flagged)
	}
	if r := v.Categories[pipeline.CategoryIllicitViolent]; r.Flagged || r.Score != 0.2 {
		t.Errorf("illicit/violent = %+v", r)
	}

	alert := pipeline.Alert{Identity: "u", Text: "x", Reasons: flagged}
	if got, want := alert.Body(), "u: x\nRaison: illicit (score: 0.9)"; got != want {
		t.Errorf("Body = %q, want %q", got, want)
	}
}

func TestClassifyOpenAIUnknownCategoryIgnored(t *testing.T) {
	m := testutil.NewMockAIServer(t)
	m.MockModerationResponse(true,
		map[string]bool{"weapons": true, "violence": true},
		map[string]float64{"weapons": 0.7, "violence": 0.65},
	)
	c := newOpenAIClient(t, m)

	v, err := c.Classify(context.Background(), "x")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if flagged := v.FlaggedCategories(); len(flagged) != 1 || flagged[0].Category != pipeline.CategoryViolence {
		t.Errorf("flagged categories = %+v", flagged)
	}
}
