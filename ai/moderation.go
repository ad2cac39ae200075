package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/onnwee/chat-moderator/backend/pipeline"
)

// Classify implements pipeline.Classifier.
func (c *Client) Classify(ctx context.Context, text string) (pipeline.Verdict, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	if c.provider == ProviderOllama {
		return c.classifyWithChat(ctx, text)
	}
	return c.classifyWithModeration(ctx, text)
}

// moderationResult is decoded by hand: the library's typed result has a
// fixed field set and drops categories it does not know (illicit,
// illicit/violent).
type moderationResult struct {
	Flagged        bool               `json:"flagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"category_scores"`
}

type moderationResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Results []moderationResult `json:"results"`
}

func (c *Client) classifyWithModeration(ctx context.Context, text string) (pipeline.Verdict, error) {
	payload, err := json.Marshal(openai.ModerationRequest{Input: text, Model: c.moderationModel})
	if err != nil {
		return pipeline.Verdict{}, fmt.Errorf("openai moderation: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/moderations", bytes.NewReader(payload))
	if err != nil {
		return pipeline.Verdict{}, fmt.Errorf("openai moderation: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pipeline.Verdict{}, fmt.Errorf("openai moderation: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // body fully read or abandoned
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		return pipeline.Verdict{}, fmt.Errorf("openai moderation: %w", decodeAPIError(resp))
	}
	var out moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return pipeline.Verdict{}, fmt.Errorf("openai moderation: decode response: %w", err)
	}
	if len(out.Results) == 0 {
		return pipeline.Verdict{}, errors.New("openai moderation: empty results")
	}
	return verdictFromResult(out.Results[0]), nil
}

// decodeAPIError turns an error response into the library's APIError so the
// message carries the status code like every other call through the client.
func decodeAPIError(resp *http.Response) error {
	var body openai.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == nil {
		return &openai.RequestError{
			HTTPStatus:     resp.Status,
			HTTPStatusCode: resp.StatusCode,
			Err:            errors.New(http.StatusText(resp.StatusCode)),
		}
	}
	body.Error.HTTPStatus = resp.Status
	body.Error.HTTPStatusCode = resp.StatusCode
	return body.Error
}

// verdictFromResult maps API category names onto the enumerated pipeline
// categories. Names outside the enumeration are logged and dropped.
func verdictFromResult(r moderationResult) pipeline.Verdict {
	v := pipeline.Verdict{
		Flagged:    r.Flagged,
		Categories: make(map[pipeline.Category]pipeline.CategoryResult, len(r.CategoryScores)),
	}
	seen := make(map[string]struct{}, len(r.CategoryScores))
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		cat, ok := pipeline.ParseCategory(name)
		if !ok {
			slog.Debug("unknown moderation category", slog.String("category", name))
			return
		}
		v.Categories[cat] = pipeline.CategoryResult{Flagged: r.Categories[name], Score: r.CategoryScores[name]}
	}
	for name := range r.Categories {
		add(name)
	}
	for name := range r.CategoryScores {
		add(name)
	}
	return v
}

const moderationInstruction = `You are a content moderation system. Analyze the following message and determine if it contains harmful content.
Any type of insult or racism or misgendering or any other type of discrimination is harmful content.
Be really sensitive to everything related to sex, gender, race, religion, etc.
If any harmful content is included in the message, flag it as true.
You speak french, so don't translate the message.
Please respond in XML format using these tags and only these tags:
<flagged>true/false</flagged>
<reason>Specify the reason if flagged, such as: harassment, hate_speech, sexual, violence, self_harm, illegal_activity</reason>
<category_scores>0.0 to 1.0 indicating severity</category_scores>
`

func (c *Client) classifyWithChat(ctx context.Context, text string) (pipeline.Verdict, error) {
	content, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.generationModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: moderationInstruction},
			{Role: openai.ChatMessageRoleUser, Content: "Here is the message to moderate: " + text},
		},
		MaxTokens:   200,
		Temperature: 0.1,
	})
	if err != nil {
		return pipeline.Verdict{}, fmt.Errorf("ollama moderation: %w", err)
	}
	return ParseTaggedVerdict(StripReasoning(content)), nil
}

var (
	flaggedTag = regexp.MustCompile(`(?i)<flagged>\s*(true|false)\s*</flagged>`)
	reasonTag  = regexp.MustCompile(`(?is)<reason>(.*?)</reason>`)
	scoreTag   = regexp.MustCompile(`(?is)<category_scores>(.*?)</category_scores>`)
)

// reasonKeywords maps the free-form reason vocabulary onto categories.
var reasonKeywords = []struct {
	keyword  string
	category pipeline.Category
}{
	{"harassment", pipeline.CategoryHarassment},
	{"hate", pipeline.CategoryHate},
	{"sexual", pipeline.CategorySexual},
	{"violence", pipeline.CategoryViolence},
	{"self_harm", pipeline.CategorySelfHarm},
	{"self-harm", pipeline.CategorySelfHarm},
	{"illegal", pipeline.CategoryIllicit},
}

// ParseTaggedVerdict reads the <flagged>, <reason> and <category_scores> tags
// of a chat-model moderation reply. Every category named in the reason gets
// the single reported score. Missing tags read as not flagged, no reason and
// a zero score.
func ParseTaggedVerdict(content string) pipeline.Verdict {
	v := pipeline.Verdict{Categories: make(map[pipeline.Category]pipeline.CategoryResult)}
	if m := flaggedTag.FindStringSubmatch(content); m != nil {
		v.Flagged = strings.EqualFold(m[1], "true")
	}
	var reason string
	if m := reasonTag.FindStringSubmatch(content); m != nil {
		reason = strings.ToLower(strings.TrimSpace(m[1]))
	}
	var score float64
	if m := scoreTag.FindStringSubmatch(content); m != nil {
		score = leadingFloat(m[1])
	}
	for _, k := range reasonKeywords {
		if strings.Contains(reason, k.keyword) {
			v.Categories[k.category] = pipeline.CategoryResult{Flagged: true, Score: score}
		}
	}
	if !v.Flagged {
		for c, r := range v.Categories {
			r.Flagged = false
			v.Categories[c] = r
		}
	}
	return v
}

var floatPrefix = regexp.MustCompile(`[-+]?\d*\.?\d+`)

func leadingFloat(s string) float64 {
	m := floatPrefix.FindString(s)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return f
}
