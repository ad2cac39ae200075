package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Generator is the external response generation service.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Synthesizer turns a built prompt into response text.
type Synthesizer struct {
	Generator Generator
	Retries   int
}

// Generate calls the generator with the persona instruction and prompt.
// On failure the text is empty and the outcome carries the error.
func (s *Synthesizer) Generate(ctx context.Context, p Persona, prompt string) (string, Outcome) {
	var text string
	err := withRetry(ctx, s.Retries, func() error {
		var err error
		text, err = s.Generator.Generate(ctx, p.System(), prompt)
		return err
	})
	if err != nil {
		return "", failed(StepGenerate, fmt.Errorf("generate %s response: %w", p, err))
	}
	return text, succeeded(StepGenerate)
}

// IsNoOutput reports whether a generated response means "nothing to say":
// empty text, or "ok" with an optional trailing period, in any case.
func IsNoOutput(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "" || t == "ok" || t == "ok."
}
