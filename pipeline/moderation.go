package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Category is one moderation policy category.
type Category string

// Moderation categories, in reporting order.
const (
	CategoryHate                  Category = "hate"
	CategoryHateThreatening       Category = "hate/threatening"
	CategoryHarassment            Category = "harassment"
	CategoryHarassmentThreatening Category = "harassment/threatening"
	CategorySelfHarm              Category = "self-harm"
	CategorySelfHarmIntent        Category = "self-harm/intent"
	CategorySelfHarmInstructions  Category = "self-harm/instructions"
	CategorySexual                Category = "sexual"
	CategorySexualMinors          Category = "sexual/minors"
	CategoryViolence              Category = "violence"
	CategoryViolenceGraphic       Category = "violence/graphic"
	CategoryIllicit               Category = "illicit"
	CategoryIllicitViolent        Category = "illicit/violent"
)

// Categories lists every known category in reporting order.
var Categories = []Category{
	CategoryHate, CategoryHateThreatening,
	CategoryHarassment, CategoryHarassmentThreatening,
	CategorySelfHarm, CategorySelfHarmIntent, CategorySelfHarmInstructions,
	CategorySexual, CategorySexualMinors,
	CategoryViolence, CategoryViolenceGraphic,
	CategoryIllicit, CategoryIllicitViolent,
}

// ParseCategory returns the category for an API category name. Names use
// either "/" or "_" between parts ("self-harm/intent", "self_harm_intent").
func ParseCategory(name string) (Category, bool) {
	norm := strings.ToLower(strings.TrimSpace(name))
	for _, c := range Categories {
		if norm == string(c) || norm == categoryAlias(c) {
			return c, true
		}
	}
	return "", false
}

func categoryAlias(c Category) string {
	return strings.NewReplacer("/", "_", "-", "_").Replace(string(c))
}

// CategoryResult is the per-category flag and score (0..1).
type CategoryResult struct {
	Flagged bool
	Score   float64
}

// Verdict is the classification of one comment.
type Verdict struct {
	Flagged    bool
	Categories map[Category]CategoryResult
}

// FlaggedCategory pairs a flagged category with its score.
type FlaggedCategory struct {
	Category Category
	Score    float64
}

// FlaggedCategories returns the flagged categories in reporting order.
func (v Verdict) FlaggedCategories() []FlaggedCategory {
	var out []FlaggedCategory
	for _, c := range Categories {
		if r, ok := v.Categories[c]; ok && r.Flagged {
			out = append(out, FlaggedCategory{Category: c, Score: r.Score})
		}
	}
	return out
}

// Classifier is the external moderation classification service.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Moderator wraps a Classifier with retry and outcome reporting.
type Moderator struct {
	Classifier Classifier
	Retries    int
}

// Check classifies the comment text. When the classifier fails the returned
// verdict is the zero (unflagged) value and the outcome carries the error:
// the comment is treated as unclassified and processing continues.
func (m *Moderator) Check(ctx context.Context, c Comment) (Verdict, Outcome) {
	var v Verdict
	err := withRetry(ctx, m.Retries, func() error {
		var err error
		v, err = m.Classifier.Classify(ctx, c.Text)
		return err
	})
	if err != nil {
		return Verdict{}, failed(StepClassify, fmt.Errorf("classify comment from %s: %w", c.Identity, err))
	}
	return v, succeeded(StepClassify)
}

// AlertTitle is the notification title used for flagged comments.
const AlertTitle = "Message problématique détecté!"

// Alert is the payload raised for a flagged comment.
type Alert struct {
	Identity      string
	Text          string
	Reasons       []FlaggedCategory
	PriorOffenses int
	// Undesirable is set when the identity is on the operator's undesirables list.
	Undesirable       bool
	UndesirableReason string
}

// Body renders the notification body. Scores use one decimal; a flag without
// categories reads "Non spécifiée".
func (a Alert) Body() string {
	reasons := make([]string, 0, len(a.Reasons))
	for _, r := range a.Reasons {
		reasons = append(reasons, fmt.Sprintf("%s (score: %.1f)", r.Category, r.Score))
	}
	reason := strings.Join(reasons, ", ")
	if reason == "" {
		reason = "Non spécifiée"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\nRaison: %s", a.Identity, a.Text, reason)
	if a.PriorOffenses > 0 {
		fmt.Fprintf(&b, "\nRécidive: %d", a.PriorOffenses)
	}
	if a.Undesirable {
		b.WriteString("\nUtilisateur indésirable")
		if a.UndesirableReason != "" {
			fmt.Fprintf(&b, " (%s)", a.UndesirableReason)
		}
	}
	return b.String()
}

// ScoreLog renders the reasons for the console log, three decimals per score.
func (a Alert) ScoreLog() string {
	parts := make([]string, 0, len(a.Reasons))
	for _, r := range a.Reasons {
		parts = append(parts, fmt.Sprintf("%s: %.3f", r.Category, r.Score))
	}
	return strings.Join(parts, ", ")
}
