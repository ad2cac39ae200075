package ai

import (
	"testing"

	"github.com/onnwee/chat-moderator/backend/pipeline"
)

func TestParseTaggedVerdict(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantFlagged bool
		want        map[pipeline.Category]float64
	}{
		{
			name:        "safe",
			content:     "<flagged>false</flagged><reason></reason><category_scores>0.0</category_scores>",
			wantFlagged: false,
			want:        map[pipeline.Category]float64{},
		},
		{
			name:        "single reason",
			content:     "<flagged>TRUE</flagged>\n<reason>violence</reason>\n<category_scores>0.8</category_scores>",
			wantFlagged: true,
			want:        map[pipeline.Category]float64{pipeline.CategoryViolence: 0.8},
		},
		{
			name:        "several reasons share the score",
			content:     "<flagged>true</flagged><reason>sexual, self_harm, illegal_activity</reason><category_scores>0.4 severity</category_scores>",
			wantFlagged: true,
			want: map[pipeline.Category]float64{
				pipeline.CategorySexual:   0.4,
				pipeline.CategorySelfHarm: 0.4,
				pipeline.CategoryIllicit:  0.4,
			},
		},
		{
			name:        "missing tags",
			content:     "I cannot help with that.",
			wantFlagged: false,
			want:        map[pipeline.Category]float64{},
		},
		{
			name:        "flag without recognizable reason",
			content:     "<flagged>true</flagged><reason>spam</reason>",
			wantFlagged: true,
			want:        map[pipeline.Category]float64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseTaggedVerdict(tt.content)
			if v.Flagged != tt.wantFlagged {
				t.Errorf("Flagged = %v, want %v", v.Flagged, tt.wantFlagged)
			}
			flagged := v.FlaggedCategories()
			if len(flagged) != len(tt.want) {
				t.Fatalf("flagged categories = %+v, want %v", flagged, tt.want)
			}
			for _, f := range flagged {
				if score, ok := tt.want[f.Category]; !ok || score != f.Score {
					t.Errorf("category %s score %v, want %v (present=%v)", f.Category, f.Score, score, ok)
				}
			}
		})
	}
}

func TestParseTaggedVerdictUnflaggedKeepsScores(t *testing.T) {
	v := ParseTaggedVerdict("<flagged>false</flagged><reason>harassment</reason><category_scores>0.2</category_scores>")
	r, ok := v.Categories[pipeline.CategoryHarassment]
	if !ok || r.Flagged || r.Score != 0.2 {
		t.Errorf("harassment = %+v (present=%v)", r, ok)
	}
}

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"Bonjour", "Bonjour"},
		{"<think>plan</think>Bonjour", "Bonjour"},
		{"<THINKING>\nmulti\nline\n</THINKING>\nSalut", "Salut"},
		{"<reasoning>a</reasoning>A\n\n\n\nB<thought>b</thought>", "A\n\nB"},
		{"  Ok.  ", "Ok."},
	}
	for _, tt := range tests {
		if got := StripReasoning(tt.in); got != tt.want {
			t.Errorf("StripReasoning(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
