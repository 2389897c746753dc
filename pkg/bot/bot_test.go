package bot

import (
	"strings"
	"testing"

	"github.com/reelsheet/reelsheet/internal/model"
	"github.com/reelsheet/reelsheet/pkg/pipeline"
)

func TestExtractReelURL(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare link", "https://instagram.com/reel/abc123/", "https://instagram.com/reel/abc123/"},
		{"link with prose", "check this out https://www.instagram.com/reel/xyz/ amazing", "https://www.instagram.com/reel/xyz/"},
		{"post link", "https://instagram.com/p/Cabc_12/", "https://instagram.com/p/Cabc_12/"},
		{"no link", "hello there", ""},
		{"wrong host", "https://youtube.com/watch?v=abc", ""},
	}

	for _, tt := range tests {
		if got := extractReelURL(tt.text); got != tt.want {
			t.Errorf("%s: extractReelURL = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFormatResult(t *testing.T) {
	r := &pipeline.Result{
		StartIndex: 41,
		EndIndex:   42,
		Items: []model.Item{
			{Name: "Taco Place", Type: model.TypePlace, City: "Mexico City", Confidence: 0.7},
			{Name: "Blender", Type: model.TypeProduct, Confidence: 0.5},
		},
		Outcomes: []pipeline.StepOutcome{
			{Step: "enrich", Status: pipeline.StepDegraded, Detail: "1 of 2 items kept pre-enrichment values"},
		},
	}

	got := formatResult(r)
	if !strings.Contains(got, "rows 41-42") {
		t.Errorf("missing row range: %q", got)
	}
	if !strings.Contains(got, "Taco Place") || !strings.Contains(got, "Mexico City") {
		t.Errorf("missing item detail: %q", got)
	}
	if !strings.Contains(got, "enrich") {
		t.Errorf("degraded outcome should be surfaced: %q", got)
	}
}
