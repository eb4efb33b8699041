package catalog

import (
	"testing"

	"github.com/anime-shed/olive-inspector-go/pkg/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		label string
		want  Disease
	}{
		{"Mouche de olivier", OliveFly},
		{"Tuberculose", Tuberculosis},
		{"cochenille noire", BlackScale},
		{"en bonne etat", Healthy},
		{"oeil_de_paon", PeacockEye},
		{"psylle", Psyllid},
		{"  PSYLLE ", Psyllid},
		{"en bonne état", Healthy},
		{"mouche de l'olivier", OliveFly},
		{"tuberculos", Tuberculosis},
		{"cochenile noire", BlackScale},
		{"anthracnose", Unknown},
		{"", Unknown},
		{"leaf", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := Resolve(tt.label); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		confidence float64
		want       Severity
	}{
		{100, SeverityHigh},
		{75.1, SeverityHigh},
		{75, SeverityMedium},
		{40.5, SeverityMedium},
		{40, SeverityLow},
		{0, SeverityLow},
	}

	for _, tt := range tests {
		if got := Grade(tt.confidence); got != tt.want {
			t.Errorf("Grade(%v) = %q, want %q", tt.confidence, got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	result := &models.AnalysisResult{
		ProcessedImage: "abc",
		DetectionInfo: &models.DetectionInfo{
			LeafCount: 2,
			Leaves: []models.LeafFinding{
				{ClassName: "psylle", Confidence: 91},
				{ClassName: "en bonne etat", Confidence: 38},
			},
		},
	}

	got := Describe("leaf.jpg", StatusOf(result), result)
	if got.Status != models.OutcomeSuccess || got.LeafCount != 2 || len(got.Leaves) != 2 {
		t.Fatalf("Describe() = %+v", got)
	}
	if got.Leaves[0].Number != 1 || got.Leaves[0].Disease != string(Psyllid) || got.Leaves[0].Severity != string(SeverityHigh) {
		t.Errorf("first leaf = %+v", got.Leaves[0])
	}
	if got.Leaves[1].Number != 2 || got.Leaves[1].Disease != string(Healthy) || got.Leaves[1].Severity != string(SeverityLow) {
		t.Errorf("second leaf = %+v", got.Leaves[1])
	}

	empty := Describe("leaf.jpg", StatusOf(&models.AnalysisResult{}), &models.AnalysisResult{})
	if empty.Status != models.OutcomeNoDetection || empty.Leaves == nil {
		t.Errorf("Describe(no detections) = %+v", empty)
	}
}
