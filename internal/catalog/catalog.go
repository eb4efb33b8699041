// Package catalog maps the detection server's class labels to known olive
// leaf conditions and grades confidence into severity bands.
package catalog

import (
	"strings"
	"unicode"

	"github.com/anime-shed/olive-inspector-go/pkg/models"

	"github.com/arbovm/levenshtein"
)

// Disease is a canonical condition key
type Disease string

const (
	OliveFly     Disease = "olive_fly"
	Tuberculosis Disease = "tuberculosis"
	BlackScale   Disease = "black_scale"
	Healthy      Disease = "healthy"
	PeacockEye   Disease = "peacock_eye"
	Psyllid      Disease = "psyllid"
	Unknown      Disease = "default"
)

// Severity grades a finding's confidence
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// maxDistance bounds fuzzy label matches
const maxDistance = 3

// labels are the class names the detection model emits, normalized
var labels = map[string]Disease{
	"mouche de olivier": OliveFly,
	"tuberculose":       Tuberculosis,
	"cochenille noire":  BlackScale,
	"en bonne etat":     Healthy,
	"oeil de paon":      PeacockEye,
	"psylle":            Psyllid,
}

// Resolve returns the condition for a server class label. Exact matches win;
// otherwise the nearest known label within maxDistance edits is used.
func Resolve(className string) Disease {
	key := normalize(className)
	if key == "" {
		return Unknown
	}
	if d, ok := labels[key]; ok {
		return d
	}

	best, bestDist := Unknown, maxDistance+1
	for label, d := range labels {
		dist := levenshtein.Distance(key, label)
		if dist < bestDist || (dist == bestDist && d < best) {
			best, bestDist = d, dist
		}
	}
	if bestDist > maxDistance {
		return Unknown
	}
	return best
}

// Grade maps a confidence percentage to a severity band
func Grade(confidence float64) Severity {
	switch {
	case confidence > 75:
		return SeverityHigh
	case confidence > 40:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// normalize lowercases, folds common French accents and treats '_' and '-'
// as spaces
func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case 'é', 'è', 'ê', 'ë':
			r = 'e'
		case 'à', 'â':
			r = 'a'
		case 'ô':
			r = 'o'
		case 'î', 'ï':
			r = 'i'
		case 'ç':
			r = 'c'
		case '_', '-':
			r = ' '
		}
		if unicode.IsSpace(r) {
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " ")
}

// Annotate numbers leaves from 1 and attaches their condition and severity
func Annotate(leaves []models.LeafFinding) []models.LeafView {
	views := make([]models.LeafView, 0, len(leaves))
	for i, leaf := range leaves {
		views = append(views, models.LeafView{
			Number:     i + 1,
			ClassName:  leaf.ClassName,
			Confidence: leaf.Confidence,
			Disease:    string(Resolve(leaf.ClassName)),
			Severity:   string(Grade(leaf.Confidence)),
		})
	}
	return views
}

// Describe builds the display form of an analysis result
func Describe(imageRef string, status models.OutcomeStatus, result *models.AnalysisResult) models.AnalysisResponse {
	resp := models.AnalysisResponse{
		Status:   status,
		ImageRef: imageRef,
		Leaves:   []models.LeafView{},
	}
	if result == nil {
		return resp
	}
	resp.ProcessedImage = result.ProcessedImage
	if info := result.DetectionInfo; info != nil {
		resp.LeafCount = info.LeafCount
		resp.Note = info.Note
		resp.Leaves = Annotate(info.Leaves)
	}
	return resp
}

// StatusOf reports the outcome status a stored result corresponds to
func StatusOf(result *models.AnalysisResult) models.OutcomeStatus {
	if result.HasDetections() {
		return models.OutcomeSuccess
	}
	return models.OutcomeNoDetection
}
