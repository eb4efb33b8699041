package models

import "time"

// HistoryLeaf is a saved leaf finding with its 1-based display ordinal
type HistoryLeaf struct {
	LeafNumber int     `json:"leaf_number"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// HistoryResult is the saved snapshot of an analysis
type HistoryResult struct {
	Date      time.Time     `json:"date"`
	LeafCount int           `json:"leaf_count"`
	Note      string        `json:"note,omitempty"`
	Leaves    []HistoryLeaf `json:"leaves"`
}

// HistoryEntry is a durably saved past analysis
type HistoryEntry struct {
	ID             int64         `json:"id"`
	ImageURI       string        `json:"imageUri"`
	ProcessedImage string        `json:"processedImage"`
	Result         HistoryResult `json:"result"`
}

// NewHistoryEntry snapshots an image and its analysis result
func NewHistoryEntry(id int64, imageURI string, result *AnalysisResult, now time.Time) HistoryEntry {
	entry := HistoryEntry{
		ID:             id,
		ImageURI:       imageURI,
		ProcessedImage: result.ProcessedImage,
		Result: HistoryResult{
			Date:   now.UTC(),
			Leaves: []HistoryLeaf{},
		},
	}
	if info := result.DetectionInfo; info != nil {
		entry.Result.LeafCount = info.LeafCount
		entry.Result.Note = info.Note
		for i, leaf := range info.Leaves {
			entry.Result.Leaves = append(entry.Result.Leaves, HistoryLeaf{
				LeafNumber: i + 1,
				ClassName:  leaf.ClassName,
				Confidence: leaf.Confidence,
			})
		}
	}
	return entry
}
