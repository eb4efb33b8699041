package models

// LeafFinding is one classified leaf as returned by the detection server.
// Order within DetectionInfo.Leaves is server-determined.
type LeafFinding struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// DetectionInfo is the detection_info block of a /detect response
type DetectionInfo struct {
	LeafCount int           `json:"leaf_count"`
	Leaves    []LeafFinding `json:"leaves"`
	Note      string        `json:"note,omitempty"`
}

// AnalysisResult pairs the processed image with its detection info.
// DetectionInfo is nil when the server sent none.
type AnalysisResult struct {
	ProcessedImage string         `json:"processedImage"`
	DetectionInfo  *DetectionInfo `json:"detectionInfo"`
}

// HasDetections reports whether at least one leaf was detected
func (r *AnalysisResult) HasDetections() bool {
	return r != nil && r.DetectionInfo != nil && r.DetectionInfo.LeafCount > 0
}

// Clone returns a deep copy so callers cannot mutate shared state
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := &AnalysisResult{ProcessedImage: r.ProcessedImage}
	if r.DetectionInfo != nil {
		info := *r.DetectionInfo
		if r.DetectionInfo.Leaves != nil {
			info.Leaves = make([]LeafFinding, len(r.DetectionInfo.Leaves))
			copy(info.Leaves, r.DetectionInfo.Leaves)
		}
		out.DetectionInfo = &info
	}
	return out
}

// OutcomeStatus classifies a completed analysis call
type OutcomeStatus string

const (
	OutcomeSuccess     OutcomeStatus = "success"
	OutcomeNoDetection OutcomeStatus = "no_detection"
)

// AnalysisOutcome is the non-error result of one gateway call.
// Failures are reported as errors instead.
type AnalysisOutcome struct {
	Status OutcomeStatus   `json:"status"`
	Result *AnalysisResult `json:"result"`
}

// AnalysisRequest is the ephemeral payload for one gateway call
type AnalysisRequest struct {
	ImageRef  string
	ImageData []byte
	Endpoint  string
	RequestID string
}
