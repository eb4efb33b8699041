package models

// SessionState is the image/result pair currently being worked on.
// The JSON layout matches the persisted detectionState blob.
type SessionState struct {
	Image  *string         `json:"savedImage"`
	Result *AnalysisResult `json:"savedResult"`
}

// HasImage reports whether an image is selected
func (s SessionState) HasImage() bool {
	return s.Image != nil && *s.Image != ""
}

// Clone returns a deep copy of the state
func (s SessionState) Clone() SessionState {
	out := SessionState{Result: s.Result.Clone()}
	if s.Image != nil {
		img := *s.Image
		out.Image = &img
	}
	return out
}
