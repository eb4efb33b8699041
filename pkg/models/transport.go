package models

// SelectImageRequest sets the session image
type SelectImageRequest struct {
	ImageRef string `json:"image_ref" binding:"required"`
}

// ServerAddressRequest updates the detection server address
type ServerAddressRequest struct {
	ServerAddress string `json:"server_address" binding:"required"`
}

// SettingsPatchRequest updates optional settings fields
type SettingsPatchRequest struct {
	DarkMode      *bool   `json:"dark_mode,omitempty"`
	Notifications *bool   `json:"notifications,omitempty"`
	Language      *string `json:"language,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// LeafView is a leaf finding annotated for display
type LeafView struct {
	Number     int     `json:"number"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	Disease    string  `json:"disease"`
	Severity   string  `json:"severity"`
}

// AnalysisResponse is returned by the analyze endpoint
type AnalysisResponse struct {
	Status         OutcomeStatus `json:"status"`
	ImageRef       string        `json:"image_ref"`
	ProcessedImage string        `json:"processed_image,omitempty"`
	LeafCount      int           `json:"leaf_count"`
	Note           string        `json:"note,omitempty"`
	Leaves         []LeafView    `json:"leaves"`
	Discarded      bool          `json:"discarded,omitempty"`
}

// HistoryListResponse wraps the history collection
type HistoryListResponse struct {
	Count   int            `json:"count"`
	Entries []HistoryEntry `json:"entries"`
}

// SessionResponse describes the current session
type SessionResponse struct {
	ImageRef *string           `json:"image_ref"`
	Result   *AnalysisResponse `json:"result"`
}
