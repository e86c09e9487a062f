package types

// Source tags identify which model path served a scan.
const (
	SourceGemini           = "gemini"
	SourceGeminiMulti      = "gemini-multi"
	SourceGeminiRetry      = "gemini-retry"
	SourceGeminiMultiRetry = "gemini-multi-retry"
	SourceFallback         = "fallback"
	SourceFallbackMulti    = "fallback-multi"
)

// ScanResult is the output of one extraction attempt.
type ScanResult struct {
	Success    bool       `json:"success"`
	Text       string     `json:"text"`
	Parsed     Extraction `json:"parsed"`
	Source     string     `json:"source"`
	Model      string     `json:"model,omitempty"`
	Confidence float64    `json:"confidence"`
	// ParseMethod is "json" or "heuristic"; empty for the manual stub.
	ParseMethod              string `json:"parseMethod,omitempty"`
	Escalated                bool   `json:"escalated,omitempty"`
	Blocked                  bool   `json:"blocked,omitempty"`
	RequiresManualCorrection bool   `json:"requiresManualCorrection,omitempty"`
	// Error is the model failure a manual stub stands in for.
	Error string `json:"error,omitempty"`
}

// IsFallback reports whether r is a manual-entry stub.
func (r ScanResult) IsFallback() bool {
	return r.Source == SourceFallback || r.Source == SourceFallbackMulti
}
