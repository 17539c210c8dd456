package types

// SafetyResult is the outcome of one detector run. Detail carries evidence
// for audit logs (matched word, raw model answer) and is never shown to users.
type SafetyResult struct {
	Detector string      `json:"detector"`
	Blocked  bool        `json:"blocked"`
	Reason   BlockReason `json:"reason"`
	Detail   string      `json:"detail,omitempty"`

	// Error is set when the detector failed and fell back to a pass.
	Error string `json:"error,omitempty"`
	// Flags lists non-blocking signals raised alongside the verdict.
	Flags []string `json:"flags,omitempty"`
}

// Pass returns a non-blocking result for the named detector.
func Pass(detector string) SafetyResult {
	return SafetyResult{Detector: detector}
}

// Block returns a blocking result for the named detector.
func Block(detector string, reason BlockReason, detail string) SafetyResult {
	return SafetyResult{
		Detector: detector,
		Blocked:  true,
		Reason:   reason,
		Detail:   detail,
	}
}

// Failed returns a fail-open result recording err.
func Failed(detector string, err error) SafetyResult {
	return SafetyResult{Detector: detector, Error: err.Error()}
}
