package models

// PhaseStatus is the terminal (or in-flight) state of one scan phase.
type PhaseStatus string

const (
	PhaseNotRequested PhaseStatus = "not_requested"
	PhaseRunning      PhaseStatus = "running"
	PhaseSucceeded    PhaseStatus = "succeeded"
	PhaseFailed       PhaseStatus = "failed"
	PhaseUnavailable  PhaseStatus = "unavailable"
	PhaseSkipped      PhaseStatus = "skipped"
)

// PhaseResult is a tagged variant recording how one phase of a scan ended.
// Exactly one of Reason/Error is meaningful depending on Status; Stats is
// populated only for a succeeded validation phase.
type PhaseResult struct {
	Status PhaseStatus      `json:"status"`
	Reason string           `json:"reason,omitempty"`
	Error  string           `json:"error,omitempty"`
	Stats  *ValidationStats `json:"stats,omitempty"`
}

func PhaseOK() PhaseResult {
	return PhaseResult{Status: PhaseSucceeded}
}

func PhaseOKStats(stats ValidationStats) PhaseResult {
	return PhaseResult{Status: PhaseSucceeded, Stats: &stats}
}

func PhaseFailedErr(err error) PhaseResult {
	return PhaseResult{Status: PhaseFailed, Error: err.Error()}
}

func PhaseUnavailableReason(reason string) PhaseResult {
	return PhaseResult{Status: PhaseUnavailable, Reason: reason}
}

func PhaseSkippedReason(reason string) PhaseResult {
	return PhaseResult{Status: PhaseSkipped, Reason: reason}
}

// Ran reports whether the phase actually executed (successfully or not),
// as opposed to being skipped or never requested.
func (p PhaseResult) Ran() bool {
	return p.Status == PhaseSucceeded || p.Status == PhaseFailed
}
