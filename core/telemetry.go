package core

import (
	"secscan/logger"
	"secscan/models"
)

// TelemetrySink receives per-threat findings and phase-completion events.
// The engine works identically with the no-op sink.
type TelemetrySink interface {
	ThreatDetected(scanID string, threat models.ThreatMatch)
	PhaseCompleted(scanID, phase string, result models.PhaseResult)
}

// NopSink discards all telemetry.
type NopSink struct{}

func (NopSink) ThreatDetected(string, models.ThreatMatch) {}

func (NopSink) PhaseCompleted(string, string, models.PhaseResult) {}

// LogSink forwards telemetry into the application log.
type LogSink struct{}

func (LogSink) ThreatDetected(scanID string, t models.ThreatMatch) {
	logger.Info("scan %s: %s threat %s (%s) at %s:%d", scanID, t.Severity, t.RuleName, t.Category, t.FilePath, t.LineStart)
}

func (LogSink) PhaseCompleted(scanID, phase string, result models.PhaseResult) {
	switch result.Status {
	case models.PhaseFailed:
		logger.Warn("scan %s: %s phase failed: %s", scanID, phase, result.Error)
	default:
		logger.Debug("scan %s: %s phase %s", scanID, phase, result.Status)
	}
}
