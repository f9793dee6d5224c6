package flow

import "github.com/spec-kit/support-engine/internal/domain"

var severityTable = map[domain.MoodLabel]domain.Severity{
	domain.MoodAngry:    domain.SeverityHigh,
	domain.MoodUrgent:   domain.SeverityHigh,
	domain.MoodConfused: domain.SeverityMedium,
	domain.MoodNeutral:  domain.SeverityLow,
	domain.MoodHappy:    domain.SeverityLow,
}

// SeverityFor maps a mood to its triage tier. Total: moods outside the
// table, including Unknown, land on Medium so an unreadable customer is
// never silently deprioritized.
func SeverityFor(mood domain.MoodLabel) domain.Severity {
	if severity, ok := severityTable[mood]; ok {
		return severity
	}
	return domain.SeverityMedium
}
