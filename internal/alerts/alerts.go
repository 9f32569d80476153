// Package alerts fans operational alerts out to the background worker and
// keeps a short in-Redis history for the ops endpoints.
package alerts

import "time"

// Kind identifies the condition that raised the alert.
type Kind string

const (
	KindMajorVariance   Kind = "major_variance"
	KindDeadLetter      Kind = "dead_letter"
	KindUnbalancedEntry Kind = "unbalanced_entry"
)

// Severity controls how downstream channels treat the alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one operational notification.
type Alert struct {
	Kind     Kind              `json:"kind"`
	Severity Severity          `json:"severity"`
	Message  string            `json:"message"`
	Meta     map[string]string `json:"meta,omitempty"`
	At       time.Time         `json:"at"`
}
