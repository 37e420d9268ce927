package domain

import "time"

// Alert is one escalation handed to the alert sinks.
type Alert struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
