package models

import (
	"strings"
	"time"
)

// Classification is the ML verdict attached to a honeypot event
type Classification string

const (
	Malicious Classification = "Malicious"
	Benign    Classification = "Benign"
	Unknown   Classification = "Unknown"
)

// ParseClassification maps a backend prediction onto the enum. The backend
// is not consistent about case, so the comparison is case-insensitive.
func ParseClassification(s string) Classification {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "malicious":
		return Malicious
	case "benign":
		return Benign
	default:
		return Unknown
	}
}

// Matches reports whether c equals the given label, ignoring case
func (c Classification) Matches(label string) bool {
	return strings.EqualFold(string(c), strings.TrimSpace(label))
}

// Event is a single honeypot observation. Immutable once decoded.
type Event struct {
	ID             int64          `json:"id"`
	SourceAddress  string         `json:"sourceAddress"`
	Port           int            `json:"port"`
	Category       string         `json:"category"`
	Classification Classification `json:"classification"`
	ObservedAt     time.Time      `json:"observedAt"`
	RawTimestamp   string         `json:"-"`
}

// WireEvent is the event shape sent by the backend
type WireEvent struct {
	ID           int64  `json:"id"`
	IPAddress    string `json:"ipAddress"`
	Port         int    `json:"port"`
	AttackType   string `json:"attackType"`
	MLPrediction string `json:"mlPrediction"`
	Timestamp    string `json:"timestamp"`
}

// ToEvent converts the wire shape. An unparseable timestamp leaves
// ObservedAt zero; the raw string is kept for display.
func (w WireEvent) ToEvent() Event {
	return Event{
		ID:             w.ID,
		SourceAddress:  w.IPAddress,
		Port:           w.Port,
		Category:       w.AttackType,
		Classification: ParseClassification(w.MLPrediction),
		ObservedAt:     ParseTimestamp(w.Timestamp),
		RawTimestamp:   w.Timestamp,
	}
}

// ParseTimestamp accepts RFC 3339 with or without fractional seconds
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ConvertEvents maps a wire list, preserving order
func ConvertEvents(in []WireEvent) []Event {
	if in == nil {
		return nil
	}
	out := make([]Event, len(in))
	for i, w := range in {
		out[i] = w.ToEvent()
	}
	return out
}
