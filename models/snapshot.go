package models

import "time"

// Summary holds the aggregate counters reported with a snapshot
type Summary struct {
	TotalEvents          int     `json:"totalEvents"`
	ActiveThreats        int     `json:"activeThreats"`
	BlockedEvents        int     `json:"blockedEvents"`
	DetectionRatePercent float64 `json:"detectionRatePercent"`
	ThreatLevel          string  `json:"threatLevel,omitempty"`
	BenignEvents         int     `json:"benignEvents"`

	// CountsReported is set when the backend sent activeThreats or
	// benignEvents; views prefer those over counting the event list.
	CountsReported bool `json:"-"`
}

// Snapshot is one consistent dashboard fetch. A new snapshot replaces the
// previous one whole; nothing mutates a published snapshot.
type Snapshot struct {
	CapturedAt time.Time `json:"capturedAt"`
	Summary    Summary   `json:"summary"`
	// Events is the table list (wire "logs")
	Events []Event `json:"events"`
	// AllEvents is the complete list used for alerts and charts
	// (wire "allLogs"). Falls back to Events when the backend omits it.
	AllEvents []Event `json:"-"`
}

// Full returns the unfiltered event set
func (s Snapshot) Full() []Event {
	if s.AllEvents != nil {
		return s.AllEvents
	}
	return s.Events
}

// WireStats is the stats object of GET /api/dashboard
type WireStats struct {
	TotalAttacks   int     `json:"totalAttacks"`
	ActiveThreats  *int    `json:"activeThreats,omitempty"`
	BlockedAttacks int     `json:"blockedAttacks"`
	DetectionRate  float64 `json:"detectionRate"`
	ThreatLevel    string  `json:"threatLevel,omitempty"`
	BenignEvents   *int    `json:"benignEvents,omitempty"`
}

// WireDashboard is the GET /api/dashboard response body
type WireDashboard struct {
	Timestamp string      `json:"timestamp"`
	Stats     WireStats   `json:"stats"`
	Logs      []WireEvent `json:"logs"`
	AllLogs   []WireEvent `json:"allLogs,omitempty"`
}

// ToSnapshot converts the wire payload. fetchedAt is used when the backend
// timestamp is missing or unparseable.
func (w WireDashboard) ToSnapshot(fetchedAt time.Time) Snapshot {
	captured := ParseTimestamp(w.Timestamp)
	if captured.IsZero() {
		captured = fetchedAt
	}

	summary := Summary{
		TotalEvents:          w.Stats.TotalAttacks,
		BlockedEvents:        w.Stats.BlockedAttacks,
		DetectionRatePercent: w.Stats.DetectionRate,
		ThreatLevel:          w.Stats.ThreatLevel,
	}
	if w.Stats.ActiveThreats != nil {
		summary.ActiveThreats = *w.Stats.ActiveThreats
		summary.CountsReported = true
	}
	if w.Stats.BenignEvents != nil {
		summary.BenignEvents = *w.Stats.BenignEvents
		summary.CountsReported = true
	}

	events := ConvertEvents(w.Logs)
	if events == nil {
		events = []Event{}
	}

	return Snapshot{
		CapturedAt: captured,
		Summary:    summary,
		Events:     events,
		AllEvents:  ConvertEvents(w.AllLogs),
	}
}

// WireLogPage is the GET /api/dashboard/logs response body
type WireLogPage struct {
	Logs  []WireEvent `json:"logs"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}
