// Package views turns a dashboard snapshot into the projections the
// console panels render. Everything here is pure: no I/O, no shared state,
// and the input snapshot is never modified.
package views

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"siem-console/models"
)

// SortKey names an event column
type SortKey string

const (
	SortByID             SortKey = "id"
	SortBySourceAddress  SortKey = "sourceAddress"
	SortByPort           SortKey = "port"
	SortByCategory       SortKey = "category"
	SortByClassification SortKey = "classification"
	SortByObservedAt     SortKey = "observedAt"
)

// Direction is the sort order
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Filter restricts the table by classification
type Filter string

const (
	FilterAll       Filter = "all"
	FilterMalicious Filter = "malicious"
	FilterBenign    Filter = "benign"
)

// Threat levels
const (
	ThreatLow    = "LOW"
	ThreatMedium = "MEDIUM"
	ThreatHigh   = "HIGH"
)

// Config is the table's sort and filter selection
type Config struct {
	SortKey   SortKey   `json:"sortKey"`
	Direction Direction `json:"direction"`
	Filter    Filter    `json:"filter"`
}

// DefaultConfig shows the newest events first
func DefaultConfig() Config {
	return Config{SortKey: SortByObservedAt, Direction: Descending, Filter: FilterAll}
}

// sortAliases accepts the backend field names too
var sortAliases = map[string]SortKey{
	"id":             SortByID,
	"sourceaddress":  SortBySourceAddress,
	"ipaddress":      SortBySourceAddress,
	"port":           SortByPort,
	"category":       SortByCategory,
	"attacktype":     SortByCategory,
	"classification": SortByClassification,
	"mlprediction":   SortByClassification,
	"observedat":     SortByObservedAt,
	"timestamp":      SortByObservedAt,
}

// ParseConfig reads query-string style values. Anything unrecognised
// falls back to the default for that field.
func ParseConfig(sortKey, direction, filter string) Config {
	cfg := DefaultConfig()
	if k, ok := sortAliases[strings.ToLower(strings.TrimSpace(sortKey))]; ok {
		cfg.SortKey = k
	}
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "asc", "ascending":
		cfg.Direction = Ascending
	case "desc", "descending":
		cfg.Direction = Descending
	}
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "malicious":
		cfg.Filter = FilterMalicious
	case "benign":
		cfg.Filter = FilterBenign
	case "all":
		cfg.Filter = FilterAll
	}
	return cfg
}

// FilterEvents returns the events matching f, in input order
func FilterEvents(events []models.Event, f Filter) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if f == FilterAll || f == "" || e.Classification.Matches(string(f)) {
			out = append(out, e)
		}
	}
	return out
}

// SortEvents returns a sorted copy. The sort is stable in both
// directions: events with equal keys keep their input order.
func SortEvents(events []models.Event, key SortKey, dir Direction) []models.Event {
	out := slices.Clone(events)
	compare := comparator(key)
	if dir == Descending {
		slices.SortStableFunc(out, func(a, b models.Event) int { return compare(b, a) })
	} else {
		slices.SortStableFunc(out, compare)
	}
	return out
}

func comparator(key SortKey) func(a, b models.Event) int {
	switch key {
	case SortByID:
		return func(a, b models.Event) int { return cmp.Compare(a.ID, b.ID) }
	case SortBySourceAddress:
		return func(a, b models.Event) int { return strings.Compare(a.SourceAddress, b.SourceAddress) }
	case SortByPort:
		return func(a, b models.Event) int { return cmp.Compare(a.Port, b.Port) }
	case SortByCategory:
		return func(a, b models.Event) int { return strings.Compare(a.Category, b.Category) }
	case SortByClassification:
		return func(a, b models.Event) int { return strings.Compare(string(a.Classification), string(b.Classification)) }
	default:
		return func(a, b models.Event) int { return a.ObservedAt.Compare(b.ObservedAt) }
	}
}

// TableView is the event table with its footer counters
type TableView struct {
	Config    Config         `json:"config"`
	Rows      []models.Event `json:"rows"`
	Shown     int            `json:"shown"`
	Total     int            `json:"total"`
	Malicious int            `json:"malicious"`
	Benign    int            `json:"benign"`
}

// Table filters then sorts the snapshot's table events
func Table(snap models.Snapshot, cfg Config) TableView {
	rows := SortEvents(FilterEvents(snap.Events, cfg.Filter), cfg.SortKey, cfg.Direction)
	tv := TableView{Config: cfg, Rows: rows, Shown: len(rows), Total: len(snap.Events)}
	for _, e := range snap.Events {
		switch e.Classification {
		case models.Malicious:
			tv.Malicious++
		case models.Benign:
			tv.Benign++
		}
	}
	return tv
}

// Alerts returns the malicious events of the full set in snapshot order,
// regardless of the table's selection.
func Alerts(snap models.Snapshot) []models.Event {
	return FilterEvents(snap.Full(), FilterMalicious)
}

// ClassCounts feeds the malicious/benign chart
type ClassCounts struct {
	Malicious int `json:"malicious"`
	Benign    int `json:"benign"`
}

// Total is the chart's denominator
func (c ClassCounts) Total() int { return c.Malicious + c.Benign }

// Percent returns part as a share of the total, 0 when the total is 0
func (c ClassCounts) Percent(part int) float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(part) * 100 / float64(c.Total())
}

// Counts prefers the counters reported by the backend and otherwise
// counts the full, unfiltered event set.
func Counts(snap models.Snapshot) ClassCounts {
	if snap.Summary.CountsReported {
		return ClassCounts{Malicious: snap.Summary.ActiveThreats, Benign: snap.Summary.BenignEvents}
	}
	var c ClassCounts
	for _, e := range snap.Full() {
		switch e.Classification {
		case models.Malicious:
			c.Malicious++
		case models.Benign:
			c.Benign++
		}
	}
	return c
}

// CategoryCount is one histogram bar
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// CategoryHistogram counts events per category over the full set. Bars
// are ordered by first appearance so they do not jump between renders.
func CategoryHistogram(snap models.Snapshot) []CategoryCount {
	index := make(map[string]int)
	out := []CategoryCount{}
	for _, e := range snap.Full() {
		i, ok := index[e.Category]
		if !ok {
			i = len(out)
			index[e.Category] = i
			out = append(out, CategoryCount{Category: e.Category})
		}
		out[i].Count++
	}
	return out
}

// ThreatLevel returns the backend's level, or derives one from the
// malicious/benign ratio when it is missing. Display only.
func ThreatLevel(snap models.Snapshot) string {
	if lvl := strings.TrimSpace(snap.Summary.ThreatLevel); lvl != "" {
		return strings.ToUpper(lvl)
	}
	return DeriveThreatLevel(Counts(snap))
}

// DeriveThreatLevel maps counts to LOW, MEDIUM or HIGH. HIGH needs more
// malicious than benign events; a tie is MEDIUM.
func DeriveThreatLevel(c ClassCounts) string {
	switch {
	case c.Malicious <= 0:
		return ThreatLow
	case c.Malicious > c.Benign:
		return ThreatHigh
	default:
		return ThreatMedium
	}
}

// SummaryView is the stats bar
type SummaryView struct {
	TotalEvents          int     `json:"totalEvents"`
	ActiveThreats        int     `json:"activeThreats"`
	BlockedEvents        int     `json:"blockedEvents"`
	DetectionRatePercent float64 `json:"detectionRatePercent"`
	ThreatLevel          string  `json:"threatLevel"`
	ThreatLevelDerived   bool    `json:"threatLevelDerived"`
}

// DashboardView bundles every panel computed from one snapshot
type DashboardView struct {
	CapturedAt time.Time       `json:"capturedAt"`
	Summary    SummaryView     `json:"summary"`
	Table      TableView       `json:"table"`
	Alerts     []models.Event  `json:"alerts,omitempty"`
	Counts     ClassCounts     `json:"counts"`
	Categories []CategoryCount `json:"categories"`
}

// Dashboard computes all panels
func Dashboard(snap models.Snapshot, cfg Config) DashboardView {
	counts := Counts(snap)
	return DashboardView{
		CapturedAt: snap.CapturedAt,
		Summary: SummaryView{
			TotalEvents:          snap.Summary.TotalEvents,
			ActiveThreats:        snap.Summary.ActiveThreats,
			BlockedEvents:        snap.Summary.BlockedEvents,
			DetectionRatePercent: snap.Summary.DetectionRatePercent,
			ThreatLevel:          ThreatLevel(snap),
			ThreatLevelDerived:   strings.TrimSpace(snap.Summary.ThreatLevel) == "",
		},
		Table:      Table(snap, cfg),
		Alerts:     Alerts(snap),
		Counts:     counts,
		Categories: CategoryHistogram(snap),
	}
}
