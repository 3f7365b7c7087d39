package views

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siem-console/models"
)

var base = time.Date(2025, 1, 25, 10, 30, 0, 0, time.UTC)

func ev(id int64, ip string, port int, cat string, cls models.Classification, minute int) models.Event {
	return models.Event{
		ID:             id,
		SourceAddress:  ip,
		Port:           port,
		Category:       cat,
		Classification: cls,
		ObservedAt:     base.Add(time.Duration(minute) * time.Minute),
	}
}

func sample() models.Snapshot {
	events := []models.Event{
		ev(1, "192.168.1.115", 22, "SSH Brute Force", models.Malicious, 0),
		ev(2, "10.0.0.45", 80, "HTTP Scan", models.Benign, 1),
		ev(3, "203.0.113.50", 443, "SQL Injection", models.Malicious, 2),
		ev(4, "172.16.0.88", 21, "FTP Enumeration", models.Benign, 3),
		ev(5, "198.51.100.23", 22, "SSH Brute Force", models.Malicious, 4),
		ev(6, "10.0.0.12", 80, "HTTP Scan", models.Benign, 5),
	}
	return models.Snapshot{CapturedAt: base, Events: events}
}

func ids(events []models.Event) []int64 {
	out := make([]int64, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestFilterEvents_PartitionsByClassification(t *testing.T) {
	snap := sample()

	mal := FilterEvents(snap.Events, FilterMalicious)
	ben := FilterEvents(snap.Events, FilterBenign)
	all := FilterEvents(snap.Events, FilterAll)

	assert.Equal(t, []int64{1, 3, 5}, ids(mal))
	assert.Equal(t, []int64{2, 4, 6}, ids(ben))
	assert.Len(t, all, len(snap.Events))
	assert.Equal(t, len(snap.Events), len(mal)+len(ben))
	for _, e := range mal {
		assert.Equal(t, models.Malicious, e.Classification)
	}
}

func TestFilterEvents_EmptyInput(t *testing.T) {
	assert.Empty(t, FilterEvents(nil, FilterMalicious))
	assert.NotNil(t, FilterEvents(nil, FilterAll))
}

func TestSortEvents_StableInBothDirections(t *testing.T) {
	snap := sample()

	// ports 22, 22 and 80, 80 tie; ties keep snapshot order either way
	asc := SortEvents(snap.Events, SortByPort, Ascending)
	assert.Equal(t, []int64{4, 1, 5, 2, 6, 3}, ids(asc))

	desc := SortEvents(snap.Events, SortByPort, Descending)
	assert.Equal(t, []int64{3, 2, 6, 1, 5, 4}, ids(desc))

	byCat := SortEvents(snap.Events, SortByCategory, Descending)
	assert.Equal(t, []int64{1, 5, 3, 2, 6, 4}, ids(byCat))
}

func TestSortEvents_DoesNotModifyInput(t *testing.T) {
	snap := sample()
	before := ids(snap.Events)

	_ = SortEvents(snap.Events, SortByID, Descending)

	assert.Equal(t, before, ids(snap.Events))
}

func TestSortEvents_ObservedAtComparesInstants(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	events := []models.Event{
		{ID: 1, ObservedAt: time.Date(2025, 1, 25, 6, 0, 0, 0, est)},  // 11:00Z
		{ID: 2, ObservedAt: time.Date(2025, 1, 25, 10, 0, 0, 0, time.UTC)},
		{ID: 3, ObservedAt: time.Date(2025, 1, 25, 12, 0, 0, 0, time.UTC)},
	}

	assert.Equal(t, []int64{2, 1, 3}, ids(SortEvents(events, SortByObservedAt, Ascending)))
}

func TestSortEvents_EveryKey(t *testing.T) {
	snap := sample()
	for _, key := range []SortKey{SortByID, SortBySourceAddress, SortByPort, SortByCategory, SortByClassification, SortByObservedAt} {
		t.Run(string(key), func(t *testing.T) {
			asc := SortEvents(snap.Events, key, Ascending)
			require.Len(t, asc, len(snap.Events))
			cmp := comparator(key)
			for i := 1; i < len(asc); i++ {
				assert.LessOrEqual(t, cmp(asc[i-1], asc[i]), 0, fmt.Sprintf("position %d", i))
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ParseConfig("", "", ""))
	assert.Equal(t, DefaultConfig(), ParseConfig("bogus", "sideways", "weird"))

	cfg := ParseConfig("ipAddress", "ASC", "Malicious")
	assert.Equal(t, SortBySourceAddress, cfg.SortKey)
	assert.Equal(t, Ascending, cfg.Direction)
	assert.Equal(t, FilterMalicious, cfg.Filter)

	assert.Equal(t, SortByObservedAt, ParseConfig("timestamp", "", "").SortKey)
	assert.Equal(t, SortByCategory, ParseConfig("attackType", "", "").SortKey)
	assert.Equal(t, SortByClassification, ParseConfig("mlPrediction", "", "").SortKey)
}

func TestTable_FooterCounts(t *testing.T) {
	snap := sample()
	tv := Table(snap, Config{SortKey: SortByID, Direction: Ascending, Filter: FilterBenign})

	assert.Equal(t, []int64{2, 4, 6}, ids(tv.Rows))
	assert.Equal(t, 3, tv.Shown)
	assert.Equal(t, 6, tv.Total)
	assert.Equal(t, 3, tv.Malicious)
	assert.Equal(t, 3, tv.Benign)
}

func TestAlerts_UseFullSetAndIgnoreTableSelection(t *testing.T) {
	snap := sample()
	snap.AllEvents = append(append([]models.Event{}, snap.Events...),
		ev(7, "192.0.2.77", 23, "Telnet Probe", models.Malicious, 6))

	view := Dashboard(snap, Config{SortKey: SortByID, Direction: Ascending, Filter: FilterBenign})

	assert.Equal(t, []int64{1, 3, 5, 7}, ids(view.Alerts))
	assert.Equal(t, []int64{2, 4, 6}, ids(view.Table.Rows))
}

func TestCounts_PreferReportedValues(t *testing.T) {
	// activeThreats=3, benignEvents=12 with 15 listed events
	events := make([]models.Event, 0, 15)
	for i := 0; i < 15; i++ {
		cls := models.Benign
		if i < 3 {
			cls = models.Malicious
		}
		events = append(events, ev(int64(i+1), "10.0.0.1", 80, "HTTP Scan", cls, i))
	}
	snap := models.Snapshot{
		Summary: models.Summary{ActiveThreats: 3, BenignEvents: 12, CountsReported: true},
		Events:  events,
	}

	counts := Counts(snap)
	assert.Equal(t, ClassCounts{Malicious: 3, Benign: 12}, counts)
	assert.Equal(t, ThreatMedium, ThreatLevel(snap))

	view := Dashboard(snap, DefaultConfig())
	assert.Equal(t, ThreatMedium, view.Summary.ThreatLevel)
	assert.True(t, view.Summary.ThreatLevelDerived)
}

func TestCounts_FallBackToEvents(t *testing.T) {
	snap := sample()
	assert.Equal(t, ClassCounts{Malicious: 3, Benign: 3}, Counts(snap))
}

func TestDeriveThreatLevel(t *testing.T) {
	cases := []struct {
		counts ClassCounts
		want   string
	}{
		{ClassCounts{Malicious: 0, Benign: 0}, ThreatLow},
		{ClassCounts{Malicious: 0, Benign: 40}, ThreatLow},
		{ClassCounts{Malicious: 1, Benign: 2}, ThreatMedium},
		{ClassCounts{Malicious: 2, Benign: 2}, ThreatMedium},
		{ClassCounts{Malicious: 3, Benign: 2}, ThreatHigh},
		{ClassCounts{Malicious: 9, Benign: 1}, ThreatHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DeriveThreatLevel(tc.counts), "%+v", tc.counts)
	}
}

func TestThreatLevel_ReportedTieIsMedium(t *testing.T) {
	snap := models.Snapshot{Summary: models.Summary{ActiveThreats: 5, BenignEvents: 5, CountsReported: true}}

	assert.Equal(t, ThreatMedium, ThreatLevel(snap))
}

func TestThreatLevel_BackendValueWins(t *testing.T) {
	snap := sample()
	snap.Summary.ThreatLevel = "low"

	assert.Equal(t, ThreatLow, ThreatLevel(snap))
	assert.False(t, Dashboard(snap, DefaultConfig()).Summary.ThreatLevelDerived)
}

func TestPercent(t *testing.T) {
	c := ClassCounts{Malicious: 1, Benign: 3}
	assert.InDelta(t, 25.0, c.Percent(c.Malicious), 1e-9)
	assert.InDelta(t, 0.0, ClassCounts{}.Percent(0), 1e-9)
}

func TestCategoryHistogram_FirstAppearanceOrder(t *testing.T) {
	hist := CategoryHistogram(sample())

	assert.Equal(t, []CategoryCount{
		{Category: "SSH Brute Force", Count: 2},
		{Category: "HTTP Scan", Count: 2},
		{Category: "SQL Injection", Count: 1},
		{Category: "FTP Enumeration", Count: 1},
	}, hist)
	assert.Empty(t, CategoryHistogram(models.Snapshot{}))
}

func TestDashboard_EmptySnapshot(t *testing.T) {
	view := Dashboard(models.Snapshot{Events: []models.Event{}}, DefaultConfig())

	assert.Empty(t, view.Table.Rows)
	assert.Empty(t, view.Alerts)
	assert.Equal(t, ThreatLow, view.Summary.ThreatLevel)
}
