package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siem-console/models"
)

type hookRecorder struct {
	mu       sync.Mutex
	payloads []DiscordWebhookPayload
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p DiscordWebhookPayload
	_ = json.NewDecoder(r.Body).Decode(&p)
	h.mu.Lock()
	h.payloads = append(h.payloads, p)
	h.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (h *hookRecorder) titles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.payloads))
	for _, p := range h.payloads {
		out = append(out, p.Embeds[0].Title)
	}
	return out
}

func snapshotWith(malicious []int64, benign int) models.Snapshot {
	var events []models.Event
	for _, id := range malicious {
		events = append(events, models.Event{ID: id, SourceAddress: "203.0.113.7", Port: 22, Category: "SSH Brute Force", Classification: models.Malicious})
	}
	for i := 0; i < benign; i++ {
		events = append(events, models.Event{ID: int64(1000 + i), SourceAddress: "10.0.0.1", Port: 80, Category: "HTTP Scan", Classification: models.Benign})
	}
	return models.Snapshot{Events: events}
}

// idleGateway is never called by tests that feed Observe directly
func idleGateway() *Gateway {
	return NewGateway(GatewayConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
}

func newWatcher(t *testing.T, cooldown time.Duration) (*ThreatWatcher, *hookRecorder) {
	t.Helper()
	rec := &hookRecorder{}
	hook := newBackend(t, rec)
	p := NewPoller(idleGateway(), fixedStatus(StatusAuthenticated), time.Hour, nil)
	return NewThreatWatcher(p, NewWebhookService(hook.URL), nil, cooldown), rec
}

func TestThreatWatcher_FirstSnapshotIsBaseline(t *testing.T) {
	w, rec := newWatcher(t, 0)

	assert.Zero(t, w.Observe(snapshotWith([]int64{1, 2, 3}, 1)))
	assert.Empty(t, rec.titles())
}

func TestThreatWatcher_EscalationAndNewEvents(t *testing.T) {
	w, rec := newWatcher(t, 0)
	w.Observe(snapshotWith(nil, 4)) // LOW

	sent := w.Observe(snapshotWith([]int64{1}, 4)) // MEDIUM, one new event
	assert.Equal(t, 2, sent)

	// same events again: nothing new, no escalation
	assert.Zero(t, w.Observe(snapshotWith([]int64{1}, 4)))

	// back down to LOW is not alerted
	assert.Zero(t, w.Observe(snapshotWith(nil, 4)))

	assert.Equal(t, []string{"Threat level raised to MEDIUM", "Malicious activity detected"}, rec.titles())
}

func TestThreatWatcher_Cooldown(t *testing.T) {
	w, rec := newWatcher(t, time.Hour)
	now := time.Date(2025, 1, 25, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.Observe(snapshotWith([]int64{1}, 10))
	assert.Equal(t, 1, w.Observe(snapshotWith([]int64{1, 2}, 10)))
	assert.Zero(t, w.Observe(snapshotWith([]int64{1, 2, 3}, 10)))

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, w.Observe(snapshotWith([]int64{1, 2, 3, 4}, 10)))
	assert.Len(t, rec.titles(), 2)
}

func TestThreatWatcher_ResetRestoresBaseline(t *testing.T) {
	w, rec := newWatcher(t, 0)
	w.Observe(snapshotWith(nil, 2))
	w.Reset()

	assert.Zero(t, w.Observe(snapshotWith([]int64{1, 2, 3}, 2)))
	assert.Empty(t, rec.titles())
}

func TestThreatWatcher_DisabledWebhookTracksOnly(t *testing.T) {
	p := NewPoller(idleGateway(), fixedStatus(StatusAuthenticated), time.Hour, nil)
	w := NewThreatWatcher(p, NewWebhookService(""), nil, 0)

	w.Observe(snapshotWith(nil, 1))
	assert.Zero(t, w.Observe(snapshotWith([]int64{1}, 1)))
}

func TestThreatWatcher_FollowsPoller(t *testing.T) {
	rec := &hookRecorder{}
	hook := newBackend(t, rec)

	var mu sync.Mutex
	payload := dashboardPayload(0, 3)
	srv := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		writeJSON(w, 200, payload)
	}))
	p := NewPoller(newTestGateway(srv, nil), fixedStatus(StatusAuthenticated), time.Hour, nil)
	w := NewThreatWatcher(p, NewWebhookService(hook.URL), nil, 0)
	w.Start()
	w.Start()
	defer w.Stop()

	require.NoError(t, p.FetchOnce(context.Background()))
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.primed
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	payload = dashboardPayload(4, 3)
	mu.Unlock()
	require.NoError(t, p.FetchOnce(context.Background()))

	require.Eventually(t, func() bool { return len(rec.titles()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Threat level raised to HIGH", rec.titles()[0])
}

func TestWebhookService_AttackAlertCapsEvents(t *testing.T) {
	rec := &hookRecorder{}
	hook := newBackend(t, rec)
	wh := NewWebhookService(hook.URL)

	snap := snapshotWith([]int64{1, 2, 3, 4, 5, 6, 7}, 0)
	require.NoError(t, wh.SendAttackAlert(snap.Events, staticGeo("US")))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.payloads, 1)
	embed := rec.payloads[0].Embeds[0]
	assert.Len(t, embed.Fields, maxAlertEvents*3)
	assert.Contains(t, embed.Description, "7 new malicious event(s)")
	assert.Equal(t, "`203.0.113.7` (US)", embed.Fields[0].Value)
}

func TestWebhookService_ErrorStatus(t *testing.T) {
	hook := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	wh := NewWebhookService(hook.URL)

	assert.Error(t, wh.SendTestAlert())
	assert.Error(t, NewWebhookService("").SendTestAlert())
	assert.NoError(t, NewWebhookService("").SendAttackAlert(nil, nil))
}

type staticGeo string

func (s staticGeo) CountryCode(string) string { return string(s) }
