package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"siem-console/models"
)

type staticTokens string

func (s staticTokens) Token() string { return string(s) }

type fixedStatus Status

func (f fixedStatus) Status() Status { return Status(f) }

// flakyTransport fails every round trip while fail is set
type flakyTransport struct {
	fail atomic.Bool
	next http.RoundTripper
}

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if f.fail.Load() {
		return nil, errors.New("dial tcp: connection refused")
	}
	return f.next.RoundTrip(r)
}

func newFlakyTransport() *flakyTransport {
	return &flakyTransport{next: http.DefaultTransport}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newBackend(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGateway(srv *httptest.Server, transport http.RoundTripper) *Gateway {
	return NewGateway(GatewayConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, Transport: transport})
}

func intPtr(n int) *int { return &n }

func dashboardPayload(malicious, benign int) models.WireDashboard {
	logs := make([]models.WireEvent, 0, malicious+benign)
	for i := 0; i < malicious+benign; i++ {
		pred := "Benign"
		if i < malicious {
			pred = "Malicious"
		}
		logs = append(logs, models.WireEvent{
			ID:           int64(i + 1),
			IPAddress:    "203.0.113.10",
			Port:         22,
			AttackType:   "SSH Brute Force",
			MLPrediction: pred,
			Timestamp:    time.Date(2025, 1, 25, 10, 30, i, 0, time.UTC).Format(time.RFC3339),
		})
	}
	return models.WireDashboard{
		Timestamp: "2025-01-25T10:45:00Z",
		Stats: models.WireStats{
			TotalAttacks:   malicious + benign,
			ActiveThreats:  intPtr(malicious),
			BlockedAttacks: malicious,
			DetectionRate:  94.5,
			BenignEvents:   intPtr(benign),
		},
		Logs: logs,
	}
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
