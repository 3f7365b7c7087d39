package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"siem-console/models"
	"siem-console/system"
)

// WebhookService posts console alerts to a Discord webhook
type WebhookService struct {
	mu         sync.RWMutex
	webhookURL string
	client     *http.Client
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// DiscordWebhookPayload represents a Discord webhook message
type DiscordWebhookPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// Discord color constants
const (
	ColorRed    = 0xFF0000
	ColorOrange = 0xFFAA00
	ColorGreen  = 0x00FF00
	ColorBlue   = 0x00AAFF
)

const (
	webhookUsername = "SIEM Console"
	alertFooter     = "Honeypot SIEM"
	// Discord caps an embed at 25 fields; three per event keeps it readable
	maxAlertEvents = 5
)

// NewWebhookService creates a WebhookService; an empty url leaves it
// disabled.
func NewWebhookService(url string) *WebhookService {
	return &WebhookService{
		webhookURL: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetWebhookURL sets the Discord webhook URL
func (w *WebhookService) SetWebhookURL(url string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.webhookURL = url
}

// IsEnabled returns whether the webhook is configured
func (w *WebhookService) IsEnabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.webhookURL != ""
}

// SendThreatLevelAlert reports an escalation of the overall threat level
func (w *WebhookService) SendThreatLevelAlert(from, to string, malicious, benign int) error {
	if !w.IsEnabled() {
		return nil
	}
	color := ColorOrange
	if to == "HIGH" {
		color = ColorRed
	}
	from = strings.TrimSpace(from)
	if from == "" {
		from = "n/a"
	}

	return w.sendEmbed(DiscordEmbed{
		Title:       "Threat level raised to " + to,
		Description: fmt.Sprintf("Threat level changed from **%s** to **%s**", from, to),
		Color:       color,
		Fields: []DiscordEmbedField{
			{Name: "Malicious", Value: fmt.Sprintf("%d", malicious), Inline: true},
			{Name: "Benign", Value: fmt.Sprintf("%d", benign), Inline: true},
		},
		Footer:    &DiscordEmbedFooter{Text: alertFooter},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendAttackAlert reports newly seen malicious events. Only the first few
// are listed; the rest are summarized in the description.
func (w *WebhookService) SendAttackAlert(events []models.Event, geo GeoLocator) error {
	if !w.IsEnabled() || len(events) == 0 {
		return nil
	}

	desc := fmt.Sprintf("%d new malicious event(s) detected", len(events))
	listed := events
	if len(listed) > maxAlertEvents {
		listed = listed[:maxAlertEvents]
		desc += fmt.Sprintf(", showing the first %d", maxAlertEvents)
	}

	fields := make([]DiscordEmbedField, 0, len(listed)*3)
	for _, e := range listed {
		source := fmt.Sprintf("`%s`", e.SourceAddress)
		if geo != nil {
			source += " (" + geo.CountryCode(e.SourceAddress) + ")"
		}
		fields = append(fields,
			DiscordEmbedField{Name: "Source IP", Value: source, Inline: true},
			DiscordEmbedField{Name: "Attack Type", Value: e.Category, Inline: true},
			DiscordEmbedField{Name: "Port", Value: fmt.Sprintf("%d", e.Port), Inline: true},
		)
	}

	return w.sendEmbed(DiscordEmbed{
		Title:       "Malicious activity detected",
		Description: desc,
		Color:       ColorRed,
		Fields:      fields,
		Footer:      &DiscordEmbedFooter{Text: alertFooter},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// SendTestAlert verifies webhook connectivity
func (w *WebhookService) SendTestAlert() error {
	if !w.IsEnabled() {
		return fmt.Errorf("webhook not configured")
	}
	return w.sendEmbed(DiscordEmbed{
		Title:       "Webhook Test",
		Description: "Discord webhook is configured correctly!",
		Color:       ColorGreen,
		Footer:      &DiscordEmbedFooter{Text: alertFooter},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (w *WebhookService) sendEmbed(embed DiscordEmbed) error {
	w.mu.RLock()
	url := w.webhookURL
	w.mu.RUnlock()

	jsonData, err := json.Marshal(DiscordWebhookPayload{
		Username: webhookUsername,
		Embeds:   []DiscordEmbed{embed},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}

	system.Debug("Discord webhook sent: %s", embed.Title)
	return nil
}
