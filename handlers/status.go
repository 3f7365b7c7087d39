package handlers

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"siem-console/services"
	"siem-console/system"
)

// ConsoleEvent is one line of the console activity feed
type ConsoleEvent struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, warning, error, success
	Message string `json:"message"`
}

// ActivityLog keeps the most recent console events, newest first
type ActivityLog struct {
	mu     sync.RWMutex
	max    int
	events []ConsoleEvent
	now    func() time.Time
}

func NewActivityLog(max int) *ActivityLog {
	if max <= 0 {
		max = 100
	}
	return &ActivityLog{max: max, events: []ConsoleEvent{}, now: time.Now}
}

// Add records an event and mirrors it to the log file
func (a *ActivityLog) Add(eventType, message string) {
	a.mu.Lock()
	event := ConsoleEvent{
		Time:    a.now().Format("15:04:05"),
		Type:    eventType,
		Message: message,
	}
	a.events = append([]ConsoleEvent{event}, a.events...)
	if len(a.events) > a.max {
		a.events = a.events[:a.max]
	}
	a.mu.Unlock()

	switch eventType {
	case "error":
		system.Error("%s", message)
	case "warning":
		system.Warn("%s", message)
	default:
		system.Info("%s", message)
	}
}

// List returns a copy of the feed
func (a *ActivityLog) List() []ConsoleEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ConsoleEvent, len(a.events))
	copy(out, a.events)
	return out
}

// RecordTransition is a services.TransitionFunc feeding the activity log
func (a *ActivityLog) RecordTransition(from, to services.Status) {
	switch to {
	case services.StatusAuthenticated:
		a.Add("success", "Session authenticated")
	case services.StatusError:
		a.Add("warning", "Login failed")
	case services.StatusAnonymous:
		if from == services.StatusAuthenticated {
			a.Add("info", "Session ended")
		}
	}
}

// GetEvents returns the activity feed
func (h *Handler) GetEvents(c *fiber.Ctx) error {
	return c.JSON(h.Events.List())
}

// TestWebhook sends a test alert to the configured Discord webhook
func (h *Handler) TestWebhook(c *fiber.Ctx) error {
	if err := h.Webhook.SendTestAlert(); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Test alert sent"})
}
