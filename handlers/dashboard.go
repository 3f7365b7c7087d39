package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"siem-console/models"
	"siem-console/services"
	"siem-console/views"
)

// AlertView is an alert row with the source country attached
type AlertView struct {
	models.Event
	Country string `json:"country,omitempty"`
}

// DashboardResponse is what GET /api/console/dashboard returns. Dashboard
// is nil until the first successful fetch; alerts live only in Alerts.
type DashboardResponse struct {
	Dashboard *views.DashboardView `json:"dashboard"`
	Alerts    []AlertView          `json:"alerts"`
	Poll      services.PollState   `json:"poll"`
}

// GetDashboard renders every panel from the latest snapshot
func (h *Handler) GetDashboard(c *fiber.Ctx) error {
	cfg := views.ParseConfig(c.Query("sort"), c.Query("dir"), c.Query("filter"))
	state := h.Poller.State()

	resp := DashboardResponse{Poll: state, Alerts: []AlertView{}}
	if state.Snapshot != nil {
		view := views.Dashboard(*state.Snapshot, cfg)
		resp.Alerts = h.enrich(view.Alerts)
		// sent once, enriched
		view.Alerts = nil
		resp.Dashboard = &view
	}
	return c.JSON(resp)
}

func (h *Handler) enrich(events []models.Event) []AlertView {
	out := make([]AlertView, 0, len(events))
	for _, e := range events {
		av := AlertView{Event: e}
		if h.Geo != nil {
			av.Country = h.Geo.CountryCode(e.SourceAddress)
		}
		out = append(out, av)
	}
	return out
}

// Refresh starts an out-of-schedule fetch and returns without waiting
// for it. 409 when one is already in flight.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	if h.Poller.Fetching() {
		return writeError(c, services.ErrFetchInFlight)
	}
	ctx := context.WithoutCancel(c.UserContext())
	go func() {
		if err := h.Poller.RefreshNow(ctx); err != nil && !errors.Is(err, services.ErrFetchInFlight) {
			h.Events.Add("warning", "Manual refresh failed: "+services.Display(err))
		}
	}()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "refreshing"})
}

// GetLogs proxies one page of the event history
func (h *Handler) GetLogs(c *fiber.Ctx) error {
	q := services.LogQuery{Prediction: c.Query("prediction")}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid page"})
		}
		q.Page = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid limit"})
		}
		q.Limit = n
	}

	page, err := h.Poller.FetchLogs(c.UserContext(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(page)
}

// Health reports whether the backend answers its health endpoint
func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.Gateway.Health(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unreachable",
			"backend": services.Display(err),
		})
	}
	return c.JSON(fiber.Map{"status": "ok", "session": h.Session.Status()})
}
