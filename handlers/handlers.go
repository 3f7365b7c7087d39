package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"siem-console/services"
)

// Handler serves the console API on top of the session and poller
type Handler struct {
	Session *services.Session
	Poller  *services.Poller
	Gateway *services.Gateway
	Geo     services.GeoLocator
	Webhook *services.WebhookService
	Events  *ActivityLog
}

func NewHandler(session *services.Session, poller *services.Poller, gw *services.Gateway, geo services.GeoLocator, webhook *services.WebhookService) *Handler {
	if webhook == nil {
		webhook = services.NewWebhookService("")
	}
	return &Handler{
		Session: session,
		Poller:  poller,
		Gateway: gw,
		Geo:     geo,
		Webhook: webhook,
		Events:  NewActivityLog(100),
	}
}

// SetupRoutes mounts the console API. A nil gatherer leaves /metrics off.
func (h *Handler) SetupRoutes(app *fiber.App, gatherer prometheus.Gatherer) {
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/console")

	// ===== Public =====
	api.Get("/health", h.Health)
	api.Get("/session", h.GetSession)
	api.Post("/session/login", h.Login)
	api.Post("/session/logout", h.Logout)
	api.Post("/session/clear-error", h.ClearError)

	// ===== Authenticated session required =====
	protected := api.Group("", h.RequireSession())
	protected.Get("/dashboard", h.GetDashboard)
	protected.Post("/refresh", h.Refresh)
	protected.Get("/logs", h.GetLogs)
	protected.Get("/events", h.GetEvents)
	protected.Post("/webhook/test", h.TestWebhook)
}

// errorStatus maps an error kind onto the console's HTTP status
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrFetchInFlight), errors.Is(err, services.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrNotAuthenticated):
		return fiber.StatusUnauthorized
	}
	switch services.KindOf(err) {
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindAuthRejected, services.KindAuthExpired:
		return fiber.StatusUnauthorized
	case services.KindTimeout:
		return fiber.StatusGatewayTimeout
	case services.KindNetwork, services.KindServer:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func writeError(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"error": services.Display(err),
		"kind":  services.KindOf(err),
	})
}
