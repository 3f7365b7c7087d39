package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"siem-console/models"
	"siem-console/services"
	"siem-console/system"
)

// GetSession returns the current session state
func (h *Handler) GetSession(c *fiber.Ctx) error {
	return c.JSON(h.Session.State())
}

// Login authenticates against the backend with email and password
func (h *Handler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid input"})
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Please fill in all fields"})
	}

	if err := h.Session.Login(c.UserContext(), req.Email, req.Password); err != nil {
		if errors.Is(err, services.ErrInvalidTransition) {
			return writeError(c, err)
		}
		system.Warn("Console login failed for %s: %s", req.Email, services.Display(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error":   services.Display(err),
			"kind":    services.KindOf(err),
			"session": h.Session.State(),
		})
	}

	return c.JSON(h.Session.State())
}

// Logout ends the session; calling it twice is fine
func (h *Handler) Logout(c *fiber.Ctx) error {
	h.Session.Logout()
	return c.JSON(h.Session.State())
}

// ClearError dismisses a failed login
func (h *Handler) ClearError(c *fiber.Ctx) error {
	h.Session.ClearError()
	return c.JSON(h.Session.State())
}

// RequireSession rejects requests unless the console session is
// authenticated
func (h *Handler) RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if h.Session.Status() != services.StatusAuthenticated {
			return c.Status(401).JSON(fiber.Map{"error": "Not logged in", "status": h.Session.Status()})
		}
		return c.Next()
	}
}
