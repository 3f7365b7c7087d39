package devbackend

import (
	"math"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"siem-console/models"
	"siem-console/views"
)

const (
	tableSize       = 10
	defaultLogLimit = 50
	maxLogLimit     = 100
)

func toWire(rows []models.HoneypotEvent) []models.WireEvent {
	out := make([]models.WireEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Wire())
	}
	return out
}

// Dashboard returns stats, the latest events and the full event list
func (s *Server) Dashboard(c *fiber.Ctx) error {
	var total, malicious, benign, blocked int64
	s.db.Model(&models.HoneypotEvent{}).Count(&total)
	s.db.Model(&models.HoneypotEvent{}).Where("LOWER(ml_prediction) = ?", "malicious").Count(&malicious)
	s.db.Model(&models.HoneypotEvent{}).Where("LOWER(ml_prediction) = ?", "benign").Count(&benign)
	s.db.Model(&models.HoneypotEvent{}).Where("blocked = ?", true).Count(&blocked)

	var latest, all []models.HoneypotEvent
	if err := s.db.Order("timestamp desc").Limit(tableSize).Find(&latest).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.db.Order("id asc").Find(&all).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	rate := 0.0
	if total > 0 {
		rate = math.Round(float64(malicious)*1000/float64(total)) / 10
	}
	active, ben := int(malicious), int(benign)

	return c.JSON(models.WireDashboard{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Stats: models.WireStats{
			TotalAttacks:   int(total),
			ActiveThreats:  &active,
			BlockedAttacks: int(blocked),
			DetectionRate:  rate,
			ThreatLevel:    views.DeriveThreatLevel(views.ClassCounts{Malicious: active, Benign: ben}),
			BenignEvents:   &ben,
		},
		Logs:    toWire(latest),
		AllLogs: toWire(all),
	})
}

// Logs pages through the event history, newest first
func (s *Server) Logs(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", defaultLogLimit)
	if limit < 1 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	prediction := strings.ToLower(strings.TrimSpace(c.Query("prediction")))
	filtered := func() *gorm.DB {
		q := s.db.Model(&models.HoneypotEvent{})
		if prediction != "" {
			q = q.Where("LOWER(ml_prediction) = ?", prediction)
		}
		return q
	}

	var total int64
	filtered().Count(&total)

	var rows []models.HoneypotEvent
	if err := filtered().Order("timestamp desc").Offset((page - 1) * limit).Limit(limit).Find(&rows).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(models.WireLogPage{
		Logs:  toWire(rows),
		Total: int(total),
		Page:  page,
		Limit: limit,
	})
}

// Health is the unauthenticated liveness probe
func (s *Server) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}
