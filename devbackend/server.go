// Package devbackend is a local stand-in for the honeypot SIEM backend. It
// serves the same REST contract the console consumes, backed by sqlite and
// seeded with a demo admin and a fixed event set.
package devbackend

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"siem-console/models"
	"siem-console/system"
)

// Default demo credentials
const (
	DefaultAdminEmail    = "admin@honeypot-siem.com"
	DefaultAdminPassword = "SecureAdmin1234!"
)

// Config configures the demo backend
type Config struct {
	DBPath    string // ":memory:" keeps everything in process
	JWTSecret string
	// HashCost is the bcrypt cost for seeded passwords, 0 for the default
	HashCost int
	// AccessLog enables the request log middleware
	AccessLog bool
}

// Server is the demo backend
type Server struct {
	db     *gorm.DB
	app    *fiber.App
	secret []byte
}

// New opens the database, migrates, seeds and builds the routes
func New(cfg Config) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = ":memory:"
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	} else if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		system.Warn("Failed to enable WAL mode: %v", err)
	}

	if err := db.AutoMigrate(&models.Admin{}, &models.HoneypotEvent{}); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	s := &Server{db: db, secret: []byte(cfg.JWTSecret)}
	if err := s.seed(cfg.HashCost); err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
			TimeFormat: "2006-01-02 15:04:05",
			Output:     os.Stdout,
		}))
	}
	app.Use(cors.New())
	s.routes(app)
	s.app = app
	return s, nil
}

func (s *Server) routes(app *fiber.App) {
	api := app.Group("/api")

	// ===== Public =====
	api.Get("/health", s.Health)
	api.Post("/auth/login", s.Login)

	// ===== Bearer token required =====
	protected := api.Group("", s.BearerAuth())
	protected.Post("/auth/verify", s.Verify)
	protected.Get("/dashboard", s.Dashboard)
	protected.Get("/dashboard/logs", s.Logs)
}

func (s *Server) seed(hashCost int) error {
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}

	var admins int64
	s.db.Model(&models.Admin{}).Count(&admins)
	if admins == 0 {
		hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), hashCost)
		if err != nil {
			return fmt.Errorf("failed to hash default password: %w", err)
		}
		admin := models.Admin{Email: DefaultAdminEmail, Password: string(hashed), Role: "admin"}
		if err := s.db.Create(&admin).Error; err != nil {
			return fmt.Errorf("failed to create default admin: %w", err)
		}
		system.Info("Created default admin %s", DefaultAdminEmail)
	}

	var events int64
	s.db.Model(&models.HoneypotEvent{}).Count(&events)
	if events == 0 {
		seed := models.SeedHoneypotEvents()
		if err := s.db.Create(&seed).Error; err != nil {
			return fmt.Errorf("failed to seed events: %w", err)
		}
		system.Info("Seeded %d demo honeypot events", len(seed))
	}
	return nil
}

// App exposes the fiber app, mainly for app.Test
func (s *Server) App() *fiber.App { return s.app }

// DB exposes the database for seeding extra data
func (s *Server) DB() *gorm.DB { return s.db }

// Listen serves on addr until Shutdown
func (s *Server) Listen(addr string) error {
	system.Info("Demo backend listening on %s", addr)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops the server and closes the database
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	if sqlDB, dbErr := s.db.DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	return err
}
