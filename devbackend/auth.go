package devbackend

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"siem-console/models"
	"siem-console/system"
)

const (
	tokenLifetime  = 24 * time.Hour
	maxFailures    = 5
	lockoutPeriod  = 5 * time.Minute
	localsAdminKey = "admin"
)

func reject(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(models.AuthResponse{Success: false, Message: msg})
}

// Login checks email and password and issues a signed token
func (s *Server) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return reject(c, 400, "Invalid input")
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		return reject(c, 400, "Email and password are required")
	}

	var admin models.Admin
	if err := s.db.Where("email = ?", email).First(&admin).Error; err != nil {
		system.Warn("Failed login attempt for unknown user: %s", email)
		return reject(c, 401, "Invalid credentials")
	}

	// Check Lock
	if admin.LockedUntil != nil && time.Now().Before(*admin.LockedUntil) {
		minutes := int(time.Until(*admin.LockedUntil).Minutes()) + 1
		return reject(c, 403, fmt.Sprintf("Account is locked. Try again in %d minutes.", minutes))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(req.Password)); err != nil {
		admin.FailedAttempts++
		now := time.Now()
		admin.LastFailedAttempt = &now
		msg := "Invalid credentials"
		if admin.FailedAttempts >= maxFailures {
			lockUntil := now.Add(lockoutPeriod)
			admin.LockedUntil = &lockUntil
			msg = "Account locked for 5 minutes"
		}
		s.db.Save(&admin)
		system.Warn("Failed login attempt for user: %s (attempt %d)", email, admin.FailedAttempts)
		return reject(c, 401, msg)
	}

	admin.FailedAttempts = 0
	admin.LockedUntil = nil
	s.db.Save(&admin)

	token, err := s.issueToken(admin)
	if err != nil {
		return reject(c, 500, "Could not login")
	}
	system.Info("User logged in: %s", email)
	return c.JSON(models.AuthResponse{Success: true, Token: token, Admin: admin.Identity(), Message: "Login successful"})
}

func (s *Server) issueToken(admin models.Admin) (string, error) {
	claims := jwt.MapClaims{
		"sub":   admin.ID,
		"email": admin.Email,
		"role":  admin.Role,
		"exp":   time.Now().Add(tokenLifetime).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// BearerAuth validates the token and loads its admin
func (s *Server) BearerAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return reject(c, 401, "Missing authorization header")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return reject(c, 401, "Invalid authorization format")
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(401, "Invalid signing method")
			}
			return s.secret, nil
		})
		if err != nil || !token.Valid {
			return reject(c, 401, "Invalid or expired token")
		}

		claims, _ := token.Claims.(jwt.MapClaims)
		email, _ := claims["email"].(string)
		var admin models.Admin
		if err := s.db.Where("email = ?", email).First(&admin).Error; err != nil {
			return reject(c, 401, "Invalid or expired token")
		}

		c.Locals(localsAdminKey, admin)
		return c.Next()
	}
}

// Verify confirms a token and returns its admin
func (s *Server) Verify(c *fiber.Ctx) error {
	admin := c.Locals(localsAdminKey).(models.Admin)
	return c.JSON(models.AuthResponse{Success: true, Admin: admin.Identity()})
}
