package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"ticketing-backend/internal/access"
	"ticketing-backend/internal/engine"
	"ticketing-backend/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	store     *store.Store
	jwtSecret string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(s *store.Store, jwtSecret string) *AuthHandler {
	return &AuthHandler{store: s, jwtSecret: jwtSecret}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()

	user, err := h.findUserByEmail(ctx, body.Email)
	if err != nil {
		return engine.UnauthorizedError("Invalid email or password")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	if active, _ := user["active"].(bool); !active {
		return engine.UnauthorizedError("Account is disabled")
	}

	pair, err := h.generateTokenPair(ctx, user)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. Refresh tokens are single use.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()
	ph := h.store.Dialect.Placeholder

	row, err := store.QueryRow(ctx, h.store.DB,
		fmt.Sprintf(`SELECT rt.id AS token_id, rt.expires_at, u.id, u.role, u.agency_id, u.active
		 FROM _refresh_tokens rt
		 JOIN users u ON u.id = rt.user_id
		 WHERE rt.token = %s`, ph(1)), body.RefreshToken)
	if err != nil {
		return engine.UnauthorizedError("Invalid refresh token")
	}
	h.normalizeUser(row)

	tokenID, _ := row["token_id"].(string)
	if _, err := store.Exec(ctx, h.store.DB,
		fmt.Sprintf("DELETE FROM _refresh_tokens WHERE id = %s", ph(1)), tokenID); err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}

	expiresAt, _ := row["expires_at"].(time.Time)
	if time.Now().After(expiresAt) {
		return engine.UnauthorizedError("Refresh token expired")
	}
	if active, _ := row["active"].(bool); !active {
		return engine.UnauthorizedError("Account is disabled")
	}

	pair, err := h.generateTokenPair(ctx, row)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	if _, err := store.Exec(c.Context(), h.store.DB,
		fmt.Sprintf("DELETE FROM _refresh_tokens WHERE token = %s", h.store.Dialect.Placeholder(1)),
		body.RefreshToken); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	auth := app.Group("/api/auth")
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Post("/logout", h.Logout)
}

// --- helpers ---

func (h *AuthHandler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	row, err := store.QueryRow(ctx, h.store.DB,
		fmt.Sprintf("SELECT id, email, password_hash, role, agency_id, active FROM users WHERE email = %s",
			h.store.Dialect.Placeholder(1)), email)
	if err != nil {
		return nil, err
	}
	h.normalizeUser(row)
	return row, nil
}

func (h *AuthHandler) normalizeUser(row map[string]any) {
	if h.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, []string{"active"})
	}
}

func (h *AuthHandler) generateTokenPair(ctx context.Context, user map[string]any) (*TokenPair, error) {
	userID, _ := user["id"].(string)
	agencyID, _ := user["agency_id"].(string)
	role := roleOf(user["role"])

	accessToken, err := GenerateAccessToken(userID, role, agencyID, h.jwtSecret)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	now := time.Now().UTC()

	err = h.store.InsertRow(ctx, h.store.DB, "_refresh_tokens", map[string]any{
		"id":         uuid.NewString(),
		"user_id":    userID,
		"token":      refreshToken,
		"expires_at": now.Add(RefreshTokenTTL),
		"created_at": now,
	})
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func roleOf(v any) access.Role {
	switch n := v.(type) {
	case int64:
		return access.Role(n)
	case int32:
		return access.Role(n)
	case int:
		return access.Role(n)
	default:
		return 0
	}
}
