package handlers

import (
	"github.com/formdeck/formdeck/internal/middleware"
	"github.com/formdeck/formdeck/internal/services"
	"github.com/formdeck/formdeck/internal/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthHandler handles session and account routes
type AuthHandler struct {
	DB       *gorm.DB
	Sessions *session.Store
}

type authRequest struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GetAuth handles GET /api/auth/
// @Summary Fetch CSRF token and identity
// @Description Establishes a session if needed and returns the CSRF token with the current identity
// @Tags Auth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /auth/ [get]
func (h *AuthHandler) GetAuth(c *fiber.Ctx) error {
	sess, err := h.Sessions.Get(c)
	if err != nil {
		return utils.ErrorResponse(c, "Session unavailable", fiber.StatusInternalServerError, "auth.session")
	}

	token, _ := sess.Get(middleware.SessionCSRFKey).(string)
	if token == "" {
		token = uuid.NewString()
		sess.Set(middleware.SessionCSRFKey, token)
		if err := sess.Save(); err != nil {
			return utils.ErrorResponse(c, "Session unavailable", fiber.StatusInternalServerError, "auth.session")
		}
	}

	payload := fiber.Map{
		"csrfToken":       token,
		"isAuthenticated": false,
		"user":            nil,
	}
	if user, err := currentUser(c); err == nil {
		payload["isAuthenticated"] = true
		payload["user"] = user.Public()
	}
	return c.Status(fiber.StatusOK).JSON(payload)
}

// PostAuth handles POST /api/auth/
// @Summary Register, login or logout
// @Description Dispatches on the action field: register, login, logout
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body authRequest true "Auth action"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /auth/ [post]
func (h *AuthHandler) PostAuth(c *fiber.Ctx) error {
	var req authRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, "auth.validation")
	}

	switch req.Action {
	case "register":
		user, err := services.RegisterUser(h.DB, req.Username, req.Email, req.Password)
		if err != nil {
			return serviceErrorResponse(c, err, "auth.register")
		}
		if err := h.establishSession(c, user.UserID); err != nil {
			return utils.ErrorResponse(c, "Session unavailable", fiber.StatusInternalServerError, "auth.session")
		}
		return c.Status(fiber.StatusOK).JSON(user.Public())

	case "login":
		user, err := services.AuthenticateUser(h.DB, req.Username, req.Password)
		if err != nil {
			return serviceErrorResponse(c, err, "auth.login")
		}
		if err := h.establishSession(c, user.UserID); err != nil {
			return utils.ErrorResponse(c, "Session unavailable", fiber.StatusInternalServerError, "auth.session")
		}
		return c.Status(fiber.StatusOK).JSON(user.Public())

	case "logout":
		sess, err := h.Sessions.Get(c)
		if err == nil {
			// Idempotent; destroying a fresh session is a no-op.
			_ = sess.Destroy()
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Logged out successfully"})

	default:
		return utils.ErrorResponse(c, "Invalid action", fiber.StatusBadRequest, "auth.validation")
	}
}

// establishSession binds the session to a user, keeping the CSRF token
// stable when one was already issued.
func (h *AuthHandler) establishSession(c *fiber.Ctx, userID uint64) error {
	sess, err := h.Sessions.Get(c)
	if err != nil {
		return err
	}
	sess.Set(middleware.SessionUserKey, userID)
	if token, _ := sess.Get(middleware.SessionCSRFKey).(string); token == "" {
		sess.Set(middleware.SessionCSRFKey, uuid.NewString())
	}
	return sess.Save()
}
