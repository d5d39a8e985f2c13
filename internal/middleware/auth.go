package middleware

import (
	"github.com/formdeck/formdeck/internal/services"
	"github.com/formdeck/formdeck/internal/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"gorm.io/gorm"
)

// Session keys.
const (
	SessionUserKey = "user_id"
	SessionCSRFKey = "csrf_token"
)

// CSRFHeader carries the anti-forgery token on mutating requests.
const CSRFHeader = "X-CSRF-Token"

// LoadUser resolves the session to a user and stores it in Locals("user").
// Requests without a session or with a stale user id pass through
// anonymous; RequireAuth decides whether that is acceptable.
func LoadUser(store *session.Store, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			return c.Next()
		}

		userID, ok := sess.Get(SessionUserKey).(uint64)
		if !ok {
			return c.Next()
		}

		user, err := services.GetUserByID(db, userID)
		if err != nil {
			// Stale session (user deleted); treat as anonymous.
			return c.Next()
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Locals("user") == nil {
			return &types.CustomError{
				Code:    fiber.StatusUnauthorized,
				Message: "Authentication required",
				Type:    "auth.required",
			}
		}
		return c.Next()
	}
}

// RequireCSRF enforces the session CSRF token on mutating verbs. The token
// is issued by GET /api/auth/ and must be echoed in the X-CSRF-Token
// header.
func RequireCSRF(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		sess, err := store.Get(c)
		if err != nil {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: "CSRF validation failed: no session",
				Type:    "auth.csrf",
			}
		}

		token, _ := sess.Get(SessionCSRFKey).(string)
		if token == "" || c.Get(CSRFHeader) != token {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: "CSRF validation failed",
				Type:    "auth.csrf",
			}
		}
		return c.Next()
	}
}
