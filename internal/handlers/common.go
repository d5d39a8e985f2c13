package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/formdeck/formdeck/internal/models"
	"github.com/formdeck/formdeck/internal/services"
	"github.com/formdeck/formdeck/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// currentUser extracts the authenticated user placed in context by the
// auth middleware.
func currentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals("user").(*models.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// parseID parses a numeric path parameter.
func parseID(c *fiber.Ctx, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// serviceErrorResponse maps service error categories onto HTTP responses.
func serviceErrorResponse(c *fiber.Ctx, err error, errorType string) error {
	switch {
	case errors.Is(err, services.ErrInvalid):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusBadRequest, errorType)
	case errors.Is(err, services.ErrUnauthorized):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusUnauthorized, errorType)
	case errors.Is(err, services.ErrForbidden):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusForbidden, errorType)
	case errors.Is(err, services.ErrNotFound):
		return utils.NotFoundResponse(c, err.Error())
	default:
		return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, errorType)
	}
}

// normalizeResponseData accepts response_data either as a JSON object or
// as a JSON string containing an encoded object (the multipart form
// delivery), defaulting to an empty map when absent.
func normalizeResponseData(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}

	var object map[string]interface{}
	if err := json.Unmarshal(raw, &object); err == nil {
		return object, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if encoded == "" {
			return map[string]interface{}{}, nil
		}
		if err := json.Unmarshal([]byte(encoded), &object); err != nil {
			return nil, fmt.Errorf("response_data string is not valid JSON: %w", err)
		}
		return object, nil
	}

	return nil, fmt.Errorf("response_data must be an object or a JSON-encoded string")
}
