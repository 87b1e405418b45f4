package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"insightify/internal/coreerrors"
	"insightify/internal/projects"
	"insightify/internal/stats"
)

const errInvalidRequest = "Invalid request"

// getClientIP resolves the visitor address behind common reverse-proxy
// headers, falling back to the connection address.
func getClientIP(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return c.IP()
}

// parseProjectID reads the :id route parameter.
func parseProjectID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, coreerrors.NewValidationError("id", "must be a positive integer")
	}
	return uint(id), nil
}

// parseWindow reads start/end query parameters as RFC3339 timestamps.
// Defaults to the trailing 24 hours when absent.
func parseWindow(c *fiber.Ctx) (stats.Window, error) {
	now := time.Now().UTC()
	window := stats.Window{Start: now.Add(-24 * time.Hour), End: now}

	if raw := c.Query("start"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return window, coreerrors.NewValidationError("start", "must be RFC3339")
		}
		window.Start = start
	}
	if raw := c.Query("end"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return window, coreerrors.NewValidationError("end", "must be RFC3339")
		}
		window.End = end
	}
	return window, window.Validate()
}

// handleError maps the core error taxonomy onto HTTP responses.
func handleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}

	var validationErr *coreerrors.ValidationError
	if errors.As(err, &validationErr) {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": validationErr.Error(),
			"code":  "VALIDATION_ERROR",
		})
	}

	var projectNotFound *projects.ProjectNotFoundError
	if errors.As(err, &projectNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found - please register it first",
			"code":  "PROJECT_NOT_FOUND",
		})
	}

	var notFoundErr *coreerrors.NotFoundError
	if errors.As(err, &notFoundErr) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": notFoundErr.Error(),
			"code":  "NOT_FOUND",
		})
	}

	var timeoutErr *coreerrors.TimeoutError
	if errors.As(err, &timeoutErr) {
		return c.Status(http.StatusGatewayTimeout).JSON(fiber.Map{
			"error": "Query exceeded its deadline",
			"code":  "TIMEOUT",
		})
	}

	if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "busy") {
		return c.Status(599).JSON(fiber.Map{}) // custom status code
	}

	var storageErr *coreerrors.StorageUnavailableError
	if errors.As(err, &storageErr) {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Storage unavailable",
			"code":  "STORAGE_UNAVAILABLE",
		})
	}

	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal error",
		"code":  "INTERNAL_ERROR",
	})
}
