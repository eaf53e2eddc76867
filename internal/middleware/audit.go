package middleware

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
)

const (
	auditActionLocal     = "audit_action"
	auditResourceLocal   = "audit_resource"
	auditResourceIDLocal = "audit_resource_id"
)

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error
}

// SetAuditAction lets a handler replace the generic http_request audit action
// with a domain one (sign_in, listing_create, payment, ...).
func SetAuditAction(c fiber.Ctx, action, resource, resourceID string) {
	c.Locals(auditActionLocal, action)
	c.Locals(auditResourceLocal, resource)
	c.Locals(auditResourceIDLocal, resourceID)
}

// AuditMiddleware logs every request for compliance purposes.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		method := c.Method()
		path := c.Path()
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		// Execute the handler
		err := c.Next()

		// Extract user info if available
		userID := "anonymous"
		if snap := GetSnapshot(c); snap != nil && snap.UserID() != "" {
			userID = snap.UserID()
		}

		action, resource, resourceID := "http_request", "api", path
		if a, ok := c.Locals(auditActionLocal).(string); ok && a != "" {
			action = a
		}
		if r, ok := c.Locals(auditResourceLocal).(string); ok && r != "" {
			resource = r
		}
		if rid, ok := c.Locals(auditResourceIDLocal).(string); ok && rid != "" {
			resourceID = rid
		}

		// Build audit details with pre-captured values
		statusCode := c.Response().StatusCode()
		details := map[string]interface{}{
			"method":      method,
			"path":        path,
			"status":      statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		detailsJSON, _ := json.Marshal(details)

		// Write audit log asynchronously — all values are captured, safe to use in goroutine
		go func() {
			if writeErr := writer.WriteAudit(
				userID,
				action,
				resource,
				resourceID,
				string(detailsJSON),
				ip,
				userAgent,
			); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}()

		return err
	}
}
