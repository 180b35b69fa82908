package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fyrsmithlabs/voicesop/internal/store"
)

// Redactor removes sensitive values from a raw payload.
type Redactor interface {
	ScrubBytes(payload []byte) []byte
}

// auditMiddleware writes one WebhookLog row per inbound webhook once the
// response status is known. A nil recorder disables auditing.
func auditMiddleware(r Recorder, redactor Redactor) echo.MiddlewareFunc {
	return middleware.BodyDumpWithConfig(middleware.BodyDumpConfig{
		Skipper: func(echo.Context) bool { return r == nil },
		Handler: func(c echo.Context, reqBody, resBody []byte) {
			status := c.Response().Status
			if redactor != nil {
				reqBody = redactor.ScrubBytes(reqBody)
			}
			entry := store.WebhookLog{
				Source:         webhookSource(c.Path()),
				Endpoint:       c.Request().URL.Path,
				Payload:        store.JSON(reqBody),
				ResponseStatus: status,
			}
			if status >= http.StatusBadRequest {
				entry.ErrorMessage = errorMessage(resBody)
			}
			r.LogWebhook(context.WithoutCancel(c.Request().Context()), entry)
		},
	})
}

// webhookSource maps /webhook/<source> to <source>.
func webhookSource(path string) string {
	return strings.TrimPrefix(path, "/webhook/")
}

func errorMessage(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != "" {
		return resp.Error
	}
	return strings.TrimSpace(string(body))
}
