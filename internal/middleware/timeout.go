package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go-business-hub/internal/model"
)

// Timeout bounds handler execution. Handlers observe the deadline through the request
// context; a handler that overruns gets a 503 with a JSON error body.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: "REQUEST_TIMEOUT", Message: "request timed out"},
	})
	message := string(body)

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, message)
	}
}
