package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/nspawnium/internal/errdefs"
)

// APIError represents a structured API error with HTTP status code.
type APIError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Kind    string         `json:"kind,omitempty"`
	Details string         `json:"details,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// NewAPIError creates a new API error.
func NewAPIError(code int, message string, details string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Common error constructors
func BadRequestError(message, details string) *APIError {
	return NewAPIError(http.StatusBadRequest, message, details)
}

func NotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    http.StatusNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Context: map[string]any{"id": id},
	}
}

func InternalError(message, details string) *APIError {
	return NewAPIError(http.StatusInternalServerError, message, details)
}

func ConflictError(message, details string) *APIError {
	return NewAPIError(http.StatusConflict, message, details)
}

// kindStatus maps core failure kinds to HTTP status codes. Provisioning
// stage failures surface through the job endpoint, so the ones listed here
// are the kinds synchronous handlers can return.
var kindStatus = map[errdefs.Kind]int{
	errdefs.KindValidation:   http.StatusBadRequest,
	errdefs.KindNameConflict: http.StatusConflict,
	errdefs.KindRuleConflict: http.StatusConflict,
	errdefs.KindNotFound:     http.StatusNotFound,
	errdefs.KindUnsupported:  http.StatusUnprocessableEntity,
	errdefs.KindTimeout:      http.StatusGatewayTimeout,
	errdefs.KindStopFailed:   http.StatusBadGateway,
	errdefs.KindStartFailed:  http.StatusBadGateway,
	errdefs.KindDeleteFailed: http.StatusBadGateway,
	errdefs.KindHostError:    http.StatusBadGateway,
}

// CoreError converts a core error into an APIError, mapping its kind to an
// HTTP status. Unknown kinds become 500.
func CoreError(err error) *APIError {
	var ce *errdefs.Error
	if !errors.As(err, &ce) {
		return InternalError("Internal server error", err.Error())
	}
	code, ok := kindStatus[ce.Kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	return &APIError{
		Code:    code,
		Message: getHTTPMessage(code),
		Kind:    string(ce.Kind),
		Details: ce.Error(),
	}
}

// HTTPErrorHandler is a custom error handler for Echo.
func HTTPErrorHandler(err error, c echo.Context) {
	// Don't send response if already sent
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	code := http.StatusInternalServerError

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		apiErr = &APIError{
			Code:    code,
			Message: getHTTPMessage(code),
			Details: fmt.Sprintf("%v", he.Message),
		}
	} else if ae, ok := err.(*APIError); ok {
		apiErr = ae
		code = ae.Code
	} else if errdefs.KindOf(err) != "" {
		apiErr = CoreError(err)
		code = apiErr.Code
	} else {
		apiErr = &APIError{
			Code:    code,
			Message: "Internal server error",
			Details: err.Error(),
		}
	}

	// Don't expose internal errors in production
	if code == http.StatusInternalServerError && !c.Echo().Debug {
		apiErr.Details = "An internal error occurred. Please try again later."
	}

	if err := c.JSON(code, apiErr); err != nil {
		c.Logger().Error(err)
	}
}

// getHTTPMessage returns a user-friendly message for HTTP status codes.
func getHTTPMessage(code int) string {
	messages := map[int]string{
		http.StatusBadRequest:          "Bad request",
		http.StatusUnauthorized:        "Unauthorized",
		http.StatusForbidden:           "Forbidden",
		http.StatusNotFound:            "Resource not found",
		http.StatusMethodNotAllowed:    "Method not allowed",
		http.StatusConflict:            "Conflict",
		http.StatusUnprocessableEntity: "Unprocessable entity",
		http.StatusTooManyRequests:     "Too many requests",
		http.StatusInternalServerError: "Internal server error",
		http.StatusBadGateway:          "Bad gateway",
		http.StatusGatewayTimeout:      "Gateway timeout",
		http.StatusServiceUnavailable:  "Service unavailable",
	}

	if msg, ok := messages[code]; ok {
		return msg
	}
	return http.StatusText(code)
}
