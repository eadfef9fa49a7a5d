package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"pricecatalog/internal/catalog"
	"pricecatalog/internal/currency"
	"pricecatalog/internal/pricing"
)

// ErrorType classifies API errors in the response envelope.
type ErrorType string

const (
	ErrorTypeInvalidRequest     ErrorType = "invalid_request_error"
	ErrorTypeInvalidPricingJSON ErrorType = "invalid_pricing_json"
	ErrorTypeNotFound           ErrorType = "not_found_error"
	ErrorTypeConflict           ErrorType = "conflict_error"
	ErrorTypeAuthentication     ErrorType = "authentication_error"
	ErrorTypeUpstream           ErrorType = "upstream_error"
	ErrorTypeInternal           ErrorType = "internal_error"
)

// APIError is an error with a client-facing type and message.
type APIError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	// Offset locates a JSON syntax error in submitted pricing text
	Offset int64
	Err    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeInvalidPricingJSON:
		return http.StatusUnprocessableEntity
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON builds the response envelope.
func (e *APIError) ToJSON() map[string]any {
	body := map[string]any{
		"type":    e.Type,
		"message": e.Message,
	}
	if e.Offset > 0 {
		body["offset"] = e.Offset
	}
	return map[string]any{"error": body}
}

func invalidRequest(message string, err error) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Message: message, Err: err}
}

// classify maps domain errors onto API errors.
func classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var jsonErr *pricing.InvalidPricingJSONError
	switch {
	case errors.As(err, &jsonErr):
		return &APIError{Type: ErrorTypeInvalidPricingJSON, Message: jsonErr.Error(), Offset: jsonErr.Offset, Err: err}
	case errors.Is(err, catalog.ErrNotFound):
		return &APIError{Type: ErrorTypeNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, catalog.ErrAlreadyExists):
		return &APIError{Type: ErrorTypeConflict, Message: err.Error(), Err: err}
	case errors.Is(err, currency.ErrUnknownCurrency):
		return invalidRequest(err.Error(), err)
	case errors.Is(err, currency.ErrNoSource):
		return &APIError{Type: ErrorTypeInvalidRequest, Message: err.Error(), StatusCode: http.StatusConflict, Err: err}
	default:
		return &APIError{Type: ErrorTypeInternal, Message: "an unexpected error occurred", Err: err}
	}
}

// handleError writes err as a JSON error response.
func handleError(c echo.Context, err error) error {
	apiErr := classify(err)
	if apiErr.Type == ErrorTypeInternal {
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"error", err,
		)
	}
	return c.JSON(apiErr.HTTPStatusCode(), apiErr.ToJSON())
}
