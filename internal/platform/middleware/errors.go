package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/apierr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     ErrorPayload `json:"error"`
	RequestID string       `json:"requestId,omitempty"`
}

type ErrorPayload struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details []apierr.Detail `json:"details,omitempty"`
}

// ErrorHandler renders apierr, echo and unexpected errors uniformly. Server
// faults are logged and their cause is never sent to the client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		ae := toAPIError(err)
		if ae.Status >= http.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("request_id", RequestIDFrom(c)).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(ae.Status)
		} else {
			werr = c.JSON(ae.Status, ErrorBody{
				Error: ErrorPayload{
					Code:    ae.Code,
					Message: ae.Error(),
					Details: ae.Details,
				},
				RequestID: RequestIDFrom(c),
			})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func toAPIError(err error) *apierr.Error {
	if ae, ok := apierr.As(err); ok {
		if ae.Status >= http.StatusInternalServerError && ae.Code == "" {
			return apierr.Internal(ae)
		}
		return ae
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		// Errors raised while reading a limited body surface as bind errors.
		if ae, ok := apierr.As(he.Internal); ok {
			return ae
		}
		if he.Code >= http.StatusInternalServerError {
			return apierr.Internal(err)
		}
		return apierr.New(he.Code, codeForStatus(he.Code), fmt.Sprint(he.Message))
	}

	return apierr.Internal(err)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return apierr.CodeBadRequest
	case http.StatusUnauthorized:
		return apierr.CodeUnauthorized
	case http.StatusForbidden:
		return apierr.CodeForbidden
	case http.StatusNotFound:
		return apierr.CodeNotFound
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return apierr.CodeConflict
	case http.StatusRequestEntityTooLarge:
		return apierr.CodePayloadTooLarge
	case http.StatusUnsupportedMediaType:
		return apierr.CodeUnsupportedMedia
	case http.StatusTooManyRequests:
		return apierr.CodeTooManyRequests
	case http.StatusServiceUnavailable:
		return apierr.CodeUnavailable
	default:
		return http.StatusText(status)
	}
}
