package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/logging"
	"github.com/Skotchmaster/photoshare/internal/transport"
)

var statusByCode = map[string]int{
	"infrastructure_unavailable": http.StatusServiceUnavailable,
	"invalid_credentials":        http.StatusUnauthorized,
	"account_banned":             http.StatusForbidden,
	"email_not_verified":         http.StatusForbidden,
	"refresh_token_reused":       http.StatusUnauthorized,
	"token_expired":              http.StatusUnauthorized,
	"token_revoked":              http.StatusUnauthorized,
	"token_malformed":            http.StatusUnauthorized,
	"unauthenticated":            http.StatusUnauthorized,
	"forbidden":                  http.StatusForbidden,
	"conflict":                   http.StatusConflict,
	"validation_failed":          http.StatusBadRequest,
	"not_found":                  http.StatusNotFound,
	"internal_error":             http.StatusInternalServerError,
}

var messageByCode = map[string]string{
	"infrastructure_unavailable": "service temporarily unavailable",
	"invalid_credentials":        "invalid email or password",
	"account_banned":             "account is banned",
	"email_not_verified":         "email address is not verified",
	"refresh_token_reused":       "refresh token was already used, please log in again",
	"token_expired":              "token expired",
	"token_revoked":              "token revoked",
	"token_malformed":            "invalid token",
	"unauthenticated":            "authentication required",
	"forbidden":                  "forbidden",
	"conflict":                   "conflict",
	"not_found":                  "not found",
	"internal_error":             "internal error",
}

// ErrorHandler renders every error as {"code","message"}. Kinds from
// internal/domain get a stable code; echo errors keep their own status.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("request_failed", "status", status, "error", err)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		logging.FromContext(c.Request().Context()).Error("error_response_failed", "error", werr)
	}
}

func errorResponse(err error) (int, transport.ErrorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, transport.ErrorResponse{Code: httpCode(he.Code), Message: msg}
	}
	return domainResponse(err, domain.Code(err))
}

func domainResponse(err error, code string) (int, transport.ErrorResponse) {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := messageByCode[code]
	if code == "validation_failed" {
		msg = strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
	}
	return status, transport.ErrorResponse{Code: code, Message: msg}
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusForbidden:
		return "forbidden"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
		return "http_error"
	}
}
