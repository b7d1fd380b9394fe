package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the well-known authentication and client failures.
// Wrapped values carry the sniffed server message; match with errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
)

// ServerError is any 5xx response.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (%d)", e.Code)
	}
	return fmt.Sprintf("server error (%d): %s", e.Code, e.Message)
}

// HTTPError is any non-2xx response not covered by a more specific error.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http error (%d)", e.Code)
	}
	return fmt.Sprintf("http error (%d): %s", e.Code, e.Message)
}

// IsUnauthorized reports whether err maps to a 401 response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// StatusCode extracts the HTTP status from a taxonomy error, or 0 when the
// error did not originate from a status mapping.
func StatusCode(err error) int {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Code
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return 401
	case errors.Is(err, ErrForbidden):
		return 403
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrRateLimited):
		return 429
	}
	return 0
}

// statusToError maps a response status plus raw body onto the error taxonomy.
func statusToError(code int, body []byte) error {
	if code >= 200 && code <= 299 {
		return nil
	}

	msg := sniffErrorMessage(body)

	switch {
	case code == 401:
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return ErrUnauthorized
	case code == 403:
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrForbidden, msg)
		}
		return ErrForbidden
	case code == 404:
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		}
		return ErrNotFound
	case code == 429:
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrRateLimited, msg)
		}
		return ErrRateLimited
	case code >= 500 && code <= 599:
		return &ServerError{Code: code, Message: msg}
	default:
		return &HTTPError{Code: code, Message: msg}
	}
}

// maxRawMessageLen bounds the raw-text fallback in sniffed error messages.
const maxRawMessageLen = 280

// sniffErrorMessage extracts a display string from an error response body.
//
// Providers disagree on error body shape, so this tries the well-known ones
// in order: {"error": {"message", "status"}}, then a flat {"message"}, then
// the truncated raw text. The result is only ever a display string.
func sniffErrorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var nested struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil {
		if nested.Error.Message != "" {
			if nested.Error.Status != "" {
				return fmt.Sprintf("%s (%s)", nested.Error.Message, nested.Error.Status)
			}
			return nested.Error.Message
		}
	}

	var flat struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Message != "" {
		return flat.Message
	}

	if len(trimmed) > maxRawMessageLen {
		return trimmed[:maxRawMessageLen]
	}
	return trimmed
}
