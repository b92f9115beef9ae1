package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted wraps the last transient error once the policy's
	// delay schedule has been consumed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during
	// a retry backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassTransientServer represents 429/503/504 responses: the
	// gateway is busy or briefly unavailable.
	ErrorClassTransientServer ErrorClass = "transient_server"

	// ErrorClassTransientAuth represents an authorization rejection caused
	// by the signing timestamp falling outside the gateway's validity
	// window. Retrying with freshly signed headers recovers it.
	ErrorClassTransientAuth ErrorClass = "transient_auth"

	// ErrorClassNetwork represents transport-level failures before any
	// response was received.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassPermanent represents every other non-2xx response.
	ErrorClassPermanent ErrorClass = "permanent"
)

// GatewayError is a non-2xx response from the document service, carrying
// enough context to diagnose the failing call.
type GatewayError struct {
	StatusCode   int
	Class        ErrorClass
	Method       string
	ResourceLink string
	Body         string
	Err          error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s error (status %d): %s %s: %v",
			e.Class, e.StatusCode, e.Method, e.ResourceLink, e.Err)
	}
	return fmt.Sprintf("gateway %s error (status %d): %s %s: %s",
		e.Class, e.StatusCode, e.Method, e.ResourceLink, e.Body)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// classifyStatus decides transient vs. permanent for a non-2xx response.
// Status-code rules are primary; the auth-expiry body match on 401/403 is
// the one secondary client-side rule.
func classifyStatus(statusCode int, body string) ErrorClass {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return ErrorClassTransientServer
	case http.StatusUnauthorized, http.StatusForbidden:
		if isAuthWindowExpired(body) {
			return ErrorClassTransientAuth
		}
		return ErrorClassPermanent
	default:
		return ErrorClassPermanent
	}
}

// isAuthWindowExpired matches the gateway's message for a request whose
// signed timestamp has drifted out of the allowed validity window.
func isAuthWindowExpired(body string) bool {
	lower := strings.ToLower(body)
	if strings.Contains(lower, "token is expired") {
		return true
	}
	return strings.Contains(lower, "authorization token") && strings.Contains(lower, "expired")
}

// shouldRetry reports whether an error class is transient.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassTransientServer, ErrorClassTransientAuth, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
