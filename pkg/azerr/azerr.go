// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package azerr classifies Azure SDK errors into the small taxonomy the
// harness acts on: configuration problems abort immediately, NotFound is a
// normal answer for reads and deletes, throttling and timeouts are retryable,
// everything else is surfaced with the failing resource and phase attached.
package azerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

type Code string

const (
	CodeUnknown       Code = "UNKNOWN"
	CodeConfiguration Code = "CONFIGURATION"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeThrottled     Code = "THROTTLED"
	CodeTimeout       Code = "TIMEOUT"
	CodeAuth          Code = "AUTH"
	CodeQuota         Code = "QUOTA"
	CodeInternal      Code = "INTERNAL"
)

func (c Code) String() string {
	return string(c)
}

// Retryable reports whether an operation that failed with this code may
// succeed on retry. Auth and quota failures are definitive and must surface
// immediately; throttling, timeouts and server-side errors are transient.
func (c Code) Retryable() bool {
	switch c {
	case CodeThrottled, CodeTimeout, CodeInternal:
		return true
	default:
		return false
	}
}

// Classify maps an error returned by the Azure SDK to a Code. HTTP errors
// carry an *azcore.ResponseError with the status code; non-HTTP errors
// (transport failures, context deadlines) fall back to message matching.
func Classify(err error) Code {
	if err == nil {
		return ""
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return CodeNotFound
		case http.StatusConflict:
			return CodeConflict
		case http.StatusTooManyRequests:
			return CodeThrottled
		case http.StatusUnauthorized, http.StatusForbidden:
			return CodeAuth
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return CodeTimeout
		case http.StatusBadRequest:
			return CodeConfiguration
		}
		// Some ARM errors carry a meaningful code with an unexpected status.
		switch {
		case strings.Contains(respErr.ErrorCode, "NotFound"):
			return CodeNotFound
		case strings.Contains(respErr.ErrorCode, "QuotaExceeded"),
			strings.Contains(respErr.ErrorCode, "LimitExceeded"):
			return CodeQuota
		case strings.Contains(respErr.ErrorCode, "Conflict"),
			strings.Contains(respErr.ErrorCode, "ResourceExists"):
			return CodeConflict
		}
		if respErr.StatusCode >= 500 {
			return CodeInternal
		}
		return CodeUnknown
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "NotFound"),
		strings.Contains(errStr, "404"):
		return CodeNotFound
	case strings.Contains(errStr, "AuthorizationFailed"),
		strings.Contains(errStr, "AuthenticationFailed"),
		strings.Contains(errStr, "InvalidAuthenticationToken"):
		return CodeAuth
	case strings.Contains(errStr, "QuotaExceeded"),
		strings.Contains(errStr, "LimitExceeded"):
		return CodeQuota
	case strings.Contains(errStr, "Conflict"),
		strings.Contains(errStr, "ResourceExists"):
		return CodeConflict
	case strings.Contains(errStr, "TooManyRequests"),
		strings.Contains(errStr, "Throttling"):
		return CodeThrottled
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(errStr, "Timeout"),
		strings.Contains(errStr, "deadline exceeded"):
		return CodeTimeout
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "dial"):
		return CodeTimeout
	default:
		return CodeUnknown
	}
}

// IsNotFound reports whether the error means the resource does not exist.
// Reads treat this as an empty result and deletes treat it as success.
func IsNotFound(err error) bool {
	return Classify(err) == CodeNotFound
}

// Error attaches the resource name and lifecycle phase to a provider error so
// a failed run names exactly what broke and where.
type Error struct {
	Code     Code
	Resource string
	Phase    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s %s: %v", e.Code, e.Phase, e.Resource, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err and annotates it with resource and phase. Returns nil
// for nil errors.
func Wrap(err error, resource, phase string) error {
	if err == nil {
		return nil
	}
	var azErr *Error
	if errors.As(err, &azErr) {
		return err
	}
	return &Error{
		Code:     Classify(err),
		Resource: resource,
		Phase:    phase,
		Err:      err,
	}
}

// New builds an Error without an underlying provider error, for validation
// failures detected before any call is made.
func New(code Code, resource, phase, message string) error {
	return &Error{
		Code:     code,
		Resource: resource,
		Phase:    phase,
		Err:      errors.New(message),
	}
}

// CodeOf extracts the Code from an error chain, or classifies it directly.
func CodeOf(err error) Code {
	var azErr *Error
	if errors.As(err, &azErr) {
		return azErr.Code
	}
	return Classify(err)
}
