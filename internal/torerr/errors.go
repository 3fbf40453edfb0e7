// Package torerr provides structured error types for the channel manager runtime.
// It defines a closed taxonomy of error categories with fixed retry/severity
// policy, so callers can inspect failures without parsing message strings.
package torerr

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of an error.
type ErrorCategory string

const (
	// CategoryConnection indicates a transport connection error.
	CategoryConnection ErrorCategory = "connection"
	// CategoryChannel indicates a channel-map related error.
	CategoryChannel ErrorCategory = "channel"
	// CategoryProtocol indicates a protocol-related error.
	CategoryProtocol ErrorCategory = "protocol"
	// CategoryCrypto indicates a cryptography-related error.
	CategoryCrypto ErrorCategory = "crypto"
	// CategoryConfiguration indicates a configuration-related error.
	CategoryConfiguration ErrorCategory = "configuration"
	// CategoryTimeout indicates a timeout error.
	CategoryTimeout ErrorCategory = "timeout"
	// CategoryNetwork indicates a network-related error.
	CategoryNetwork ErrorCategory = "network"
	// CategoryInternal indicates an internal error.
	CategoryInternal ErrorCategory = "internal"

	// CategoryUnsupportedURIScheme: URI scheme other than http/https.
	CategoryUnsupportedURIScheme ErrorCategory = "unsupported_uri_scheme"
	// CategoryMissingHostname: URI has no authority host.
	CategoryMissingHostname ErrorCategory = "missing_hostname"
	// CategoryOnionDialFailed: dial/handshake through the overlay failed.
	CategoryOnionDialFailed ErrorCategory = "onion_dial_failed"
	// CategoryTLSFailed: outer TLS handshake error.
	CategoryTLSFailed ErrorCategory = "tls_failed"
	// CategoryProtocolViolation: bad/missing ack tag, window overflow.
	CategoryProtocolViolation ErrorCategory = "protocol_violation"
	// CategoryInternalInvariant: identity mismatch, Poisoned observed, params build failure.
	CategoryInternalInvariant ErrorCategory = "internal_invariant"
	// CategoryParseError: microdescriptor parse failure.
	CategoryParseError ErrorCategory = "parse_error"
	// CategoryPaddingMisconsensus: low > high, or out-of-range padding params.
	CategoryPaddingMisconsensus ErrorCategory = "padding_misconsensus"
)

// Severity represents the severity level of an error.
type Severity string

const (
	// SeverityLow indicates a low-severity error (recoverable).
	SeverityLow Severity = "low"
	// SeverityMedium indicates a medium-severity error (may degrade service).
	SeverityMedium Severity = "medium"
	// SeverityHigh indicates a high-severity error (service disruption likely).
	SeverityHigh Severity = "high"
	// SeverityCritical indicates a critical error (service unavailable).
	SeverityCritical Severity = "critical"
)

// TorError represents a structured error with additional context.
type TorError struct {
	Category   ErrorCategory
	Severity   Severity
	Message    string
	Underlying error
	Retryable  bool
	Context    map[string]interface{}
}

// Error implements the error interface.
func (e *TorError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Severity, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Severity, e.Message)
}

// Unwrap returns the underlying error.
func (e *TorError) Unwrap() error {
	return e.Underlying
}

// Is implements error comparison by category.
func (e *TorError) Is(target error) bool {
	t, ok := target.(*TorError)
	if !ok {
		return false
	}
	return e.Category == t.Category
}

// WithContext adds context to the error.
func (e *TorError) WithContext(key string, value interface{}) *TorError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new TorError.
func New(category ErrorCategory, severity Severity, message string) *TorError {
	return &TorError{Category: category, Severity: severity, Message: message}
}

// Wrap wraps an existing error with TorError.
func Wrap(category ErrorCategory, severity Severity, message string, err error) *TorError {
	return &TorError{Category: category, Severity: severity, Message: message, Underlying: err}
}

// NewRetryable creates a new retryable TorError.
func NewRetryable(category ErrorCategory, severity Severity, message string) *TorError {
	return &TorError{Category: category, Severity: severity, Message: message, Retryable: true}
}

// WrapRetryable wraps an existing error with a retryable TorError.
func WrapRetryable(category ErrorCategory, severity Severity, message string, err error) *TorError {
	return &TorError{Category: category, Severity: severity, Message: message, Underlying: err, Retryable: true}
}

// Closed-taxonomy constructors, one per row of the error policy table: each
// fixes the retry/severity policy so callers never have to guess it.

// UnsupportedURIScheme: report to caller, no retry.
func UnsupportedURIScheme(uri string) *TorError {
	return New(CategoryUnsupportedURIScheme, SeverityLow, "unsupported URI scheme in "+uri)
}

// MissingHostname: report to caller.
func MissingHostname(uri string) *TorError {
	return New(CategoryMissingHostname, SeverityLow, "missing hostname in "+uri)
}

// OnionDialFailed: propagate; upper layer may retry.
func OnionDialFailed(message string, err error) *TorError {
	return WrapRetryable(CategoryOnionDialFailed, SeverityMedium, message, err)
}

// TLSFailed: report, no retry inside core.
func TLSFailed(message string, err error) *TorError {
	return Wrap(CategoryTLSFailed, SeverityMedium, message, err)
}

// ProtocolViolation: tear down circuit/stream.
func ProtocolViolation(message string) *TorError {
	return New(CategoryProtocolViolation, SeverityHigh, message)
}

// InternalInvariant: bug; surface as fatal internal error.
func InternalInvariant(message string) *TorError {
	return New(CategoryInternalInvariant, SeverityCritical, message)
}

// ParseError: reject that descriptor only, naming the offending token.
func ParseError(token string, err error) *TorError {
	e := Wrap(CategoryParseError, SeverityLow, "malformed token: "+token, err)
	return e.WithContext("token", token)
}

// PaddingMisconsensus: log; use named default.
func PaddingMisconsensus(message string) *TorError {
	return New(CategoryPaddingMisconsensus, SeverityLow, message)
}

// ConnectionError creates a connection error.
func ConnectionError(message string, err error) *TorError {
	return WrapRetryable(CategoryConnection, SeverityMedium, message, err)
}

// ChannelError creates a channel-map error.
func ChannelError(message string, err error) *TorError {
	return Wrap(CategoryChannel, SeverityMedium, message, err)
}

// CryptoError creates a cryptography error.
func CryptoError(message string, err error) *TorError {
	return Wrap(CategoryCrypto, SeverityHigh, message, err)
}

// ConfigurationError creates a configuration error.
func ConfigurationError(message string, err error) *TorError {
	return Wrap(CategoryConfiguration, SeverityCritical, message, err)
}

// TimeoutError creates a timeout error.
func TimeoutError(message string, err error) *TorError {
	return WrapRetryable(CategoryTimeout, SeverityMedium, message, err)
}

// NetworkError creates a network error.
func NetworkError(message string, err error) *TorError {
	return WrapRetryable(CategoryNetwork, SeverityMedium, message, err)
}

// InternalError creates a generic internal error.
func InternalError(message string, err error) *TorError {
	return Wrap(CategoryInternal, SeverityHigh, message, err)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var torErr *TorError
	if errors.As(err, &torErr) {
		return torErr.Retryable
	}
	return false
}

// GetCategory returns the error category.
func GetCategory(err error) ErrorCategory {
	var torErr *TorError
	if errors.As(err, &torErr) {
		return torErr.Category
	}
	return CategoryInternal
}

// GetSeverity returns the error severity.
func GetSeverity(err error) Severity {
	var torErr *TorError
	if errors.As(err, &torErr) {
		return torErr.Severity
	}
	return SeverityMedium
}

// IsCategory checks if an error belongs to a specific category.
func IsCategory(err error, category ErrorCategory) bool {
	var torErr *TorError
	if errors.As(err, &torErr) {
		return torErr.Category == category
	}
	return false
}
