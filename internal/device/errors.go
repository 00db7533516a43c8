package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorKind represents the category of a device request failure
type ErrorKind int

const (
	// KindUnreachable indicates the connection could not be established
	KindUnreachable ErrorKind = iota
	// KindTimeout indicates the request did not complete in time
	KindTimeout
	// KindBadStatus indicates the device answered with a non-2xx status
	KindBadStatus
	// KindMalformedBody indicates the response body was not a JSON object
	KindMalformedBody
)

// NetworkSubtype provides more specific network error classification
type NetworkSubtype int

const (
	NetworkGeneral NetworkSubtype = iota
	NetworkTimeout
	NetworkConnectionRefused
	NetworkDNS
	NetworkHostUnreachable
	NetworkUnreachable
	NetworkCanceled
)

// Sentinels for errors.Is matching against an *Error's kind.
var (
	ErrUnreachable   = errors.New("device unreachable")
	ErrTimeout       = errors.New("device request timed out")
	ErrBadStatus     = errors.New("device returned bad status")
	ErrMalformedBody = errors.New("device returned malformed body")
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "Unreachable"
	case KindTimeout:
		return "Timeout"
	case KindBadStatus:
		return "Bad Status"
	case KindMalformedBody:
		return "Malformed Body"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error represents a failed request to a device
type Error struct {
	Kind       ErrorKind      // Category of error
	Message    string         // Human-readable error message
	StatusCode int            // HTTP status code (BadStatus only)
	Path       string         // Request path, e.g. "/data.jsn"
	Host       string         // Device host (for context)
	Subtype    NetworkSubtype // More specific network error type
	Err        error          // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels. A timeout also matches ErrUnreachable,
// since from the caller's side the device could not be reached.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnreachable:
		return e.Kind == KindUnreachable || e.Kind == KindTimeout
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrBadStatus:
		return e.Kind == KindBadStatus
	case ErrMalformedBody:
		return e.Kind == KindMalformedBody
	}
	return false
}

// classify analyzes a transport error and maps it onto the taxonomy
func classify(err error, host string) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return &Error{
			Kind:    KindUnreachable,
			Message: "Request canceled",
			Err:     err,
			Subtype: NetworkCanceled,
			Host:    host,
		}
	}

	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:    KindTimeout,
			Message: "Request timed out",
			Err:     err,
			Subtype: NetworkTimeout,
			Host:    host,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Kind:    KindUnreachable,
			Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:     err,
			Subtype: NetworkDNS,
			Host:    host,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &Error{
				Kind:    KindUnreachable,
				Message: "Device refused connection",
				Err:     err,
				Subtype: NetworkConnectionRefused,
				Host:    host,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &Error{
				Kind:    KindUnreachable,
				Message: "Host unreachable",
				Err:     err,
				Subtype: NetworkHostUnreachable,
				Host:    host,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Error{
				Kind:    KindUnreachable,
				Message: "Network unreachable",
				Err:     err,
				Subtype: NetworkUnreachable,
				Host:    host,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		// Classify the wrapped transport error but keep the full chain
		inner := classify(urlErr.Err, host)
		inner.Err = err
		return inner
	}

	return &Error{
		Kind:    KindUnreachable,
		Message: "Network error occurred",
		Err:     err,
		Subtype: NetworkGeneral,
		Host:    host,
	}
}

// NewNetworkError creates a transport-level error with automatic classification
func NewNetworkError(host, path, message string, err error) *Error {
	e := classify(err, host)
	if e == nil {
		e = &Error{Kind: KindUnreachable, Host: host}
	}
	e.Path = path
	if message != "" {
		e.Message = message
	}
	return e
}

// NewStatusError creates a non-2xx status error
func NewStatusError(host, path string, statusCode int) *Error {
	return &Error{
		Kind:       KindBadStatus,
		Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		StatusCode: statusCode,
		Path:       path,
		Host:       host,
	}
}

// NewMalformedError creates a body parsing error
func NewMalformedError(host, path string, err error) *Error {
	return &Error{
		Kind:    KindMalformedBody,
		Message: "failed to parse JSON response",
		Path:    path,
		Host:    host,
		Err:     err,
	}
}

// IsUnreachable reports whether err means the device could not be reached
// (including timeouts).
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// IsTimeout reports whether err is a request timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsBadStatus reports whether err is a non-2xx response
func IsBadStatus(err error) bool {
	return errors.Is(err, ErrBadStatus)
}

// IsMalformedBody reports whether err is an unparseable response
func IsMalformedBody(err error) bool {
	return errors.Is(err, ErrMalformedBody)
}

// StatusCode returns the HTTP status of a BadStatus error, or 0.
func StatusCode(err error) int {
	var devErr *Error
	if errors.As(err, &devErr) {
		return devErr.StatusCode
	}
	return 0
}

// Hint returns user-friendly troubleshooting advice for an error
func Hint(err error) string {
	var devErr *Error
	if !errors.As(err, &devErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Kind {
	case KindTimeout:
		return strings.Join([]string{
			"The device did not respond in time.",
			"Troubleshooting:",
			"  • Check that the AC-Thor is powered on",
			"  • Verify the device and this host share a network",
			"  • Try a longer timeout (--timeout)",
		}, "\n")

	case KindUnreachable:
		hint := []string{"The device could not be reached."}

		switch devErr.Subtype {
		case NetworkConnectionRefused:
			hint = append(hint,
				"Troubleshooting:",
				"  • The device's web server may be restarting - wait a minute",
				"  • Verify the port number (default is 80)")
		case NetworkDNS:
			hint = append(hint,
				"Troubleshooting:",
				"  • Use the IP address instead of a hostname",
				"  • Check your network DNS settings")
		case NetworkHostUnreachable:
			hint = append(hint,
				"Troubleshooting:",
				"  • Verify the device IP address is correct",
				"  • Check the IP shown on the device display",
				"  • Try pinging the device: ping "+devErr.Host)
		case NetworkUnreachable:
			hint = append(hint,
				"Troubleshooting:",
				"  • This host has no route to the device's network",
				"  • Check your network adapter settings")
		default:
			hint = append(hint,
				"Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the device is powered on",
				"  • Run 'mypv scan' to look for it on the subnet")
		}
		return strings.Join(hint, "\n")

	case KindBadStatus:
		if devErr.StatusCode >= 500 {
			return strings.Join([]string{
				fmt.Sprintf("The device returned an error (HTTP %d).", devErr.StatusCode),
				"Troubleshooting:",
				"  • Try again in a few seconds",
				"  • Restart the device if the error persists",
			}, "\n")
		}
		return fmt.Sprintf("The device returned HTTP error %d. Check the device model and firmware.", devErr.StatusCode)

	case KindMalformedBody:
		return strings.Join([]string{
			"Failed to parse the device's response.",
			"The host may not be a my-PV device, or the firmware is incompatible.",
			"Troubleshooting:",
			"  • Open http://" + devErr.Host + "/mypv_dev.jsn in a browser",
			"  • Update the device firmware",
		}, "\n")

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// ShortMessage returns a concise, user-friendly error message
func ShortMessage(err error) string {
	var devErr *Error
	if !errors.As(err, &devErr) {
		return err.Error()
	}

	switch devErr.Kind {
	case KindTimeout:
		return "Device not responding (timeout)"
	case KindUnreachable:
		switch devErr.Subtype {
		case NetworkConnectionRefused:
			return "Device refused connection"
		case NetworkDNS:
			return "Cannot resolve device hostname"
		case NetworkHostUnreachable:
			return "Device unreachable - check network connection"
		case NetworkUnreachable:
			return "Network unreachable"
		case NetworkCanceled:
			return "Request canceled"
		default:
			return "Network error - check connection"
		}
	case KindBadStatus:
		return fmt.Sprintf("Device error (HTTP %d)", devErr.StatusCode)
	case KindMalformedBody:
		return "Failed to parse device response"
	default:
		return devErr.Message
	}
}
