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
	"testing"
)

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindUnreachable, "Unreachable"},
		{KindTimeout, "Timeout"},
		{KindBadStatus, "Bad Status"},
		{KindMalformedBody, "Malformed Body"},
		{ErrorKind(42), "ErrorKind(42)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := NewStatusError("10.0.0.5", PathData, 404)
	if got := err.Error(); got != "Bad Status /data.jsn: unexpected status code: 404" {
		t.Errorf("Error() = %q", got)
	}

	cause := errors.New("boom")
	err = NewMalformedError("10.0.0.5", PathInfo, cause)
	if !strings.Contains(err.Error(), "caused by: boom") {
		t.Errorf("Error() = %q, want cause", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
}

func TestSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		is   []error
		not  []error
	}{
		{
			name: "unreachable",
			err:  &Error{Kind: KindUnreachable},
			is:   []error{ErrUnreachable},
			not:  []error{ErrTimeout, ErrBadStatus, ErrMalformedBody},
		},
		{
			name: "timeout",
			err:  &Error{Kind: KindTimeout},
			is:   []error{ErrTimeout, ErrUnreachable},
			not:  []error{ErrBadStatus, ErrMalformedBody},
		},
		{
			name: "bad status",
			err:  &Error{Kind: KindBadStatus, StatusCode: 500},
			is:   []error{ErrBadStatus},
			not:  []error{ErrUnreachable, ErrTimeout},
		},
		{
			name: "malformed",
			err:  &Error{Kind: KindMalformedBody},
			is:   []error{ErrMalformedBody},
			not:  []error{ErrUnreachable, ErrBadStatus},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("cycle: %w", tt.err)
			for _, target := range tt.is {
				if !errors.Is(wrapped, target) {
					t.Errorf("errors.Is(%v, %v) = false", wrapped, target)
				}
			}
			for _, target := range tt.not {
				if errors.Is(wrapped, target) {
					t.Errorf("errors.Is(%v, %v) = true", wrapped, target)
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	hostUnreach := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.EHOSTUNREACH)}
	netUnreach := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ENETUNREACH)}

	tests := []struct {
		name        string
		err         error
		wantKind    ErrorKind
		wantSubtype NetworkSubtype
	}{
		{"refused", refused, KindUnreachable, NetworkConnectionRefused},
		{"host unreachable", hostUnreach, KindUnreachable, NetworkHostUnreachable},
		{"network unreachable", netUnreach, KindUnreachable, NetworkUnreachable},
		{"dns", &net.DNSError{Name: "acthor.local", Err: "no such host"}, KindUnreachable, NetworkDNS},
		{"deadline", context.DeadlineExceeded, KindTimeout, NetworkTimeout},
		{"canceled", context.Canceled, KindUnreachable, NetworkCanceled},
		{"url wrapped refused", &url.Error{Op: "Get", URL: "http://x/data.jsn", Err: refused}, KindUnreachable, NetworkConnectionRefused},
		{"generic", errors.New("eof"), KindUnreachable, NetworkGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err, "10.0.0.5")
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Subtype != tt.wantSubtype {
				t.Errorf("Subtype = %v, want %v", got.Subtype, tt.wantSubtype)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}

	if classify(nil, "") != nil {
		t.Error("classify(nil) should be nil")
	}
}

func TestHintAndShortMessage(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		hint      string
		shortWant string
	}{
		{"timeout", &Error{Kind: KindTimeout}, "did not respond", "Device not responding (timeout)"},
		{"refused", &Error{Kind: KindUnreachable, Subtype: NetworkConnectionRefused}, "port number", "Device refused connection"},
		{"host unreachable", &Error{Kind: KindUnreachable, Subtype: NetworkHostUnreachable, Host: "10.0.0.5"}, "ping 10.0.0.5", "Device unreachable - check network connection"},
		{"5xx", &Error{Kind: KindBadStatus, StatusCode: 503}, "HTTP 503", "Device error (HTTP 503)"},
		{"4xx", &Error{Kind: KindBadStatus, StatusCode: 404}, "HTTP error 404", "Device error (HTTP 404)"},
		{"malformed", &Error{Kind: KindMalformedBody, Host: "10.0.0.5"}, "http://10.0.0.5/mypv_dev.jsn", "Failed to parse device response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("poll: %w", tt.err)
			if hint := Hint(wrapped); !strings.Contains(hint, tt.hint) {
				t.Errorf("Hint() = %q, want it to contain %q", hint, tt.hint)
			}
			if got := ShortMessage(wrapped); got != tt.shortWant {
				t.Errorf("ShortMessage() = %q, want %q", got, tt.shortWant)
			}
		})
	}

	plain := errors.New("plain")
	if ShortMessage(plain) != "plain" {
		t.Error("ShortMessage of a foreign error should be its text")
	}
	if !strings.Contains(Hint(plain), "unexpected") {
		t.Error("Hint of a foreign error should be generic")
	}
}
