package htmlfwd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestAddressError_Error(t *testing.T) {
	err := &AddressError{Host: "ftp://h:1", Reason: "unsupported scheme"}
	want := "bad endpoint address [ftp://h:1]: unsupported scheme"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAddressError_ErrorsAs(t *testing.T) {
	err := fmt.Errorf("dial: %w", &AddressError{Host: "h:1", Reason: "missing host"})
	var addrErr *AddressError
	if !errors.As(err, &addrErr) {
		t.Fatal("errors.As should match AddressError")
	}
	if addrErr.Reason != "missing host" {
		t.Errorf("Reason = %q, want %q", addrErr.Reason, "missing host")
	}
}

func TestIndexError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("resolve: %w", &IndexError{Index: 4, Len: 2})
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Error("IndexError should match ErrIndexOutOfRange")
	}
	if errors.Is(err, ErrNotConnected) {
		t.Error("IndexError should not match ErrNotConnected")
	}
	want := "endpoint index 4 out of range [0, 2)"
	if got := errors.Unwrap(err).Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestClientError_Error(t *testing.T) {
	err := &ClientError{
		Kind:      ErrParseFailure,
		Endpoint:  "A",
		Host:      "h:1",
		Index:     0,
		Cause:     fmt.Errorf("unexpected end of JSON input"),
		Timestamp: time.Now(),
	}
	got := err.Error()
	if !strings.Contains(got, "unexpected end of JSON input") {
		t.Errorf("Error() = %q, should contain cause message", got)
	}
	if !strings.Contains(got, "ErrParseFailure") {
		t.Errorf("Error() = %q, should contain error kind", got)
	}
	if !strings.Contains(got, "host=h:1") {
		t.Errorf("Error() = %q, should contain host", got)
	}
}

func TestClientError_Unwrap(t *testing.T) {
	cause := &AddressError{Host: "h:1", Reason: "bad"}
	err := &ClientError{Kind: ErrBadAddress, Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("ClientError should unwrap to its Cause")
	}
}

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{ErrParseFailure, "ErrParseFailure"},
		{ErrBadAddress, "ErrBadAddress"},
		{ErrStaleIndex, "ErrStaleIndex"},
		{ErrHandlerFailed, "ErrHandlerFailed"},
		{ErrCallbackPanic, "ErrCallbackPanic"},
		{ErrorKind(99), "ErrorKind(99)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestLogErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	handler := LogErrors(logger)
	handler(ClientError{
		Kind:      ErrStaleIndex,
		Index:     3,
		Session:   "obs-1",
		Cause:     &IndexError{Index: 3, Len: 1},
		Timestamp: time.Now(),
	})

	output := buf.String()
	for _, want := range []string{"ErrStaleIndex", "index=3", "session=obs-1", "level=warning"} {
		if !strings.Contains(output, want) {
			t.Errorf("LogErrors output = %q, should contain %q", output, want)
		}
	}
	if strings.Contains(output, "host=") {
		t.Errorf("LogErrors output = %q, should omit empty host", output)
	}
}
