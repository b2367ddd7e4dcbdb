package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "status error",
			err:  &Error{StatusCode: 503, Class: ErrorClassServer, Message: "503 Service Unavailable"},
			want: "upstream server error (status 503): 503 Service Unavailable",
		},
		{
			name: "transport error",
			err:  &Error{Class: ErrorClassNetwork, Message: "upstream request failed", Err: errors.New("connection refused")},
			want: "upstream network error (status 0): upstream request failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	wrapped := fmt.Errorf("fetch: %w", &Error{Class: ErrorClassTimeout, Err: context.DeadlineExceeded})

	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Error("errors.Is should reach the transport error")
	}
	var upErr *Error
	if !errors.As(wrapped, &upErr) {
		t.Fatal("errors.As should find *Error")
	}
}

func TestError_Permanent(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := &Error{StatusCode: tt.status, Class: ClassifyStatus(tt.status)}
			if got := err.Permanent(); got != tt.want {
				t.Errorf("Permanent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	for status, want := range map[int]ErrorClass{
		200: "",
		304: "",
		404: ErrorClassClient,
		429: ErrorClassClient,
		500: ErrorClassServer,
		503: ErrorClassServer,
	} {
		if got := ClassifyStatus(status); got != want {
			t.Errorf("ClassifyStatus(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestClassifyTransport(t *testing.T) {
	if got := classifyTransport(fmt.Errorf("x: %w", context.DeadlineExceeded)); got != ErrorClassTimeout {
		t.Errorf("deadline classified as %q", got)
	}
	if got := classifyTransport(errors.New("connection refused")); got != ErrorClassNetwork {
		t.Errorf("generic error classified as %q", got)
	}
}
