package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeUpstreamGeneration, "provider call failed", nil)
	want := "upstream_generation_unavailable: provider call failed"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewAppError(ErrCodeUpstreamEmailProvider, "send failed", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}

	var appErr *AppError
	if !errors.As(error(err), &appErr) {
		t.Fatal("expected errors.As to match *AppError")
	}
	if appErr.Code != ErrCodeUpstreamEmailProvider {
		t.Errorf("expected code %s, got %s", ErrCodeUpstreamEmailProvider, appErr.Code)
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeEmailBlocked, http.StatusForbidden},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrCodeUpstreamAudience, http.StatusBadGateway},
		{ErrCodeUpstreamGeneration, http.StatusBadGateway},
		{ErrCodeUpstreamEmailProvider, http.StatusBadGateway},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeGenerationMalformed, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrCodeOrchestration, http.StatusInternalServerError},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestAppError_WithDetails(t *testing.T) {
	err := NewAppErrorWithDetails(ErrCodeUpstreamAudience, "page fetch failed", nil, map[string]any{
		"page": 3,
	})
	if err.Details["page"] != 3 {
		t.Errorf("expected details to carry page=3, got %v", err.Details["page"])
	}
}
