package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestWrap(t *testing.T) {
	originalErr := errors.New("slot index corrupted")
	wrapped := Wrap(originalErr, CodeInternal, "internal error", http.StatusInternalServerError)

	if wrapped.Err != originalErr {
		t.Errorf("expected wrapped error to contain original error")
	}
	if errors.Unwrap(wrapped) != originalErr {
		t.Errorf("Unwrap() should return original error")
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   AlreadyBooked("slot taken"),
			expected: "ALREADY_BOOKED: slot taken",
		},
		{
			name:     "with underlying error",
			appErr:   Internal("internal error", errors.New("index out of sync")),
			expected: "INTERNAL_ERROR: internal error (caused by: index out of sync)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appErr.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestKindConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"policy violation", PolicyViolation("too late"), CodePolicyViolation, http.StatusUnprocessableEntity},
		{"already booked", AlreadyBooked("taken"), CodeAlreadyBooked, http.StatusConflict},
		{"out of hours", OutOfHours("closed"), CodeOutOfHours, http.StatusUnprocessableEntity},
		{"not found", NotFound("Reservation"), CodeNotFound, http.StatusNotFound},
		{"invalid input", InvalidInput("misaligned"), CodeInvalidInput, http.StatusBadRequest},
		{"past timeframe", PastTimeframe("elapsed"), CodePastTimeframe, http.StatusUnprocessableEntity},
		{"confirmation expired", ConfirmationExpired("expired"), CodeConfirmationExpired, http.StatusGone},
		{"wrong state", WrongState("not pending"), CodeWrongState, http.StatusConflict},
		{"too many requests", TooManyRequests("slow down"), CodeTooManyRequests, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.StatusCode() != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, tt.err.StatusCode())
			}
		})
	}
}

func TestNotFoundWithID(t *testing.T) {
	err := NotFoundWithID("Reservation", "12345")

	if err.Message != "Reservation not found" {
		t.Errorf("expected message 'Reservation not found', got %s", err.Message)
	}
	if err.Details["id"] != "12345" {
		t.Errorf("expected id '12345', got %v", err.Details["id"])
	}
	if err.Details["resource"] != "Reservation" {
		t.Errorf("expected resource 'Reservation', got %v", err.Details["resource"])
	}
}

func TestAppError_WithDetails(t *testing.T) {
	err := PolicyViolation("too late to book").WithDetails(map[string]any{
		"min_advance_booking_min": 30,
	})

	if err.Details["min_advance_booking_min"] != 30 {
		t.Errorf("expected detail 30, got %v", err.Details["min_advance_booking_min"])
	}
}

func TestHasCode(t *testing.T) {
	booked := AlreadyBooked("taken")
	wrapped := fmt.Errorf("make reservation: %w", booked)

	if !HasCode(booked, CodeAlreadyBooked) {
		t.Error("HasCode() should match the direct error")
	}
	if !HasCode(wrapped, CodeAlreadyBooked) {
		t.Error("HasCode() should match through wrapping")
	}
	if HasCode(wrapped, CodeOutOfHours) {
		t.Error("HasCode() should not match a different code")
	}
	if HasCode(errors.New("plain"), CodeAlreadyBooked) {
		t.Error("HasCode() should not match a plain error")
	}
	if HasCode(nil, CodeAlreadyBooked) {
		t.Error("HasCode() should not match nil")
	}
}

func TestIsAppError(t *testing.T) {
	if !IsAppError(NotFound("Reservation")) {
		t.Errorf("IsAppError() should return true for AppError")
	}
	if !IsAppError(fmt.Errorf("wrapped: %w", NotFound("Reservation"))) {
		t.Errorf("IsAppError() should return true for wrapped AppError")
	}
	if IsAppError(errors.New("regular error")) {
		t.Errorf("IsAppError() should return false for regular error")
	}
}

func TestAsAppError(t *testing.T) {
	appErr := NotFound("Reservation")
	regularErr := errors.New("regular error")

	if AsAppError(appErr) != appErr {
		t.Errorf("AsAppError() should return same AppError")
	}

	result := AsAppError(regularErr)
	if result.Code != CodeInternal {
		t.Errorf("AsAppError() should wrap regular error as internal error")
	}
	if result.Err != regularErr {
		t.Errorf("AsAppError() should wrap the original error")
	}
}

func TestAppError_ToJSON(t *testing.T) {
	jsonStr := string(NotFoundWithID("Reservation", "12345").ToJSON())

	if !strings.Contains(jsonStr, "NOT_FOUND") {
		t.Errorf("ToJSON() should contain error code, got %s", jsonStr)
	}
	if !strings.Contains(jsonStr, "not found") {
		t.Errorf("ToJSON() should contain error message, got %s", jsonStr)
	}
}
