package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	cause := fmt.Errorf("no such file")
	err := NewInputError("failed to open image", cause).WithFile("a.png")

	msg := err.Error()
	for _, want := range []string{"input", "a.png", "failed to open image", "no such file"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestIsType_Wrapped(t *testing.T) {
	err := fmt.Errorf("calibrating: %w", NewDegenerateError("section 0,0 has one value", nil))

	if !IsType(err, ErrorTypeDegenerate) {
		t.Error("IsType should see through fmt.Errorf wrapping")
	}
	if IsType(err, ErrorTypeInput) {
		t.Error("IsType matched the wrong type")
	}
	if IsType(fmt.Errorf("plain"), ErrorTypeInput) {
		t.Error("IsType matched a plain error")
	}
}

func TestGetStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"input", NewInputError("x", nil), http.StatusBadRequest},
		{"validation", NewValidationError("x", nil), http.StatusBadRequest},
		{"degenerate", NewDegenerateError("x", nil), http.StatusUnprocessableEntity},
		{"numeric", NewNumericError("x", nil), http.StatusUnprocessableEntity},
		{"canceled", NewCanceledError("x", nil), http.StatusRequestTimeout},
		{"internal", NewInternalError("x", nil), http.StatusInternalServerError},
		{"plain", fmt.Errorf("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetStatusCode(tt.err); got != tt.want {
				t.Errorf("GetStatusCode: got %d, want %d", got, tt.want)
			}
		})
	}
}
