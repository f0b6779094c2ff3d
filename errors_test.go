package scriptrunner

import (
	"errors"
	"testing"
)

func TestOperationError(t *testing.T) {
	t.Run("with script id", func(t *testing.T) {
		err := NewError("stop", 7, ErrNotFound)
		want := "stop script 7: script not found"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
		if !errors.Is(err, ErrNotFound) {
			t.Error("errors.Is should match the wrapped sentinel")
		}
	})

	t.Run("without script id", func(t *testing.T) {
		err := NewError("submit", 0, ErrInvalidArgument)
		want := "submit: invalid argument"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		inner := errors.New("inner")
		err := NewError("get", 1, inner)
		if !errors.Is(err, inner) {
			t.Error("Unwrap should expose the inner error")
		}
		var opErr *OperationError
		if !errors.As(err, &opErr) || opErr.Op != "get" {
			t.Error("errors.As should recover the OperationError")
		}
	})
}

func TestSentinelsDistinct(t *testing.T) {
	if errors.Is(ErrInvalidArgument, ErrNotFound) {
		t.Error("sentinels must be distinct")
	}
	if errors.Is(ErrClosed, ErrNotFound) {
		t.Error("sentinels must be distinct")
	}
}
