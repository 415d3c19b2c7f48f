package cmdlog

import (
	"errors"
	"testing"
)

func TestRunPassesThroughResult(t *testing.T) {
	if err := Run("check", func() error { return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := errors.New("boom")
	if err := Run("check", func() error { return want }); err != want {
		t.Fatalf("Run returned %v, want %v", err, want)
	}
}
