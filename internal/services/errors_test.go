package services

import (
	"errors"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("exit status 1")
	err := Wrap(ErrExternalTool, "standardize", "remux", "phase A", base)
	if !errors.Is(err, ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped base error to be preserved")
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient default, got %v", err)
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(Wrap(ErrNoAudio, "tracks", "begin", "", nil)) {
		t.Fatal("expected no-audio to be fatal")
	}
	if IsFatal(Wrap(ErrExternalTool, "standardize", "remux", "", nil)) {
		t.Fatal("expected external tool failure to be non-fatal")
	}
}
