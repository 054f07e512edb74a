package commands

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGatherInputPrefersArgument(t *testing.T) {
	got, err := gatherInput([]string{"hello"}, "")
	if err != nil {
		t.Fatalf("gatherInput: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestGatherInputReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(path, []byte("from file"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := gatherInput(nil, path)
	if err != nil {
		t.Fatalf("gatherInput: %v", err)
	}
	if got != "from file" {
		t.Errorf("got %q, want %q", got, "from file")
	}
}

func TestGatherInputMissingFile(t *testing.T) {
	if _, err := gatherInput(nil, filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
