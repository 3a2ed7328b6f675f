package capability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/carlink/internal/testutil/testlog"
)

func TestFileIDTrimsContents(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "vehicle_info.txt")
	if err := os.WriteFile(path, []byte("  12가3456\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	id, err := FileID{Path: path}.SelfID()
	if err != nil || id != "12가3456" {
		t.Fatalf("unexpected id=%q err=%v", id, err)
	}
}

func TestFileIDMissingOrInvalid(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	if _, err := (FileID{Path: filepath.Join(dir, "nope.txt")}).SelfID(); !errors.Is(err, ErrNoSelfID) {
		t.Fatalf("expected ErrNoSelfID, got %v", err)
	}
	bad := filepath.Join(dir, "bad.txt")
	_ = os.WriteFile(bad, []byte("A,B"), 0o600)
	if _, err := (FileID{Path: bad}).SelfID(); !errors.Is(err, ErrInvalidSelfID) {
		t.Fatalf("expected ErrInvalidSelfID, got %v", err)
	}
	blank := filepath.Join(dir, "blank.txt")
	_ = os.WriteFile(blank, []byte(" \n"), 0o600)
	if _, err := (FileID{Path: blank}).SelfID(); !errors.Is(err, ErrNoSelfID) {
		t.Fatalf("blank file must be unconfigured, got %v", err)
	}
}

func TestFirstOfFallsThroughUnconfigured(t *testing.T) {
	testlog.Start(t)
	p := FirstOf{StaticID(""), nil, FileID{Path: "/nonexistent/vehicle_info.txt"}, StaticID("CAR42")}
	id, err := p.SelfID()
	if err != nil || id != "CAR42" {
		t.Fatalf("unexpected id=%q err=%v", id, err)
	}
	if _, err := (FirstOf{StaticID("A\nB"), StaticID("C")}).SelfID(); !errors.Is(err, ErrInvalidSelfID) {
		t.Fatalf("invalid id must stop the chain, got %v", err)
	}
	if _, err := (FirstOf{}).SelfID(); !errors.Is(err, ErrNoSelfID) {
		t.Fatalf("expected ErrNoSelfID, got %v", err)
	}
}
