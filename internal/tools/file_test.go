package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ternlab/tern/internal/log"
	"github.com/ternlab/tern/internal/security"
)

func newFileTools(t *testing.T, allowedDirs ...string) *FileTools {
	t.Helper()

	pathVal, err := security.NewPathValidator(allowedDirs)
	if err != nil {
		t.Fatalf("NewPathValidator() error: %v", err)
	}
	ft, err := NewFileTools(pathVal, log.NewNop())
	if err != nil {
		t.Fatalf("NewFileTools() error: %v", err)
	}
	return ft
}

func TestNewFileTools_Validation(t *testing.T) {
	pathVal, err := security.NewPathValidator(nil)
	if err != nil {
		t.Fatalf("NewPathValidator() error: %v", err)
	}

	if _, err := NewFileTools(nil, log.NewNop()); err == nil {
		t.Error("NewFileTools(nil validator) should fail")
	}
	if _, err := NewFileTools(pathVal, nil); err == nil {
		t.Error("NewFileTools(nil logger) should fail")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ft := newFileTools(t, dir)
	ctx := context.Background()

	path := filepath.Join(dir, "note.txt")
	msg, err := ft.WriteFile(ctx, WriteFileInput{Path: path, Content: "hello world"})
	if err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	if !strings.Contains(msg, "11 bytes") {
		t.Errorf("WriteFile() = %q, want byte count in confirmation", msg)
	}

	got, err := ft.ReadFile(ctx, ReadFileInput{Path: path})
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if got != "hello world" {
		t.Errorf("ReadFile() = %q, want %q", got, "hello world")
	}
}

func TestReadFile_NotFound(t *testing.T) {
	dir := t.TempDir()
	ft := newFileTools(t, dir)

	_, err := ft.ReadFile(context.Background(), ReadFileInput{Path: filepath.Join(dir, "missing.txt")})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("ReadFile(missing) = %v, want not found error", err)
	}
}

func TestReadFile_DeniesOutsidePath(t *testing.T) {
	ft := newFileTools(t)

	_, err := ft.ReadFile(context.Background(), ReadFileInput{Path: "/etc/passwd"})
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("ReadFile(/etc/passwd) = %v, want access denied", err)
	}
}

func TestWriteFile_DeniesOutsidePath(t *testing.T) {
	ft := newFileTools(t)

	_, err := ft.WriteFile(context.Background(), WriteFileInput{Path: "/tmp/evil.txt", Content: "x"})
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("WriteFile(/tmp/evil.txt) = %v, want access denied", err)
	}
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	ft := newFileTools(t, dir)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("creating fixture dir: %v", err)
	}

	got, err := ft.ListDir(ctx, ListDirInput{Path: dir})
	if err != nil {
		t.Fatalf("ListDir() error: %v", err)
	}

	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("ListDir() returned %d lines, want 2:\n%s", len(lines), got)
	}
	if lines[0] != "a.txt" {
		t.Errorf("lines[0] = %q, want %q", lines[0], "a.txt")
	}
	if lines[1] != "sub/" {
		t.Errorf("lines[1] = %q, want %q (directories get a trailing slash)", lines[1], "sub/")
	}
}

func TestListDir_Empty(t *testing.T) {
	dir := t.TempDir()
	ft := newFileTools(t, dir)

	got, err := ft.ListDir(context.Background(), ListDirInput{Path: dir})
	if err != nil {
		t.Fatalf("ListDir() error: %v", err)
	}
	if got != "(empty directory)" {
		t.Errorf("ListDir(empty) = %q, want placeholder", got)
	}
}

func TestDefaultTools(t *testing.T) {
	ft := newFileTools(t)

	tools, err := DefaultTools(ft)
	if err != nil {
		t.Fatalf("DefaultTools() error: %v", err)
	}

	want := []string{"read_file", "write_file", "list_dir", "current_time"}
	if len(tools) != len(want) {
		t.Fatalf("DefaultTools() returned %d tools, want %d", len(tools), len(want))
	}
	for i, name := range want {
		if got := tools[i].Definition().Name; got != name {
			t.Errorf("tools[%d] = %q, want %q", i, got, name)
		}
	}
}
