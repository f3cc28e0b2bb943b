package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ternlab/tern/internal/log"
	"github.com/ternlab/tern/internal/security"
)

// MaxReadFileSize is the maximum file size allowed for read_file (10 MB).
// Prevents OOM when reading large files into memory.
const MaxReadFileSize = 10 * 1024 * 1024

// ReadFileInput defines input for the read_file tool.
type ReadFileInput struct {
	Path string `json:"path" jsonschema:"the file path to read, absolute or relative"`
}

// WriteFileInput defines input for the write_file tool.
type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"the file path to write"`
	Content string `json:"content" jsonschema:"the content to write to the file"`
}

// ListDirInput defines input for the list_dir tool.
type ListDirInput struct {
	Path string `json:"path,omitempty" jsonschema:"the directory path to list, defaults to the working directory"`
}

// FileTools provides file operation tools. Every path goes through the
// validator before any filesystem access.
type FileTools struct {
	pathVal *security.PathValidator
	logger  log.Logger
}

// NewFileTools creates the file toolset.
func NewFileTools(pathVal *security.PathValidator, logger log.Logger) (*FileTools, error) {
	if pathVal == nil {
		return nil, fmt.Errorf("path validator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &FileTools{pathVal: pathVal, logger: logger}, nil
}

// Tools returns the file operation tools.
func (ft *FileTools) Tools() ([]Tool, error) {
	readFile, err := New(
		"read_file",
		"Read the complete content of a text file.",
		ft.ReadFile,
	)
	if err != nil {
		return nil, err
	}

	writeFile, err := New(
		"write_file",
		"Write or create a text file, replacing any existing content.",
		ft.WriteFile,
	)
	if err != nil {
		return nil, err
	}

	listDir, err := New(
		"list_dir",
		"List the files and subdirectories in a directory.",
		ft.ListDir,
	)
	if err != nil {
		return nil, err
	}

	return []Tool{readFile, writeFile, listDir}, nil
}

// ReadFile reads and returns the complete content of a file. Uses os.Open
// with io.LimitReader so oversized files are rejected in a single pass.
func (ft *FileTools) ReadFile(_ context.Context, input ReadFileInput) (string, error) {
	ft.logger.Debug("read_file called", "path", input.Path)

	safePath, err := ft.pathVal.Validate(input.Path)
	if err != nil {
		return "", err
	}

	file, err := os.Open(safePath) // #nosec G304 -- path already validated
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", input.Path)
		}
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	// Read one byte past the limit to distinguish at-limit from over-limit.
	data, err := io.ReadAll(io.LimitReader(file, MaxReadFileSize+1))
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	if len(data) > MaxReadFileSize {
		return "", fmt.Errorf("file too large: %s exceeds %d bytes", input.Path, MaxReadFileSize)
	}
	return string(data), nil
}

// WriteFile writes content to a file, creating it if necessary.
func (ft *FileTools) WriteFile(_ context.Context, input WriteFileInput) (string, error) {
	ft.logger.Debug("write_file called", "path", input.Path, "bytes", len(input.Content))

	safePath, err := ft.pathVal.Validate(input.Path)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(safePath, []byte(input.Content), 0o600); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(input.Content), input.Path), nil
}

// ListDir lists a directory, one entry per line, directories suffixed with a
// separator.
func (ft *FileTools) ListDir(_ context.Context, input ListDirInput) (string, error) {
	path := input.Path
	if path == "" {
		path = "."
	}
	ft.logger.Debug("list_dir called", "path", path)

	safePath, err := ft.pathVal.Validate(path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory not found: %s", path)
		}
		return "", fmt.Errorf("listing directory: %w", err)
	}

	if len(entries) == 0 {
		return "(empty directory)", nil
	}

	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString(entry.Name())
		if entry.IsDir() {
			sb.WriteByte('/')
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
