// Package security provides input validation used by the local tools.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator guards file tools against path traversal (CWE-22). A path is
// accepted only when it resolves inside the working directory or one of the
// explicitly allowed directories, after symlink resolution.
type PathValidator struct {
	allowedDirs []string
	workDir     string
}

// NewPathValidator creates a validator. An empty allowedDirs list restricts
// access to the working directory.
func NewPathValidator(allowedDirs []string) (*PathValidator, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	absAllowed := make([]string, 0, len(allowedDirs))
	for _, dir := range allowedDirs {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving directory %s: %w", dir, err)
		}
		absAllowed = append(absAllowed, absDir)
	}

	return &PathValidator{allowedDirs: absAllowed, workDir: workDir}, nil
}

// Validate cleans and resolves a path and returns its safe absolute form, or
// an error if it escapes the allowed directories.
func (v *PathValidator) Validate(path string) (string, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !v.inAllowedDir(absPath) {
		return "", fmt.Errorf("access denied: path %q is not within allowed directories", absPath)
	}

	// Resolve symlinks so a link inside an allowed directory cannot point
	// outside of it.
	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// A missing file is fine for tools that create files; the path
		// itself already passed the directory check.
		if os.IsNotExist(err) {
			return absPath, nil
		}
		return "", fmt.Errorf("resolving symbolic link: %w", err)
	}

	if realPath != absPath && !v.inAllowedDir(realPath) {
		return "", fmt.Errorf("access denied: symbolic link points to disallowed location %q", realPath)
	}
	return realPath, nil
}

func (v *PathValidator) inAllowedDir(absPath string) bool {
	withSep := filepath.Clean(absPath) + string(filepath.Separator)

	if strings.HasPrefix(withSep, filepath.Clean(v.workDir)+string(filepath.Separator)) || absPath == v.workDir {
		return true
	}
	for _, dir := range v.allowedDirs {
		dirNorm := filepath.Clean(dir) + string(filepath.Separator)
		if strings.HasPrefix(withSep, dirNorm) || absPath == dir {
			return true
		}
	}
	return false
}
