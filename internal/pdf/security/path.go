// Package security confines every file the tools read or write to the
// configured directory.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator checks that paths stay inside a root directory
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator rooted at configuredDirectory. The
// directory does not need to exist yet.
func NewPathValidator(configuredDirectory string) (*PathValidator, error) {
	if configuredDirectory == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}

	root, err := filepath.Abs(configuredDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}

	return &PathValidator{root: filepath.Clean(root)}, nil
}

// GetConfiguredDirectory returns the absolute root directory
func (v *PathValidator) GetConfiguredDirectory() string {
	return v.root
}

// Resolve turns path into a clean absolute path. Relative paths are taken
// relative to the root.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	return filepath.Clean(path), nil
}

// ValidatePath resolves an input path and checks that it, and whatever it
// links to, lies inside the root.
func (v *PathValidator) ValidatePath(path string) (string, error) {
	resolved, err := v.Resolve(path)
	if err != nil {
		return "", err
	}

	ok, err := v.IsPathWithinDirectory(resolved)
	if err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("path is outside configured directory: %s", path)
	}
	return resolved, nil
}

// ValidateOutput resolves a path about to be written. Its directory must
// exist inside the root and the path must not name a directory.
func (v *PathValidator) ValidateOutput(path string) (string, error) {
	resolved, err := v.ValidatePath(path)
	if err != nil {
		return "", err
	}

	if err := v.ValidateDirectory(filepath.Dir(resolved)); err != nil {
		return "", err
	}
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		return "", fmt.Errorf("output path is a directory: %s", path)
	}
	return resolved, nil
}

// ValidateDirectory checks that dirPath is an existing directory inside the root
func (v *PathValidator) ValidateDirectory(dirPath string) error {
	resolved, err := v.ValidatePath(dirPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dirPath)
	}
	return nil
}

// IsPathWithinDirectory reports whether an absolute path lies inside the
// root. Symbolic links are followed on both sides, so a link inside the root
// that points outside is rejected.
func (v *PathValidator) IsPathWithinDirectory(path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	roots := []string{v.root}
	if real, err := filepath.EvalSymlinks(v.root); err == nil && real != v.root {
		roots = append(roots, real)
	}

	if !within(absPath, roots) {
		return false, nil
	}

	// A path that does not exist yet cannot be a link.
	real, err := evalExisting(absPath)
	if err != nil {
		return false, err
	}
	return within(real, roots), nil
}

// evalExisting resolves symlinks in the longest existing prefix of path
func evalExisting(path string) (string, error) {
	var rest []string
	for p := path; ; p = filepath.Dir(p) {
		if _, err := os.Lstat(p); err == nil {
			real, err := filepath.EvalSymlinks(p)
			if err != nil {
				return "", err
			}
			return filepath.Join(append([]string{real}, rest...)...), nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path, nil
		}
		rest = append([]string{filepath.Base(p)}, rest...)
	}
}

func within(path string, roots []string) bool {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
