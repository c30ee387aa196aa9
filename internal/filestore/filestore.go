// Package filestore resolves stored resume references to readable local files.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Resolver maps an opaque storage reference to an absolute file path.
type Resolver interface {
	ResolvePath(ctx context.Context, ref string) (string, error)
}

// ErrInvalidRef is wrapped by resolvers for references that can never resolve.
var ErrInvalidRef = errors.New("invalid storage reference")

var errEmptyRef = fmt.Errorf("%w: empty", ErrInvalidRef)

// Local resolves references relative to a root directory on disk.
type Local struct {
	Root string
}

func NewLocal(root string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("local storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &Local{Root: abs}, nil
}

func (l *Local) ResolvePath(_ context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errEmptyRef
	}

	path := filepath.Join(l.Root, filepath.FromSlash(ref))
	rel, err := filepath.Rel(l.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes root", ErrInvalidRef, ref)
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, fmt.Errorf("resume file %s: %w", path, fs.ErrNotExist)
		}
		return path, err
	}

	return path, nil
}
