package web

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for request paths that resolve outside the web root.
var ErrOutsideRoot = errors.New("path escapes web root")

// Resolver maps request paths onto files below a fixed root directory.
type Resolver struct {
	root string
}

// NewResolver creates a resolver for root, which is made absolute and cleaned.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve web root %q: %w", root, err)
	}
	return &Resolver{root: abs}, nil
}

// Root returns the absolute web root.
func (r *Resolver) Root() string {
	return r.root
}

// RootSentinel is what Resolve returns for the root itself: the root with a
// trailing separator, which the handler maps to the index document.
func (r *Resolver) RootSentinel() string {
	return r.root + string(filepath.Separator)
}

// Resolve returns the absolute path for requested. The request is always
// treated as relative to the root and cleaned lexically; the result must be
// the root itself or a descendant of it, compared segment by segment.
func (r *Resolver) Resolve(requested string) (string, error) {
	if requested == "/" {
		return r.RootSentinel(), nil
	}

	target := filepath.Join(r.root, "."+string(filepath.Separator)+filepath.FromSlash(requested))

	if target == r.root {
		return r.RootSentinel(), nil
	}
	if !isDescendant(r.root, target) {
		return "", ErrOutsideRoot
	}
	return target, nil
}

// isDescendant reports whether p lies strictly below root. Both paths must
// be absolute and clean. "/app/www-evil" is not below "/app/www".
func isDescendant(root, p string) bool {
	rootSegs := splitPath(root)
	pathSegs := splitPath(p)
	if len(pathSegs) <= len(rootSegs) {
		return false
	}
	for i, seg := range rootSegs {
		if pathSegs[i] != seg {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == filepath.Separator })
}
