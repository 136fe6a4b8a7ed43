// Package web serves the bundled admin UI from a directory on disk.
//
// Every request resolves its path through a Resolver, stats the file and
// reads it fresh; nothing is cached. Files are opened through an os.Root so
// a symlink inside the tree cannot lead outside it either.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"grimm.is/tunnelgate/internal/logging"
)

// IndexFile is served for the root path.
const IndexFile = "index.html"

// contentTypes is the full set of types the handler names explicitly.
var contentTypes = map[string]string{
	".html": "text/html",
	".js":   "application/javascript",
	".json": "application/json",
	".css":  "text/css",
	".png":  "image/png",
}

// ContentType returns the explicit content type for name, or "".
func ContentType(name string) string {
	return contentTypes[strings.ToLower(filepath.Ext(name))]
}

// Handler serves static assets.
type Handler struct {
	resolver *Resolver
	logger   *logging.Logger
}

// NewHandler creates a static asset handler rooted at dir.
func NewHandler(dir string, logger *logging.Logger) (*Handler, error) {
	resolver, err := NewResolver(dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.WithComponent("web")
	}
	return &Handler{resolver: resolver, logger: logger}, nil
}

// ServeHTTP resolves, stats and serves the requested file.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.resolver.Resolve(r.URL.Path)
	if err != nil {
		h.logger.Warn("Rejected static path", "path", r.URL.Path)
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	if resolved == h.resolver.RootSentinel() {
		resolved = filepath.Join(h.resolver.Root(), IndexFile)
	}

	rel, err := filepath.Rel(h.resolver.Root(), resolved)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	root, err := os.OpenRoot(h.resolver.Root())
	if err != nil {
		h.logger.Error("Web root unavailable", "root", h.resolver.Root(), "error", err)
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	defer root.Close()

	info, err := root.Stat(rel)
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	f, err := root.Open(rel)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			h.logger.Warn("Failed to open static file", "path", rel, "error", err)
		}
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	defer f.Close()

	if ct := ContentType(resolved); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		// A present-but-nil entry stops ServeContent from guessing one.
		w.Header()["Content-Type"] = nil
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
