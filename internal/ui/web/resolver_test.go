package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	r, err := NewResolver("/app/www")
	require.NoError(t, err)

	tests := []struct {
		name      string
		requested string
		want      string
		wantErr   bool
	}{
		{"root", "/", "/app/www/", false},
		{"empty is the root", "", "/app/www/", false},
		{"dot is the root", ".", "/app/www/", false},
		{"nested asset", "assets/app.js", "/app/www/assets/app.js", false},
		{"leading slash stays inside", "/index.html", "/app/www/index.html", false},
		{"absolute-looking path stays inside", "/etc/passwd", "/app/www/etc/passwd", false},
		{"inner dotdot", "assets/../index.html", "/app/www/index.html", false},
		{"dotdot back to root", "assets/..", "/app/www/", false},
		{"traversal", "../../etc/passwd", "", true},
		{"traversal with leading slash", "/../../etc/passwd", "", true},
		{"parent directory", "..", "", true},
		{"sibling sharing a prefix", "../www-evil/secret", "", true},
		{"sibling via nested dotdot", "assets/../../www-evil/x", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.requested)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutsideRoot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_RootSentinel(t *testing.T) {
	r, err := NewResolver("/app/www/")
	require.NoError(t, err)
	assert.Equal(t, "/app/www", r.Root())
	assert.Equal(t, "/app/www/", r.RootSentinel())
}

func TestIsDescendant(t *testing.T) {
	tests := []struct {
		root, path string
		want       bool
	}{
		{"/app/www", "/app/www/a", true},
		{"/app/www", "/app/www/a/b", true},
		{"/app/www", "/app/www", false},
		{"/app/www", "/app/www-evil", false},
		{"/app/www", "/app/www-evil/a", false},
		{"/app/www", "/app", false},
		{"/app/www", "/other/www/a", false},
		{"/", "/etc", true},
		{"/", "/", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isDescendant(tt.root, tt.path), "isDescendant(%q, %q)", tt.root, tt.path)
	}
}
