package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRenderSimple(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "about.tmpl", "Hello {{ name }}!")

	r, err := NewPongoRenderer(root)
	require.NoError(t, err)

	out, err := r.Render("about.tmpl", map[string]interface{}{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "Hello world!", string(out))
}

func TestRenderIncludesStayInRoot(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "shared/header.tmpl", "== header ==")
	writeTemplate(t, root, "page.tmpl", `{% include "shared/header.tmpl" %} body`)

	r, err := NewPongoRenderer(root)
	require.NoError(t, err)

	out, err := r.Render("page.tmpl", nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "== header ==")
}

func TestRenderSyntaxErrorSurfaces(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "broken.tmpl", "{% if %}")

	r, err := NewPongoRenderer(root)
	require.NoError(t, err)

	_, err = r.Render("broken.tmpl", nil)
	assert.Error(t, err)
}

func TestRenderPicksUpChanges(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "page.tmpl", "version one")

	r, err := NewPongoRenderer(root)
	require.NoError(t, err)

	out, err := r.Render("page.tmpl", nil)
	require.NoError(t, err)
	assert.Equal(t, "version one", string(out))

	writeTemplate(t, root, "page.tmpl", "version two")

	out, err = r.Render("page.tmpl", nil)
	require.NoError(t, err)
	assert.Equal(t, "version two", string(out), "templates must not be cached across requests")
}

func TestRenderMissingTemplate(t *testing.T) {
	r, err := NewPongoRenderer(t.TempDir())
	require.NoError(t, err)

	_, err = r.Render("absent.tmpl", nil)
	assert.Error(t, err)
}
