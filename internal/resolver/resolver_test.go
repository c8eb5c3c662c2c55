package resolver

import (
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerr "github.com/conneroisu/routefs/internal/errors"
	"github.com/conneroisu/routefs/internal/routeindex"
)

func buildIndex(t *testing.T, files map[string]string) *routeindex.Index {
	t.Helper()

	fsys := memfs.New()
	for name, content := range files {
		writeFile(t, fsys, name, content)
	}

	ix := routeindex.New(fsys, routeindex.Options{
		TemplateExts: []string{".tmpl"},
		DynamicExts:  []string{".js"},
		IndexPattern: "index.*",
	}, nil)
	require.NoError(t, ix.BuildFull())
	return ix
}

func writeFile(t *testing.T, fsys billy.Filesystem, name, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fsys, name, []byte(content), 0o644))
}

func TestResolveDirectHit(t *testing.T) {
	ix := buildIndex(t, map[string]string{"static/logo.png": "png"})
	r := New(ix, nil, false)

	route, err := r.Resolve("static/logo.png")
	require.NoError(t, err)
	assert.Equal(t, routeindex.KindStatic, route.Descriptor.Kind)
	assert.Empty(t, route.MatchedSuffix)
	assert.False(t, route.Listing)
}

func TestResolveExtensionInference(t *testing.T) {
	ix := buildIndex(t, map[string]string{"about.tmpl": "{{ title }}"})
	r := New(ix, []string{".js", ".tmpl"}, false)

	route, err := r.Resolve("about")
	require.NoError(t, err)
	assert.Equal(t, "about.tmpl", route.Descriptor.NormalizedPath)
	assert.Equal(t, ".tmpl", route.MatchedSuffix)
}

func TestResolvePriorityDeterminism(t *testing.T) {
	files := map[string]string{
		"x.tmpl": "template",
		"x.js":   "script",
	}

	// Priority [.js, .tmpl] must always select x.js.
	r := New(buildIndex(t, files), []string{".js", ".tmpl"}, false)
	for i := 0; i < 10; i++ {
		route, err := r.Resolve("x")
		require.NoError(t, err)
		assert.Equal(t, "x.js", route.Descriptor.NormalizedPath)
	}

	// Reversed priority selects x.tmpl.
	r = New(buildIndex(t, files), []string{".tmpl", ".js"}, false)
	route, err := r.Resolve("x")
	require.NoError(t, err)
	assert.Equal(t, "x.tmpl", route.Descriptor.NormalizedPath)
}

func TestResolveNoInferenceForExtensionPaths(t *testing.T) {
	ix := buildIndex(t, map[string]string{"report.pdf.tmpl": "x"})
	r := New(ix, []string{".tmpl"}, false)

	// "report.pdf" has an extension, so no inference applies.
	_, err := r.Resolve("report.pdf")
	require.Error(t, err)
	assert.True(t, rerr.IsNotFound(err))
}

func TestResolveDirectoryIndex(t *testing.T) {
	ix := buildIndex(t, map[string]string{"blog/index.html": "<html></html>"})
	r := New(ix, nil, false)

	route, err := r.Resolve("blog")
	require.NoError(t, err)
	assert.Equal(t, routeindex.KindDirectoryIndex, route.Descriptor.Kind)
	assert.Equal(t, "blog/index.html", route.Descriptor.IndexTarget)
}

func TestResolveDirectoryListing(t *testing.T) {
	files := map[string]string{"docs/a.txt": "x", "docs/b.txt": "x"}

	// Listings disabled: plain directory is a miss.
	r := New(buildIndex(t, files), nil, false)
	_, err := r.Resolve("docs")
	require.Error(t, err)
	assert.True(t, rerr.IsNotFound(err))

	// Listings enabled: synthetic listing route.
	r = New(buildIndex(t, files), nil, true)
	route, err := r.Resolve("docs")
	require.NoError(t, err)
	assert.True(t, route.Listing)
	assert.Equal(t, 2, route.Descriptor.ChildCount)
}

func TestResolveRootDirectory(t *testing.T) {
	ix := buildIndex(t, map[string]string{"index.html": "<html></html>"})
	r := New(ix, nil, false)

	route, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, routeindex.KindDirectoryIndex, route.Descriptor.Kind)
	assert.Equal(t, "index.html", route.Descriptor.IndexTarget)
}

func TestResolveMiss(t *testing.T) {
	r := New(buildIndex(t, map[string]string{"exists.txt": "x"}), []string{".tmpl"}, true)

	_, err := r.Resolve("missing")
	require.Error(t, err)
	assert.True(t, rerr.IsNotFound(err))
}

func TestResolveSnapshotPinned(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, "a.txt", "x")

	ix := routeindex.New(fsys, routeindex.Options{IndexPattern: "index.*"}, nil)
	require.NoError(t, ix.BuildFull())

	r := New(ix, nil, false)
	route, err := r.Resolve("a.txt")
	require.NoError(t, err)

	// A refresh after resolution must not disturb the resolved route's
	// snapshot.
	writeFile(t, fsys, "b.txt", "x")
	require.NoError(t, ix.Refresh(""))

	_, ok := route.Snapshot.Lookup("b.txt")
	assert.False(t, ok)
	assert.Less(t, route.Snapshot.Version(), ix.Snapshot().Version())
}
