package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/routefs/internal/routeindex"
)

func TestCommandsAreRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	assert.True(t, names["serve"])
	assert.True(t, names["routes"])
	assert.True(t, names["version"])
}

func TestCollectRoutes(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "index.tmpl"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("x"), 0o644))

	index := routeindex.New(osfs.New(root), routeindex.Options{
		Root:         root,
		TemplateExts: []string{".tmpl"},
		DynamicExts:  []string{".js"},
		IndexPattern: "index.*",
	}, nil)
	require.NoError(t, index.BuildFull())

	rows := collectRoutes(index.Snapshot())

	byPath := make(map[string]routeRow)
	for _, row := range rows {
		byPath[row.Path] = row
	}

	assert.Equal(t, "dynamic", byPath["/app.js"].Kind)
	assert.Equal(t, "directory-index", byPath["/docs"].Kind)
	assert.Equal(t, "docs/index.tmpl", byPath["/docs"].File, "directory rows point at their index file")
	assert.Equal(t, "template", byPath["/docs/index.tmpl"].Kind)
}

func TestRoutesRejectsUnknownFormat(t *testing.T) {
	routesFormat = "xml"
	defer func() { routesFormat = "table" }()

	err := runRoutes(routesCmd, nil)
	assert.Error(t, err)
}

func TestVersionRejectsUnknownFormat(t *testing.T) {
	versionFormat = "xml"
	defer func() { versionFormat = "text" }()

	err := runVersionCommand(versionCmd, nil)
	assert.Error(t, err)
}
