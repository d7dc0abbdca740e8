package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secscan/config"
)

func filterConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Scanner.MaxFileSize = 1024
	cfg.Scanner.ExcludeGlobs = []string{"*.min.js"}
	return cfg
}

func TestDiscoverFiltersIneligibleFiles(t *testing.T) {
	dir := t.TempDir()

	keep := writeTestFile(t, dir, "app.py", "print('hi')\n")
	writeTestFile(t, dir, "notes.txt", "not a source file")
	writeTestFile(t, dir, "vendor.min.js", "var a=1;")
	writeTestFile(t, dir, "empty.py", "")
	writeTestFile(t, dir, "blob.py", "ab\x00cd")

	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.py"), big, 0o600))

	nested := filepath.Join(dir, "node_modules")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "dep.js"), []byte("var x;"), 0o600))

	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	kept2 := filepath.Join(sub, "util.go")
	require.NoError(t, os.WriteFile(kept2, []byte("package pkg\n"), 0o600))

	filter := NewFileFilter(filterConfig())

	files, err := filter.Discover(dir, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{keep, kept2}, files)
}

func TestDiscoverNonRecursive(t *testing.T) {
	dir := t.TempDir()
	top := writeTestFile(t, dir, "top.py", "x = 1\n")

	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "nested.py"), []byte("y = 2\n"), 0o600))

	filter := NewFileFilter(filterConfig())

	files, err := filter.Discover(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{top}, files)
}

func TestDiscoverMissingDirectory(t *testing.T) {
	filter := NewFileFilter(filterConfig())
	_, err := filter.Discover("/no/such/dir", true)
	assert.Error(t, err)
}

func TestFilterKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeTestFile(t, dir, "a.py", "x\n")
	b := writeTestFile(t, dir, "b.py", "y\n")

	filter := NewFileFilter(filterConfig())
	got := filter.Filter([]string{b, a, filepath.Join(dir, "missing.py")})
	assert.Equal(t, []string{b, a}, got)
}
