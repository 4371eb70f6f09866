package assets

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brotliFile(t *testing.T, content string) *fstest.MapFile {
	t.Helper()
	data, err := Compress([]byte(content))
	require.NoError(t, err)
	return &fstest.MapFile{Data: data}
}

func TestOpenPlain(t *testing.T) {
	a := New(fstest.MapFS{"index.html": {Data: []byte("<html></html>")}})

	data, err := a.Open("/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}

func TestOpenBrotliOnly(t *testing.T) {
	a := New(fstest.MapFS{"app.js.br": brotliFile(t, "console.log(1)")})

	data, err := a.Open("app.js")
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(data))
}

func TestRawPrefersBrotliWhenAccepted(t *testing.T) {
	br := brotliFile(t, "body{}")
	a := New(fstest.MapFS{
		"site.css":    {Data: []byte("body{}")},
		"site.css.br": br,
	})

	data, enc, err := a.Raw("/site.css", true)
	require.NoError(t, err)
	assert.Equal(t, EncodingBrotli, enc)
	assert.Equal(t, br.Data, data)

	data, enc, err = a.Raw("/site.css", false)
	require.NoError(t, err)
	assert.Empty(t, enc)
	assert.Equal(t, "body{}", string(data))
}

func TestOpenMissing(t *testing.T) {
	a := New(fstest.MapFS{})
	_, err := a.Open("/nope.html")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestPathsCannotEscape(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("root"), 0o644))
	a := Dir(filepath.Join(dir))

	data, err := a.Open("/../../index.html")
	require.NoError(t, err)
	assert.Equal(t, "root", string(data))
	assert.Equal(t, dir, a.Root())
}

func TestCorruptBrotli(t *testing.T) {
	a := New(fstest.MapFS{"x.js.br": {Data: []byte("not brotli")}})
	_, err := a.Open("x.js")
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Contains(t, ContentType("index.html"), "text/html")
	assert.Contains(t, ContentType("app.js.br"), "javascript")
	assert.Equal(t, "application/octet-stream", ContentType("LICENSE"))
}
