// Package assets reads page content from a directory tree. A file stored
// only as "<name>.br" is served as if "<name>" existed.
package assets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
)

// BrotliSuffix marks a precompressed asset.
const BrotliSuffix = ".br"

// EncodingBrotli is the Content-Encoding of precompressed assets.
const EncodingBrotli = "br"

// FS resolves asset paths against a file system.
type FS struct {
	fsys fs.FS
	root string
}

// New serves assets from fsys.
func New(fsys fs.FS) *FS {
	return &FS{fsys: fsys}
}

// Dir serves assets from the directory root.
func Dir(root string) *FS {
	return &FS{fsys: os.DirFS(root), root: root}
}

// Root is the directory the assets come from, or "" for non-directory file
// systems.
func (a *FS) Root() string {
	return a.root
}

// clean maps a URL-style path onto an fs.FS name.
func clean(name string) (string, error) {
	p := strings.TrimPrefix(path.Clean("/"+name), "/")
	if p == "" {
		p = "."
	}
	if !fs.ValidPath(p) {
		return "", fmt.Errorf("assets: invalid path %q", name)
	}
	return p, nil
}

// Open returns the decoded content of name.
func (a *FS) Open(name string) ([]byte, error) {
	data, encoding, err := a.Raw(name, false)
	if err != nil {
		return nil, err
	}
	if encoding == EncodingBrotli {
		return decompress(data)
	}
	return data, nil
}

// Raw returns the stored bytes of name and their content encoding. With
// acceptBrotli set, a precompressed sibling is preferred over the plain
// file.
func (a *FS) Raw(name string, acceptBrotli bool) (data []byte, encoding string, err error) {
	p, err := clean(name)
	if err != nil {
		return nil, "", err
	}
	if acceptBrotli {
		if data, err := fs.ReadFile(a.fsys, p+BrotliSuffix); err == nil {
			return data, EncodingBrotli, nil
		}
	}
	data, err = fs.ReadFile(a.fsys, p)
	if err == nil {
		return data, "", nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("assets: reading %s: %w", p, err)
	}
	data, brErr := fs.ReadFile(a.fsys, p+BrotliSuffix)
	if brErr != nil {
		return nil, "", fmt.Errorf("assets: %s: %w", p, fs.ErrNotExist)
	}
	return data, EncodingBrotli, nil
}

func decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("assets: brotli decode: %w", err)
	}
	return out, nil
}

// Compress brotli-encodes data at the default quality.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ContentType guesses the MIME type from the file extension.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(name, BrotliSuffix)))
	if ext == "" {
		return "application/octet-stream"
	}
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
