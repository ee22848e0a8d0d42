// Package blob keeps uploaded originals on the local filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// FS stores one file per name in a flat directory.
type FS struct {
	dir     string
	baseURL string
}

var _ domain.BlobStore = (*FS)(nil)

// NewFS creates the directory if needed. baseURL prefixes every returned URL.
func NewFS(dir, baseURL string) (*FS, error) {
	if dir == "" {
		return nil, errors.New("blob dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir %s: %w", dir, err)
	}
	return &FS{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory files are written to.
func (s *FS) Dir() string { return s.dir }

// Put writes data under name, replacing any previous file, and returns its URL.
func (s *FS) Put(ctx context.Context, name string, data []byte) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return s.URL(name), nil
}

// List returns every stored file. Temp files from in-flight uploads are skipped.
func (s *FS) List(ctx context.Context) ([]domain.BlobEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read blob dir: %w", err)
	}

	out := make([]domain.BlobEntry, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("list blobs: %w", err)
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // deleted while listing
			}
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		out = append(out, domain.BlobEntry{
			Name:      e.Name(),
			URL:       s.URL(e.Name()),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Delete removes name. A missing file is domain.ErrNotFound.
func (s *FS) Delete(_ context.Context, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("file %s: %w", name, domain.ErrNotFound)
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Open returns a reader over name and its listing entry. The caller closes the reader.
func (s *FS) Open(_ context.Context, name string) (io.ReadSeekCloser, domain.BlobEntry, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, domain.BlobEntry{}, err
	}
	f, err := os.Open(path) //nolint:gosec // name is a validated base name
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.BlobEntry{}, fmt.Errorf("file %s: %w", name, domain.ErrNotFound)
		}
		return nil, domain.BlobEntry{}, fmt.Errorf("open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, domain.BlobEntry{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return f, domain.BlobEntry{Name: name, URL: s.URL(name), Size: info.Size(), UpdatedAt: info.ModTime()}, nil
}

// URL is the public address of name. It doubles as the source id of the file's chunks.
func (s *FS) URL(name string) string {
	return s.baseURL + "/" + url.PathEscape(name)
}

func (s *FS) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", domain.NewValidationError("file", "invalid file name")
	}
	return filepath.Join(s.dir, name), nil
}
