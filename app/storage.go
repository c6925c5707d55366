package charla

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DiskStorage stores uploaded media under a root directory and serves
// it back under urlPrefix. Stored URLs are what gets threaded into
// message media references.
type DiskStorage struct {
	root      string
	urlPrefix string
}

func NewDiskStorage(root, urlPrefix string) (*DiskStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("MkdirAll: %w", err)
	}
	return &DiskStorage{root: root, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

func (s *DiskStorage) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	clean := path.Clean("/" + name)
	dst := filepath.Join(s.root, filepath.FromSlash(clean))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("MkdirAll: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("Create: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("Copy: %w", err)
	}

	return s.urlPrefix + clean, nil
}

func (s *DiskStorage) Delete(ctx context.Context, url string) error {
	rel, ok := strings.CutPrefix(url, s.urlPrefix+"/")
	if !ok {
		return fmt.Errorf("url %q not managed by this storage", url)
	}
	clean := path.Clean("/" + rel)
	if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(clean))); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	return nil
}

// FileServer serves the stored media files.
func (s *DiskStorage) FileServer() http.Handler {
	return http.StripPrefix(s.urlPrefix, http.FileServer(http.Dir(s.root)))
}
