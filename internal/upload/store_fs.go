package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raysh454/sitegen/internal/apperr"
)

// FSStore keeps objects as plain files under a root directory. It backs
// mock mode and the mock backend's /storage endpoint.
type FSStore struct {
	root      string
	publicURL string
}

// NewFSStore creates root if needed. publicURL, when set, prefixes the URLs
// returned by Put; otherwise file:// URLs are returned.
func NewFSStore(root, publicURL string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FSStore{root: root, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (fs *FSStore) objectPath(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(fs.root, filepath.FromSlash(key)), nil
}

// Put writes body under key.
func (fs *FSStore) Put(ctx context.Context, key string, body []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := fs.objectPath(key)
	if err != nil {
		return "", err
	}
	if err := atomicWriteFile(p, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	return fs.URL(key), nil
}

// Get reads the object at key.
func (fs *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := fs.objectPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NewNotFound(fmt.Sprintf("object not found: %s", key), err)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Delete removes key. Deleting a missing object is not an error.
func (fs *FSStore) Delete(_ context.Context, key string) error {
	p, err := fs.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// URL is where key is served from.
func (fs *FSStore) URL(key string) string {
	if fs.publicURL != "" {
		return fs.publicURL + "/" + key
	}
	return "file://" + filepath.ToSlash(filepath.Join(fs.root, filepath.FromSlash(key)))
}
