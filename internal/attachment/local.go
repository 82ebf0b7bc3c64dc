package attachment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local stores attachments in a directory. URLs are built from baseURL, which
// should point at whatever serves the directory.
type Local struct {
	root    string
	baseURL string
}

// NewLocal creates a local store rooted at root.
func NewLocal(root, baseURL string) (*Local, error) {
	if root == "" {
		return nil, errors.New("local attachment root is required")
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("create attachment root: %w", err)
	}
	return &Local{root: root, baseURL: baseURL}, nil
}

// Root returns the directory objects are written under.
func (l *Local) Root() string { return l.root }

// Upload implements Store.
func (l *Local) Upload(_ context.Context, key string, data []byte, _ string) (UploadResult, error) {
	path, err := l.path(key)
	if err != nil {
		return UploadResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return UploadResult{}, fmt.Errorf("create attachment dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return UploadResult{}, fmt.Errorf("write attachment: %w", err)
	}
	return UploadResult{Key: key, Size: int64(len(data))}, nil
}

// PublicURL implements Store.
func (l *Local) PublicURL(_ context.Context, res UploadResult) (string, error) {
	if l.baseURL != "" {
		return joinURL(l.baseURL, res.Key), nil
	}
	path, err := l.path(res.Key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid attachment key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}
