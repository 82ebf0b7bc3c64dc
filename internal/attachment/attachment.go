// Package attachment uploads message files to object storage and resolves the
// URL stored on the message.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/chitchat/internal/store"
)

// MaxSize is the largest accepted file, in bytes.
const MaxSize int64 = 10 << 20

// ErrTooLarge is returned for files above MaxSize.
var ErrTooLarge = errors.New("file exceeds 10 MiB")

// UploadResult identifies a stored object.
type UploadResult struct {
	Key  string
	Size int64
}

// Store is object storage.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (UploadResult, error)
	PublicURL(ctx context.Context, res UploadResult) (string, error)
}

// File is a local file offered for upload.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FromPath describes the file at path without reading it.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat attachment: %w", err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("attachment %s is a directory", path)
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Uploader turns a local file into a message attachment.
type Uploader struct {
	store Store
	now   func() time.Time
}

// NewUploader creates an uploader over s.
func NewUploader(s Store) *Uploader {
	return &Uploader{store: s, now: time.Now}
}

// Upload stores f under a key derived from the send time and file name and
// returns the attachment reference.
func (u *Uploader) Upload(ctx context.Context, f File) (*store.Attachment, error) {
	if f.Size > MaxSize {
		return nil, ErrTooLarge
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if int64(len(data)) > MaxSize {
		return nil, ErrTooLarge
	}

	key := Key(u.now(), f.Name)
	res, err := u.store.Upload(ctx, key, data, http.DetectContentType(data))
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}
	url, err := u.store.PublicURL(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("resolve url for %s: %w", key, err)
	}
	return &store.Attachment{Name: f.Name, Size: res.Size, URL: url}, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key returns the object key for a file sent at t.
func Key(t time.Time, name string) string {
	base := unsafeName.ReplaceAllString(filepath.Base(name), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "file"
	}
	return "attachments/" + strconv.FormatInt(t.UnixMilli(), 10) + "_" + base
}
