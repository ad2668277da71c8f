package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vbonduro/bloom/internal/photostore"
)

var errTraversal = errors.New("path traversal attempt")

// defaultExt is used for captures whose MIME type is unknown; the camera
// hands over JPEG.
const defaultExt = ".jpg"

var extByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// LocalPhotoStore keeps images as files in a single directory. Files appear
// under their final name only once fully written.
type LocalPhotoStore struct {
	basePath string
}

func NewLocalPhotoStore(basePath string) (*LocalPhotoStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return &LocalPhotoStore{basePath: basePath}, nil
}

func (s *LocalPhotoStore) Save(ctx context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext, ok := extByMIME[mimeType]
	if !ok {
		ext = defaultExt
	}
	key := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), ext)
	finalPath, err := s.safeJoin(key)
	if err != nil {
		return "", err
	}

	tmpPath, err := s.writeTemp(r)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	return key, nil
}

// writeTemp copies r into a hidden temporary file next to the photos and
// returns its path. Nothing is left behind on failure.
func (s *LocalPhotoStore) writeTemp(r io.Reader) (path string, err error) {
	f, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return f.Name(), nil
}

func (s *LocalPhotoStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	path, err := s.safeJoin(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", photostore.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}

	mimeType, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mimeType = "image/jpeg"
	}
	return f, mimeType, nil
}

func (s *LocalPhotoStore) Delete(_ context.Context, key string) error {
	path, err := s.safeJoin(key)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return photostore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists reports whether key names a stored image. Directories do not count.
func (s *LocalPhotoStore) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.safeJoin(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// safeJoin resolves key inside basePath and rejects anything that escapes it.
func (s *LocalPhotoStore) safeJoin(key string) (string, error) {
	base, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	path, err := filepath.Abs(filepath.Join(base, key))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	rel, err := filepath.Rel(base, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errTraversal
	}
	return path, nil
}
