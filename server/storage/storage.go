package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"
)

var ErrNoPublicURL = errors.New("Storage has no public URL")

// Storage is a blob store for videos and the tracks and datasets produced from them.
// Names are slash-separated relative paths, such as "videos/route7.mp4".
type Storage interface {
	// When finished, you must close the WriteCloser
	WriteFile(ctx context.Context, name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader
	ReadFile(ctx context.Context, name string) (*File, error)

	DeleteFile(ctx context.Context, name string) error

	// URL returns a public URL for the object, or ErrNoPublicURL
	URL(name string) (string, error)
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

// Well known prefixes inside the store
const (
	VideoPrefix      = "videos/"
	AnnotationPrefix = "annotations/"
	DatasetPrefix    = "datasets/"
)

// CleanName validates an object name, and returns it in canonical form
func CleanName(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || strings.HasPrefix(name, "/") || strings.ContainsRune(name, '\\') {
		return "", fmt.Errorf("Invalid file name '%v'", name)
	}
	return path.Clean(name), nil
}

func WriteFile(ctx context.Context, s Storage, name string, content io.Reader) error {
	f, err := s.WriteFile(ctx, name)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, content)
	errClose := f.Close()
	if err != nil {
		return err
	}
	return errClose
}

func ReadFile(ctx context.Context, s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}

// DownloadFile copies an object into a local file, for tools like ffmpeg that need a real path
func DownloadFile(ctx context.Context, s Storage, name, localPath string) error {
	f, err := s.ReadFile(ctx, name)
	if err != nil {
		return err
	}
	defer f.Reader.Close()
	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, f.Reader)
	errClose := out.Close()
	if err != nil {
		return err
	}
	return errClose
}
