// Package storage keeps generated media where the presentation layer can
// reach it.
//
// A MediaStore saves a stream under a name and returns a URL for it:
// Session writes into a directory on local disk and hands out file://
// URLs, S3Store uploads to a bucket and hands out s3:// URLs.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrInvalidName is returned for names that are empty or escape the store.
var ErrInvalidName = errors.New("storage: invalid media name")

// MediaStore stores generated media files.
//
// Names are flat, forward-slash free identifiers such as "video-1.mp4".
// Implementations must be safe for concurrent use.
type MediaStore interface {
	// Save stores r under name and returns a URL for the stored file.
	// An existing file with the same name is replaced.
	Save(ctx context.Context, name, mimeType string, r io.Reader) (string, error)

	// Open opens the named file for reading. If the file does not exist,
	// an error wrapping os.ErrNotExist is returned.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Close releases the store. Session stores remove their files.
	Close() error
}

// CleanName validates a media name.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || name != path.Clean(name) || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	return name, nil
}
