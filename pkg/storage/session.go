package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// Session implements MediaStore on a local directory. A session created
// without a directory owns a fresh temporary one and deletes it on Close.
type Session struct {
	root  string
	owned bool

	closeOnce sync.Once
	closeErr  error
}

// NewSession creates a store rooted at dir, creating it if needed. An empty
// dir selects a new temporary directory that lives until Close.
func NewSession(dir string) (*Session, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "guide-media-*")
		if err != nil {
			return nil, fmt.Errorf("storage: create session dir: %w", err)
		}
		return &Session{root: tmp, owned: true}, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Session{root: abs}, nil
}

// Dir returns the directory files are written to.
func (s *Session) Dir() string {
	return s.root
}

// Save writes r to a temporary file and renames it into place, so readers
// never see a partial file.
func (s *Session) Save(ctx context.Context, name, _ string, r io.Reader) (string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.root, ".partial-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	if _, err := io.Copy(f, ctxReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("storage: save %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	full := filepath.Join(s.root, name)
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(full)}).String(), nil
}

func (s *Session) Open(_ context.Context, name string) (io.ReadCloser, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.root, name))
}

// Close removes an owned temporary directory. It is safe to call twice.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.owned {
			s.closeErr = os.RemoveAll(s.root)
		}
	})
	return s.closeErr
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

var _ MediaStore = (*Session)(nil)
