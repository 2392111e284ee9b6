package videogen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Downloader fetches a remote artifact.
type Downloader interface {
	Download(ctx context.Context, uri string) (body io.ReadCloser, mimeType string, err error)
}

// HTTPDownloader downloads artifacts over HTTP. When APIKey is set it is
// added as the key query parameter for Google API hosts, which serve
// generated files only to the key's owner.
type HTTPDownloader struct {
	Client *http.Client
	APIKey string
}

func (d *HTTPDownloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: 5 * time.Minute}
}

func (d *HTTPDownloader) Download(ctx context.Context, uri string) (io.ReadCloser, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse video uri: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported video uri scheme %q", u.Scheme)
	}
	if d.APIKey != "" && strings.HasSuffix(u.Hostname(), "googleapis.com") {
		q := u.Query()
		if q.Get("key") == "" {
			q.Set("key", d.APIKey)
			u.RawQuery = q.Encode()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
