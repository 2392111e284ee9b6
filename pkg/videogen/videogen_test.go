package videogen

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/haivivi/guide/pkg/storage"
)

// fakeBackend completes after doneAfter polls, or fails on failAt.
type fakeBackend struct {
	mu        sync.Mutex
	polls     int
	doneAfter int
	failAt    int
	failure   string
	pollErr   error
	submitErr error
	artifact  *Artifact
	fetchErr  error
}

func (b *fakeBackend) Submit(ctx context.Context, prompt string) (*Operation, error) {
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	return &Operation{Name: "operations/test"}, nil
}

func (b *fakeBackend) Poll(ctx context.Context, op *Operation) (*Operation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.pollErr != nil {
		return nil, b.pollErr
	}
	if b.failAt > 0 && b.polls == b.failAt {
		return &Operation{Done: true, Failure: b.failure}, nil
	}
	return &Operation{Done: b.polls >= b.doneAfter}, nil
}

func (b *fakeBackend) Fetch(ctx context.Context, op *Operation) (*Artifact, error) {
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	return b.artifact, nil
}

func (b *fakeBackend) pollCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.polls
}

type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) emit(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func newMedia(t *testing.T) *storage.Session {
	t.Helper()
	s, err := storage.NewSession(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{Interval: 2 * time.Millisecond}
}

func TestRotator_WrapsAround(t *testing.T) {
	var rec recorder
	r := NewRotator([]string{"a", "b", "c"}, time.Millisecond, rec.emit)
	r.Start()
	deadline := time.After(2 * time.Second)
	for len(rec.all()) < 5 {
		select {
		case <-deadline:
			t.Fatalf("only %d phrases emitted", len(rec.all()))
		case <-time.After(time.Millisecond):
		}
	}
	if !r.Stop() {
		t.Error("first Stop() = false, want true")
	}
	got := rec.all()
	want := []string{"a", "b", "c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phrases = %v, want prefix %v", got, want)
		}
	}

	n := len(got)
	time.Sleep(10 * time.Millisecond)
	if len(rec.all()) != n {
		t.Error("phrase emitted after Stop")
	}
	if r.Stop() {
		t.Error("second Stop() = true, want false")
	}
}

func TestRotator_StopBeforeStart(t *testing.T) {
	var rec recorder
	r := NewRotator(nil, 0, rec.emit)
	if !r.Stop() {
		t.Error("Stop() = false")
	}
	r.Start()
	if len(rec.all()) != 0 {
		t.Error("Start after Stop emitted a phrase")
	}
}

func TestRotator_Defaults(t *testing.T) {
	var rec recorder
	r := NewRotator(nil, 0, rec.emit)
	r.Start()
	defer r.Stop()
	if got := rec.all(); len(got) != 1 || got[0] != DefaultPhrases[0] {
		t.Errorf("first phrase = %v", got)
	}
	if r.interval != DefaultStatusInterval {
		t.Errorf("interval = %v", r.interval)
	}
}

func TestPoller_InlineBytes(t *testing.T) {
	media := newMedia(t)
	b := &fakeBackend{doneAfter: 2, artifact: &Artifact{Data: []byte("mp4"), MIMEType: "video/mp4"}}
	p := &Poller{Backend: b, Media: media, Policy: fastPolicy(), StatusInterval: time.Millisecond}

	var rec recorder
	res, err := p.Run(context.Background(), "a cat", rec.emit)
	if err != nil {
		t.Fatal(err)
	}
	if b.pollCount() != 2 {
		t.Errorf("polls = %d, want 2", b.pollCount())
	}
	if !strings.HasPrefix(res.MediaURL, "file://") || !strings.HasSuffix(res.MediaURL, ".mp4") {
		t.Errorf("MediaURL = %q", res.MediaURL)
	}
	u, _ := url.Parse(res.MediaURL)
	b2, err := os.ReadFile(u.Path)
	if err != nil || string(b2) != "mp4" {
		t.Errorf("stored file = %q, %v", b2, err)
	}

	n := len(rec.all())
	if n == 0 {
		t.Error("no status phrase emitted")
	}
	time.Sleep(5 * time.Millisecond)
	if len(rec.all()) != n {
		t.Error("status emitted after Run returned")
	}
}

func TestPoller_DownloadsURI(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "video/mp4")
		io.WriteString(w, "remote-bytes")
	}))
	defer srv.Close()

	b := &fakeBackend{doneAfter: 1, artifact: &Artifact{URI: srv.URL + "/v1/files/abc:download"}}
	p := &Poller{
		Backend:    b,
		Media:      newMedia(t),
		Downloader: &HTTPDownloader{Client: srv.Client(), APIKey: "secret"},
		Policy:     fastPolicy(),
	}
	res, err := p.Run(context.Background(), "x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.MIMEType != "video/mp4" {
		t.Errorf("MIMEType = %q", res.MIMEType)
	}
	// The test server is not a Google host.
	if gotKey != "" {
		t.Errorf("key leaked to foreign host: %q", gotKey)
	}
}

func TestPoller_FailureOnSecondPoll(t *testing.T) {
	b := &fakeBackend{doneAfter: 10, failAt: 2, failure: "quota exceeded"}
	var rec recorder
	p := &Poller{Backend: b, Media: newMedia(t), Policy: fastPolicy(), StatusInterval: time.Millisecond}

	_, err := p.Run(context.Background(), "x", rec.emit)
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("Run() error = %v, want ErrJobFailed", err)
	}
	if b.pollCount() != 2 {
		t.Errorf("polls = %d, want 2", b.pollCount())
	}
	if got := Describe(err); !strings.Contains(got, "quota exceeded") {
		t.Errorf("Describe() = %q", got)
	}
	n := len(rec.all())
	time.Sleep(5 * time.Millisecond)
	if len(rec.all()) != n {
		t.Error("status emitted after failure")
	}
}

func TestPoller_Errors(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		policy  RetryPolicy
		want    error
	}{
		{
			name:    "submit",
			backend: &fakeBackend{submitErr: errors.New("bad prompt")},
			want:    ErrSubmission,
		},
		{
			name:    "poll",
			backend: &fakeBackend{doneAfter: 3, pollErr: errors.New("503")},
			want:    ErrPoll,
		},
		{
			name:    "max attempts",
			backend: &fakeBackend{doneAfter: 100},
			policy:  RetryPolicy{Interval: time.Millisecond, MaxAttempts: 3},
			want:    ErrPoll,
		},
		{
			name:    "missing artifact",
			backend: &fakeBackend{doneAfter: 1},
			want:    ErrArtifactMissing,
		},
		{
			name:    "fetch sentinel",
			backend: &fakeBackend{doneAfter: 1, fetchErr: ErrArtifactMissing},
			want:    ErrArtifactMissing,
		},
		{
			name:    "download without downloader",
			backend: &fakeBackend{doneAfter: 1, artifact: &Artifact{URI: "https://example.com/v.mp4"}},
			want:    ErrArtifactDownload,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := tt.policy
			if policy.Interval == 0 {
				policy = fastPolicy()
			}
			p := &Poller{Backend: tt.backend, Media: newMedia(t), Policy: policy}
			_, err := p.Run(context.Background(), "x", nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Run() error = %v, want %v", err, tt.want)
			}
			if _, ok := AsJobError(err); !ok {
				t.Errorf("Run() error %T is not *JobError", err)
			}
		})
	}
	if tests[2].backend.pollCount() != 3 {
		t.Errorf("max attempts polls = %d, want 3", tests[2].backend.pollCount())
	}
}

func TestPoller_ContextCanceled(t *testing.T) {
	p := &Poller{Backend: &fakeBackend{doneAfter: 1000}, Media: newMedia(t), Policy: fastPolicy()}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Run(ctx, "x", nil)
	if !errors.Is(err, ErrPoll) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v", err)
	}
}

func TestDescribe_MissingArtifact(t *testing.T) {
	err := &JobError{Phase: PhaseFetch, Operation: "op"}
	if got := Describe(err); got != "Video generation completed, but no download link was found." {
		t.Errorf("Describe() = %q", got)
	}
	if got := Describe(errors.New("plain")); got != "plain" {
		t.Errorf("Describe(plain) = %q", got)
	}
}

func TestHTTPDownloader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()
	d := &HTTPDownloader{Client: srv.Client()}
	ctx := context.Background()

	rc, _, err := d.Download(ctx, srv.URL+"/v.mp4")
	if err != nil {
		t.Fatal(err)
	}
	rc.Close()
	if _, _, err := d.Download(ctx, srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Download(missing) error = %v", err)
	}
	if _, _, err := d.Download(ctx, "gs://bucket/v.mp4"); err == nil {
		t.Error("Download(gs://) error = nil")
	}
}

func TestHTTPDownloader_AddsKeyForGoogleHosts(t *testing.T) {
	var got *http.Request
	d := &HTTPDownloader{
		APIKey: "k1",
		Client: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			got = r
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}}, nil
		})},
	}
	rc, _, err := d.Download(context.Background(), "https://generativelanguage.googleapis.com/v1beta/files/x:download?alt=media")
	if err != nil {
		t.Fatal(err)
	}
	rc.Close()
	if got.URL.Query().Get("key") != "k1" || got.URL.Query().Get("alt") != "media" {
		t.Errorf("request url = %s", got.URL)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestGeminiConvOperation(t *testing.T) {
	running := geminiConvOperation(&genai.GenerateVideosOperation{Name: "operations/1"})
	if running.Done || running.Failure != "" {
		t.Errorf("running op = %+v", running)
	}

	failed := geminiConvOperation(&genai.GenerateVideosOperation{
		Name:  "operations/2",
		Done:  true,
		Error: map[string]any{"code": 3, "message": "prompt rejected"},
	})
	if failed.Failure != "prompt rejected" {
		t.Errorf("Failure = %q", failed.Failure)
	}

	filtered := geminiConvOperation(&genai.GenerateVideosOperation{
		Done:     true,
		Response: &genai.GenerateVideosResponse{RAIMediaFilteredReasons: []string{"unsafe content"}},
	})
	if filtered.Failure != "unsafe content" {
		t.Errorf("Failure = %q", filtered.Failure)
	}

	ok := &genai.GenerateVideosOperation{
		Done: true,
		Response: &genai.GenerateVideosResponse{GeneratedVideos: []*genai.GeneratedVideo{
			{},
			{Video: &genai.Video{URI: "https://generativelanguage.googleapis.com/v1beta/files/abc", MIMEType: "video/mp4"}},
		}},
	}
	if op := geminiConvOperation(ok); op.Failure != "" || !op.Done {
		t.Errorf("ok op = %+v", op)
	}
	art, err := geminiArtifact(ok)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(art.URI, "/files/abc") {
		t.Errorf("artifact = %+v", art)
	}

	if _, err := geminiArtifact(&genai.GenerateVideosOperation{Done: true}); !errors.Is(err, ErrArtifactMissing) {
		t.Errorf("geminiArtifact(empty) error = %v", err)
	}
}
