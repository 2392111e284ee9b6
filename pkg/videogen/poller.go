package videogen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/guide/pkg/storage"
)

// Poller drives one video job at a time from submission to a playable
// file.
type Poller struct {
	Backend    Backend
	Media      storage.MediaStore
	Downloader Downloader

	Policy RetryPolicy

	// Phrases and StatusInterval configure the status rotation.
	Phrases        []string
	StatusInterval time.Duration
}

// Result is a finished job.
type Result struct {
	Operation string
	MediaURL  string
	MIMEType  string
}

// Run submits prompt, waits for the job and stores the video. status is
// called with each rotating status phrase; it is never called after Run
// returns. Every error is a *JobError.
func (p *Poller) Run(ctx context.Context, prompt string, status func(string)) (*Result, error) {
	if status == nil {
		status = func(string) {}
	}
	rot := NewRotator(p.Phrases, p.StatusInterval, status)
	rot.Start()
	defer rot.Stop()

	op, err := p.Backend.Submit(ctx, prompt)
	if err != nil {
		return nil, &JobError{Phase: PhaseSubmit, Err: err}
	}
	slog.Info("videogen: submitted", "operation", op.Name)

	op, err = p.wait(ctx, op)
	if err != nil {
		return nil, err
	}
	if op.Failure != "" {
		return nil, &JobError{Phase: PhaseJob, Operation: op.Name, Err: errors.New(op.Failure)}
	}

	art, err := p.Backend.Fetch(ctx, op)
	if err != nil {
		if errors.Is(err, ErrArtifactMissing) {
			return nil, &JobError{Phase: PhaseFetch, Operation: op.Name}
		}
		return nil, &JobError{Phase: PhaseFetch, Operation: op.Name, Err: err}
	}
	if art == nil || (len(art.Data) == 0 && art.URI == "") {
		return nil, &JobError{Phase: PhaseFetch, Operation: op.Name}
	}

	res, err := p.store(ctx, op, art)
	if err != nil {
		return nil, &JobError{Phase: PhaseDownload, Operation: op.Name, Err: err}
	}
	slog.Info("videogen: stored", "operation", op.Name, "url", res.MediaURL)
	return res, nil
}

func (p *Poller) wait(ctx context.Context, op *Operation) (*Operation, error) {
	interval := p.Policy.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for attempts := 0; !op.Done; {
		if p.Policy.MaxAttempts > 0 && attempts >= p.Policy.MaxAttempts {
			return nil, &JobError{Phase: PhasePoll, Operation: op.Name, Err: fmt.Errorf("still running after %d checks", attempts)}
		}
		if p.Policy.MaxWait > 0 && time.Since(start) >= p.Policy.MaxWait {
			return nil, &JobError{Phase: PhasePoll, Operation: op.Name, Err: fmt.Errorf("still running after %v", p.Policy.MaxWait)}
		}
		select {
		case <-ctx.Done():
			return nil, &JobError{Phase: PhasePoll, Operation: op.Name, Err: context.Cause(ctx)}
		case <-ticker.C:
		}
		attempts++
		next, err := p.Backend.Poll(ctx, op)
		if err != nil {
			return nil, &JobError{Phase: PhasePoll, Operation: op.Name, Err: err}
		}
		if next.Name == "" {
			next.Name = op.Name
		}
		op = next
		slog.Debug("videogen: poll", "operation", op.Name, "attempt", attempts, "done", op.Done)
	}
	return op, nil
}

func (p *Poller) store(ctx context.Context, op *Operation, art *Artifact) (*Result, error) {
	var (
		body     io.Reader
		mimeType = art.MIMEType
	)
	if len(art.Data) > 0 {
		body = bytes.NewReader(art.Data)
	} else {
		if p.Downloader == nil {
			return nil, errors.New("no downloader configured")
		}
		rc, ct, err := p.Downloader.Download(ctx, art.URI)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		body = rc
		if mimeType == "" {
			mimeType = ct
		}
	}
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	if p.Media == nil {
		return nil, errors.New("no media store configured")
	}
	url, err := p.Media.Save(ctx, mediaName(mimeType), mimeType, body)
	if err != nil {
		return nil, err
	}
	return &Result{Operation: op.Name, MediaURL: url, MIMEType: mimeType}, nil
}

func mediaName(mimeType string) string {
	ext := ".mp4"
	if base, _, err := mime.ParseMediaType(mimeType); err == nil && base != "video/mp4" {
		if exts, _ := mime.ExtensionsByType(base); len(exts) > 0 {
			ext = exts[0]
		} else if i := strings.IndexByte(base, '/'); i >= 0 {
			ext = "." + base[i+1:]
		}
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "video-" + id.String() + ext
}
