// Package videogen runs long video generation jobs to completion.
//
// A job moves through submitted, polling, and then succeeded or failed. The
// Poller submits the prompt to a Backend, checks the job on a fixed
// interval, downloads the finished video into a media store, and rotates
// status phrases for the user while it waits.
package videogen

import (
	"context"
	"time"
)

// Backend is a remote video generation service.
type Backend interface {
	// Submit starts a job for prompt.
	Submit(ctx context.Context, prompt string) (*Operation, error)

	// Poll returns the latest state of op.
	Poll(ctx context.Context, op *Operation) (*Operation, error)

	// Fetch returns the video of a finished job. It returns
	// ErrArtifactMissing when the job produced none.
	Fetch(ctx context.Context, op *Operation) (*Artifact, error)
}

// Operation is a backend job handle.
type Operation struct {
	Name string

	// Done is set once the job reached a terminal state.
	Done bool

	// Failure is the reason a done job failed, empty on success.
	Failure string

	// Handle is the backend's own representation of the job.
	Handle any
}

// Artifact is a finished video. Data holds the bytes when the backend
// returned them inline; otherwise URI must be downloaded.
type Artifact struct {
	URI      string
	MIMEType string
	Data     []byte
}

// RetryPolicy bounds the status polling. Zero MaxAttempts and MaxWait mean
// unbounded.
type RetryPolicy struct {
	Interval    time.Duration `json:"interval,omitzero" yaml:"interval,omitempty"`
	MaxAttempts int           `json:"max_attempts,omitzero" yaml:"max_attempts,omitempty"`
	MaxWait     time.Duration `json:"max_wait,omitzero" yaml:"max_wait,omitempty"`
}

// DefaultPollInterval is the wait between two status checks.
const DefaultPollInterval = 10 * time.Second

func (p RetryPolicy) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultPollInterval
	}
	return p.Interval
}
