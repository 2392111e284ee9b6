package videogen

import (
	"errors"
	"fmt"
)

var (
	ErrSubmission       = errors.New("videogen: submission failed")
	ErrPoll             = errors.New("videogen: status check failed")
	ErrJobFailed        = errors.New("videogen: job failed")
	ErrArtifactMissing  = errors.New("videogen: job completed without a video")
	ErrArtifactDownload = errors.New("videogen: video download failed")
)

// Phase names the step of a job that failed.
type Phase string

const (
	PhaseSubmit   Phase = "submit"
	PhasePoll     Phase = "poll"
	PhaseJob      Phase = "job"
	PhaseFetch    Phase = "fetch"
	PhaseDownload Phase = "download"
)

func (p Phase) sentinel() error {
	switch p {
	case PhaseSubmit:
		return ErrSubmission
	case PhasePoll:
		return ErrPoll
	case PhaseJob:
		return ErrJobFailed
	case PhaseFetch:
		return ErrArtifactMissing
	case PhaseDownload:
		return ErrArtifactDownload
	default:
		return nil
	}
}

// JobError describes a failed video job. It matches the Err* sentinel of
// its phase with errors.Is and unwraps to the underlying cause.
type JobError struct {
	Phase Phase

	// Operation is the backend job name, empty before submission.
	Operation string

	Err error
}

func (e *JobError) Error() string {
	msg := fmt.Sprintf("videogen: %s failed", e.Phase)
	if s := e.Phase.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Operation != "" {
		msg += " (" + e.Operation + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *JobError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Phase.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AsJobError extracts *JobError from an error.
func AsJobError(err error) (*JobError, bool) {
	var e *JobError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Describe renders err as a short message for the user.
func Describe(err error) string {
	e, ok := AsJobError(err)
	if !ok {
		return err.Error()
	}
	switch e.Phase {
	case PhaseFetch:
		return "Video generation completed, but no download link was found."
	case PhaseJob:
		if e.Err != nil {
			return "video generation failed: " + e.Err.Error()
		}
		return "video generation failed"
	}
	if e.Err == nil {
		return e.Error()
	}
	return e.Err.Error()
}
