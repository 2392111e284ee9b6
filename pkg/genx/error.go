package genx

import (
	"errors"
	"fmt"
)

// ErrDone is returned when the stream is done.
var ErrDone = errors.New("genx: done")

func Done(stats Usage) *State {
	return &State{
		usage:  stats,
		status: StatusDone,
		err:    ErrDone,
	}
}

func Blocked(stats Usage, refusal string) *State {
	return &State{
		usage:   stats,
		status:  StatusBlocked,
		refusal: refusal,
		err:     fmt.Errorf("genx: generate blocked: %s", refusal),
	}
}

func Truncated(stats Usage) *State {
	return &State{
		usage:  stats,
		status: StatusTruncated,
		err:    errors.New("genx: generate truncated"),
	}
}

func Error(stats Usage, err error) *State {
	return &State{
		usage:  stats,
		status: StatusError,
		err:    fmt.Errorf("genx: generate error: %w", err),
	}
}

// State is the terminal error of a Stream.
type State struct {
	usage   Usage
	status  Status
	refusal string
	err     error
}

func (ss State) Usage() Usage {
	return ss.usage
}

func (ss State) Status() Status {
	return ss.status
}

func (ss State) Refusal() string {
	return ss.refusal
}

func (ss State) Unwrap() error {
	return ss.err
}

func (ss State) Error() string {
	switch ss.status {
	case StatusDone:
		return "genx: generate done"
	case StatusTruncated, StatusBlocked, StatusError:
		return ss.err.Error()
	default:
		return fmt.Sprintf("genx: unexpected stream status: %v", ss.status)
	}
}

// Completed reports whether err ends a stream that produced a usable answer:
// a normal finish, or a finish cut short by the token limit.
func Completed(err error) bool {
	var st *State
	if !errors.As(err, &st) {
		return false
	}
	return st.status == StatusDone || st.status == StatusTruncated
}
