package genx

import (
	"errors"
	"fmt"

	"github.com/haivivi/guide/pkg/buffer"
)

type Status int

const (
	StatusOK Status = iota
	StatusDone
	StatusTruncated
	StatusBlocked
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDone:
		return "done"
	case StatusTruncated:
		return "truncated"
	case StatusBlocked:
		return "blocked"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type StreamEvent struct {
	Chunk   *MessageChunk
	Status  Status
	Usage   Usage
	Refusal string
	Error   error
}

// StreamBuilder is the producer side of a Stream. Providers push chunks
// from their own goroutine and finish with exactly one of Done, Truncated,
// Blocked, Unexpected or Abort.
type StreamBuilder struct {
	q *buffer.Queue[*StreamEvent]
}

func NewStreamBuilder(size int) *StreamBuilder {
	return &StreamBuilder{q: buffer.NewQueue[*StreamEvent](size)}
}

func (sb *StreamBuilder) finish(evt *StreamEvent) error {
	if err := sb.q.Push(evt); err != nil {
		return err
	}
	return sb.q.CloseWrite()
}

func (sb *StreamBuilder) Done(stats Usage) error {
	return sb.finish(&StreamEvent{Status: StatusDone, Usage: stats})
}

func (sb *StreamBuilder) Truncated(stats Usage) error {
	return sb.finish(&StreamEvent{Status: StatusTruncated, Usage: stats})
}

func (sb *StreamBuilder) Blocked(stats Usage, refusal string) error {
	return sb.finish(&StreamEvent{Status: StatusBlocked, Usage: stats, Refusal: refusal})
}

func (sb *StreamBuilder) Unexpected(stats Usage, err error) error {
	return sb.finish(&StreamEvent{Status: StatusError, Usage: stats, Error: err})
}

func (sb *StreamBuilder) Add(chunks ...*MessageChunk) error {
	for _, c := range chunks {
		if c == nil {
			continue
		}
		if err := sb.q.Push(&StreamEvent{Chunk: c}); err != nil {
			return err
		}
	}
	return nil
}

// Abort fails the stream with err; the consumer sees err from Next.
func (sb *StreamBuilder) Abort(err error) error {
	return sb.q.CloseWithError(err)
}

func (sb *StreamBuilder) Stream() Stream {
	return (*streamImpl)(sb)
}

type streamImpl StreamBuilder

func (s *streamImpl) Next() (*MessageChunk, error) {
	evt, err := s.q.Pop()
	if err != nil {
		if errors.Is(err, buffer.ErrQueueDone) {
			return nil, errors.New("genx: stream closed without a finish status")
		}
		if cerr := s.q.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	switch evt.Status {
	case StatusOK:
		return evt.Chunk, nil
	case StatusDone:
		err = Done(evt.Usage)
	case StatusTruncated:
		err = Truncated(evt.Usage)
	case StatusBlocked:
		err = Blocked(evt.Usage, evt.Refusal)
	case StatusError:
		err = Error(evt.Usage, evt.Error)
	default:
		err = fmt.Errorf("genx: unexpected stream status: %v", evt.Status)
	}
	s.q.CloseWithError(err)
	return nil, err
}

func (s *streamImpl) Close() error {
	return s.q.Close()
}

func (s *streamImpl) CloseWithError(err error) error {
	return s.q.CloseWithError(err)
}
