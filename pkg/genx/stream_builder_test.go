package genx

import (
	"errors"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusOK, "ok"},
		{StatusDone, "done"},
		{StatusTruncated, "truncated"},
		{StatusBlocked, "blocked"},
		{StatusError, "error"},
		{Status(42), "status(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func TestStreamBuilder_ChunksThenDone(t *testing.T) {
	sb := NewStreamBuilder(4)
	go func() {
		sb.Add(
			&MessageChunk{Role: RoleModel, Part: Text("Hel")},
			nil,
			&MessageChunk{Role: RoleModel, Part: Text("lo")},
		)
		sb.Done(Usage{GeneratedTokenCount: 2})
	}()

	s := sb.Stream()
	var text string
	for {
		chunk, err := s.Next()
		if err != nil {
			if !errors.Is(err, ErrDone) {
				t.Fatalf("Next() error = %v, want ErrDone", err)
			}
			var st *State
			if !errors.As(err, &st) {
				t.Fatalf("Next() error %T is not *State", err)
			}
			if st.Usage().GeneratedTokenCount != 2 {
				t.Errorf("GeneratedTokenCount = %d, want 2", st.Usage().GeneratedTokenCount)
			}
			break
		}
		text += string(chunk.Part.(Text))
	}
	if text != "Hello" {
		t.Errorf("text = %q, want %q", text, "Hello")
	}

	// The terminal state is sticky.
	if _, err := s.Next(); !errors.Is(err, ErrDone) {
		t.Errorf("second Next() error = %v, want ErrDone", err)
	}
}

func TestStreamBuilder_Blocked(t *testing.T) {
	sb := NewStreamBuilder(1)
	go sb.Blocked(Usage{}, "policy")

	_, err := sb.Stream().Next()
	var st *State
	if !errors.As(err, &st) {
		t.Fatalf("Next() error = %v, want *State", err)
	}
	if st.Status() != StatusBlocked {
		t.Errorf("Status() = %v, want blocked", st.Status())
	}
	if st.Refusal() != "policy" {
		t.Errorf("Refusal() = %q, want %q", st.Refusal(), "policy")
	}
	if Completed(err) {
		t.Error("Completed(blocked) = true, want false")
	}
}

func TestStreamBuilder_Truncated(t *testing.T) {
	sb := NewStreamBuilder(1)
	go sb.Truncated(Usage{})

	_, err := sb.Stream().Next()
	if !Completed(err) {
		t.Errorf("Completed(%v) = false, want true", err)
	}
	if errors.Is(err, ErrDone) {
		t.Error("truncated stream should not match ErrDone")
	}
}

func TestStreamBuilder_Unexpected(t *testing.T) {
	cause := errors.New("boom")
	sb := NewStreamBuilder(1)
	go sb.Unexpected(Usage{}, cause)

	_, err := sb.Stream().Next()
	if !errors.Is(err, cause) {
		t.Errorf("Next() error = %v, want wrapping %v", err, cause)
	}
	if Completed(err) {
		t.Error("Completed(error) = true, want false")
	}
}

func TestStreamBuilder_Abort(t *testing.T) {
	cause := errors.New("network down")
	sb := NewStreamBuilder(4)
	sb.Add(&MessageChunk{Role: RoleModel, Part: Text("lost")})
	sb.Abort(cause)

	_, err := sb.Stream().Next()
	if !errors.Is(err, cause) {
		t.Errorf("Next() error = %v, want %v", err, cause)
	}
}

func TestStream_CloseUnblocksProducer(t *testing.T) {
	sb := NewStreamBuilder(1)
	s := sb.Stream()
	if err := sb.Add(&MessageChunk{Part: Text("a")}); err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- sb.Add(&MessageChunk{Part: Text("b")})
	}()
	s.Close()
	if err := <-errc; err == nil {
		t.Error("Add() after Close = nil, want error")
	}
}

func TestCompleted_NonState(t *testing.T) {
	if Completed(errors.New("plain")) {
		t.Error("Completed(plain error) = true, want false")
	}
	if Completed(nil) {
		t.Error("Completed(nil) = true, want false")
	}
}
