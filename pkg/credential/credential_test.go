package credential

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/haivivi/guide/pkg/kv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(kv.NewMemory())
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestStore_SaveLoadForget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Load(ctx); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Load(empty) error = %v", err)
	}
	if err := s.Save(ctx, "  sk-123  "); err != nil {
		t.Fatal(err)
	}
	rec, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Key != "sk-123" {
		t.Errorf("Key = %q", rec.Key)
	}
	if !rec.SavedAt.Equal(s.now()) {
		t.Errorf("SavedAt = %v", rec.SavedAt)
	}
	if err := s.Forget(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Forget(ctx); err != nil {
		t.Errorf("second Forget() = %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("Load() after Forget error = %v", err)
	}
}

func TestStore_SaveBlank(t *testing.T) {
	if err := newTestStore(t).Save(context.Background(), "   "); !errors.Is(err, ErrNoKey) {
		t.Errorf("Save(blank) error = %v", err)
	}
}

func TestStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	if err := mem.Set(ctx, DefaultKey, []byte{0xc1}); err != nil {
		t.Fatal(err)
	}
	s := NewStore(mem)
	if _, err := s.Load(ctx); err == nil || errors.Is(err, kv.ErrNotFound) {
		t.Errorf("Load(corrupt) error = %v", err)
	}
	c, err := Resolve(ctx, s, Sources{Context: "ctx-key", Getenv: noEnv})
	if err != nil {
		t.Fatal(err)
	}
	if c.Source != SourceContext {
		t.Errorf("Source = %v, want context", c.Source)
	}
}

func noEnv(string) string { return "" }

func TestResolve_Order(t *testing.T) {
	ctx := context.Background()
	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}

	tests := []struct {
		name   string
		stored string
		src    Sources
		want   Candidate
	}{
		{
			name:   "flag wins",
			stored: "stored",
			src:    Sources{Flag: "flag", Context: "ctx", Getenv: env(map[string]string{"GEMINI_API_KEY": "env"})},
			want:   Candidate{Key: "flag", Source: SourceFlag},
		},
		{
			name:   "stored before context",
			stored: "stored",
			src:    Sources{Context: "ctx", Getenv: noEnv},
			want:   Candidate{Key: "stored", Source: SourceStored},
		},
		{
			name: "context before env",
			src:  Sources{Context: "ctx", Getenv: env(map[string]string{"GEMINI_API_KEY": "env"})},
			want: Candidate{Key: "ctx", Source: SourceContext},
		},
		{
			name: "gemini env before generic",
			src:  Sources{Getenv: env(map[string]string{"GEMINI_API_KEY": "g", "API_KEY": "a"})},
			want: Candidate{Key: "g", Source: SourceEnv},
		},
		{
			name: "generic env",
			src:  Sources{Getenv: env(map[string]string{"API_KEY": " a "})},
			want: Candidate{Key: "a", Source: SourceEnv},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			if tt.stored != "" {
				if err := s.Save(ctx, tt.stored); err != nil {
					t.Fatal(err)
				}
			}
			got, err := Resolve(ctx, s, tt.src)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolve_NoKey(t *testing.T) {
	_, err := Resolve(context.Background(), nil, Sources{Getenv: noEnv})
	if !errors.Is(err, ErrNoKey) {
		t.Errorf("Resolve() error = %v, want ErrNoKey", err)
	}
}

func TestBootstrap_SavesValidatedKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	var seen string
	validate := func(_ context.Context, key string) error {
		seen = key
		return nil
	}
	c, err := Bootstrap(ctx, s, Sources{Flag: "fresh"}, validate)
	if err != nil {
		t.Fatal(err)
	}
	if seen != "fresh" || c.Source != SourceFlag {
		t.Errorf("validated %q from %v", seen, c.Source)
	}
	rec, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Key != "fresh" {
		t.Errorf("stored key = %q", rec.Key)
	}
}

func TestBootstrap_RejectedStoredKeyIsForgotten(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Save(ctx, "stale"); err != nil {
		t.Fatal(err)
	}
	reject := genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key.", Status: "INVALID_ARGUMENT"}
	_, err := Bootstrap(ctx, s, Sources{Getenv: noEnv}, func(context.Context, string) error {
		return fmt.Errorf("validate: %w", reject)
	})
	if !errors.Is(err, ErrInitialization) {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("stored key kept after rejection: %v", err)
	}
}

func TestBootstrap_TransientFailureKeepsStored(t *testing.T) {
	for _, cause := range []error{
		errors.New("dial tcp: lookup generativelanguage.googleapis.com: no such host"),
		context.DeadlineExceeded,
		genai.APIError{Code: 503, Status: "UNAVAILABLE"},
		&genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"},
	} {
		ctx := context.Background()
		s := newTestStore(t)
		if err := s.Save(ctx, "kept"); err != nil {
			t.Fatal(err)
		}
		_, err := Bootstrap(ctx, s, Sources{Getenv: noEnv}, func(context.Context, string) error {
			return cause
		})
		if !errors.Is(err, ErrInitialization) {
			t.Fatalf("Bootstrap() error = %v", err)
		}
		rec, err := s.Load(ctx)
		if err != nil {
			t.Errorf("%v: stored key forgotten: %v", cause, err)
			continue
		}
		if rec.Key != "kept" {
			t.Errorf("%v: stored key = %q", cause, rec.Key)
		}
	}
}

func TestKeyRejected(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{genai.APIError{Code: 400}, true},
		{&genai.APIError{Code: 401}, true},
		{fmt.Errorf("models.get: %w", genai.APIError{Code: 403}), true},
		{genai.APIError{Code: 500}, false},
		{errors.New("API key not valid"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := KeyRejected(tt.err); got != tt.want {
			t.Errorf("KeyRejected(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestBootstrap_RejectedFlagKeepsStored(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Save(ctx, "good"); err != nil {
		t.Fatal(err)
	}
	_, err := Bootstrap(ctx, s, Sources{Flag: "bad"}, func(context.Context, string) error {
		return errors.New("nope")
	})
	if !errors.Is(err, ErrInitialization) {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	rec, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Key != "good" {
		t.Errorf("stored key = %q, want good", rec.Key)
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"abc":          "***",
		"AIzaSyExampl": "********ampl",
	}
	for in, want := range tests {
		if got := Mask(in); got != want {
			t.Errorf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSource_String(t *testing.T) {
	if SourceStored.String() != "stored" || Source(99).String() != "none" {
		t.Error("unexpected Source strings")
	}
}
