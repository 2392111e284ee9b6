package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/haivivi/guide/pkg/kv"
)

// Source says where a key came from.
type Source int

const (
	SourceNone Source = iota
	SourceFlag
	SourceStored
	SourceContext
	SourceEnv

	// SourcePrompt is a key typed in by the user during a session.
	SourcePrompt
)

func (s Source) String() string {
	switch s {
	case SourceFlag:
		return "flag"
	case SourceStored:
		return "stored"
	case SourceContext:
		return "context"
	case SourceEnv:
		return "env"
	case SourcePrompt:
		return "prompt"
	default:
		return "none"
	}
}

// EnvVars are consulted in order when no other source has a key.
var EnvVars = []string{"GEMINI_API_KEY", "API_KEY"}

// Sources are the non-stored places a key may come from.
type Sources struct {
	Flag    string
	Context string

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Candidate is a resolved key and its origin.
type Candidate struct {
	Key    string
	Source Source
}

// Validator checks that a key can initialize a client.
type Validator func(ctx context.Context, key string) error

// Resolve picks the key a session starts with: flag, stored slot,
// context, then environment. store may be nil.
func Resolve(ctx context.Context, store *Store, src Sources) (Candidate, error) {
	if k := strings.TrimSpace(src.Flag); k != "" {
		return Candidate{Key: k, Source: SourceFlag}, nil
	}
	if store != nil {
		rec, err := store.Load(ctx)
		switch {
		case err == nil:
			return Candidate{Key: rec.Key, Source: SourceStored}, nil
		case errors.Is(err, kv.ErrNotFound):
		default:
			slog.Warn("credential: stored key unreadable", "err", err)
		}
	}
	if k := strings.TrimSpace(src.Context); k != "" {
		return Candidate{Key: k, Source: SourceContext}, nil
	}
	getenv := src.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, name := range EnvVars {
		if k := strings.TrimSpace(getenv(name)); k != "" {
			return Candidate{Key: k, Source: SourceEnv}, nil
		}
	}
	return Candidate{}, ErrNoKey
}

// Bootstrap resolves a key and validates it. A key that did not come from
// the slot is saved after it validates. A stored key the API rejects is
// removed so the user is asked for a new one.
func Bootstrap(ctx context.Context, store *Store, src Sources, validate Validator) (Candidate, error) {
	c, err := Resolve(ctx, store, src)
	if err != nil {
		return Candidate{}, err
	}
	if err := Activate(ctx, store, c, validate); err != nil {
		return c, err
	}
	return c, nil
}

// Activate validates c and updates the slot accordingly.
func Activate(ctx context.Context, store *Store, c Candidate, validate Validator) error {
	if validate != nil {
		if err := validate(ctx, c.Key); err != nil {
			slog.Warn("credential: key rejected", "source", c.Source, "key", Mask(c.Key), "err", err)
			if store != nil && c.Source == SourceStored && KeyRejected(err) {
				if ferr := store.Forget(ctx); ferr != nil {
					slog.Error("credential: forget rejected key", "err", ferr)
				}
			}
			return fmt.Errorf("%w: %w", ErrInitialization, err)
		}
	}
	if store != nil && c.Source != SourceStored {
		if err := store.Save(ctx, c.Key); err != nil {
			slog.Warn("credential: save key", "err", err)
		}
	}
	slog.Debug("credential: key active", "source", c.Source, "key", Mask(c.Key))
	return nil
}

// KeyRejected reports whether err is the API refusing the key itself
// (HTTP 400, 401 or 403) rather than a network or server failure.
func KeyRejected(err error) bool {
	var v genai.APIError
	if errors.As(err, &v) {
		return rejectedCode(v.Code)
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return rejectedCode(p.Code)
	}
	return false
}

func rejectedCode(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// GeminiValidator returns a Validator that looks up model with the key.
// httpClient may be nil.
func GeminiValidator(model string, httpClient *http.Client) Validator {
	return func(ctx context.Context, key string) error {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     key,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		})
		if err != nil {
			return err
		}
		if _, err := client.Models.Get(ctx, model, nil); err != nil {
			return err
		}
		return nil
	}
}
