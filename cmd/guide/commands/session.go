package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/haivivi/guide/pkg/cli"
	"github.com/haivivi/guide/pkg/credential"
	"github.com/haivivi/guide/pkg/exchange"
	"github.com/haivivi/guide/pkg/genx"
	"github.com/haivivi/guide/pkg/kv"
	"github.com/haivivi/guide/pkg/storage"
	"github.com/haivivi/guide/pkg/transcript"
	"github.com/haivivi/guide/pkg/videogen"
)

const (
	defaultChatModel   = "gemini-2.5-flash"
	defaultOpenAIModel = "gemini-2.5-flash"

	// geminiOpenAIBaseURL is the OpenAI-compatible endpoint of the Gemini
	// API, used by the openai provider when no base_url is configured.
	geminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

	validateTimeout = 20 * time.Second
)

// session wires one conversation: credential slot, media store,
// transcript and coordinator.
type session struct {
	cfg   *cli.Context
	kv    kv.Store
	creds *credential.Store
	media storage.MediaStore
	store *transcript.Store
	coord *exchange.Coordinator

	// validate checks keys before they are used. Nil skips validation.
	validate credential.Validator
	key      credential.Candidate
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := getContext()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}

	if s.kv, err = openKV(); err != nil {
		return nil, err
	}
	s.creds = credential.NewStore(s.kv)

	if s.media, err = openMedia(cfg); err != nil {
		s.kv.Close()
		return nil, err
	}

	s.store = transcript.New()
	s.coord = exchange.New(s.store,
		exchange.WithInstruction(cfg.SystemInstruction()),
		exchange.WithChatTimeout(cfg.RequestTimeout(exchange.DefaultChatTimeout)),
	)
	s.validate = validatorFor(cfg)
	return s, nil
}

// Close releases the session. Media in a temporary directory is removed.
func (s *session) Close() error {
	return errors.Join(s.coord.Close(), s.media.Close(), s.kv.Close())
}

// bootstrap picks the starting key and attaches backends built from it.
// The session stays usable without a key; exchanges then fail with
// exchange.ErrNotReady until useKey succeeds.
func (s *session) bootstrap(ctx context.Context) error {
	c, err := credential.Bootstrap(ctx, s.creds, credential.Sources{
		Flag:    apiKeyFlag,
		Context: s.cfg.APIKey,
	}, s.timedValidate)
	if err != nil {
		return err
	}
	if err := s.attach(ctx, c); err != nil {
		return err
	}
	printVerbose("Using %s API key %s", c.Source, credential.Mask(c.Key))
	return nil
}

// useKey replaces the active key with one entered by the user.
func (s *session) useKey(ctx context.Context, key string) error {
	c := credential.Candidate{Key: key, Source: credential.SourcePrompt}
	if err := credential.Activate(ctx, s.creds, c, s.timedValidate); err != nil {
		return err
	}
	return s.attach(ctx, c)
}

func (s *session) timedValidate(ctx context.Context, key string) error {
	if s.validate == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	return s.validate(ctx, key)
}

func (s *session) attach(ctx context.Context, c credential.Candidate) error {
	b, err := buildBackends(ctx, s.cfg, c.Key, s.media)
	if err != nil {
		return fmt.Errorf("%w: %w", credential.ErrInitialization, err)
	}
	if err := s.coord.Attach(b); err != nil {
		return err
	}
	s.key = c
	return nil
}

// validatorFor returns the key check for cfg. Keys for a custom
// OpenAI-compatible endpoint are not validated against Gemini.
func validatorFor(cfg *cli.Context) credential.Validator {
	if cfg.Provider() == cli.ProviderOpenAI && cfg.BaseURL != "" {
		return nil
	}
	return credential.GeminiValidator(defaultChatModel, nil)
}

func buildBackends(ctx context.Context, cfg *cli.Context, key string, media storage.MediaStore) (exchange.Backends, error) {
	gc := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Provider() == cli.ProviderGemini && cfg.BaseURL != "" {
		gc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, gc)
	if err != nil {
		return exchange.Backends{}, fmt.Errorf("create gemini client: %w", err)
	}

	var gen genx.Generator
	switch cfg.Provider() {
	case cli.ProviderGemini:
		model := cfg.Model()
		if model == "" {
			model = defaultChatModel
		}
		gen = &genx.GeminiGenerator{Client: client, Model: model}
	case cli.ProviderOpenAI:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = geminiOpenAIBaseURL
		}
		model := cfg.Model()
		if model == "" {
			model = defaultOpenAIModel
		}
		oc := openai.NewClient(option.WithAPIKey(key), option.WithBaseURL(baseURL))
		gen = &genx.OpenAIGenerator{Client: &oc, Model: model, UseSystemRole: true}
	default:
		return exchange.Backends{}, fmt.Errorf("unknown provider %q", cfg.Provider())
	}

	poller := &videogen.Poller{
		Backend:    &videogen.GeminiBackend{Client: client, Model: cfg.VideoModel()},
		Media:      media,
		Downloader: &videogen.HTTPDownloader{APIKey: key},
	}
	return exchange.Backends{Chat: gen, Video: poller}, nil
}

func openKV() (kv.Store, error) {
	if ephemeral {
		return kv.NewMemory(), nil
	}
	paths, err := cli.NewPaths(appName)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: filepath.Join(paths.DataDir(), "kv")})
	if err != nil {
		return nil, fmt.Errorf("open credential store (is another guide running?): %w", err)
	}
	return store, nil
}

func openMedia(cfg *cli.Context) (storage.MediaStore, error) {
	m := cfg.Media()
	if m.Bucket != "" {
		slog.Debug("guide: media in s3", "bucket", m.Bucket, "prefix", m.Prefix)
		return storage.NewS3FromOptions(envAWSConfig(m.Region), m.Bucket, m.Prefix, storage.S3Options{
			Region:    m.Region,
			Endpoint:  m.Endpoint,
			PathStyle: m.Endpoint != "",
		}), nil
	}
	dir := ""
	if keepMedia {
		paths, err := cli.NewPaths(appName)
		if err != nil {
			return nil, err
		}
		dir = paths.MediaDir()
	}
	return storage.NewSession(dir)
}

// envAWSConfig builds an aws.Config reading static credentials from the
// standard AWS environment variables.
func envAWSConfig(region string) aws.Config {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	return aws.Config{
		Region: region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
			if id == "" || secret == "" {
				return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required for s3 media")
			}
			return aws.Credentials{
				AccessKeyID:     id,
				SecretAccessKey: secret,
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		})),
	}
}

// keyHint explains how to recover from a missing or rejected key.
func keyHint(err error) string {
	switch {
	case errors.Is(err, credential.ErrNoKey):
		return "No API key found. Set GEMINI_API_KEY, pass --api-key, or run 'guide config set-key'."
	case errors.Is(err, credential.ErrInitialization):
		return "The API key could not be used: " + strings.TrimPrefix(err.Error(), credential.ErrInitialization.Error()+": ")
	default:
		return err.Error()
	}
}
