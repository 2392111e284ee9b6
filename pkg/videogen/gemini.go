package videogen

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the video model used when GeminiBackend.Model is
// empty.
const DefaultGeminiModel = "veo-2.0-generate-001"

var _ Backend = (*GeminiBackend)(nil)

// GeminiBackend implements Backend with the Gemini long-running video
// operations.
type GeminiBackend struct {
	Client *genai.Client

	// Model should not start with "models/".
	Model string

	// Config overrides the generation config. NumberOfVideos defaults to 1.
	Config *genai.GenerateVideosConfig
}

func (b *GeminiBackend) model() string {
	if b.Model == "" {
		return DefaultGeminiModel
	}
	return b.Model
}

func (b *GeminiBackend) Submit(ctx context.Context, prompt string) (*Operation, error) {
	cfg := &genai.GenerateVideosConfig{NumberOfVideos: 1}
	if b.Config != nil {
		c := *b.Config
		if c.NumberOfVideos == 0 {
			c.NumberOfVideos = 1
		}
		cfg = &c
	}
	gop, err := b.Client.Models.GenerateVideos(ctx, b.model(), prompt, nil, cfg)
	if err != nil {
		return nil, err
	}
	return geminiConvOperation(gop), nil
}

func (b *GeminiBackend) Poll(ctx context.Context, op *Operation) (*Operation, error) {
	gop, ok := op.Handle.(*genai.GenerateVideosOperation)
	if !ok {
		return nil, fmt.Errorf("unexpected operation handle %T", op.Handle)
	}
	gop, err := b.Client.Operations.GetVideosOperation(ctx, gop, nil)
	if err != nil {
		return nil, err
	}
	return geminiConvOperation(gop), nil
}

func (b *GeminiBackend) Fetch(_ context.Context, op *Operation) (*Artifact, error) {
	gop, ok := op.Handle.(*genai.GenerateVideosOperation)
	if !ok {
		return nil, fmt.Errorf("unexpected operation handle %T", op.Handle)
	}
	return geminiArtifact(gop)
}

func geminiArtifact(gop *genai.GenerateVideosOperation) (*Artifact, error) {
	if gop.Response == nil {
		return nil, ErrArtifactMissing
	}
	for _, gv := range gop.Response.GeneratedVideos {
		if gv == nil || gv.Video == nil {
			continue
		}
		v := gv.Video
		if v.URI == "" && len(v.VideoBytes) == 0 {
			continue
		}
		return &Artifact{URI: v.URI, MIMEType: v.MIMEType, Data: v.VideoBytes}, nil
	}
	return nil, ErrArtifactMissing
}

func geminiConvOperation(gop *genai.GenerateVideosOperation) *Operation {
	op := &Operation{
		Name:   gop.Name,
		Done:   gop.Done,
		Handle: gop,
	}
	if !gop.Done {
		return op
	}
	if len(gop.Error) > 0 {
		op.Failure = geminiErrorMessage(gop.Error)
		return op
	}
	// A finished job whose videos were all filtered carries the reasons.
	if r := gop.Response; r != nil && len(r.GeneratedVideos) == 0 && len(r.RAIMediaFilteredReasons) > 0 {
		op.Failure = strings.Join(r.RAIMediaFilteredReasons, "; ")
	}
	return op
}

func geminiErrorMessage(e map[string]any) string {
	if msg, ok := e["message"].(string); ok && msg != "" {
		return msg
	}
	if code, ok := e["code"]; ok {
		return fmt.Sprintf("operation failed with code %v", code)
	}
	return "operation failed"
}
