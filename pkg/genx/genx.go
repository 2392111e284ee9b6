package genx

import (
	"context"
	"iter"

	"github.com/goccy/go-yaml"
)

type Stream interface {
	Next() (*MessageChunk, error)
	Close() error
	CloseWithError(error) error
}

type ModelParams struct {
	MaxTokens        int     `json:"max_tokens,omitzero"`
	FrequencyPenalty float32 `json:"frequency_penalty,omitzero"`
	Temperature      float32 `json:"temperature,omitzero"`
	TopP             float32 `json:"top_p,omitzero"`
	PresencePenalty  float32 `json:"presence_penalty,omitzero"`
	TopK             float32 `json:"top_k,omitzero"`
}

type Prompt struct {
	Name string
	Text string
}

type Tool interface {
	isTool()
}

// SearchWebTool asks the backend to ground its answer on a web search.
type SearchWebTool struct{}

func (*SearchWebTool) isTool() {}

type ModelContext interface {
	Prompts() iter.Seq[*Prompt]
	Messages() iter.Seq[*Message]
	Tools() iter.Seq[Tool]

	Params() *ModelParams
}

// Generator opens a streamed generation. An empty model selects the
// generator's configured default.
type Generator interface {
	GenerateStream(ctx context.Context, model string, mctx ModelContext) (Stream, error)
}

type Usage struct {
	// Number of tokens in the prompt, including cached content.
	PromptTokenCount int64 `json:"prompt_tokens" yaml:"prompt_tokens"`

	// Number of tokens in the cached part of the prompt.
	CachedContentTokenCount int64 `json:"cached_tokens,omitempty" yaml:"cached_tokens,omitempty"`

	// Number of tokens generated.
	GeneratedTokenCount int64 `json:"generated_tokens" yaml:"generated_tokens"`
}

func (u Usage) String() string {
	b, _ := yaml.Marshal(map[string]map[string]any{
		"Usage": {
			"Prompt":    u.PromptTokenCount,
			"Cached":    u.CachedContentTokenCount,
			"Generated": u.GeneratedTokenCount,
		},
	})
	return string(b)
}

// HasSearchWeb reports whether mctx requests web search grounding.
func HasSearchWeb(mctx ModelContext) bool {
	for t := range mctx.Tools() {
		if _, ok := t.(*SearchWebTool); ok {
			return true
		}
	}
	return false
}
