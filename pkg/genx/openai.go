package genx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
)

var _ Generator = (*OpenAIGenerator)(nil)

const (
	oaiFinishReasonStop          string = "stop"
	oaiFinishReasonLength        string = "length"
	oaiFinishReasonContentFilter string = "content_filter"
)

// OpenAIGenerator implements Generator using an OpenAI-compatible chat
// completions endpoint. It has no search grounding; a SearchWebTool in the
// model context is ignored.
type OpenAIGenerator struct {
	Client *openai.Client `json:"-"`

	Model string `json:"model"`

	GenerateParams *ModelParams `json:"generate_params,omitzero"`

	UseSystemRole bool `json:"use_system_role,omitzero"`

	ExtraFields map[string]any `json:"extra_fields,omitzero"`
}

func (g *OpenAIGenerator) GenerateStream(ctx context.Context, model string, mctx ModelContext) (Stream, error) {
	params, err := g.chatCompletion(model, mctx)
	if err != nil {
		return nil, err
	}
	if HasSearchWeb(mctx) {
		slog.Debug("genx: openai generator ignores web search", "model", params.Model)
	}
	sb := NewStreamBuilder(32)
	go func() {
		if err := oaiPull(sb, g.Client.Chat.Completions.NewStreaming(ctx, params)); err != nil {
			sb.Abort(err)
		}
	}()
	return sb.Stream(), nil
}

func (g *OpenAIGenerator) chatCompletion(model string, mctx ModelContext) (openai.ChatCompletionNewParams, error) {
	msgs, err := g.convModelContext(mctx)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	if model == "" {
		model = g.Model
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    model,
	}
	mp := g.GenerateParams
	if p := mctx.Params(); p != nil {
		mp = p
	}
	if mp != nil {
		if mp.FrequencyPenalty > 0 {
			params.FrequencyPenalty = param.NewOpt(float64(mp.FrequencyPenalty))
		}
		if mp.MaxTokens > 0 {
			params.MaxCompletionTokens = param.NewOpt(int64(mp.MaxTokens))
		}
		if mp.Temperature > 0 {
			params.Temperature = param.NewOpt(float64(mp.Temperature))
		}
		if mp.TopP > 0 {
			params.TopP = param.NewOpt(float64(mp.TopP))
		}
		if mp.PresencePenalty > 0 {
			params.PresencePenalty = param.NewOpt(float64(mp.PresencePenalty))
		}
	}
	if len(g.ExtraFields) > 0 {
		params.SetExtraFields(g.ExtraFields)
	}
	return params, nil
}

func oaiPull(sb *StreamBuilder, stream *ssestream.Stream[openai.ChatCompletionChunk]) error {
	defer stream.Close()

	var (
		index  int64
		picked bool
	)
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		var sel *openai.ChatCompletionChunkChoice
		if !picked {
			index = chunk.Choices[0].Index
			sel = &chunk.Choices[0]
			picked = true
		} else {
			for i := range chunk.Choices {
				if chunk.Choices[i].Index == index {
					sel = &chunk.Choices[i]
					break
				}
			}
			if sel == nil {
				continue
			}
		}
		if s := sel.Delta.Content; s != "" {
			if err := sb.Add(&MessageChunk{
				Role: RoleModel,
				Part: Text(s),
			}); err != nil {
				return err
			}
		}
		switch sel.FinishReason {
		case oaiFinishReasonStop:
			return sb.Done(oaiConvUsage(&chunk.Usage))
		case oaiFinishReasonLength:
			return sb.Truncated(oaiConvUsage(&chunk.Usage))
		case oaiFinishReasonContentFilter:
			return sb.Blocked(oaiConvUsage(&chunk.Usage), sel.Delta.Refusal)
		}
		if s := sel.Delta.Refusal; s != "" {
			return sb.Blocked(oaiConvUsage(&chunk.Usage), s)
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	return errors.New("unexpected end of stream: no finish reason")
}

func (g *OpenAIGenerator) convModelContext(mctx ModelContext) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := []openai.ChatCompletionMessageParamUnion{}
	for p := range mctx.Prompts() {
		out = append(out, g.convPrompt(p))
	}
	for msg := range mctx.Messages() {
		mp, err := g.convMessage(msg)
		if err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, nil
}

func (g *OpenAIGenerator) convPrompt(p *Prompt) openai.ChatCompletionMessageParamUnion {
	if g.UseSystemRole {
		mp := openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: param.NewOpt(p.Text),
				},
			},
		}
		if p.Name != "" {
			mp.OfSystem.Name = param.NewOpt(p.Name)
		}
		return mp
	}
	mp := openai.ChatCompletionMessageParamUnion{
		OfDeveloper: &openai.ChatCompletionDeveloperMessageParam{
			Content: openai.ChatCompletionDeveloperMessageParamContentUnion{
				OfString: param.NewOpt(p.Text),
			},
		},
	}
	if p.Name != "" {
		mp.OfDeveloper.Name = param.NewOpt(p.Name)
	}
	return mp
}

func (g *OpenAIGenerator) convMessage(msg *Message) (openai.ChatCompletionMessageParamUnion, error) {
	var text strings.Builder
	for _, c := range msg.Payload {
		switch v := c.(type) {
		case Text:
			text.WriteString(string(v))
		case *Blob:
			return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported blob in %s message: %s", msg.Role, v.MIMEType)
		}
	}
	if text.Len() == 0 {
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("%s message must contain text", msg.Role)
	}
	switch msg.Role {
	case RoleUser:
		mp := openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: param.NewOpt(text.String()),
			},
		}
		if msg.Name != "" {
			mp.Name = param.NewOpt(msg.Name)
		}
		return openai.ChatCompletionMessageParamUnion{OfUser: &mp}, nil
	case RoleModel:
		mp := openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(text.String()),
				},
			},
		}
		if msg.Name != "" {
			mp.OfAssistant.Name = param.NewOpt(msg.Name)
		}
		return mp, nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unexpected message role: %s", msg.Role)
	}
}

func oaiConvUsage(usage *openai.CompletionUsage) Usage {
	if usage == nil {
		return Usage{}
	}
	return Usage{
		PromptTokenCount:        usage.PromptTokens,
		CachedContentTokenCount: usage.PromptTokensDetails.CachedTokens,
		GeneratedTokenCount:     usage.CompletionTokens,
	}
}
