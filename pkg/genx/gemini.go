package genx

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

var _ Generator = (*GeminiGenerator)(nil)

// GeminiGenerator implements Generator using the Google Gemini API.
type GeminiGenerator struct {
	Client *genai.Client `json:"-"`

	GenerateParams *ModelParams `json:"generate_params,omitzero"`

	// Model should not start with "models/"
	Model string `json:"model"`
}

func (g *GeminiGenerator) GenerateStream(ctx context.Context, model string, mctx ModelContext) (Stream, error) {
	cfg, contents, err := g.convModelContext(mctx)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = g.Model
	}
	sb := NewStreamBuilder(32)
	go func() {
		if err := geminiPull(sb, g.Client.Models.GenerateContentStream(ctx, model, contents, cfg)); err != nil {
			sb.Abort(geminiUnwrapError(err))
		}
	}()
	return sb.Stream(), nil
}

func geminiUnwrapError(err error) error {
	var e *apierror.APIError
	if errors.As(err, &e) {
		if inner := e.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}

func geminiPull(builder *StreamBuilder, itr iter.Seq2[*genai.GenerateContentResponse, error]) error {
	var (
		selIdx int32
		picked bool
	)
	for chunk, err := range itr {
		if err != nil {
			return err
		}
		if chunk == nil || len(chunk.Candidates) == 0 {
			continue
		}
		var sel *genai.Candidate
		if !picked {
			selIdx = chunk.Candidates[0].Index
			sel = chunk.Candidates[0]
			picked = true
		} else {
			for _, c := range chunk.Candidates {
				if c.Index == selIdx {
					sel = c
					break
				}
			}
			if sel == nil {
				continue
			}
		}

		var sb strings.Builder
		if sel.Content != nil {
			for _, p := range sel.Content.Parts {
				// Thought summaries are not part of the answer.
				if p == nil || p.Thought {
					continue
				}
				sb.WriteString(p.Text)
			}
		}
		if sb.Len() > 0 {
			if err := builder.Add(&MessageChunk{
				Role: RoleModel,
				Part: Text(sb.String()),
			}); err != nil {
				return err
			}
		}
		if g := geminiConvGrounding(sel.GroundingMetadata); g != nil {
			if err := builder.Add(&MessageChunk{
				Role:      RoleModel,
				Grounding: g,
			}); err != nil {
				return err
			}
		}

		usage := geminiConvUsage(chunk.UsageMetadata)
		switch sel.FinishReason {
		default:
			return builder.Unexpected(usage, fmt.Errorf("unexpected finish reason: %s", sel.FinishReason))
		case genai.FinishReasonUnspecified, "":
			// continue
		case genai.FinishReasonStop:
			return builder.Done(usage)
		case genai.FinishReasonMaxTokens:
			slog.Warn("genx: gemini response truncated by token limit", "model_version", chunk.ModelVersion)
			return builder.Truncated(usage)
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
			var cats []string
			for _, sr := range sel.SafetyRatings {
				if sr.Blocked {
					cats = append(cats, string(sr.Category))
				}
			}
			reason := string(sel.FinishReason)
			if len(cats) > 0 {
				reason = strings.Join(cats, ", ")
			}
			return builder.Blocked(usage, "blocked by "+reason)
		}
	}
	return errors.New("unexpected end of stream: no finish reason")
}

// geminiConvGrounding returns nil only when the response carries no
// grounding chunks at all. A chunk list without web sources still yields an
// empty snapshot so earlier citations are cleared.
func geminiConvGrounding(md *genai.GroundingMetadata) *Grounding {
	if md == nil || md.GroundingChunks == nil {
		return nil
	}
	g := &Grounding{Queries: md.WebSearchQueries}
	for _, c := range md.GroundingChunks {
		if c == nil || c.Web == nil {
			continue
		}
		g.Sources = append(g.Sources, GroundingSource{
			URI:    c.Web.URI,
			Title:  c.Web.Title,
			Domain: c.Web.Domain,
		})
	}
	return g
}

func geminiConvMessage(last *genai.Content, msg *Message) (*genai.Content, error) {
	var role string
	switch msg.Role {
	default:
		return nil, fmt.Errorf("unexpected message role: %s", msg.Role)
	case RoleUser:
		role = genai.RoleUser
	case RoleModel:
		role = genai.RoleModel
	}

	var parts []*genai.Part
	for _, c := range msg.Payload {
		switch v := c.(type) {
		case Text:
			parts = append(parts, genai.NewPartFromText(string(v)))
		case *Blob:
			parts = append(parts, genai.NewPartFromBytes(v.Data, v.MIMEType))
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	if last == nil || last.Role != role {
		return &genai.Content{
			Role:  role,
			Parts: parts,
		}, nil
	}
	last.Parts = append(last.Parts, parts...)
	return nil, nil
}

func (g *GeminiGenerator) convModelContext(mctx ModelContext) (*genai.GenerateContentConfig, []*genai.Content, error) {
	var cfg genai.GenerateContentConfig
	prompts := []*genai.Part{}
	for p := range mctx.Prompts() {
		prompts = append(prompts, genai.NewPartFromText(p.Text))
	}
	if len(prompts) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: prompts}
	}
	mp := g.GenerateParams
	if p := mctx.Params(); p != nil {
		mp = p
	}
	if mp != nil {
		if mp.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(mp.MaxTokens)
		}
		if mp.Temperature > 0 {
			cfg.Temperature = &mp.Temperature
		}
		if mp.TopP > 0 {
			cfg.TopP = &mp.TopP
		}
		if mp.TopK > 0 {
			cfg.TopK = &mp.TopK
		}
	}

	for t := range mctx.Tools() {
		switch t := t.(type) {
		case *SearchWebTool:
			cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		default:
			return nil, nil, fmt.Errorf("unexpected tool type: %T", t)
		}
	}

	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for msg := range mctx.Messages() {
		c, err := geminiConvMessage(last, msg)
		if err != nil {
			return nil, nil, err
		}
		if c != nil {
			contents = append(contents, c)
			last = c
		}
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("no contents")
	}

	return &cfg, contents, nil
}

func geminiConvUsage(usage *genai.GenerateContentResponseUsageMetadata) Usage {
	if usage == nil {
		return Usage{}
	}
	return Usage{
		PromptTokenCount:        int64(usage.PromptTokenCount),
		CachedContentTokenCount: int64(usage.CachedContentTokenCount),
		GeneratedTokenCount:     int64(usage.CandidatesTokenCount),
	}
}
