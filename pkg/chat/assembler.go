// Package chat folds a streamed model reply into the transcript.
//
// An Assembler opens a genx stream for one request and applies every chunk
// to the active transcript entry as it arrives: text is concatenated in
// arrival order and each grounding snapshot replaces the citation list. On
// failure the partial text is thrown away and the entry shows the error.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haivivi/guide/pkg/genx"
	"github.com/haivivi/guide/pkg/transcript"
)

// ErrorPrefix starts the text of a reply that failed.
const ErrorPrefix = "Error: "

// DefaultInstruction is the system instruction used when neither the
// request nor the assembler sets one.
const DefaultInstruction = "You are a professional and encouraging AI career guide. " +
	"Your goal is to provide insightful advice on resumes, cover letters, interview skills, and career pathing. " +
	"Your tone should be supportive, clear, and action-oriented. " +
	"Use formatting like lists and bold text to make your advice easy to digest."

// Greeting is the first assistant entry of a new conversation.
const Greeting = "Hello! I am your AI Career Guide. I can help you with resume reviews, " +
	"interview practice, or exploring new career paths. How can I assist you with your career goals today?"

// Request is one user turn.
type Request struct {
	// History holds the entries preceding this turn.
	History []transcript.Entry

	Text        string
	WebSearch   bool
	Instruction string

	// Model overrides the generator's default model when set.
	Model string
}

// StreamError reports a failed reply. Partial is the text received before
// the failure; it is not kept in the transcript.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	return "chat: stream failed: " + e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Assembler streams replies into a transcript store.
type Assembler struct {
	Generator genx.Generator
	Store     *transcript.Store

	// Instruction is the default system instruction.
	Instruction string

	Params *genx.ModelParams

	// Usage is the token usage reported by the last completed reply.
	Usage genx.Usage
}

func (a *Assembler) modelContext(req Request) genx.ModelContext {
	mcb := &genx.ModelContextBuilder{Params: a.Params}
	instruction := req.Instruction
	if instruction == "" {
		instruction = a.Instruction
	}
	if instruction == "" {
		instruction = DefaultInstruction
	}
	mcb.PromptText("", instruction)
	for _, m := range History(req.History) {
		mcb.AddMessage(m)
	}
	mcb.UserText("", req.Text)
	if req.WebSearch {
		mcb.AddTool(&genx.SearchWebTool{})
	}
	return mcb.Build()
}

// Run streams the reply to req into the active entry entryID and finalizes
// it. The returned entry is the finalized one. A failed reply is finalized
// with an error text and reported as a *StreamError.
func (a *Assembler) Run(ctx context.Context, entryID string, req Request) (transcript.Entry, error) {
	a.Usage = genx.Usage{}
	if a.Generator == nil {
		return a.fail(entryID, "", errors.New("no chat backend configured"))
	}
	stream, err := a.Generator.GenerateStream(ctx, req.Model, a.modelContext(req))
	if err != nil {
		return a.fail(entryID, "", err)
	}
	defer stream.Close()
	stop := context.AfterFunc(ctx, func() {
		stream.CloseWithError(context.Cause(ctx))
	})
	defer stop()

	var (
		text      strings.Builder
		citations []transcript.Citation
	)
	for {
		chunk, err := stream.Next()
		if err != nil {
			if genx.Completed(err) {
				var st *genx.State
				if errors.As(err, &st) {
					a.Usage = st.Usage()
					if st.Status() == genx.StatusTruncated {
						slog.Warn("chat: reply truncated", "entry", entryID)
					}
				}
				return a.finish(entryID, text.String(), citations)
			}
			return a.fail(entryID, text.String(), err)
		}
		if chunk == nil {
			continue
		}

		var patch transcript.Patch
		if t, ok := chunk.Part.(genx.Text); ok && t != "" {
			text.WriteString(string(t))
			s := text.String()
			patch.Text = &s
		}
		if chunk.Grounding != nil {
			citations = MergeCitations(chunk.Grounding.Sources)
			patch.Citations = citations
		}
		if patch.Text == nil && patch.Citations == nil {
			continue
		}
		if _, err := a.Store.UpdateActive(patch); err != nil {
			return transcript.Entry{}, fmt.Errorf("chat: update entry %s: %w", entryID, err)
		}
	}
}

func (a *Assembler) finish(entryID, text string, citations []transcript.Citation) (transcript.Entry, error) {
	if _, err := a.Store.UpdateActive(transcript.Patch{Text: &text, Citations: citations}); err != nil {
		return transcript.Entry{}, fmt.Errorf("chat: update entry %s: %w", entryID, err)
	}
	return a.Store.Finalize(entryID)
}

func (a *Assembler) fail(entryID, partial string, cause error) (transcript.Entry, error) {
	serr := &StreamError{Partial: partial, Err: cause}
	slog.Error("chat: reply failed", "entry", entryID, "received", len(partial), "err", cause)

	msg := ErrorPrefix + Describe(cause)
	if _, err := a.Store.UpdateActive(transcript.Patch{Text: &msg, Citations: []transcript.Citation{}, Failed: true}); err != nil {
		return transcript.Entry{}, errors.Join(serr, err)
	}
	e, err := a.Store.Finalize(entryID)
	if err != nil {
		return e, errors.Join(serr, err)
	}
	return e, serr
}

// Describe renders err as a short message for the user.
func Describe(err error) string {
	var serr *StreamError
	if errors.As(err, &serr) {
		err = serr.Err
	}
	var st *genx.State
	if errors.As(err, &st) {
		switch st.Status() {
		case genx.StatusBlocked:
			if r := st.Refusal(); r != "" {
				return "the response was blocked (" + r + ")"
			}
			return "the response was blocked"
		case genx.StatusError:
			if inner := errors.Unwrap(st.Unwrap()); inner != nil {
				return inner.Error()
			}
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the request timed out"
	case errors.Is(err, context.Canceled):
		return "the request was canceled"
	}
	return err.Error()
}
