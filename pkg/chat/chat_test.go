package chat

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/haivivi/guide/pkg/genx"
	"github.com/haivivi/guide/pkg/transcript"
)

// scriptGen replays a fixed chunk script and then ends the stream with fin.
type scriptGen struct {
	chunks  []*genx.MessageChunk
	fin     func(sb *genx.StreamBuilder)
	openErr error

	got genx.ModelContext
}

func (g *scriptGen) GenerateStream(ctx context.Context, model string, mctx genx.ModelContext) (genx.Stream, error) {
	g.got = mctx
	if g.openErr != nil {
		return nil, g.openErr
	}
	sb := genx.NewStreamBuilder(len(g.chunks) + 1)
	go func() {
		if err := sb.Add(g.chunks...); err != nil {
			return
		}
		if g.fin != nil {
			g.fin(sb)
		}
	}()
	return sb.Stream(), nil
}

func textChunk(s string) *genx.MessageChunk {
	return &genx.MessageChunk{Role: genx.RoleModel, Part: genx.Text(s)}
}

func groundingChunk(sources ...genx.GroundingSource) *genx.MessageChunk {
	return &genx.MessageChunk{Role: genx.RoleModel, Grounding: &genx.Grounding{Sources: sources}}
}

func done(sb *genx.StreamBuilder) { sb.Done(genx.Usage{}) }

func newActive(t *testing.T) (*transcript.Store, transcript.Entry) {
	t.Helper()
	s := transcript.New()
	e, err := s.Append(transcript.Entry{Role: transcript.RoleAssistant, Active: true})
	if err != nil {
		t.Fatal(err)
	}
	return s, e
}

func TestMergeCitations(t *testing.T) {
	tests := []struct {
		name string
		in   []genx.GroundingSource
		want []transcript.Citation
	}{
		{
			name: "empty",
			in:   nil,
			want: []transcript.Citation{},
		},
		{
			name: "drops blank uri",
			in: []genx.GroundingSource{
				{URI: "", Title: "none"},
				{URI: "  ", Title: "blank"},
				{URI: "https://go.dev", Title: "Go"},
			},
			want: []transcript.Citation{{URI: "https://go.dev", Title: "Go"}},
		},
		{
			name: "first occurrence wins",
			in: []genx.GroundingSource{
				{URI: "https://a", Title: "first"},
				{URI: "https://b", Title: "B"},
				{URI: "https://a", Title: "second"},
			},
			want: []transcript.Citation{
				{URI: "https://a", Title: "first"},
				{URI: "https://b", Title: "B"},
			},
		},
		{
			name: "title fallback",
			in: []genx.GroundingSource{
				{URI: "https://a/x", Domain: "a"},
				{URI: "https://b/y"},
			},
			want: []transcript.Citation{
				{URI: "https://a/x", Title: "a"},
				{URI: "https://b/y", Title: "https://b/y"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeCitations(tt.in)
			if got == nil {
				t.Fatal("MergeCitations() = nil, want non-nil")
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("MergeCitations() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	entries := []transcript.Entry{
		{Role: transcript.RoleAssistant, Text: Greeting},
		{Role: transcript.RoleUser, Text: "hi"},
		{Role: transcript.RoleAssistant, Text: ""},
		{Role: transcript.RoleAssistant, MediaURL: "file:///v.mp4"},
		{Role: transcript.RoleAssistant, Text: "hello"},
	}
	msgs := History(entries)
	if len(msgs) != 3 {
		t.Fatalf("len(History()) = %d, want 3", len(msgs))
	}
	if msgs[0].Role != genx.RoleModel || msgs[1].Role != genx.RoleUser {
		t.Errorf("roles = %v, %v", msgs[0].Role, msgs[1].Role)
	}
	if msgs[2].Text() != "hello" {
		t.Errorf("last message = %q", msgs[2].Text())
	}
}

func TestAssembler_ConcatenatesVerbatim(t *testing.T) {
	store, entry := newActive(t)
	var seen []string
	store.Subscribe(func(e transcript.Event) {
		if e.Kind == transcript.Updated {
			seen = append(seen, e.Entry.Text)
		}
	})

	gen := &scriptGen{
		chunks: []*genx.MessageChunk{textChunk("Go is "), textChunk("an open source "), textChunk("language.")},
		fin:    done,
	}
	a := &Assembler{Generator: gen, Store: store}
	got, err := a.Run(context.Background(), entry.ID, Request{Text: "What is Go?"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "Go is an open source language." {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Active {
		t.Error("entry not finalized")
	}
	want := []string{"Go is ", "Go is an open source ", "Go is an open source language."}
	if !slices.Equal(seen, want) {
		t.Errorf("updates = %q, want %q", seen, want)
	}
}

func TestAssembler_CitationSnapshotsReplace(t *testing.T) {
	store, entry := newActive(t)
	gen := &scriptGen{
		chunks: []*genx.MessageChunk{
			textChunk("A"),
			groundingChunk(
				genx.GroundingSource{URI: "https://one", Title: "One"},
				genx.GroundingSource{URI: "https://two", Title: "Two"},
			),
			textChunk("B"),
			groundingChunk(
				genx.GroundingSource{URI: "", Title: "bad"},
				genx.GroundingSource{URI: "https://two", Title: "Two"},
			),
		},
		fin: done,
	}
	a := &Assembler{Generator: gen, Store: store}
	got, err := a.Run(context.Background(), entry.ID, Request{Text: "q", WebSearch: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "AB" {
		t.Errorf("Text = %q, want AB", got.Text)
	}
	want := []transcript.Citation{{URI: "https://two", Title: "Two"}}
	if !slices.Equal(got.Citations, want) {
		t.Errorf("Citations = %+v, want %+v", got.Citations, want)
	}
	if !genx.HasSearchWeb(gen.got) {
		t.Error("web search tool not requested")
	}
}

func TestAssembler_EmptySnapshotClearsCitations(t *testing.T) {
	store, entry := newActive(t)
	gen := &scriptGen{
		chunks: []*genx.MessageChunk{
			textChunk("Hi"),
			groundingChunk(genx.GroundingSource{URI: "https://a.example", Title: "A"}),
			textChunk(" there"),
			groundingChunk(),
		},
		fin: done,
	}
	got, err := (&Assembler{Generator: gen, Store: store}).Run(context.Background(), entry.ID, Request{Text: "q", WebSearch: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Citations) != 0 {
		t.Errorf("Citations = %+v, want none", got.Citations)
	}
}

func TestAssembler_RepeatedSnapshotIsIdempotent(t *testing.T) {
	store, entry := newActive(t)
	updates := 0
	store.Subscribe(func(e transcript.Event) {
		if e.Kind == transcript.Updated {
			updates++
		}
	})
	src := genx.GroundingSource{URI: "https://x", Title: "X"}
	gen := &scriptGen{
		chunks: []*genx.MessageChunk{textChunk("t"), groundingChunk(src), groundingChunk(src)},
		fin:    done,
	}
	if _, err := (&Assembler{Generator: gen, Store: store}).Run(context.Background(), entry.ID, Request{Text: "q"}); err != nil {
		t.Fatal(err)
	}
	if updates != 2 {
		t.Errorf("updates = %d, want 2", updates)
	}
}

func TestAssembler_FailureReplacesPartialText(t *testing.T) {
	store, entry := newActive(t)
	cause := errors.New("connection reset")
	gen := &scriptGen{
		chunks: []*genx.MessageChunk{textChunk("Hello "), textChunk("wor")},
		fin:    func(sb *genx.StreamBuilder) { sb.Abort(cause) },
	}
	got, err := (&Assembler{Generator: gen, Store: store}).Run(context.Background(), entry.ID, Request{Text: "hi"})

	var serr *StreamError
	if !errors.As(err, &serr) {
		t.Fatalf("Run() error = %v, want *StreamError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Run() error does not wrap cause: %v", err)
	}
	if strings.Contains(got.Text, "Hello wor") {
		t.Errorf("partial text kept: %q", got.Text)
	}
	if !strings.HasPrefix(got.Text, ErrorPrefix) || !strings.Contains(got.Text, "connection reset") {
		t.Errorf("Text = %q, want error text", got.Text)
	}
	if got.Active {
		t.Error("failed entry not finalized")
	}
	if !got.Failed {
		t.Error("failed entry not flagged")
	}
}

func TestAssembler_Blocked(t *testing.T) {
	store, entry := newActive(t)
	gen := &scriptGen{
		chunks: []*genx.MessageChunk{textChunk("partial")},
		fin:    func(sb *genx.StreamBuilder) { sb.Blocked(genx.Usage{}, "SAFETY") },
	}
	got, err := (&Assembler{Generator: gen, Store: store}).Run(context.Background(), entry.ID, Request{Text: "x"})
	if err == nil {
		t.Fatal("Run() error = nil, want blocked error")
	}
	if !strings.Contains(got.Text, "blocked") {
		t.Errorf("Text = %q, want blocked message", got.Text)
	}
}

func TestAssembler_TruncatedIsSuccess(t *testing.T) {
	store, entry := newActive(t)
	gen := &scriptGen{
		chunks: []*genx.MessageChunk{textChunk("long answer")},
		fin: func(sb *genx.StreamBuilder) {
			sb.Truncated(genx.Usage{PromptTokenCount: 5, GeneratedTokenCount: 2048})
		},
	}
	a := &Assembler{Generator: gen, Store: store}
	got, err := a.Run(context.Background(), entry.ID, Request{Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "long answer" || got.Failed {
		t.Errorf("entry = %+v", got)
	}
	if a.Usage.GeneratedTokenCount != 2048 || a.Usage.PromptTokenCount != 5 {
		t.Errorf("Usage = %+v", a.Usage)
	}
}

func TestAssembler_OpenError(t *testing.T) {
	store, entry := newActive(t)
	gen := &scriptGen{openErr: errors.New("401 unauthorized")}
	got, err := (&Assembler{Generator: gen, Store: store}).Run(context.Background(), entry.ID, Request{Text: "x"})
	if err == nil {
		t.Fatal("Run() error = nil")
	}
	if got.Text != ErrorPrefix+"401 unauthorized" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestAssembler_ContextTimeout(t *testing.T) {
	store, entry := newActive(t)
	// The stream never finishes on its own.
	gen := &scriptGen{chunks: []*genx.MessageChunk{textChunk("slow")}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := (&Assembler{Generator: gen, Store: store}).Run(ctx, entry.ID, Request{Text: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
	if got.Text != ErrorPrefix+"the request timed out" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestAssembler_DefaultInstruction(t *testing.T) {
	store, entry := newActive(t)
	gen := &scriptGen{chunks: []*genx.MessageChunk{textChunk("ok")}, fin: done}
	if _, err := (&Assembler{Generator: gen, Store: store}).Run(context.Background(), entry.ID, Request{Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	prompts := slices.Collect(gen.got.Prompts())
	if len(prompts) != 1 || prompts[0].Text != DefaultInstruction {
		t.Fatalf("prompts = %+v", prompts)
	}
	for _, want := range []string{"cover letters", "action-oriented", "lists and bold text"} {
		if !strings.Contains(prompts[0].Text, want) {
			t.Errorf("instruction missing %q", want)
		}
	}
}

func TestAssembler_ModelContext(t *testing.T) {
	store, entry := newActive(t)
	gen := &scriptGen{chunks: []*genx.MessageChunk{textChunk("ok")}, fin: done}
	a := &Assembler{Generator: gen, Store: store, Instruction: "be brief"}
	history := []transcript.Entry{
		{Role: transcript.RoleAssistant, Text: Greeting},
		{Role: transcript.RoleUser, Text: "first"},
	}
	if _, err := a.Run(context.Background(), entry.ID, Request{History: history, Text: "second"}); err != nil {
		t.Fatal(err)
	}

	prompts := slices.Collect(gen.got.Prompts())
	if len(prompts) != 1 || prompts[0].Text != "be brief" {
		t.Errorf("prompts = %+v", prompts)
	}
	msgs := slices.Collect(gen.got.Messages())
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	// Consecutive user turns are merged into one message.
	if msgs[1].Text() != "firstsecond" {
		t.Errorf("last message = %q", msgs[1].Text())
	}
	if genx.HasSearchWeb(gen.got) {
		t.Error("web search requested without WebSearch")
	}
}

func TestCareerPathPrompt(t *testing.T) {
	got, err := CareerPathPrompt(CareerProfile{
		Skills:     " Python, SQL ",
		Experience: "Three years as a data analyst",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "Please suggest career paths that suit me.\n" +
		"\nMy skills: Python, SQL" +
		"\nMy professional experience: Three years as a data analyst" +
		"\n\nFor each path, explain why it fits and list concrete next steps to get started."
	if got != want {
		t.Errorf("CareerPathPrompt() = %q, want %q", got, want)
	}
	if strings.Contains(got, "interests") {
		t.Error("blank interests included")
	}
}

func TestCareerPathPrompt_AllBlank(t *testing.T) {
	for _, p := range []CareerProfile{{}, {Skills: "  ", Interests: "\n", Experience: "\t"}} {
		if _, err := CareerPathPrompt(p); !errors.Is(err, ErrEmptyProfile) {
			t.Errorf("CareerPathPrompt(%+v) error = %v, want ErrEmptyProfile", p, err)
		}
	}
}
