// Package console prints the conversation to a terminal.
//
// The Renderer follows a transcript store and an exchange coordinator. User
// entries are printed when appended; assistant replies are streamed as
// text deltas, or rendered once as markdown when they finalize. The
// rotating video status and the error banner come from coordinator views.
package console

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/haivivi/guide/pkg/exchange"
	"github.com/haivivi/guide/pkg/transcript"
)

const (
	userLabel      = "You"
	assistantLabel = "Guide"
	loadingText    = "…"
)

type Options struct {
	// Markdown renders finalized replies with glamour instead of streaming
	// raw deltas.
	Markdown bool

	// Color enables ANSI styling.
	Color bool

	// Width is the markdown word wrap width. Zero means 80.
	Width int
}

// Renderer writes transcript changes to w. It is safe for concurrent use.
type Renderer struct {
	mu     sync.Mutex
	w      io.Writer
	opts   Options
	styles Styles
	md     *glamour.TermRenderer

	// printed is the reply text already written per streaming entry.
	printed map[string]string
	// pending marks entries showing a loading indicator or placeholder.
	pending map[string]bool
	// open is the entry whose line is not yet terminated.
	open string

	status string
	banner string
}

func New(w io.Writer, opts Options) *Renderer {
	lr := lipgloss.NewRenderer(w)
	if !opts.Color {
		lr.SetColorProfile(termenv.Ascii)
	}
	r := &Renderer{
		w:       w,
		opts:    opts,
		styles:  NewStyles(lr, DefaultTheme),
		printed: make(map[string]string),
		pending: make(map[string]bool),
	}
	if opts.Markdown {
		width := opts.Width
		if width <= 0 {
			width = 80
		}
		style := glamour.WithStandardStyle("notty")
		if opts.Color {
			style = glamour.WithAutoStyle()
		}
		md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
		if err != nil {
			slog.Warn("console: markdown disabled", "err", err)
		} else {
			r.md = md
		}
	}
	return r
}

// Attach subscribes r to store and coord. The returned func detaches it.
func (r *Renderer) Attach(store *transcript.Store, coord *exchange.Coordinator) (detach func()) {
	cancelStore := store.Subscribe(r.HandleEvent)
	cancelView := coord.Subscribe(r.HandleView)
	return func() {
		cancelStore()
		cancelView()
	}
}

// Replay prints entries that exist before the renderer was attached.
func (r *Renderer) Replay(entries []transcript.Entry) {
	for _, e := range entries {
		r.HandleEvent(transcript.Event{Kind: transcript.Appended, Entry: e})
	}
}

// HandleEvent renders one transcript event.
func (r *Renderer) HandleEvent(evt transcript.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := evt.Entry
	switch evt.Kind {
	case transcript.Appended:
		r.closeLine()
		if e.Role == transcript.RoleUser {
			r.printf("%s %s\n", r.styles.User.Render(userLabel+":"), e.Text)
			return
		}
		r.printf("%s ", r.styles.Assistant.Render(assistantLabel+":"))
		r.open = e.ID
		switch {
		case !e.Active:
			r.finish(e)
		case e.Loading():
			r.printf("%s", r.styles.Status.Render(loadingText))
			r.pending[e.ID] = true
		case r.md != nil:
			r.printf("%s", r.styles.Status.Render(e.Text))
			r.pending[e.ID] = true
		default:
			r.stream(e)
		}
	case transcript.Updated:
		if e.Role == transcript.RoleAssistant {
			r.stream(e)
		}
	case transcript.Finalized:
		if e.Role == transcript.RoleAssistant {
			r.finish(e)
		}
	}
}

// HandleView renders status and banner changes.
func (r *Renderer) HandleView(v exchange.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.Status != r.status {
		r.status = v.Status
		if v.Status != "" {
			r.closeLine()
			r.printf("%s\n", r.styles.Status.Render("⏳ "+v.Status))
		}
	}
	if v.Error != r.banner {
		r.banner = v.Error
		if v.Error != "" {
			r.closeLine()
			r.printf("%s\n", r.styles.Banner.Render(v.Error))
		}
	}
}

// stream writes the part of e.Text not yet printed. A text that no longer
// extends what was printed replaces it on a fresh line.
func (r *Renderer) stream(e transcript.Entry) {
	if r.md != nil {
		return
	}
	prev, seen := r.printed[e.ID]
	if e.Text == prev {
		return
	}
	fresh := false
	if r.open != e.ID {
		r.closeLine()
		r.printf("%s ", r.styles.Assistant.Render(assistantLabel+":"))
		r.open = e.ID
		fresh = true
	} else if r.pending[e.ID] {
		r.printf("\n")
		fresh = true
	}
	delete(r.pending, e.ID)

	if seen && !e.Failed && strings.HasPrefix(e.Text, prev) {
		r.printf("%s", e.Text[len(prev):])
	} else {
		if seen && !fresh {
			r.printf("\n")
		}
		r.printf("%s", r.body(e))
	}
	r.printed[e.ID] = e.Text
}

func (r *Renderer) finish(e transcript.Entry) {
	if r.md != nil {
		r.closeLine()
		r.printf("%s\n", strings.TrimRight(r.markdown(e), "\n"))
	} else {
		r.stream(e)
		r.closeLine()
	}
	delete(r.printed, e.ID)
	delete(r.pending, e.ID)

	for i, c := range e.Citations {
		if i == 0 {
			r.printf("%s\n", r.styles.Source.Render("Sources:"))
		}
		r.printf("%s\n", r.styles.Source.Render(fmt.Sprintf("  [%d] %s - %s", i+1, c.Title, c.URI)))
	}
	if e.MediaURL != "" {
		r.printf("▶ %s\n", r.styles.Media.Render(e.MediaURL))
	}
}

func (r *Renderer) markdown(e transcript.Entry) string {
	if e.Failed {
		return r.styles.Failure.Render(e.Text)
	}
	out, err := r.md.Render(e.Text)
	if err != nil {
		return e.Text
	}
	return strings.TrimLeft(out, "\n")
}

func (r *Renderer) body(e transcript.Entry) string {
	if e.Failed {
		return r.styles.Failure.Render(e.Text)
	}
	return e.Text
}

func (r *Renderer) closeLine() {
	if r.open == "" {
		return
	}
	r.open = ""
	r.printf("\n")
}

func (r *Renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}
