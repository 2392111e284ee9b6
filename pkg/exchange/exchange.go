// Package exchange runs user exchanges against the chat and video backends
// one at a time.
//
// The Coordinator owns the conversation state machine: it is idle,
// streaming a chat reply, or generating a video. Only an idle coordinator
// accepts a new exchange; a request made while busy is rejected without
// touching the transcript. Every exchange, successful or not, ends with
// its reply entry finalized and the coordinator idle again.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/haivivi/guide/pkg/chat"
	"github.com/haivivi/guide/pkg/genx"
	"github.com/haivivi/guide/pkg/transcript"
	"github.com/haivivi/guide/pkg/videogen"
)

var (
	ErrBusy       = errors.New("exchange: another exchange is in progress")
	ErrNotReady   = errors.New("exchange: backend not configured")
	ErrEmptyInput = errors.New("exchange: empty input")
)

const (
	// VideoErrorPrefix starts the text of a video reply that failed.
	VideoErrorPrefix = "Video Error: "

	// VideoPlaceholder is the reply text while a video renders.
	VideoPlaceholder = "Video generation in progress..."

	DefaultChatTimeout  = 2 * time.Minute
	DefaultVideoTimeout = 30 * time.Minute
)

type State int

const (
	Idle State = iota
	StreamingChat
	GeneratingVideo
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case StreamingChat:
		return "streaming-chat"
	case GeneratingVideo:
		return "generating-video"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Idle, StreamingChat, GeneratingVideo} {
		if string(b) == st.String() {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("exchange: unknown state %q", b)
}

// VideoRunner runs a video job to completion. *videogen.Poller implements
// it.
type VideoRunner interface {
	Run(ctx context.Context, prompt string, status func(string)) (*videogen.Result, error)
}

var _ VideoRunner = (*videogen.Poller)(nil)

// Backends are the remote services an exchange talks to.
type Backends struct {
	Chat  genx.Generator
	Video VideoRunner

	// Model overrides the chat generator's default model.
	Model string
}

// SendOptions tune a single chat message.
type SendOptions struct {
	WebSearch   bool
	Instruction string
}

// View is a snapshot of everything the presentation layer shows.
type View struct {
	Entries []transcript.Entry `json:"entries"`
	State   State              `json:"state"`

	// Status is the rotating video status phrase, empty when idle.
	Status string `json:"status,omitempty"`

	// Error is the banner of the last failed exchange. It is cleared when
	// the next exchange starts.
	Error string `json:"error,omitempty"`
}

type Option func(*Coordinator)

// WithInstruction sets the default system instruction.
func WithInstruction(s string) Option {
	return func(c *Coordinator) { c.instruction = s }
}

func WithChatTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.chatTimeout = d }
}

func WithVideoTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.videoTimeout = d }
}

func WithParams(p *genx.ModelParams) Option {
	return func(c *Coordinator) { c.params = p }
}

type subscriber struct {
	fn func(View)
}

// Coordinator serializes exchanges over a transcript store.
type Coordinator struct {
	store *transcript.Store

	instruction  string
	params       *genx.ModelParams
	chatTimeout  time.Duration
	videoTimeout time.Duration

	mu       sync.Mutex
	state    State
	status   string
	lastErr  string
	usage    genx.Usage
	backends Backends
	subs     []*subscriber

	unwatch func()
}

// New creates an idle coordinator. Backends are attached with Attach.
func New(store *transcript.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        store,
		chatTimeout:  DefaultChatTimeout,
		videoTimeout: DefaultVideoTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unwatch = store.Subscribe(func(transcript.Event) { c.notify() })
	return c
}

// Close detaches the coordinator from its store.
func (c *Coordinator) Close() error {
	c.unwatch()
	return nil
}

// Attach replaces the backends. It fails with ErrBusy during an exchange.
func (c *Coordinator) Attach(b Backends) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.backends = b
	c.mu.Unlock()
	c.notify()
	return nil
}

// Ready reports whether a chat backend is attached.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backends.Chat != nil
}

// Greet appends the greeting when the transcript is empty.
func (c *Coordinator) Greet() error {
	if c.store.Len() > 0 {
		return nil
	}
	_, err := c.store.Append(transcript.Entry{Role: transcript.RoleAssistant, Text: chat.Greeting})
	return err
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) View() View {
	c.mu.Lock()
	v := View{State: c.state, Status: c.status, Error: c.lastErr}
	c.mu.Unlock()
	v.Entries = c.store.All()
	return v
}

// Subscribe registers fn for every change of the view, including
// transcript updates. fn runs on the goroutine making the change.
func (c *Coordinator) Subscribe(fn func(View)) (cancel func()) {
	sub := &subscriber{fn: fn}
	c.mu.Lock()
	c.subs = append(slices.Clip(c.subs), sub)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if idx := slices.Index(c.subs, sub); idx >= 0 {
				c.subs = slices.Delete(slices.Clone(c.subs), idx, idx+1)
			}
		})
	}
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	subs := c.subs
	c.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	v := c.View()
	for _, sub := range subs {
		sub.fn(v)
	}
}

// begin moves an idle coordinator into s and returns the backends to use.
func (c *Coordinator) begin(s State) (Backends, error) {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return Backends{}, ErrBusy
	}
	b := c.backends
	if (s == StreamingChat && b.Chat == nil) || (s == GeneratingVideo && b.Video == nil) {
		c.mu.Unlock()
		return Backends{}, ErrNotReady
	}
	c.state = s
	c.status = ""
	c.lastErr = ""
	c.mu.Unlock()
	c.notify()
	return b, nil
}

func (c *Coordinator) end(banner string) {
	c.mu.Lock()
	c.state = Idle
	c.status = ""
	c.lastErr = banner
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) setStatus(s string) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.notify()
}

// finalizeLeftover closes the reply entry if an exchange path left it
// active.
func (c *Coordinator) finalizeLeftover(id string) {
	if e, ok := c.store.Active(); ok && e.ID == id {
		if _, err := c.store.Finalize(id); err != nil {
			slog.Error("exchange: finalize leftover entry", "entry", id, "err", err)
		}
	}
}

// openExchange appends the user entry and the active reply placeholder.
func (c *Coordinator) openExchange(text, placeholder string) (transcript.Entry, error) {
	if _, err := c.store.Append(transcript.Entry{Role: transcript.RoleUser, Text: text}); err != nil {
		return transcript.Entry{}, err
	}
	return c.store.Append(transcript.Entry{Role: transcript.RoleAssistant, Text: placeholder, Active: true})
}

// SendMessage streams a chat reply to text. It returns ErrBusy or
// ErrNotReady when the exchange cannot start; failures of the exchange
// itself are shown in the reply entry and the banner, not returned.
func (c *Coordinator) SendMessage(ctx context.Context, text string, opts SendOptions) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	b, err := c.begin(StreamingChat)
	if err != nil {
		return err
	}
	var banner string
	defer func() { c.end(banner) }()

	history := c.store.All()
	reply, err := c.openExchange(text, "")
	if err != nil {
		banner = err.Error()
		return err
	}
	defer c.finalizeLeftover(reply.ID)

	if c.chatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.chatTimeout)
		defer cancel()
	}
	asm := &chat.Assembler{
		Generator:   b.Chat,
		Store:       c.store,
		Instruction: c.instruction,
		Params:      c.params,
	}
	_, err = asm.Run(ctx, reply.ID, chat.Request{
		History:     history,
		Text:        text,
		WebSearch:   opts.WebSearch,
		Instruction: opts.Instruction,
		Model:       b.Model,
	})
	c.mu.Lock()
	c.usage = asm.Usage
	c.mu.Unlock()
	if err != nil {
		var serr *chat.StreamError
		if !errors.As(err, &serr) {
			slog.Error("exchange: chat", "err", err)
		}
		banner = chat.Describe(err)
	}
	return nil
}

// Usage returns the token usage of the last chat reply. It is zero when
// the reply failed before the backend reported usage.
func (c *Coordinator) Usage() genx.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// ExploreCareers sends a career path request composed from p. A profile
// with no field set is rejected with ErrEmptyInput.
func (c *Coordinator) ExploreCareers(ctx context.Context, p chat.CareerProfile, opts SendOptions) error {
	text, err := chat.CareerPathPrompt(p)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmptyInput, err)
	}
	return c.SendMessage(ctx, text, opts)
}

// GenerateVideo runs a video job for prompt. Like SendMessage it only
// returns errors that prevent the exchange from starting.
func (c *Coordinator) GenerateVideo(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrEmptyInput
	}
	b, err := c.begin(GeneratingVideo)
	if err != nil {
		return err
	}
	var banner string
	defer func() { c.end(banner) }()

	reply, err := c.openExchange(prompt, VideoPlaceholder)
	if err != nil {
		banner = err.Error()
		return err
	}
	defer c.finalizeLeftover(reply.ID)

	if c.videoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.videoTimeout)
		defer cancel()
	}
	res, err := b.Video.Run(ctx, prompt, c.setStatus)
	if err == nil && (res == nil || res.MediaURL == "") {
		err = &videogen.JobError{Phase: videogen.PhaseFetch}
	}

	var patch transcript.Patch
	if err != nil {
		slog.Error("exchange: video", "err", err)
		banner = videogen.Describe(err)
		msg := VideoErrorPrefix + banner
		patch.Text = &msg
		patch.Failed = true
	} else {
		msg := `Video generated for prompt: "` + prompt + `"`
		patch.Text = &msg
		patch.MediaURL = res.MediaURL
	}
	if _, err := c.store.UpdateActive(patch); err != nil {
		slog.Error("exchange: update video entry", "entry", reply.ID, "err", err)
	}
	if _, err := c.store.Finalize(reply.ID); err != nil {
		slog.Error("exchange: finalize video entry", "entry", reply.ID, "err", err)
	}
	return nil
}
