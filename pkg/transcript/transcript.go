// Package transcript holds the ordered conversation log shown to the user.
//
// The log is append-only except for a single active entry, which the
// running exchange mutates in place until it is finalized. Readers always
// receive deep copies, so a snapshot never changes under them.
package transcript

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoActiveEntry     = errors.New("transcript: no active entry")
	ErrActiveEntryExists = errors.New("transcript: an active entry already exists")
	ErrMediaAlreadySet   = errors.New("transcript: media url already set")
	ErrInvalidRole       = errors.New("transcript: invalid role")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) String() string {
	return string(r)
}

// Citation is a web source a grounded reply was based on.
type Citation struct {
	URI   string `json:"uri" yaml:"uri"`
	Title string `json:"title" yaml:"title"`
}

type Entry struct {
	ID        string     `json:"id" yaml:"id"`
	Role      Role       `json:"role" yaml:"role"`
	Text      string     `json:"text" yaml:"text"`
	Citations []Citation `json:"citations,omitempty" yaml:"citations,omitempty"`
	MediaURL  string     `json:"media_url,omitempty" yaml:"media_url,omitempty"`
	Active    bool       `json:"active,omitempty" yaml:"active,omitempty"`
	Failed    bool       `json:"failed,omitempty" yaml:"failed,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
}

// Loading reports whether the entry is an assistant reply that has nothing
// to show yet.
func (e Entry) Loading() bool {
	return e.Role == RoleAssistant && e.Text == "" && e.MediaURL == ""
}

func (e Entry) clone() Entry {
	e.Citations = slices.Clone(e.Citations)
	return e
}

// Patch describes an in-place update of the active entry. Nil fields are
// left untouched.
type Patch struct {
	Text *string

	// Citations replaces the whole citation list when non-nil. An empty
	// non-nil slice clears it.
	Citations []Citation

	// MediaURL may be set once per entry.
	MediaURL string

	// Failed marks the entry as a failed reply. It is never cleared.
	Failed bool
}

type EventKind int

const (
	Appended EventKind = iota + 1
	Updated
	Finalized
)

func (k EventKind) String() string {
	switch k {
	case Appended:
		return "appended"
	case Updated:
		return "updated"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind  EventKind
	Entry Entry
}

type subscriber struct {
	fn func(Event)
}

// Store is the conversation log. The zero value is ready to use.
type Store struct {
	mu      sync.Mutex
	entries []Entry
	active  int // index+1 of the active entry, 0 when none
	subs    []*subscriber

	// now is replaced in tests.
	now func() time.Time
}

func New() *Store {
	return &Store{}
}

func (s *Store) timeNow() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// NewID returns a fresh entry id for role. Ids are time ordered.
func NewID(role Role) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return string(role) + "-" + id.String()
}

// Append adds e to the end of the log and returns the stored copy. Missing
// ID and CreatedAt are filled in.
func (s *Store) Append(e Entry) (Entry, error) {
	if e.Role != RoleUser && e.Role != RoleAssistant {
		return Entry{}, ErrInvalidRole
	}
	s.mu.Lock()
	if e.Active && s.active != 0 {
		s.mu.Unlock()
		return Entry{}, ErrActiveEntryExists
	}
	if e.ID == "" {
		e.ID = NewID(e.Role)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.timeNow()
	}
	e = e.clone()
	s.entries = append(s.entries, e)
	if e.Active {
		s.active = len(s.entries)
	}
	subs := s.subs
	s.mu.Unlock()

	out := e.clone()
	notify(subs, Event{Kind: Appended, Entry: out})
	return out, nil
}

// UpdateActive applies p to the active entry. A patch that changes nothing
// emits no event.
func (s *Store) UpdateActive(p Patch) (Entry, error) {
	s.mu.Lock()
	if s.active == 0 {
		s.mu.Unlock()
		return Entry{}, ErrNoActiveEntry
	}
	e := &s.entries[s.active-1]
	if p.MediaURL != "" && e.MediaURL != "" && e.MediaURL != p.MediaURL {
		s.mu.Unlock()
		return Entry{}, ErrMediaAlreadySet
	}

	changed := false
	if p.Text != nil && *p.Text != e.Text {
		e.Text = *p.Text
		changed = true
	}
	if p.Citations != nil && !slices.Equal(p.Citations, e.Citations) {
		e.Citations = slices.Clone(p.Citations)
		changed = true
	}
	if p.MediaURL != "" && e.MediaURL == "" {
		e.MediaURL = p.MediaURL
		changed = true
	}
	if p.Failed && !e.Failed {
		e.Failed = true
		changed = true
	}
	out := e.clone()
	subs := s.subs
	s.mu.Unlock()

	if changed {
		notify(subs, Event{Kind: Updated, Entry: out})
	}
	return out, nil
}

// Finalize deactivates the active entry. id must name it.
func (s *Store) Finalize(id string) (Entry, error) {
	s.mu.Lock()
	if s.active == 0 || s.entries[s.active-1].ID != id {
		s.mu.Unlock()
		return Entry{}, ErrNoActiveEntry
	}
	e := &s.entries[s.active-1]
	e.Active = false
	s.active = 0
	out := e.clone()
	subs := s.subs
	s.mu.Unlock()

	notify(subs, Event{Kind: Finalized, Entry: out})
	return out, nil
}

// All returns a snapshot of every entry in order.
func (s *Store) All() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	return out
}

// Active returns the in-flight entry, if any.
func (s *Store) Active() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == 0 {
		return Entry{}, false
	}
	return s.entries[s.active-1].clone(), true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Subscribe registers fn for every mutation. fn runs synchronously on the
// mutating goroutine, after the store lock is released. The returned
// function unregisters fn.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	sub := &subscriber{fn: fn}
	s.mu.Lock()
	// Copy on write so in-flight notifications keep their own slice.
	s.subs = append(slices.Clip(s.subs), sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			idx := slices.Index(s.subs, sub)
			if idx < 0 {
				return
			}
			s.subs = slices.Delete(slices.Clone(s.subs), idx, idx+1)
		})
	}
}

func notify(subs []*subscriber, evt Event) {
	for _, sub := range subs {
		e := evt
		e.Entry = evt.Entry.clone()
		sub.fn(e)
	}
}
