package livefeed

import (
	"net/url"
	"path"

	"github.com/haivivi/guide/pkg/chat"
	"github.com/haivivi/guide/pkg/exchange"
	"github.com/haivivi/guide/pkg/transcript"
)

// Message types.
const (
	TypeView  = "view"
	TypeError = "error"
	TypeSend  = "send"
	TypeVideo = "video"

	// TypeExplore asks for career path suggestions from the profile
	// fields of the command.
	TypeExplore = "explore"
)

// Message is sent from the hub to clients.
type Message struct {
	Type  string         `json:"type"`
	View  *exchange.View `json:"view,omitempty"`
	Error string         `json:"error,omitempty"`
}

// Command is sent from clients to the hub.
type Command struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	WebSearch bool   `json:"web_search,omitempty"`

	chat.CareerProfile
}

// publicView rewrites media URLs of v to paths served by the hub. The
// entries slice is copied; v itself is not modified.
func publicView(v exchange.View, prefix string) exchange.View {
	entries := make([]transcript.Entry, len(v.Entries))
	copy(entries, v.Entries)
	for i := range entries {
		if href := mediaHref(entries[i].MediaURL, prefix); href != "" {
			entries[i].MediaURL = href
		}
	}
	v.Entries = entries
	return v
}

// mediaHref maps a file:// or s3:// media URL to prefix/<name>. Other URLs
// are returned unchanged as they are already playable.
func mediaHref(raw, prefix string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch u.Scheme {
	case "file", "s3":
		return prefix + path.Base(u.Path)
	default:
		return raw
	}
}
