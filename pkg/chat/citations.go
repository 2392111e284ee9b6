package chat

import (
	"strings"

	"github.com/haivivi/guide/pkg/genx"
	"github.com/haivivi/guide/pkg/transcript"
)

// MergeCitations turns a grounding snapshot into the citation list shown on
// a reply. Candidates without a URI are dropped and the first occurrence of
// each URI wins, keeping snapshot order. A missing title falls back to the
// source domain, then to the URI itself.
//
// The result always replaces the previous list; it is never merged with it.
// It is non-nil so that it clears stale citations when applied as a patch.
func MergeCitations(sources []genx.GroundingSource) []transcript.Citation {
	out := make([]transcript.Citation, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		uri := strings.TrimSpace(src.URI)
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}

		title := strings.TrimSpace(src.Title)
		if title == "" {
			title = strings.TrimSpace(src.Domain)
		}
		if title == "" {
			title = uri
		}
		out = append(out, transcript.Citation{URI: uri, Title: title})
	}
	return out
}
