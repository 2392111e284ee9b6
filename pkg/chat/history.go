package chat

import (
	"github.com/haivivi/guide/pkg/genx"
	"github.com/haivivi/guide/pkg/transcript"
)

// History projects transcript entries onto model messages. Assistant
// entries without text (placeholders and media-only replies) are skipped,
// and consecutive entries of one role are merged into a single message.
func History(entries []transcript.Entry) []*genx.Message {
	var mcb genx.ModelContextBuilder
	for _, e := range entries {
		switch e.Role {
		case transcript.RoleUser:
			mcb.UserText("", e.Text)
		case transcript.RoleAssistant:
			if e.Text != "" {
				mcb.ModelText("", e.Text)
			}
		}
	}
	return mcb.Messages
}
