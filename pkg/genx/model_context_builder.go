package genx

import (
	"iter"
	"slices"
)

var _ ModelContext = (*modelContext)(nil)

type ModelContextBuilder struct {
	Prompts  []*Prompt
	Messages []*Message

	Tools []Tool

	Params *ModelParams
}

// Build snapshots the builder. Later changes to the builder do not affect
// the returned context.
func (mcb *ModelContextBuilder) Build() ModelContext {
	return &modelContext{
		prompts:  slices.Clone(mcb.Prompts),
		messages: slices.Clone(mcb.Messages),
		tools:    slices.Clone(mcb.Tools),
		params:   mcb.Params,
	}
}

func (mcb *ModelContextBuilder) lastPrompt() (*Prompt, bool) {
	if len(mcb.Prompts) == 0 {
		return nil, false
	}
	return mcb.Prompts[len(mcb.Prompts)-1], true
}

// AddPrompt appends prompt, joining it to the previous prompt when both
// share a name.
func (mcb *ModelContextBuilder) AddPrompt(prompt *Prompt) {
	if p, ok := mcb.lastPrompt(); ok && p.Name == prompt.Name {
		if p.Text != "" {
			p.Text += "\n" + prompt.Text
		} else {
			p.Text = prompt.Text
		}
		return
	}
	mcb.Prompts = append(mcb.Prompts, prompt)
}

func (mcb *ModelContextBuilder) lastMessage() (*Message, bool) {
	if len(mcb.Messages) == 0 {
		return nil, false
	}
	return mcb.Messages[len(mcb.Messages)-1], true
}

// AddMessage appends msg, merging its payload into the previous message
// when role and name match.
func (mcb *ModelContextBuilder) AddMessage(msg *Message) {
	if m, ok := mcb.lastMessage(); ok && m.Role == msg.Role && m.Name == msg.Name {
		m.Payload = append(m.Payload, msg.Payload...)
		return
	}
	mcb.Messages = append(mcb.Messages, msg)
}

func (mcb *ModelContextBuilder) AddTool(tool Tool) {
	mcb.Tools = append(mcb.Tools, tool)
}

func (mcb *ModelContextBuilder) PromptText(name, text string) {
	mcb.AddPrompt(&Prompt{
		Name: name,
		Text: text,
	})
}

func (mcb *ModelContextBuilder) UserText(name, text string) {
	mcb.AddMessage(&Message{
		Role:    RoleUser,
		Name:    name,
		Payload: Contents{Text(text)},
	})
}

func (mcb *ModelContextBuilder) ModelText(name, text string) {
	mcb.AddMessage(&Message{
		Role:    RoleModel,
		Name:    name,
		Payload: Contents{Text(text)},
	})
}

type modelContext struct {
	prompts  []*Prompt
	messages []*Message

	tools []Tool

	params *ModelParams
}

func (mctx *modelContext) Prompts() iter.Seq[*Prompt] {
	return slices.Values(mctx.prompts)
}

func (mctx *modelContext) Messages() iter.Seq[*Message] {
	return slices.Values(mctx.messages)
}

func (mctx *modelContext) Tools() iter.Seq[Tool] {
	return slices.Values(mctx.tools)
}

func (mctx *modelContext) Params() *ModelParams {
	return mctx.params
}
