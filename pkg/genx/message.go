package genx

import (
	"slices"
	"strings"
)

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

var (
	_ Part = (*Blob)(nil)
	_ Part = (*Text)(nil)
)

// MessageChunk is one event of a Stream. A chunk may carry a content part,
// a grounding snapshot, or both.
type MessageChunk struct {
	Role      Role
	Name      string
	Part      Part
	Grounding *Grounding
}

func (c *MessageChunk) Clone() *MessageChunk {
	chk := &MessageChunk{
		Role: c.Role,
		Name: c.Name,
	}
	if c.Part != nil {
		chk.Part = c.Part.clone()
	}
	if c.Grounding != nil {
		chk.Grounding = c.Grounding.Clone()
	}
	return chk
}

type Message struct {
	Role    Role
	Name    string
	Payload Contents
}

// Text returns the concatenation of every Text part of the message.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Payload {
		if t, ok := p.(Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

type Role string

func (r Role) String() string {
	return string(r)
}

type Contents []Part

type Part interface {
	isPart()
	clone() Part
}

type Blob struct {
	MIMEType string
	Data     []byte
}

func (b *Blob) clone() Part {
	return &Blob{
		MIMEType: b.MIMEType,
		Data:     slices.Clone(b.Data),
	}
}

func (*Blob) isPart() {}

type Text string

func (t Text) clone() Part {
	return t
}

func (Text) isPart() {}

// Grounding is a snapshot of the sources a response was grounded on.
type Grounding struct {
	// Sources are the raw source candidates in backend order. A candidate
	// may lack a URI or a title; consumers validate them.
	Sources []GroundingSource

	// Queries are the search queries the backend issued.
	Queries []string
}

func (g *Grounding) Clone() *Grounding {
	return &Grounding{
		Sources: slices.Clone(g.Sources),
		Queries: slices.Clone(g.Queries),
	}
}

type GroundingSource struct {
	URI    string
	Title  string
	Domain string
}
