package chat

import (
	"errors"
	"strings"
)

// ErrEmptyProfile is returned when a career profile has no field filled in.
var ErrEmptyProfile = errors.New("chat: career profile is empty")

// CareerProfile describes the user for a career path suggestion.
type CareerProfile struct {
	Skills     string `json:"skills,omitempty" yaml:"skills,omitempty"`
	Interests  string `json:"interests,omitempty" yaml:"interests,omitempty"`
	Experience string `json:"experience,omitempty" yaml:"experience,omitempty"`
}

// CareerPathPrompt composes the request sent for p. Blank fields are left
// out; at least one field must be set.
func CareerPathPrompt(p CareerProfile) (string, error) {
	fields := []struct{ label, value string }{
		{"My skills", p.Skills},
		{"My interests", p.Interests},
		{"My professional experience", p.Experience},
	}
	var sb strings.Builder
	sb.WriteString("Please suggest career paths that suit me.\n")
	n := 0
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			continue
		}
		n++
		sb.WriteString("\n")
		sb.WriteString(f.label)
		sb.WriteString(": ")
		sb.WriteString(v)
	}
	if n == 0 {
		return "", ErrEmptyProfile
	}
	sb.WriteString("\n\nFor each path, explain why it fits and list concrete next steps to get started.")
	return sb.String(), nil
}
