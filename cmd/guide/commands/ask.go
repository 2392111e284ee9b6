package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/guide/pkg/cli"
	"github.com/haivivi/guide/pkg/console"
	"github.com/haivivi/guide/pkg/exchange"
	"github.com/haivivi/guide/pkg/genx"
	"github.com/haivivi/guide/pkg/transcript"
)

var (
	askSearch      bool
	askInstruction string
)

// askRequest is the request file format of the ask command.
type askRequest struct {
	Text        string `json:"text" yaml:"text"`
	WebSearch   bool   `json:"web_search,omitempty" yaml:"web_search,omitempty"`
	Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`

	// History seeds the conversation before Text is sent.
	History []historyTurn `json:"history,omitempty" yaml:"history,omitempty"`
}

type historyTurn struct {
	Role transcript.Role `json:"role" yaml:"role"`
	Text string          `json:"text" yaml:"text"`
}

// askResult is the structured output of the ask command.
type askResult struct {
	Question string            `json:"question" yaml:"question"`
	Reply    *transcript.Entry `json:"reply,omitempty" yaml:"reply,omitempty"`
	Error    string            `json:"error,omitempty" yaml:"error,omitempty"`

	// Usage is the token usage the backend reported for the reply.
	Usage *genx.Usage `json:"usage,omitempty" yaml:"usage,omitempty"`
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question",
	Long: `Ask a single question and print the reply.

On a terminal the reply streams in as it is generated. With --json, --jq
or --output the finished reply is written as structured data instead.

Request file format (YAML or JSON):
  text: How should I prepare for a system design interview?
  web_search: true
  instruction: Answer in three short paragraphs.
  history:
    - role: user
      text: I am a backend engineer with five years of experience.
    - role: assistant
      text: Great, that is a strong base for senior roles.

Examples:
  guide ask "How do I negotiate a salary offer?"
  guide ask --search "Average salary of a UX designer in Berlin"
  guide ask -f request.yaml --json --jq .reply.text`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askSearch, "search", false, "ground the reply with web search")
	askCmd.Flags().StringVar(&askInstruction, "instruction", "", "replace the system instruction for this question")
	rootCmd.AddCommand(askCmd)
}

func loadAskRequest(args []string) (*askRequest, error) {
	req := &askRequest{}
	if inputFile != "" {
		if err := cli.LoadRequest(inputFile, req); err != nil {
			return nil, err
		}
	}
	if len(args) > 0 {
		req.Text = strings.Join(args, " ")
	}
	if askSearch {
		req.WebSearch = true
	}
	if askInstruction != "" {
		req.Instruction = askInstruction
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("question is required (pass it as an argument or use -f)")
	}
	return req, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	req, err := loadAskRequest(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, turn := range req.History {
		if _, err := s.store.Append(transcript.Entry{Role: turn.Role, Text: turn.Text}); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}

	if err := s.bootstrap(ctx); err != nil {
		return errors.New(keyHint(err))
	}

	printVerbose("Asking (web search: %v)", req.WebSearch)
	return deliver(cmd, s, req.Text, func(ctx context.Context) error {
		return s.coord.SendMessage(ctx, req.Text, exchange.SendOptions{
			WebSearch:   req.WebSearch,
			Instruction: req.Instruction,
		})
	})
}

// deliver runs send and presents the reply: streamed to a terminal, or as
// an askResult when structured output is requested. A failed exchange
// turns into the command's error after the reply is shown.
func deliver(cmd *cobra.Command, s *session, question string, send func(context.Context) error) error {
	ctx := cmd.Context()
	if !structuredOutput() {
		tty := isTerminal(os.Stdout)
		r := console.New(cmd.OutOrStdout(), console.Options{Markdown: tty, Color: tty})
		detach := r.Attach(s.store, s.coord)
		err := send(ctx)
		detach()
		if err != nil {
			return err
		}
		if u := s.coord.Usage(); u != (genx.Usage{}) {
			printVerbose("%s", strings.TrimRight(u.String(), "\n"))
		}
		if banner := s.coord.View().Error; banner != "" {
			return errors.New(banner)
		}
		return nil
	}

	if err := send(ctx); err != nil {
		return err
	}
	result := askResult{Question: question, Error: s.coord.View().Error}
	if reply, ok := lastAssistant(s.store.All()); ok {
		result.Reply = &reply
	}
	if u := s.coord.Usage(); u != (genx.Usage{}) {
		result.Usage = &u
	}
	if err := outputResult(result); err != nil {
		return err
	}
	if result.Error != "" {
		return errors.New(result.Error)
	}
	return nil
}

func lastAssistant(entries []transcript.Entry) (transcript.Entry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == transcript.RoleAssistant {
			return entries[i], true
		}
	}
	return transcript.Entry{}, false
}
