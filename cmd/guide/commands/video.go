package commands

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/guide/pkg/cli"
	"github.com/haivivi/guide/pkg/console"
	"github.com/haivivi/guide/pkg/transcript"
)

// videoRequest is the request file format of the video command.
type videoRequest struct {
	Prompt string `json:"prompt" yaml:"prompt"`
}

type videoResult struct {
	Prompt   string            `json:"prompt" yaml:"prompt"`
	MediaURL string            `json:"media_url,omitempty" yaml:"media_url,omitempty"`
	Reply    *transcript.Entry `json:"reply,omitempty" yaml:"reply,omitempty"`
	Error    string            `json:"error,omitempty" yaml:"error,omitempty"`
}

var videoCmd = &cobra.Command{
	Use:   "video [prompt]",
	Short: "Generate a short video",
	Long: `Generate a short video from a prompt.

Generation usually takes a few minutes. Progress is printed to stderr and
the result, including the media URL, to stdout. Videos are kept in
~/.giztoy/guide/media unless the context stores media in S3.

Request file format (YAML or JSON):
  prompt: A candidate shaking hands after a successful interview

Examples:
  guide video "a day in the life of a nurse"
  guide video -f prompt.yaml --json --jq .media_url`,
	Args: cobra.ArbitraryArgs,
	RunE: runVideo,
}

func init() {
	rootCmd.AddCommand(videoCmd)
}

func runVideo(cmd *cobra.Command, args []string) error {
	req := &videoRequest{}
	if inputFile != "" {
		if err := cli.LoadRequest(inputFile, req); err != nil {
			return err
		}
	}
	if len(args) > 0 {
		req.Prompt = strings.Join(args, " ")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return errors.New("prompt is required (pass it as an argument or use -f)")
	}

	// A temporary media directory would be removed before the caller could
	// use the result.
	keepMedia = true

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.bootstrap(ctx); err != nil {
		return errors.New(keyHint(err))
	}

	r := console.New(cmd.ErrOrStderr(), console.Options{Color: isTerminal(os.Stderr)})
	detach := r.Attach(s.store, s.coord)
	err = s.coord.GenerateVideo(ctx, req.Prompt)
	detach()
	if err != nil {
		return err
	}

	result := videoResult{Prompt: req.Prompt, Error: s.coord.View().Error}
	if reply, ok := lastAssistant(s.store.All()); ok {
		result.Reply = &reply
		result.MediaURL = reply.MediaURL
	}
	if err := outputResult(result); err != nil {
		return err
	}
	if result.Error != "" {
		return errors.New(result.Error)
	}
	return nil
}
