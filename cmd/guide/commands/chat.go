package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haivivi/guide/pkg/chat"
	"github.com/haivivi/guide/pkg/cli"
	"github.com/haivivi/guide/pkg/console"
	"github.com/haivivi/guide/pkg/exchange"
)

var (
	chatMarkdown bool
	chatSearch   bool
)

const chatHelp = `Commands:
  /search [text]  send text with web search, or toggle search without text
  /video <prompt> generate a video
  /explore skills: ... | interests: ... | experience: ...
                  suggest career paths for the given profile
  /key <api-key>  use and store a new API key
  /history        print the transcript
  /help           show this help
  /quit           leave`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation with the career guide.

Type a message and press enter.

` + chatHelp + `

Examples:
  guide chat
  guide chat --markdown --search`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, chatCmd} {
		c.Flags().BoolVar(&chatMarkdown, "markdown", false, "render finished replies as markdown instead of streaming them")
		c.Flags().BoolVar(&chatSearch, "search", false, "ground replies with web search")
	}
	rootCmd.AddCommand(chatCmd)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	tty := isTerminal(os.Stdout)
	out := cmd.OutOrStdout()
	r := console.New(out, console.Options{Markdown: chatMarkdown, Color: tty})
	if err := s.coord.Greet(); err != nil {
		return err
	}
	r.Replay(s.store.All())
	detach := r.Attach(s.store, s.coord)
	defer detach()

	if err := s.bootstrap(ctx); err != nil {
		cli.PrintWarning("%s", keyHint(err))
		cli.PrintInfo("Enter /key <api-key> to continue.")
	}

	rp := &repl{s: s, out: out, search: chatSearch}
	return rp.run(ctx, cmd.InOrStdin())
}

type repl struct {
	s      *session
	out    io.Writer
	search bool
}

func (rp *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64<<10), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(rp.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(rp.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(rp.out)
				return nil
			}
			if quit := rp.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the user asked to quit.
func (rp *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		rp.report(rp.s.coord.SendMessage(ctx, line, exchange.SendOptions{WebSearch: rp.search}))
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit", "/q":
		return true
	case "/help", "/?":
		fmt.Fprintln(rp.out, chatHelp)
	case "/search":
		if arg == "" {
			rp.search = !rp.search
			fmt.Fprintf(rp.out, "Web search %s\n", onOff(rp.search))
			return false
		}
		rp.report(rp.s.coord.SendMessage(ctx, arg, exchange.SendOptions{WebSearch: true}))
	case "/video":
		rp.report(rp.s.coord.GenerateVideo(ctx, arg))
	case "/explore":
		p, err := parseCareerProfile(arg)
		if err != nil {
			fmt.Fprintln(rp.out, err)
			return false
		}
		rp.report(rp.s.coord.ExploreCareers(ctx, p, exchange.SendOptions{WebSearch: rp.search}))
	case "/key":
		if arg == "" {
			fmt.Fprintln(rp.out, "Usage: /key <api-key>")
			return false
		}
		if err := rp.s.useKey(ctx, arg); err != nil {
			fmt.Fprintln(rp.out, keyHint(err))
			return false
		}
		fmt.Fprintf(rp.out, "Using API key %s\n", cli.MaskAPIKey(arg))
	case "/history":
		if err := cli.Output(rp.s.store.All(), cli.OutputOptions{Writer: rp.out}); err != nil {
			fmt.Fprintln(rp.out, err)
		}
	default:
		fmt.Fprintf(rp.out, "Unknown command %s. Type /help for help.\n", name)
	}
	return false
}

// report prints why an exchange did not start. Failures of a started
// exchange are already shown by the renderer.
func (rp *repl) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrEmptyProfile):
		fmt.Fprintln(rp.out, "Describe your skills, interests or experience.")
	case errors.Is(err, exchange.ErrEmptyInput):
		fmt.Fprintln(rp.out, "Nothing to send.")
	case errors.Is(err, exchange.ErrNotReady):
		fmt.Fprintln(rp.out, "No API key configured. Enter /key <api-key>.")
	case errors.Is(err, exchange.ErrBusy):
		fmt.Fprintln(rp.out, "Please wait for the current reply to finish.")
	default:
		fmt.Fprintln(rp.out, err)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
