package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/guide/pkg/cli"
)

const appName = "guide"

var (
	// Global flags
	cfgFile     string
	contextName string
	outputFile  string
	inputFile   string
	outputJSON  bool
	jqExpr      string
	verbose     bool
	ephemeral   bool
	apiKeyFlag  string
	keepMedia   bool

	// Global configuration
	globalConfig  *cli.Config
	configLoadErr error
)

var rootCmd = &cobra.Command{
	Use:   "guide",
	Short: "AI career guide",
	Long: `guide - A conversational AI career guide.

Ask for resume reviews, interview practice or advice on new career paths.
Replies stream in as they are generated; web search grounding adds a list
of sources. Short videos can be generated from a prompt.

Configuration is stored in ~/.giztoy/guide/ and supports multiple contexts,
similar to kubectl's context management. The API key is taken from
--api-key, the stored key, the context, or GEMINI_API_KEY / API_KEY, in
that order.

Examples:
  # Start a conversation
  guide chat

  # Ask one question with web search
  guide ask --search "Which skills do data engineers need in 2025?"

  # Generate a video
  guide video "a confident candidate walking into an interview"

  # Pipe the reply text to another command
  guide ask "Review my summary: ..." --json --jq .reply.text`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.giztoy/guide/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().StringVarP(&inputFile, "file", "f", "", "input request file (YAML or JSON, - for stdin)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().StringVar(&jqExpr, "jq", "", "filter structured output with a jq expression")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep the API key in memory only")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "API key for this run")
	rootCmd.PersistentFlags().BoolVar(&keepMedia, "keep-media", false, "keep generated videos in ~/.giztoy/guide/media instead of a temporary directory")
}

func initConfig() {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	globalConfig, configLoadErr = cli.LoadConfigWithPath(appName, cfgFile)
}

// getConfig returns the global configuration
func getConfig() (*cli.Config, error) {
	if configLoadErr != nil {
		return nil, fmt.Errorf("load config: %w", configLoadErr)
	}
	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return globalConfig, nil
}

// getContext returns the context configuration to use
func getContext() (*cli.Context, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	return cfg.ResolveContext(contextName)
}

// structuredOutput reports whether results should be printed as data
// rather than rendered for a terminal.
func structuredOutput() bool {
	return outputJSON || jqExpr != "" || outputFile != ""
}

// outputResult outputs the result using cli package
func outputResult(result any) error {
	format := cli.FormatYAML
	if outputJSON {
		format = cli.FormatJSON
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   outputFile,
		JQ:     jqExpr,
	})
}

// printVerbose prints verbose output if enabled
func printVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}
