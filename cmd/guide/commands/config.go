package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/guide/pkg/cli"
	"github.com/haivivi/guide/pkg/credential"
	"github.com/haivivi/guide/pkg/kv"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration, contexts and the stored API key.

Contexts allow you to manage multiple backend configurations,
similar to kubectl's context management.

Configuration is stored in ~/.giztoy/guide/config.yaml and the API key in
~/.giztoy/guide/data/kv.`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a new context with the specified name.

Example:
  guide config add-context default
  guide config add-context work --model gemini-2.5-pro --timeout 180
  guide config add-context compat --provider openai --base-url https://llm.example.com/v1 --api-key KEY
  guide config add-context s3 --media-bucket guide-videos --media-region eu-west-1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		flags := cmd.Flags()

		ctx := &cli.Context{}
		var err error
		if ctx.APIKey, err = flags.GetString("api-key"); err != nil {
			return fmt.Errorf("failed to read 'api-key' flag: %w", err)
		}
		if ctx.BaseURL, err = flags.GetString("base-url"); err != nil {
			return fmt.Errorf("failed to read 'base-url' flag: %w", err)
		}
		if ctx.Timeout, err = flags.GetInt("timeout"); err != nil {
			return fmt.Errorf("failed to read 'timeout' flag: %w", err)
		}

		pairs, err := flags.GetStringArray("extra")
		if err != nil {
			return fmt.Errorf("failed to read 'extra' flag: %w", err)
		}
		extra, err := cli.ParseExtra(pairs)
		if err != nil {
			return err
		}
		for k, v := range extra {
			ctx.SetExtra(k, v)
		}

		// Dedicated flags win over --extra.
		for flag, key := range map[string]string{
			"provider":       cli.ExtraProvider,
			"model":          cli.ExtraModel,
			"video-model":    cli.ExtraVideoModel,
			"instruction":    cli.ExtraSystemInstruction,
			"media-bucket":   cli.ExtraMediaBucket,
			"media-prefix":   cli.ExtraMediaPrefix,
			"media-region":   cli.ExtraMediaRegion,
			"media-endpoint": cli.ExtraMediaEndpoint,
		} {
			v, err := flags.GetString(flag)
			if err != nil {
				return fmt.Errorf("failed to read '%s' flag: %w", flag, err)
			}
			if v != "" {
				ctx.SetExtra(key, v)
			}
		}

		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.AddContext(name, ctx); err != nil {
			return err
		}

		cli.PrintSuccess("Context %q added successfully", name)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q", args[0])
		return nil
	},
}

var configGetContextCmd = &cobra.Command{
	Use:   "get-context",
	Short: "Display the current context",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Println("No current context set")
			return nil
		}
		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"get-contexts", "list"},
	Short:   "List all contexts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if len(cfg.Contexts) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tPROVIDER\tMODEL\tTIMEOUT")
		for _, name := range cfg.ListContexts() {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			model := ctx.Model()
			if model == "" {
				model = "(default)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", current, name, ctx.Provider(), model, cli.FormatTimeout(ctx.Timeout))
		}
		return w.Flush()
	},
}

// configView is the printable form of the configuration.
type configView struct {
	Path           string                  `json:"path" yaml:"path"`
	CurrentContext string                  `json:"current_context" yaml:"current_context"`
	Contexts       map[string]*cli.Context `json:"contexts,omitempty" yaml:"contexts,omitempty"`
	StoredKey      string                  `json:"stored_key,omitempty" yaml:"stored_key,omitempty"`
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the current configuration",
	Long: `View the configuration with API keys masked.

Example:
  guide config view
  guide config view --json --jq '.contexts | keys'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		view := configView{
			Path:           cfg.Path(),
			CurrentContext: cfg.CurrentContext,
			Contexts:       make(map[string]*cli.Context, len(cfg.Contexts)),
		}
		for name, ctx := range cfg.Contexts {
			view.Contexts[name] = ctx.Masked()
		}
		if !ephemeral {
			if err := withCredentials(func(creds *credential.Store) error {
				rec, err := creds.Load(cmd.Context())
				switch {
				case err == nil:
					view.StoredKey = credential.Mask(rec.Key)
				case !errors.Is(err, kv.ErrNotFound):
					printVerbose("stored key: %v", err)
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return outputResult(view)
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [api-key]",
	Short: "Validate and store the API key",
	Long: `Validate an API key and store it for later sessions.

The stored key is used before the context's api_key and the GEMINI_API_KEY
and API_KEY environment variables. Without an argument the key is read
from stdin.

Example:
  guide config set-key AIza...
  pass show gemini | guide config set-key`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noValidate, err := cmd.Flags().GetBool("no-validate")
		if err != nil {
			return fmt.Errorf("failed to read 'no-validate' flag: %w", err)
		}
		if ephemeral {
			return errors.New("--ephemeral cannot be used with set-key")
		}

		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			key, err = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && key == "" {
				return fmt.Errorf("read api key: %w", err)
			}
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return errors.New("api key is required")
		}

		ctxCfg, err := getContext()
		if err != nil {
			return err
		}
		var validate credential.Validator
		if !noValidate {
			validate = validatorFor(ctxCfg)
		}

		err = withCredentials(func(creds *credential.Store) error {
			c := credential.Candidate{Key: key, Source: credential.SourcePrompt}
			return credential.Activate(cmd.Context(), creds, c, validate)
		})
		if err != nil {
			return errors.New(keyHint(err))
		}
		cli.PrintSuccess("API key %s stored", credential.Mask(key))
		return nil
	},
}

var configForgetKeyCmd = &cobra.Command{
	Use:   "forget-key",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ephemeral {
			return errors.New("--ephemeral cannot be used with forget-key")
		}
		if err := withCredentials(func(creds *credential.Store) error {
			return creds.Forget(cmd.Context())
		}); err != nil {
			return err
		}
		cli.PrintSuccess("Stored API key removed")
		return nil
	},
}

// withCredentials opens the credential store for the duration of fn.
func withCredentials(fn func(*credential.Store) error) error {
	store, err := openKV()
	if err != nil {
		return err
	}
	err = fn(credential.NewStore(store))
	return errors.Join(err, store.Close())
}

func init() {
	// add-context flags
	f := configAddContextCmd.Flags()
	f.String("api-key", "", "API key (optional; see 'guide config set-key')")
	f.String("base-url", "", "API base URL")
	f.Int("timeout", 0, "Chat request timeout in seconds")
	f.String("provider", "", "Chat provider: gemini or openai")
	f.String("model", "", "Chat model")
	f.String("video-model", "", "Video model")
	f.String("instruction", "", "System instruction")
	f.String("media-bucket", "", "S3 bucket for generated videos")
	f.String("media-prefix", "", "S3 key prefix for generated videos")
	f.String("media-region", "", "S3 region")
	f.String("media-endpoint", "", "S3-compatible endpoint")
	f.StringArray("extra", nil, "Extra setting as key=value (repeatable)")

	configSetKeyCmd.Flags().Bool("no-validate", false, "Store the key without checking it")

	// Add subcommands
	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configGetContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetKeyCmd)
	configCmd.AddCommand(configForgetKeyCmd)
	rootCmd.AddCommand(configCmd)
}
