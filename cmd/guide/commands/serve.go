package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/guide/pkg/cli"
	"github.com/haivivi/guide/pkg/exchange"
	"github.com/haivivi/guide/pkg/livefeed"
)

var (
	serveAddr   string
	serveSearch bool
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversation to browser clients",
	Long: `Serve the conversation over HTTP and websocket.

Routes:
  GET /ws            live view feed; accepts send and video commands
  GET /view          current view as JSON
  GET /media/{name}  generated videos

Commands sent on /ws are JSON objects:
  {"type": "send", "text": "Review my resume summary", "web_search": true}
  {"type": "video", "text": "an engineer presenting at a conference"}

Examples:
  guide serve
  guide serve --addr 127.0.0.1:9090 --search`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().BoolVar(&serveSearch, "search", false, "ground chat replies with web search by default")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.bootstrap(ctx); err != nil {
		cli.PrintWarning("%s", keyHint(err))
	}
	if err := s.coord.Greet(); err != nil {
		return err
	}

	hub := livefeed.NewHub(ctx, s.coord, livefeed.Config{
		Media:       s.media,
		SendOptions: exchange.SendOptions{WebSearch: serveSearch},
	})
	defer hub.Close()

	ln, err := net.Listen("tcp", serveAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", serveAddr, err)
	}
	srv := &http.Server{
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://%s\n", ln.Addr())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("guide: shutting down", "clients", hub.Clients())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
