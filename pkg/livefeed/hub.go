// Package livefeed serves the conversation to browsers over a websocket.
//
// A Hub pushes a full view snapshot to every client when it connects and
// after every change, and turns "send" and "video" commands from clients
// into exchanges on the coordinator. Generated media is served over plain
// HTTP under /media/.
package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/guide/pkg/exchange"
	"github.com/haivivi/guide/pkg/storage"
)

const (
	mediaPrefix = "/media/"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	maxCommandSize = 64 << 10
)

// Config configures a Hub.
type Config struct {
	// Media serves generated videos. Nil disables /media/.
	Media storage.MediaStore

	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(*http.Request) bool

	SendOptions exchange.SendOptions
}

// Hub fans coordinator views out to websocket clients.
type Hub struct {
	coord    *exchange.Coordinator
	media    storage.MediaStore
	sendOpts exchange.SendOptions
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewHub subscribes a hub to coord. Exchanges started by clients run with
// ctx; Close cancels them.
func NewHub(ctx context.Context, coord *exchange.Coordinator, cfg Config) *Hub {
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	h := &Hub{
		coord:    coord,
		media:    cfg.Media,
		sendOpts: cfg.SendOptions,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		clients:  make(map[*client]struct{}),
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.unsub = coord.Subscribe(h.broadcast)
	return h
}

// Handler returns the HTTP routes of the hub:
//
//	GET /ws            websocket feed
//	GET /view          current view as JSON
//	GET /media/{name}  generated media
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.serveWS)
	mux.HandleFunc("GET /view", h.serveView)
	mux.HandleFunc("GET "+mediaPrefix+"{name}", h.serveMedia)
	return mux
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and cancels running exchanges.
func (h *Hub) Close() error {
	h.unsub()
	h.cancel()
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
	h.wg.Wait()
	return nil
}

func (h *Hub) broadcast(v exchange.View) {
	pv := publicView(v, mediaPrefix)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.pushView(pv)
	}
}

func (h *Hub) serveView(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(publicView(h.coord.View(), mediaPrefix)); err != nil {
		slog.Warn("livefeed: write view", "err", err)
	}
}

func (h *Hub) serveMedia(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		http.NotFound(w, r)
		return
	}
	name, err := storage.CleanName(r.PathValue("name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rc, err := h.media.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		slog.Error("livefeed: open media", "name", name, "err", err)
		http.Error(w, "media unavailable", http.StatusBadGateway)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, time.Time{}, rs)
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		slog.Debug("livefeed: copy media", "name", name, "err", err)
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("livefeed: upgrade", "err", err)
		return
	}
	c := newClient(ws)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ws.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()
	slog.Debug("livefeed: client connected", "remote", r.RemoteAddr)

	c.pushView(publicView(h.coord.View(), mediaPrefix))
	go func() {
		defer h.wg.Done()
		c.writeLoop()
	}()
	go func() {
		defer h.wg.Done()
		h.readLoop(c)
		h.remove(c)
	}()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	slog.Debug("livefeed: client disconnected")
}

func (h *Hub) readLoop(c *client) {
	c.ws.SetReadLimit(maxCommandSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var cmd Command
		if err := c.ws.ReadJSON(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.pushError("invalid command: " + err.Error())
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("livefeed: read", "err", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		h.dispatch(c, cmd)
	}
}

// dispatch starts the exchange cmd asks for. Exchanges run on their own
// goroutine so the client keeps receiving views while they stream.
func (h *Hub) dispatch(c *client, cmd Command) {
	text := strings.TrimSpace(cmd.Text)
	var run func() error
	switch cmd.Type {
	case TypeSend:
		opts := h.sendOpts
		opts.WebSearch = opts.WebSearch || cmd.WebSearch
		run = func() error { return h.coord.SendMessage(h.ctx, text, opts) }
	case TypeVideo:
		run = func() error { return h.coord.GenerateVideo(h.ctx, text) }
	case TypeExplore:
		opts := h.sendOpts
		opts.WebSearch = opts.WebSearch || cmd.WebSearch
		run = func() error { return h.coord.ExploreCareers(h.ctx, cmd.CareerProfile, opts) }
	default:
		c.pushError(fmt.Sprintf("unknown command type %q", cmd.Type))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	go func() {
		defer h.wg.Done()
		if err := run(); err != nil {
			slog.Debug("livefeed: command rejected", "type", cmd.Type, "err", err)
			c.pushError(describe(err))
		}
	}()
}

func describe(err error) string {
	switch {
	case errors.Is(err, exchange.ErrBusy):
		return "please wait for the current reply to finish"
	case errors.Is(err, exchange.ErrNotReady):
		return "no API key configured"
	case errors.Is(err, exchange.ErrEmptyInput):
		return "message is empty"
	default:
		return err.Error()
	}
}
