// Package gateway exposes the MCP protocol over HTTP transports and binds
// each connection to a session.
package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ashureev/twitter-mcp/internal/config"
	"github.com/ashureev/twitter-mcp/internal/session"
)

// maxBodyBytes caps every inbound JSON-RPC message.
const maxBodyBytes = 1 << 20

const (
	defaultKeepalive  = 10 * time.Second
	defaultRetryDelay = 5 * time.Second
)

// Gateway is one transport variant.
type Gateway interface {
	Name() string
	RegisterRoutes(r chi.Router)
}

// Options are shared by all gateways.
type Options struct {
	Registry          *session.Registry
	Protocol          *Protocol
	Logger            *slog.Logger
	KeepaliveInterval time.Duration
	RetryDelay        time.Duration
	ReplayBuffer      int
	AllowedOrigins    []string
	// NewID mints session ids. Defaults to random UUIDs.
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = defaultKeepalive
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.ReplayBuffer <= 0 {
		o.ReplayBuffer = defaultReplayBuffer
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// OptionsFromConfig fills the stream settings from cfg.
func OptionsFromConfig(cfg *config.Config, reg *session.Registry, p *Protocol, logger *slog.Logger) Options {
	return Options{
		Registry:          reg,
		Protocol:          p,
		Logger:            logger,
		KeepaliveInterval: cfg.SSE.KeepaliveInterval,
		RetryDelay:        cfg.SSE.RetryDelay,
		ReplayBuffer:      cfg.SSE.ReplayBuffer,
		AllowedOrigins:    cfg.CORSOrigins,
	}
}

// New returns the gateways enabled by cfg. The streamable slot is served
// statelessly when cfg.Stateless is set.
func New(cfg *config.Config, opts Options) []Gateway {
	var out []Gateway
	for _, t := range cfg.Transports {
		switch t {
		case config.TransportStreamable:
			if cfg.Stateless {
				out = append(out, NewStateless(opts))
			} else {
				out = append(out, NewStreamable(opts))
			}
		case config.TransportSSE:
			out = append(out, NewLegacySSE(opts))
		case config.TransportWebSocket:
			out = append(out, NewWebSocket(opts))
		}
	}
	return out
}

// readBody reads a capped request body. It writes the error response
// itself and returns ok=false on failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeRPCError(w, http.StatusRequestEntityTooLarge, nil, CodeInvalidRequest, "Request body too large")
			return nil, false
		}
		writeRPCError(w, http.StatusBadRequest, nil, CodeParseError, MsgParseError)
		return nil, false
	}
	return body, true
}

// respond writes resp, or 202 with no body for notifications.
func respond(w http.ResponseWriter, resp *Response) {
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// serveStream holds an SSE response open on es until the client leaves,
// the writer is replaced, or the session ends. announce runs once after
// replay.
func serveStream(w http.ResponseWriter, r *http.Request, opts Options, sess *session.Session, es *eventStream, lastID int64, announce func(<-chan struct{}) error) {
	flusher, err := startSSE(w, opts.RetryDelay)
	if err != nil {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	attached, err := es.attach(w, flusher, lastID)
	if err != nil {
		return
	}
	defer es.detach(attached)

	if announce != nil {
		if err := announce(attached); err != nil {
			return
		}
	}

	keepalive := time.NewTicker(opts.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-attached:
			return
		case <-sess.Done():
			return
		case <-keepalive.C:
			if err := es.keepalive(attached); err != nil {
				opts.Logger.Debug("SSE keepalive failed", "session_id", sess.ID, "error", err)
				return
			}
			sess.Touch(time.Now())
		}
	}
}

// detached returns a context for work that must outlive the request that
// started it.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
