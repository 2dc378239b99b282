package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/twitter-mcp/internal/config"
	"github.com/ashureev/twitter-mcp/internal/identity"
	"github.com/ashureev/twitter-mcp/internal/session"
)

// LegacySSE serves the two-endpoint transport: a long-lived GET /sse stream
// and POST /messages?sessionId= for requests. Credentials come from the
// oauth_token headers on the GET.
type LegacySSE struct {
	opts   Options
	logger *slog.Logger
}

// NewLegacySSE creates the /sse gateway.
func NewLegacySSE(opts Options) *LegacySSE {
	opts = opts.withDefaults()
	return &LegacySSE{opts: opts, logger: opts.Logger.With("transport", config.TransportSSE)}
}

func (g *LegacySSE) Name() string { return config.TransportSSE }

// RegisterRoutes mounts GET /sse and POST /messages.
func (g *LegacySSE) RegisterRoutes(r chi.Router) {
	r.Get("/sse", g.handleStream)
	r.Post("/messages", g.handleMessage)
}

func (g *LegacySSE) handleStream(w http.ResponseWriter, r *http.Request) {
	id := g.opts.NewID()
	es := newEventStream(g.opts.ReplayBuffer)
	sess, err := g.opts.Registry.Create(id, es,
		session.WithTransport(config.TransportSSE),
		session.WithCredentials(identity.CredentialsFromHeader(r.Header)),
		session.WithRemoteIP(identity.IPFromRequest(r)),
	)
	if err != nil {
		g.logger.Error("Failed to create session", "session_id", id, "error", err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	defer g.opts.Registry.Evict(id)

	g.logger.Info("SSE connection established", "session_id", id, "ip", sess.RemoteIP)
	serveStream(w, r, g.opts, sess, es, 0, func(attached <-chan struct{}) error {
		return es.writeRaw(attached, "endpoint", "/messages?"+identity.LegacySessionQueryParam+"="+id)
	})
	g.logger.Info("SSE connection closed", "session_id", id)
}

func (g *LegacySSE) handleMessage(w http.ResponseWriter, r *http.Request) {
	sid := identity.SanitizeSessionID(r.URL.Query().Get(identity.LegacySessionQueryParam))
	sess, ok := g.opts.Registry.Lookup(sid)
	if sid == "" || !ok || sess.Transport != config.TransportSSE {
		http.Error(w, "No such session", http.StatusNotFound)
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, errResp := decodeRequest(body)
	if errResp != nil {
		writeJSON(w, http.StatusBadRequest, errResp)
		return
	}
	sess.Touch(time.Now())

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Accepted"))

	ctx := identity.WithSessionID(detached(r.Context()), sess.ID)
	go func() {
		resp := g.opts.Protocol.Handle(ctx, sessionCaller(sess), req)
		if resp == nil {
			return
		}
		data, err := encode(resp)
		if err != nil {
			g.logger.Error("Failed to encode response", "session_id", sess.ID, "error", err)
			return
		}
		if err := sess.Send(data); err != nil {
			g.logger.Debug("Dropped response for closed session", "session_id", sess.ID, "error", err)
		}
	}()
}
