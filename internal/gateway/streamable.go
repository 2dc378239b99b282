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

// Streamable serves the session-based streamable HTTP transport on /mcp.
type Streamable struct {
	opts   Options
	logger *slog.Logger
}

// NewStreamable creates the stateful /mcp gateway.
func NewStreamable(opts Options) *Streamable {
	opts = opts.withDefaults()
	return &Streamable{opts: opts, logger: opts.Logger.With("transport", config.TransportStreamable)}
}

func (g *Streamable) Name() string { return config.TransportStreamable }

// RegisterRoutes mounts POST, GET and DELETE /mcp.
func (g *Streamable) RegisterRoutes(r chi.Router) {
	r.Post("/mcp", g.handlePost)
	r.Get("/mcp", g.handleGet)
	r.Delete("/mcp", g.handleDelete)
}

func (g *Streamable) handlePost(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, errResp := decodeRequest(body)
	if errResp != nil {
		writeJSON(w, http.StatusBadRequest, errResp)
		return
	}

	// A malformed header is rejected like an unknown id, never treated as absent.
	sid, present := identity.SessionIDFromRequest(r)
	if !present && req.Method == "initialize" {
		g.initialize(w, r, req)
		return
	}

	sess, ok := g.lookup(sid)
	if !ok {
		writeRPCError(w, http.StatusBadRequest, nil, CodeServerError, MsgNoValidSession)
		return
	}
	sess.Touch(time.Now())

	ctx := identity.WithSessionID(r.Context(), sess.ID)
	identity.SetSessionHeader(w.Header(), sess.ID)
	respond(w, g.opts.Protocol.Handle(ctx, sessionCaller(sess), req))
}

func (g *Streamable) initialize(w http.ResponseWriter, r *http.Request, req *Request) {
	id := g.opts.NewID()
	sess, err := g.opts.Registry.Create(id, newEventStream(g.opts.ReplayBuffer),
		session.WithTransport(config.TransportStreamable),
		session.WithCredentials(identity.CredentialsFromHeader(r.Header)),
		session.WithRemoteIP(identity.IPFromRequest(r)),
	)
	if err != nil {
		g.logger.Error("Failed to create session", "session_id", id, "error", err)
		writeRPCError(w, http.StatusInternalServerError, req.ID, CodeInternalError, MsgInternalError)
		return
	}

	resp := g.opts.Protocol.Handle(identity.WithSessionID(r.Context(), id), sessionCaller(sess), req)
	if resp == nil || resp.Error != nil {
		g.opts.Registry.Evict(id)
		respond(w, resp)
		return
	}
	identity.SetSessionHeader(w.Header(), id)
	respond(w, resp)
}

func (g *Streamable) handleGet(w http.ResponseWriter, r *http.Request) {
	sid, _ := identity.SessionIDFromRequest(r)
	sess, ok := g.lookup(sid)
	if !ok {
		writeRPCError(w, http.StatusBadRequest, nil, CodeServerError, MsgNoValidSession)
		return
	}
	es, ok := sess.Conn().(*eventStream)
	if !ok {
		writeRPCError(w, http.StatusInternalServerError, nil, CodeInternalError, MsgInternalError)
		return
	}

	lastID := lastEventID(r)
	g.logger.Info("Stream attached", "session_id", sess.ID, "last_event_id", lastID)
	identity.SetSessionHeader(w.Header(), sess.ID)
	serveStream(w, r, g.opts, sess, es, lastID, nil)
	g.logger.Info("Stream detached", "session_id", sess.ID)
}

func (g *Streamable) handleDelete(w http.ResponseWriter, r *http.Request) {
	sid, _ := identity.SessionIDFromRequest(r)
	if _, ok := g.lookup(sid); !ok {
		writeRPCError(w, http.StatusBadRequest, nil, CodeServerError, MsgNoValidSession)
		return
	}
	g.opts.Registry.Evict(sid)
	w.WriteHeader(http.StatusOK)
}

// lookup finds a live session owned by this transport.
func (g *Streamable) lookup(sid string) (*session.Session, bool) {
	if sid == "" {
		return nil, false
	}
	sess, ok := g.opts.Registry.Lookup(sid)
	if !ok || sess.Transport != config.TransportStreamable {
		return nil, false
	}
	return sess, true
}
