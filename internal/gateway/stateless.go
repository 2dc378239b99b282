package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/twitter-mcp/internal/config"
	"github.com/ashureev/twitter-mcp/internal/identity"
)

// Stateless serves /mcp without sessions. Every POST gets a fresh client
// that is dropped with the request.
type Stateless struct {
	opts   Options
	logger *slog.Logger
}

// NewStateless creates the one-shot /mcp gateway.
func NewStateless(opts Options) *Stateless {
	opts = opts.withDefaults()
	return &Stateless{opts: opts, logger: opts.Logger.With("transport", "stateless")}
}

func (g *Stateless) Name() string { return config.TransportStreamable }

// RegisterRoutes mounts /mcp. Only POST is served.
func (g *Stateless) RegisterRoutes(r chi.Router) {
	r.Post("/mcp", g.handlePost)
	r.Get("/mcp", g.methodNotAllowed)
	r.Delete("/mcp", g.methodNotAllowed)
}

func (g *Stateless) handlePost(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, errResp := decodeRequest(body)
	if errResp != nil {
		writeJSON(w, http.StatusBadRequest, errResp)
		return
	}

	c := oneShotCaller(identity.CredentialsFromHeader(r.Header))
	respond(w, g.opts.Protocol.Handle(r.Context(), c, req))
}

func (g *Stateless) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeRPCError(w, http.StatusMethodNotAllowed, nil, CodeServerError, MsgMethodNotAllowed)
}
