package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/twitter-mcp/internal/config"
	"github.com/ashureev/twitter-mcp/internal/identity"
	"github.com/ashureev/twitter-mcp/internal/session"
)

const (
	wsSubprotocol  = "mcp"
	wsWriteTimeout = 10 * time.Second
	wsCloseReason  = "session closed"
)

// wsConn adapts a websocket to session.Conn.
type wsConn struct {
	ws        *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, msg)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close(websocket.StatusNormalClosure, wsCloseReason)
	})
	return err
}

func (c *wsConn) reply(resp *Response) {
	if resp == nil {
		return
	}
	data, err := encode(resp)
	if err != nil {
		return
	}
	if err := c.Send(data); err != nil {
		slog.Debug("WebSocket write error", "error", err)
	}
}

// WebSocket serves MCP over a single websocket per session on /ws. The
// connection has no session until its first initialize.
type WebSocket struct {
	opts    Options
	logger  *slog.Logger
	origins []string
}

// NewWebSocket creates the /ws gateway.
func NewWebSocket(opts Options) *WebSocket {
	opts = opts.withDefaults()
	return &WebSocket{
		opts:    opts,
		logger:  opts.Logger.With("transport", config.TransportWebSocket),
		origins: originPatterns(opts.AllowedOrigins),
	}
}

func (g *WebSocket) Name() string { return config.TransportWebSocket }

// RegisterRoutes mounts GET /ws.
func (g *WebSocket) RegisterRoutes(r chi.Router) {
	r.Get("/ws", g.ServeHTTP)
}

// ServeHTTP upgrades the request and runs the read loop.
func (g *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{wsSubprotocol},
		OriginPatterns: g.origins,
	})
	if err != nil {
		g.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	ws.SetReadLimit(maxBodyBytes)

	conn := &wsConn{ws: ws}
	creds := identity.CredentialsFromHeader(r.Header)
	ctx := r.Context()

	var sess *session.Session
	defer func() {
		if sess != nil {
			g.opts.Registry.Evict(sess.ID)
			return
		}
		_ = conn.Close()
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				g.logger.Debug("WebSocket closed by client")
			} else {
				g.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}

		req, errResp := decodeRequest(data)
		if errResp != nil {
			conn.reply(errResp)
			continue
		}

		if sess == nil {
			sess = g.awaitingInit(ctx, r, conn, creds, req)
			continue
		}

		sess.Touch(time.Now())
		s := sess
		callCtx := identity.WithSessionID(detached(ctx), s.ID)
		go func() {
			resp := g.opts.Protocol.Handle(callCtx, sessionCaller(s), req)
			if resp == nil {
				return
			}
			data, err := encode(resp)
			if err != nil {
				return
			}
			if err := s.Send(data); err != nil {
				g.logger.Debug("Dropped response for closed session", "session_id", s.ID, "error", err)
			}
		}()
	}
}

// awaitingInit handles a message on a connection without a session. Only
// initialize creates one; ping is answered; anything else is refused.
func (g *WebSocket) awaitingInit(ctx context.Context, r *http.Request, conn *wsConn, creds identity.Credentials, req *Request) *session.Session {
	switch req.Method {
	case "ping":
		conn.reply(g.opts.Protocol.Handle(ctx, oneShotCaller(creds), req))
		return nil
	case "initialize":
	default:
		if !req.IsNotification() {
			conn.reply(errorResponse(req.ID, CodeServerError, MsgNoValidSession))
		}
		return nil
	}

	id := g.opts.NewID()
	sess, err := g.opts.Registry.Create(id, conn,
		session.WithTransport(config.TransportWebSocket),
		session.WithCredentials(creds),
		session.WithRemoteIP(identity.IPFromRequest(r)),
	)
	if err != nil {
		g.logger.Error("Failed to create session", "session_id", id, "error", err)
		conn.reply(errorResponse(req.ID, CodeInternalError, MsgInternalError))
		return nil
	}

	resp := g.opts.Protocol.Handle(identity.WithSessionID(ctx, id), sessionCaller(sess), req)
	if resp == nil || resp.Error != nil {
		conn.reply(resp)
		g.opts.Registry.Evict(id)
		return nil
	}
	conn.reply(withSessionMeta(resp, id))
	return sess
}

// originPatterns converts allowed origins into host patterns for Accept.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
