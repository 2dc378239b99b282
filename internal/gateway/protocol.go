package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ashureev/twitter-mcp/internal/identity"
	"github.com/ashureev/twitter-mcp/internal/session"
	"github.com/ashureev/twitter-mcp/internal/tools"
)

// LatestProtocolVersion is offered to clients asking for a version this
// server does not know.
const LatestProtocolVersion = "2025-06-18"

var supportedProtocolVersions = []string{LatestProtocolVersion, "2025-03-26", "2024-11-05"}

// logLevels in increasing severity.
var logLevels = []string{"debug", "info", "notice", "warning", "error", "critical", "alert", "emergency"}

// ServerInfo names this server in the initialize handshake.
type ServerInfo struct {
	Name    string
	Version string
}

// Protocol answers MCP requests. It is shared by every transport.
type Protocol struct {
	dispatcher *tools.Dispatcher
	info       ServerInfo
	logger     *slog.Logger
}

// NewProtocol creates the request handler behind all gateways.
func NewProtocol(d *tools.Dispatcher, info ServerInfo, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{dispatcher: d, info: info, logger: logger.With("component", "protocol")}
}

// caller is who a request is handled for. sess is nil for one-shot requests.
type caller struct {
	sess    *session.Session
	binding tools.Binding
}

func sessionCaller(s *session.Session) caller { return caller{sess: s, binding: s} }

func oneShotCaller(creds identity.Credentials) caller {
	return caller{binding: tools.NewEphemeral(creds)}
}

// Handle answers req. It returns nil for notifications.
func (p *Protocol) Handle(ctx context.Context, c caller, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Request handler panicked", "method", req.Method, "panic", r, "stack", string(debug.Stack()))
			resp = nil
			if !req.IsNotification() {
				resp = errorResponse(req.ID, CodeInternalError, MsgInternalError)
			}
		}
	}()

	if c.sess != nil && c.sess.State() == session.StateClosed {
		return p.reply(req, errorResponse(req.ID, CodeServerError, MsgNoValidSession))
	}
	if c.sess != nil && c.sess.State() == session.StateAwaitingInit && req.Method != "initialize" && req.Method != "ping" {
		return p.reply(req, errorResponse(req.ID, CodeInvalidRequest, "Session not initialized"))
	}

	switch req.Method {
	case "initialize":
		return p.reply(req, p.initialize(c, req))
	case "ping":
		return p.reply(req, resultResponse(req.ID, struct{}{}))
	case "tools/list":
		return p.reply(req, resultResponse(req.ID, &mcp.ListToolsResult{Tools: p.dispatcher.Tools()}))
	case "tools/call":
		return p.reply(req, p.callTool(ctx, c, req))
	case "logging/setLevel":
		return p.reply(req, p.setLevel(c, req))
	default:
		return p.reply(req, errorResponse(req.ID, CodeMethodNotFound, "Method not found"))
	}
}

// reply drops responses to notifications.
func (p *Protocol) reply(req *Request, resp *Response) *Response {
	if req.IsNotification() {
		return nil
	}
	return resp
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

func (p *Protocol) initialize(c caller, req *Request) *Response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid initialize params")
		}
	}

	if c.sess != nil {
		if err := c.sess.Activate(); err != nil {
			if errors.Is(err, session.ErrAlreadyInitialized) {
				return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request: Server already initialized")
			}
			return errorResponse(req.ID, CodeServerError, MsgNoValidSession)
		}
	}

	version := params.ProtocolVersion
	if !slices.Contains(supportedProtocolVersions, version) {
		version = LatestProtocolVersion
	}
	p.logger.Info("Client initialized",
		"session_id", c.binding.SessionID(),
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", version,
	)

	return resultResponse(req.ID, &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities: &mcp.ServerCapabilities{
			Tools:   &mcp.ToolCapabilities{},
			Logging: &mcp.LoggingCapabilities{},
		},
		ServerInfo: &mcp.Implementation{Name: p.info.Name, Version: p.info.Version},
	})
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Meta      map[string]any  `json:"_meta,omitempty"`
}

func (p *Protocol) callTool(ctx context.Context, c caller, req *Request) *Response {
	var params callToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid tools/call params")
	}

	res, err := p.dispatcher.Call(ctx, c.binding, params.Meta, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, tools.ErrUnknownTool) {
			return errorResponse(req.ID, CodeInvalidParams, "Unknown tool: "+params.Name)
		}
		p.logger.Error("Tool dispatch failed", "tool", params.Name, "error", err)
		return errorResponse(req.ID, CodeInternalError, MsgInternalError)
	}

	if c.sess != nil {
		level, message := "info", params.Name+" completed"
		if res.Failed {
			level, message = "warning", params.Name+" failed"
		}
		p.notify(c.sess, level, message)
	}
	return resultResponse(req.ID, res.CallToolResult())
}

func (p *Protocol) setLevel(c caller, req *Request) *Response {
	var params struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || !slices.Contains(logLevels, params.Level) {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid log level")
	}
	if c.sess != nil {
		c.sess.SetLogLevel(params.Level)
	}
	return resultResponse(req.ID, struct{}{})
}

// notify pushes a notifications/message to sess when the peer opted in at
// a level at or below level.
func (p *Protocol) notify(sess *session.Session, level, message string) {
	floor := sess.LogLevel()
	if floor == "" || slices.Index(logLevels, level) < slices.Index(logLevels, floor) {
		return
	}
	data, err := encode(&Notification{
		JSONRPC: jsonrpcVersion,
		Method:  "notifications/message",
		Params: map[string]any{
			"level":  level,
			"logger": p.info.Name,
			"data":   message,
		},
	})
	if err != nil {
		return
	}
	if err := sess.Send(data); err != nil {
		p.logger.Debug("Dropped log notification", "session_id", sess.ID, "error", err)
	}
}

// withSessionMeta stamps the session id into an initialize result.
func withSessionMeta(resp *Response, id string) *Response {
	if resp == nil {
		return nil
	}
	if res, ok := resp.Result.(*mcp.InitializeResult); ok {
		res.Meta = mcp.Meta{"sessionId": id}
	}
	return resp
}
