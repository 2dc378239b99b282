package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/twitter-mcp/internal/identity"
)

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocol},
		HTTPHeader: map[string][]string{
			identity.TokenHeaderName:       {"tok"},
			identity.TokenSecretHeaderName: {"sec"},
		},
	})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return c
}

func wsExchange(t *testing.T, c *websocket.Conn, msg string) rpcReply {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var reply rpcReply
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return reply
}

func TestWebSocketLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(o Options) Gateway { return NewWebSocket(o) })
	c := dialWS(t, env)
	defer c.CloseNow()

	reply := wsExchange(t, c, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if reply.Error == nil || reply.Error.Code != CodeServerError {
		t.Fatalf("expected -32000 before initialize, got %+v", reply.Error)
	}
	if env.reg.Len() != 0 {
		t.Fatalf("expected no session before initialize, got %d", env.reg.Len())
	}

	reply = wsExchange(t, c, initializeBody)
	var init struct {
		Meta struct {
			SessionID string `json:"sessionId"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(reply.Result, &init); err != nil || init.Meta.SessionID != "sess-1" {
		t.Fatalf("expected session id in _meta, got %s", reply.Result)
	}
	if _, ok := env.reg.Lookup("sess-1"); !ok {
		t.Fatal("expected session to be registered")
	}

	reply = wsExchange(t, c, toolCallBody(2, "post_tweet", `{"text":"hi"}`, ""))
	res := decodeToolResult(t, reply.Result)
	if res.IsError || !strings.Contains(res.Content[0].Text, "https://twitter.com/alice/status/42") {
		t.Fatalf("expected post via header credentials, got %+v", res)
	}

	_ = c.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, func() bool { return env.reg.Len() == 0 })
}

func TestWebSocketEvictionClosesSocket(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(o Options) Gateway { return NewWebSocket(o) })
	c := dialWS(t, env)
	defer c.CloseNow()

	wsExchange(t, c, initializeBody)
	go env.reg.Evict("sess-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := c.Read(ctx); websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure after eviction, got %v", err)
	}
}

func TestOriginPatterns(t *testing.T) {
	t.Parallel()

	got := originPatterns([]string{"https://app.example.com", "localhost:5173"})
	if len(got) != 2 || got[0] != "app.example.com" || got[1] != "localhost:5173" {
		t.Fatalf("unexpected patterns %v", got)
	}
	if got := originPatterns([]string{"https://a.example", "*"}); len(got) != 1 || got[0] != "*" {
		t.Fatalf("expected wildcard to win, got %v", got)
	}
}
