package tools

import (
	"github.com/ashureev/twitter-mcp/internal/identity"
	"github.com/ashureev/twitter-mcp/internal/twitter"
)

// Binding is the caller context a tool call runs in. *session.Session
// satisfies it; Ephemeral serves one-shot requests.
type Binding interface {
	SessionID() string
	Credentials() identity.Credentials
	ClientFor(creds identity.Credentials, build twitter.Factory) (twitter.Client, error)
}

// Ephemeral is a Binding with no session behind it. Every call gets a fresh
// client that is dropped with the request.
type Ephemeral struct {
	creds identity.Credentials
}

// NewEphemeral returns a one-shot binding carrying creds, which may be empty.
func NewEphemeral(creds identity.Credentials) *Ephemeral {
	return &Ephemeral{creds: creds}
}

func (e *Ephemeral) SessionID() string { return "" }

func (e *Ephemeral) Credentials() identity.Credentials { return e.creds }

func (e *Ephemeral) ClientFor(creds identity.Credentials, build twitter.Factory) (twitter.Client, error) {
	return build(creds), nil
}
