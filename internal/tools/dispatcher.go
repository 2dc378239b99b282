// Package tools maps named tool invocations onto the social client.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ashureev/twitter-mcp/internal/domain"
	"github.com/ashureev/twitter-mcp/internal/identity"
	"github.com/ashureev/twitter-mcp/internal/metrics"
	"github.com/ashureev/twitter-mcp/internal/shared"
	"github.com/ashureev/twitter-mcp/internal/twitter"
)

// Tool names.
const (
	ToolPostTweet    = "post_tweet"
	ToolSearchTweets = "search_tweets"
	ToolLikeTweet    = "like_tweet"
	ToolRetweet      = "retweet"
)

// ErrUnknownTool is returned by Call for a name that was never registered.
var ErrUnknownTool = errors.New("unknown tool")

// PostRecorder keeps a log of published posts.
type PostRecorder interface {
	RecordPost(ctx context.Context, post *domain.PostRecord) error
}

type handler func(ctx context.Context, b Binding, client twitter.Client, args json.RawMessage) (Result, error)

// Dispatcher owns the tool catalog.
type Dispatcher struct {
	defs    map[string]*definition
	order   []string
	factory twitter.Factory
	posts   PostRecorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher registers the four tools. posts may be nil.
func NewDispatcher(factory twitter.Factory, posts PostRecorder, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		defs:    make(map[string]*definition),
		factory: factory,
		posts:   posts,
		logger:  logger,
		now:     time.Now,
	}

	catalog := []struct{ name, description string }{
		{ToolPostTweet, "Post a tweet to Twitter"},
		{ToolSearchTweets, "Search for tweets on Twitter"},
		{ToolLikeTweet, "Like a tweet on Twitter"},
		{ToolRetweet, "Retweet a tweet on Twitter"},
	}
	for _, entry := range catalog {
		def, err := d.define(entry.name, entry.description)
		if err != nil {
			return nil, err
		}
		d.defs[entry.name] = def
		d.order = append(d.order, entry.name)
	}
	return d, nil
}

func (d *Dispatcher) define(name, description string) (*definition, error) {
	switch name {
	case ToolPostTweet:
		return newDefinition(name, description, postTweetSchema(), d.postTweet)
	case ToolSearchTweets:
		return newDefinition(name, description, searchTweetsSchema(), d.searchTweets)
	case ToolLikeTweet:
		return newDefinition(name, description, tweetIDSchema("like"), d.likeTweet)
	case ToolRetweet:
		return newDefinition(name, description, tweetIDSchema("retweet"), d.retweet)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

// Tools returns the catalog in registration order.
func (d *Dispatcher) Tools() []*mcp.Tool {
	out := make([]*mcp.Tool, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.defs[name].tool)
	}
	return out
}

// Call runs the named tool for the caller bound to b. Credentials in meta
// take precedence over the ones bound to b. Every failure, including a
// panic inside a handler, comes back as a failed Result; the error return
// is reserved for ErrUnknownTool.
func (d *Dispatcher) Call(ctx context.Context, b Binding, meta map[string]any, name string, args json.RawMessage) (res Result, err error) {
	def, ok := d.defs[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	start := d.now()
	logger := d.logger.With("tool", name, "session_id", b.SessionID())
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Tool handler panicked", "panic", p, "stack", string(debug.Stack()))
			res = failure(shared.Internal(fmt.Errorf("panic: %v", p)))
			err = nil
		}
		outcome := "success"
		if res.Failed {
			outcome = "failure"
		}
		metrics.ObserveToolCall(name, outcome)
		logger.Debug("Tool call finished", "outcome", outcome, "duration", time.Since(start))
	}()

	creds := identity.CredentialsFromMeta(meta)
	if !creds.Complete() {
		creds = b.Credentials()
	}
	if !creds.Complete() {
		logger.Warn("Tool call without credentials")
		return failure(shared.NoCredentials()), nil
	}

	if verr := def.validate(args); verr != nil {
		return invalidArguments(name, verr), nil
	}

	client, cerr := b.ClientFor(creds, d.factory)
	if cerr != nil {
		return failure(shared.Internal(cerr)), nil
	}

	out, rerr := def.run(ctx, b, client, args)
	if rerr != nil {
		e := shared.Normalize(rerr)
		logger.Warn("Tool call failed", "kind", e.Kind, "code", e.Code, "error", rerr)
		return failure(e), nil
	}
	return out, nil
}

func (d *Dispatcher) postTweet(ctx context.Context, b Binding, client twitter.Client, raw json.RawMessage) (Result, error) {
	var args struct {
		Text   string   `json:"text"`
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, shared.Internal(err)
	}

	posted, err := client.Post(ctx, args.Text, args.Images)
	if err != nil {
		return Result{}, err
	}

	// The post already exists; a failed lookup only degrades the URL.
	var username string
	if me, err := client.Identity(ctx); err != nil {
		d.logger.Warn("Identity lookup after post failed", "post_id", posted.ID, "error", err)
	} else {
		username = me.Username
	}
	url := tweetURL(username, posted.ID)

	images := args.Images
	if len(images) > twitter.MaxImages {
		images = images[:twitter.MaxImages]
	}
	d.recordPost(ctx, &domain.PostRecord{
		PostID:    posted.ID,
		SessionID: b.SessionID(),
		Username:  username,
		Content:   args.Text,
		Images:    images,
		URL:       url,
		CreatedAt: d.now(),
	})

	return success(postedText(url), PostOutput{PostID: posted.ID, URL: url}), nil
}

func (d *Dispatcher) recordPost(ctx context.Context, rec *domain.PostRecord) {
	if d.posts == nil {
		return
	}
	if err := d.posts.RecordPost(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Warn("Failed to record post", "post_id", rec.PostID, "error", err)
	}
}

func (d *Dispatcher) searchTweets(ctx context.Context, _ Binding, client twitter.Client, raw json.RawMessage) (Result, error) {
	var args struct {
		Query string `json:"query"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{}, shared.Internal(err)
	}

	res, err := client.Search(ctx, args.Query, args.Count)
	if err != nil {
		return Result{}, err
	}
	return success(formatSearch(args.Query, res), res), nil
}

func (d *Dispatcher) likeTweet(ctx context.Context, _ Binding, client twitter.Client, raw json.RawMessage) (Result, error) {
	id, err := tweetID(raw)
	if err != nil {
		return Result{}, err
	}
	res, err := client.Like(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return actionResult(res, "liked", "like"), nil
}

func (d *Dispatcher) retweet(ctx context.Context, _ Binding, client twitter.Client, raw json.RawMessage) (Result, error) {
	id, err := tweetID(raw)
	if err != nil {
		return Result{}, err
	}
	res, err := client.Retweet(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return actionResult(res, "retweeted", "retweet"), nil
}

func tweetID(raw json.RawMessage) (string, error) {
	var args struct {
		TweetID string `json:"tweetId"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", shared.Internal(err)
	}
	return args.TweetID, nil
}

func actionResult(res twitter.ActionResult, verb, infinitive string) Result {
	return Result{Text: actionText(res, verb, infinitive), Failed: !res.Succeeded}
}
