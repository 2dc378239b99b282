package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/ashureev/twitter-mcp/internal/identity"
	"github.com/ashureev/twitter-mcp/internal/metrics"
	"github.com/ashureev/twitter-mcp/internal/ratelimit"
	"github.com/ashureev/twitter-mcp/internal/shared"
)

const maxResponseBytes = 4 << 20

// Config holds the application-level settings shared by every session's client.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	BaseURL        string
	UploadURL      string
	Timeout        time.Duration

	// MinInterval overrides ratelimit.MinInterval; zero keeps the default.
	MinInterval time.Duration
	// Transport is the base round tripper; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// NewFactory returns a Factory producing HTTPClients for cfg.
func NewFactory(cfg Config) Factory {
	return func(creds identity.Credentials) Client {
		return NewHTTPClient(cfg, creds)
	}
}

// HTTPClient calls the API with OAuth 1.0a user-context signing. One instance
// serves one session.
type HTTPClient struct {
	baseURL   string
	uploadURL string
	api       *http.Client
	media     *http.Client
	limiter   *ratelimit.Limiter
	logger    *slog.Logger

	meMu sync.Mutex
	me   *Identity
}

// NewHTTPClient creates a client signing with cfg's consumer pair and creds.
func NewHTTPClient(cfg Config, creds identity.Credentials) *HTTPClient {
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twitter.com/2"
	}
	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		uploadURL = baseURL + "/media/upload"
	}

	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, &http.Client{Transport: base})
	signed := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret).
		Client(ctx, oauth1.NewToken(creds.AccessToken, creds.AccessSecret))
	signed.Timeout = cfg.Timeout

	return &HTTPClient{
		baseURL:   baseURL,
		uploadURL: uploadURL,
		api:       signed,
		media:     &http.Client{Transport: base, Timeout: cfg.Timeout},
		limiter:   ratelimit.New(cfg.MinInterval),
		logger:    logger.With("component", "twitter"),
	}
}

// Identity returns the authenticated account. The first success is cached for
// the client's lifetime.
func (c *HTTPClient) Identity(ctx context.Context) (Identity, error) {
	c.meMu.Lock()
	defer c.meMu.Unlock()

	if c.me != nil {
		return *c.me, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/me?user.fields=username,name", nil)
	if err != nil {
		return Identity{}, c.fail("identity", err)
	}
	var out struct {
		Data struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := c.call(EndpointMe, req, &out); err != nil {
		return Identity{}, c.fail("identity", err)
	}
	if out.Data.ID == "" {
		return Identity{}, c.fail("identity", fmt.Errorf("users/me returned no id"))
	}

	me := Identity{ID: out.Data.ID, Username: out.Data.Username, Name: out.Data.Name}
	c.me = &me
	return me, nil
}

// Post uploads up to MaxImages images and publishes text with them.
// Media uploaded before a failure are left in place.
func (c *HTTPClient) Post(ctx context.Context, text string, images []string) (PostedTweet, error) {
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}

	mediaIDs := make([]string, 0, len(images))
	for _, image := range images {
		asset, err := c.fetchMedia(ctx, image)
		if err != nil {
			return PostedTweet{}, c.fail("post", err)
		}
		id, err := c.uploadMedia(ctx, asset)
		if err != nil {
			return PostedTweet{}, c.fail("post", err)
		}
		mediaIDs = append(mediaIDs, id)
	}

	payload := createTweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		payload.Media = &tweetMedia{MediaIDs: mediaIDs}
	}
	req, err := c.jsonRequest(ctx, http.MethodPost, c.baseURL+"/tweets", payload)
	if err != nil {
		return PostedTweet{}, c.fail("post", err)
	}
	var out struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := c.call(EndpointTweetCreate, req, &out); err != nil {
		return PostedTweet{}, c.fail("post", err)
	}

	return PostedTweet{ID: out.Data.ID, Text: out.Data.Text, MediaIDs: mediaIDs}, nil
}

// Search returns at most count recent posts matching query and their authors.
func (c *HTTPClient) Search(ctx context.Context, query string, count int) (SearchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(clamp(count, MinSearchCount, MaxSearchCount)))
	params.Set("expansions", "author_id")
	params.Set("tweet.fields", "public_metrics,created_at")
	params.Set("user.fields", "username,name,verified")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tweets/search/recent?"+params.Encode(), nil)
	if err != nil {
		return SearchResult{}, c.fail("search", err)
	}
	var raw searchResponse
	if err := c.call(EndpointSearch, req, &raw); err != nil {
		return SearchResult{}, c.fail("search", err)
	}
	return raw.result(count), nil
}

// Like likes tweetID as the authenticated account.
func (c *HTTPClient) Like(ctx context.Context, tweetID string) (ActionResult, error) {
	return c.act(ctx, "like", EndpointLike, "likes", tweetID)
}

// Retweet re-posts tweetID as the authenticated account.
func (c *HTTPClient) Retweet(ctx context.Context, tweetID string) (ActionResult, error) {
	return c.act(ctx, "retweet", EndpointRetweet, "retweets", tweetID)
}

func (c *HTTPClient) act(ctx context.Context, op, endpoint, resource, tweetID string) (ActionResult, error) {
	me, err := c.Identity(ctx)
	if err != nil {
		return ActionResult{}, err
	}

	u := fmt.Sprintf("%s/users/%s/%s", c.baseURL, url.PathEscape(me.ID), resource)
	req, err := c.jsonRequest(ctx, http.MethodPost, u, map[string]string{"tweet_id": tweetID})
	if err != nil {
		return ActionResult{}, c.fail(op, err)
	}
	var out struct {
		Data struct {
			Liked     *bool `json:"liked"`
			Retweeted *bool `json:"retweeted"`
		} `json:"data"`
		Errors json.RawMessage `json:"errors"`
	}
	if err := c.call(endpoint, req, &out); err != nil {
		return ActionResult{}, c.fail(op, err)
	}

	applied := out.Data.Liked
	if resource == "retweets" {
		applied = out.Data.Retweeted
	}
	res := ActionResult{Succeeded: applied != nil && *applied}
	if len(out.Errors) > 0 && string(out.Errors) != "null" {
		res.Errors = out.Errors
	}
	return res, nil
}

// call paces, sends and decodes one API request. Every request is exactly
// one admitted upstream hit; a failure is returned as is and the caller
// decides whether to invoke the tool again.
func (c *HTTPClient) call(endpoint string, req *http.Request, out any) error {
	if !c.limiter.Admit(endpoint) {
		metrics.IncRateLimited(endpoint)
		return shared.RateLimited(endpoint)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.api.Do(req)
	if err != nil {
		metrics.ObserveUpstream(endpoint, 0, start)
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream(endpoint, resp.StatusCode, start)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *HTTPClient) jsonRequest(ctx context.Context, method, u string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// fail normalizes err and logs the underlying cause of unexpected failures.
func (c *HTTPClient) fail(op string, err error) error {
	n := shared.Normalize(err)
	switch n.Kind {
	case shared.KindInternal:
		c.logger.Error("Twitter call failed", "op", op, "error", err)
	case shared.KindRateLimited:
		c.logger.Warn("Twitter call paced", "op", op)
	default:
		c.logger.Warn("Twitter API error", "op", op, "status", n.Status, "code", n.Code, "message", n.Message)
	}
	return n
}

type createTweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type searchResponse struct {
	Data []struct {
		ID            string    `json:"id"`
		Text          string    `json:"text"`
		AuthorID      string    `json:"author_id"`
		CreatedAt     time.Time `json:"created_at"`
		PublicMetrics struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
			QuoteCount   int `json:"quote_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
			Verified bool   `json:"verified"`
		} `json:"users"`
	} `json:"includes"`
}

func (r searchResponse) result(count int) SearchResult {
	data := r.Data
	if count >= 0 && len(data) > count {
		data = data[:count]
	}

	out := SearchResult{
		Tweets:  make([]Tweet, 0, len(data)),
		Authors: []Author{},
	}
	referenced := make(map[string]bool, len(data))
	for _, d := range data {
		out.Tweets = append(out.Tweets, Tweet{
			ID:        d.ID,
			Text:      d.Text,
			AuthorID:  d.AuthorID,
			CreatedAt: d.CreatedAt,
			Metrics: Metrics{
				Likes:    d.PublicMetrics.LikeCount,
				Retweets: d.PublicMetrics.RetweetCount,
				Replies:  d.PublicMetrics.ReplyCount,
				Quotes:   d.PublicMetrics.QuoteCount,
			},
		})
		referenced[d.AuthorID] = true
	}

	seen := make(map[string]bool, len(r.Includes.Users))
	for _, u := range r.Includes.Users {
		if seen[u.ID] || !referenced[u.ID] {
			continue
		}
		seen[u.ID] = true
		out.Authors = append(out.Authors, Author{ID: u.ID, Username: u.Username, Name: u.Name, Verified: u.Verified})
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
