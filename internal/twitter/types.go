// Package twitter is the per-session adapter around the Twitter (X) API v2.
package twitter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ashureev/twitter-mcp/internal/identity"
)

// MaxImages is the number of images a single post may carry. Extra images
// are dropped.
const MaxImages = 4

// Search bounds accepted by the upstream recent-search endpoint.
const (
	MinSearchCount = 10
	MaxSearchCount = 100
)

// Logical endpoint keys used for pacing.
const (
	EndpointMe          = "users/me"
	EndpointMediaUpload = "media/upload"
	EndpointTweetCreate = "tweets/create"
	EndpointSearch      = "tweets/search"
	EndpointLike        = "users/likes"
	EndpointRetweet     = "users/retweets"
)

// Client is the set of API operations the tool layer consumes. Every error
// returned is a *shared.Error.
type Client interface {
	Identity(ctx context.Context) (Identity, error)
	Post(ctx context.Context, text string, images []string) (PostedTweet, error)
	Search(ctx context.Context, query string, count int) (SearchResult, error)
	Like(ctx context.Context, tweetID string) (ActionResult, error)
	Retweet(ctx context.Context, tweetID string) (ActionResult, error)
}

// Factory builds a Client bound to one caller's credentials.
type Factory func(creds identity.Credentials) Client

// Identity is the authenticated account.
type Identity struct {
	ID       string
	Username string
	Name     string
}

// Metrics are a post's engagement counts. Counts missing upstream are zero.
type Metrics struct {
	Likes    int `json:"likes"`
	Retweets int `json:"retweets"`
	Replies  int `json:"replies"`
	Quotes   int `json:"quotes"`
}

// Author is an account referenced by search results.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

// Tweet is a post returned by search.
type Tweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
	Metrics   Metrics   `json:"metrics"`
}

// SearchResult holds at most the requested number of posts and the distinct
// authors they reference.
type SearchResult struct {
	Tweets  []Tweet  `json:"tweets"`
	Authors []Author `json:"authors"`
}

// AuthorByID returns the author with the given id.
func (r SearchResult) AuthorByID(id string) (Author, bool) {
	for _, a := range r.Authors {
		if a.ID == id {
			return a, true
		}
	}
	return Author{}, false
}

// PostedTweet is the result of a successful post.
type PostedTweet struct {
	ID       string
	Text     string
	MediaIDs []string
}

// ActionResult reports the outcome of a like or retweet. A call the API
// accepted but did not apply has Succeeded false and the upstream errors
// array in Errors.
type ActionResult struct {
	Succeeded bool
	Errors    json.RawMessage
}
