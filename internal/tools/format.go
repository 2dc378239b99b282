package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/twitter-mcp/internal/twitter"
)

func tweetURL(username, id string) string {
	if username == "" {
		return "https://twitter.com/i/web/status/" + id
	}
	return fmt.Sprintf("https://twitter.com/%s/status/%s", username, id)
}

func postedText(url string) string {
	return "Tweet posted successfully!\nURL: " + url
}

// actionText renders a like or retweet outcome. verb is the past tense
// used on success, infinitive the form used on failure.
func actionText(res twitter.ActionResult, verb, infinitive string) string {
	if res.Succeeded {
		return fmt.Sprintf("Tweet %s successfully!", verb)
	}
	errs := string(res.Errors)
	if errs == "" {
		errs = "[]"
	}
	return fmt.Sprintf("Failed to %s tweet! Error: %s", infinitive, errs)
}

// formatSearch renders search results as a listing: one block per post
// followed by the authors they reference.
func formatSearch(query string, res twitter.SearchResult) string {
	if len(res.Tweets) == 0 {
		return fmt.Sprintf("No tweets found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tweets for %q:\n", len(res.Tweets), query)

	for i, tw := range res.Tweets {
		author, ok := res.AuthorByID(tw.AuthorID)
		b.WriteString("\n")
		fmt.Fprintf(&b, "[%d] ", i+1)
		if ok {
			fmt.Fprintf(&b, "@%s (%s)", author.Username, author.Name)
			if author.Verified {
				b.WriteString(" ✓")
			}
		} else {
			fmt.Fprintf(&b, "author %s", tw.AuthorID)
		}
		if !tw.CreatedAt.IsZero() {
			fmt.Fprintf(&b, " · %s", tw.CreatedAt.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")
		b.WriteString(tw.Text)
		b.WriteString("\n")
		fmt.Fprintf(&b, "Likes: %d · Retweets: %d · Replies: %d · Quotes: %d\n",
			tw.Metrics.Likes, tw.Metrics.Retweets, tw.Metrics.Replies, tw.Metrics.Quotes)
		b.WriteString(tweetURL(author.Username, tw.ID))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nAuthors (%d):\n", len(res.Authors))
	for _, a := range res.Authors {
		fmt.Fprintf(&b, "- @%s (%s)", a.Username, a.Name)
		if a.Verified {
			b.WriteString(", verified")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
