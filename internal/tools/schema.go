package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ashureev/twitter-mcp/internal/twitter"
)

const maxTweetLength = 280

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func objectSchema(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func postTweetSchema() *jsonschema.Schema {
	return objectSchema([]string{"text"}, map[string]*jsonschema.Schema{
		"text": {
			Type:        "string",
			Description: "The text of the tweet",
			MinLength:   intPtr(1),
			MaxLength:   intPtr(maxTweetLength),
		},
		"images": {
			Type:        "array",
			Description: fmt.Sprintf("Image URLs to attach. Only the first %d are used.", twitter.MaxImages),
			Items:       &jsonschema.Schema{Type: "string"},
		},
	})
}

func searchTweetsSchema() *jsonschema.Schema {
	return objectSchema([]string{"query", "count"}, map[string]*jsonschema.Schema{
		"query": {
			Type:        "string",
			Description: "Search query",
			MinLength:   intPtr(1),
		},
		"count": {
			Type:        "integer",
			Description: "Number of tweets to return",
			Minimum:     floatPtr(twitter.MinSearchCount),
			Maximum:     floatPtr(twitter.MaxSearchCount),
		},
	})
}

func tweetIDSchema(what string) *jsonschema.Schema {
	return objectSchema([]string{"tweetId"}, map[string]*jsonschema.Schema{
		"tweetId": {
			Type:        "string",
			Description: "The ID of the tweet to " + what,
			MinLength:   intPtr(1),
		},
	})
}

// definition is a registered tool: its advertised shape, the compiled
// schema arguments are checked against, and the handler.
type definition struct {
	tool     *mcp.Tool
	resolved *jsonschema.Resolved
	run      handler
}

func newDefinition(name, description string, schema *jsonschema.Schema, run handler) (*definition, error) {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve %s schema: %w", name, err)
	}
	return &definition{
		tool:     &mcp.Tool{Name: name, Description: description, InputSchema: schema},
		resolved: resolved,
		run:      run,
	}, nil
}

// validate checks raw arguments before any handler runs. Absent arguments
// are treated as an empty object.
func (d *definition) validate(raw json.RawMessage) error {
	var instance any = map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &instance); err != nil {
			return fmt.Errorf("decode arguments: %w", err)
		}
	}
	return d.resolved.Validate(instance)
}
