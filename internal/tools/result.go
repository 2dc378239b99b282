package tools

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ashureev/twitter-mcp/internal/shared"
)

// Result is what a tool call returns to the remote caller. A failed result
// is still a normal response.
type Result struct {
	Text       string
	Structured any
	Failed     bool
	// Code is the error code of a failed result, if one applies.
	Code string
}

// PostOutput is the structured content of a successful post_tweet.
type PostOutput struct {
	PostID string `json:"postId"`
	URL    string `json:"url"`
}

// CallToolResult renders r as an MCP tools/call result.
func (r Result) CallToolResult() *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: r.Text}},
		StructuredContent: r.Structured,
		IsError:           r.Failed,
	}
}

func success(text string, structured any) Result {
	return Result{Text: text, Structured: structured}
}

// failure formats a normalized error for the caller.
func failure(err *shared.Error) Result {
	text := "Error message: " + err.Message
	if err.Code != "" {
		text += ", Error code: " + err.Code
	}
	return Result{Text: text, Failed: true, Code: err.Code}
}

func invalidArguments(tool string, err error) Result {
	return Result{
		Text:   fmt.Sprintf("Invalid arguments for tool %s: %v", tool, err),
		Failed: true,
		Code:   "invalid_arguments",
	}
}
