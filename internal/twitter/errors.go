package twitter

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ashureev/twitter-mcp/internal/shared"
)

// apiErrorBody covers both the v2 problem document and the v1.1-style
// errors array.
type apiErrorBody struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Errors []struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Title   string          `json:"title"`
		Detail  string          `json:"detail"`
	} `json:"errors"`
}

// decodeAPIError turns a non-2xx response into an upstream error, keeping the
// API's message and code as sent.
func decodeAPIError(status int, body []byte) error {
	var env apiErrorBody
	if err := json.Unmarshal(body, &env); err != nil {
		return shared.Upstream(status, strconv.Itoa(status), "", body)
	}

	code := ""
	message := ""
	if len(env.Errors) > 0 {
		first := env.Errors[0]
		code = strings.Trim(string(first.Code), `"`)
		message = firstNonEmpty(first.Message, first.Detail, first.Title)
	}
	if message == "" {
		message = firstNonEmpty(env.Detail, env.Title)
	}
	if code == "" || code == "null" {
		code = strconv.Itoa(status)
	}
	return shared.Upstream(status, code, message, body)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
