package llmclient

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

type tokenizeRequest struct {
	Content string `json:"content"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

// countTokens asks the server to tokenize text. Older llama.cpp builds omit
// usage from chat responses; this fills the gap. Falls back to a chars/4
// estimate when the endpoint is unavailable.
func (c *Client) countTokens(ctx context.Context, text string) int {
	if text == "" {
		return 0
	}
	body, err := json.Marshal(tokenizeRequest{Content: text})
	if err == nil {
		var raw []byte
		raw, err = c.post(ctx, c.host+"/tokenize", body)
		if err == nil {
			var tr tokenizeResponse
			if err = json.Unmarshal(raw, &tr); err == nil {
				return len(tr.Tokens)
			}
		}
	}
	c.logger.Debug("tokenize unavailable, estimating", zap.Error(err))
	return (len(text) + 3) / 4
}
