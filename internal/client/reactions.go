// ABOUTME: Fire-and-forget reaction posting over the gateway REST boundary
// ABOUTME: Reactions are a training signal, not part of the message log

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Reaction is the body of POST /messages/{id}/reactions.
type Reaction struct {
	ReactionType string            `json:"reactionType"`
	AgentID      string            `json:"agentId,omitempty"`
	FeedbackData map[string]string `json:"feedbackData,omitempty"`
}

// PostReaction sends a reaction for a message. Failures are reported but
// carry no conversation state; callers may ignore the error.
func PostReaction(ctx context.Context, hc *http.Client, baseURL, token, messageID string, r Reaction) error {
	if hc == nil {
		hc = http.DefaultClient
	}

	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding reaction: %w", err)
	}

	url := fmt.Sprintf("%s/messages/%s/reactions", baseURL, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building reaction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("posting reaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("reaction rejected: %s", resp.Status)
	}
	return nil
}
