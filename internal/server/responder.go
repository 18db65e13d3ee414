// ABOUTME: Pluggable agent reply generation for the gateway
// ABOUTME: ScriptedResponder streams canned cumulative content for demos and tests

package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cohortlabs/cohort/internal/model"
)

// Reply identifies the responding agent and carries its streamed content.
// Deltas yields the accumulated content so far, not increments; the channel
// closes when the reply is complete.
type Reply struct {
	AgentID   string
	AgentName string
	Deltas    <-chan string
}

// Responder produces an agent reply for a prompt. Real AI generation lives
// behind this boundary; the gateway only needs something that streams.
type Responder interface {
	Respond(ctx context.Context, conversationID string, prompt model.Message) (*Reply, error)
}

// ScriptedResponder streams a short acknowledgment word by word. It picks
// the responding colleague from the roster based on the conversation scope.
type ScriptedResponder struct {
	Roster     model.Roster
	ChunkDelay time.Duration
}

// Respond implements Responder.
func (r *ScriptedResponder) Respond(ctx context.Context, conversationID string, prompt model.Message) (*Reply, error) {
	agent := r.pickAgent(conversationID)

	text := fmt.Sprintf("Thanks %s, I'm on it. You said: %s", prompt.SenderName, prompt.Content)
	words := strings.Fields(text)

	deltas := make(chan string, len(words))
	go func() {
		defer close(deltas)
		var sb strings.Builder
		for i, w := range words {
			if ctx.Err() != nil {
				return
			}
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(w)
			select {
			case deltas <- sb.String():
			case <-ctx.Done():
				return
			}
			if r.ChunkDelay > 0 {
				select {
				case <-time.After(r.ChunkDelay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return &Reply{AgentID: agent.ID, AgentName: agent.Name, Deltas: deltas}, nil
}

// pickAgent chooses who answers: the addressed agent in one-on-one scope,
// otherwise the first matching roster entry.
func (r *ScriptedResponder) pickAgent(conversationID string) model.Agent {
	mode, _, scopeID, ok := model.ParseConversationID(conversationID)
	if ok {
		switch mode {
		case model.ModeAgent:
			if a, found := r.Roster.AgentByID(scopeID); found {
				return a
			}
			return model.Agent{ID: scopeID, Name: scopeID}
		case model.ModeTeam:
			for _, a := range r.Roster.Agents {
				if a.TeamID == scopeID {
					return a
				}
			}
		}
	}
	if len(r.Roster.Agents) > 0 {
		return r.Roster.Agents[0]
	}
	return model.Agent{ID: "colleague", Name: "Colleague"}
}
