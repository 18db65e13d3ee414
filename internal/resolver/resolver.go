// ABOUTME: Maps the user's (project, team, agent) selection to a conversation
// ABOUTME: Ensures the log exists and joins the conversation when connected

package resolver

import (
	"log/slog"

	"github.com/cohortlabs/cohort/internal/convstore"
	"github.com/cohortlabs/cohort/internal/model"
	"github.com/cohortlabs/cohort/internal/wire"
)

// Selection is the user's current scope. AgentID wins over TeamID, which
// wins over the bare project.
type Selection struct {
	ProjectID string
	TeamID    string
	AgentID   string
}

// JoinSender is the slice of the realtime channel the resolver needs.
type JoinSender interface {
	Connected() bool
	Send(wire.Frame) error
}

// Resolver derives conversation identity from a selection and wires the
// side effects: the conversation store gets a (possibly empty) log, and a
// connected channel gets a join_conversation frame. Switching never touches
// any other conversation's log, so switching back is instant.
type Resolver struct {
	store  *convstore.Store
	sender JoinSender
	logger *slog.Logger
}

// New creates a resolver. sender may be nil when there is no live channel.
func New(store *convstore.Store, sender JoinSender, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  store,
		sender: sender,
		logger: logger.With("component", "resolver"),
	}
}

// Conversation computes identity only: id, mode, and participants.
func Conversation(sel Selection, roster model.Roster) model.Conversation {
	switch {
	case sel.AgentID != "":
		return model.Conversation{
			ID:             model.AgentConversationID(sel.ProjectID, sel.AgentID),
			Mode:           model.ModeAgent,
			ProjectID:      sel.ProjectID,
			ParticipantIDs: []string{sel.AgentID},
		}
	case sel.TeamID != "":
		return model.Conversation{
			ID:             model.TeamConversationID(sel.ProjectID, sel.TeamID),
			Mode:           model.ModeTeam,
			ProjectID:      sel.ProjectID,
			ParticipantIDs: roster.TeamAgentIDs(sel.TeamID),
		}
	default:
		return model.Conversation{
			ID:             model.ProjectConversationID(sel.ProjectID),
			Mode:           model.ModeProject,
			ProjectID:      sel.ProjectID,
			ParticipantIDs: roster.AgentIDs(),
		}
	}
}

// Resolve computes the conversation for a selection and applies the side
// effects. A join failure is logged, not fatal: the reconnect path re-joins
// the active conversation anyway.
func (r *Resolver) Resolve(sel Selection, roster model.Roster) model.Conversation {
	conv := Conversation(sel, roster)

	if created := r.store.Ensure(conv.ID); created {
		r.logger.Debug("conversation created",
			"conversation_id", conv.ID,
			"mode", conv.Mode,
			"participants", len(conv.ParticipantIDs))
	}

	if r.sender != nil && r.sender.Connected() {
		if err := r.sender.Send(wire.JoinConversation{ConversationID: conv.ID}); err != nil {
			r.logger.Warn("join_conversation send failed",
				"conversation_id", conv.ID,
				"error", err)
		}
	}

	return conv
}
