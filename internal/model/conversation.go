// ABOUTME: Conversation identity and project roster types
// ABOUTME: Conversations are derived from the user's selection, never stored

package model

import (
	"fmt"
	"strings"
)

// ConversationMode is the granularity a conversation addresses.
type ConversationMode string

const (
	ModeProject ConversationMode = "project"
	ModeTeam    ConversationMode = "team"
	ModeAgent   ConversationMode = "agent"
)

// Conversation is identity only: id, mode, and who participates. It is
// recomputed from the current selection plus the roster; the message log
// lives in the conversation store keyed by ID.
type Conversation struct {
	ID             string           `json:"id"`
	Mode           ConversationMode `json:"mode"`
	ProjectID      string           `json:"projectId"`
	ParticipantIDs []string         `json:"participantIds"`
}

// Agent is one AI colleague in a project roster.
type Agent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	TeamID string `json:"teamId,omitempty"`
}

// Roster is the set of agents available in a project.
type Roster struct {
	ProjectID string  `json:"projectId"`
	Agents    []Agent `json:"agents"`
}

// AgentIDs returns the ids of every agent in the roster.
func (r Roster) AgentIDs() []string {
	ids := make([]string, 0, len(r.Agents))
	for _, a := range r.Agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// TeamAgentIDs returns the ids of agents belonging to the given team.
func (r Roster) TeamAgentIDs(teamID string) []string {
	var ids []string
	for _, a := range r.Agents {
		if a.TeamID == teamID {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// AgentByID looks up an agent in the roster.
func (r Roster) AgentByID(id string) (Agent, bool) {
	for _, a := range r.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// ProjectConversationID returns the id for a whole-project conversation.
func ProjectConversationID(projectID string) string {
	return fmt.Sprintf("project:%s", projectID)
}

// TeamConversationID returns the id for a team-scoped conversation.
func TeamConversationID(projectID, teamID string) string {
	return fmt.Sprintf("team:%s:%s", projectID, teamID)
}

// AgentConversationID returns the id for a one-on-one conversation.
func AgentConversationID(projectID, agentID string) string {
	return fmt.Sprintf("agent:%s:%s", projectID, agentID)
}

// ParseConversationID splits a conversation id back into mode, project, and
// scope (team or agent id; empty for project mode). ok is false for ids that
// were not produced by the functions above.
func ParseConversationID(id string) (mode ConversationMode, projectID, scopeID string, ok bool) {
	parts := strings.SplitN(id, ":", 3)
	switch {
	case len(parts) == 2 && parts[0] == string(ModeProject):
		return ModeProject, parts[1], "", true
	case len(parts) == 3 && parts[0] == string(ModeTeam):
		return ModeTeam, parts[1], parts[2], true
	case len(parts) == 3 && parts[0] == string(ModeAgent):
		return ModeAgent, parts[1], parts[2], true
	}
	return "", "", "", false
}
