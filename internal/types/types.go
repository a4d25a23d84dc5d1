// Package types holds the client -> server frame. Outbound frames live in
// pkg/types so other services can decode them.
package types

import "encoding/json"

// Inbound event names.
const (
	TypeJoinTerminal    = "join_terminal"
	TypeLeaveTerminal   = "leave_terminal"
	TypeTerminalCreated = "terminal_created"
	TypeTerminalRenamed = "terminal_renamed"
	TypeTerminalClosed  = "terminal_closed"
	TypeVariableUpdated = "variable_updated"
	TypePlaybookUpdated = "playbook_updated"
	TypeNotesUpdated    = "notes_updated"
	TypeEditingStarted  = "editing_started"
	TypeEditingStopped  = "editing_stopped"
)

// ClientMessage is flat: which fields matter depends on Type.
type ClientMessage struct {
	Type       string          `json:"type"`
	TerminalID string          `json:"terminal_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Action     string          `json:"action,omitempty"`
	Port       int             `json:"port,omitempty"`
	Content    string          `json:"content,omitempty"`
	ResourceID string          `json:"resource_id,omitempty"`
}
