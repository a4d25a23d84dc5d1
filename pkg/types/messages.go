// Package types is the server -> client wire protocol. Every frame is a JSON
// ServerMessage whose Type is one of the Evt* names and whose Data is the
// matching payload struct below.
package types

// Direct replies go only to the connection that caused them; everything else
// is broadcast to a computed audience.
const (
	EvtConnectionEstablished = "connection_established" // direct
	EvtClientsUpdated        = "clients_updated"
	EvtPresenceUpdate        = "terminal_presence_update"
	EvtJoinSuccess           = "join_terminal_success"  // direct
	EvtLeaveSuccess          = "leave_terminal_success" // direct
	EvtTerminalCreated       = "terminal_created"
	EvtTerminalRenamed       = "terminal_renamed"
	EvtTerminalClosed        = "terminal_closed"
	EvtVariableChanged       = "variable_changed"
	EvtPlaybookChanged       = "playbook_changed"
	EvtNotesChanged          = "notes_changed"
	EvtGlobalNotesChanged    = "global_notes_changed"
	EvtLockChanged           = "resource_lock_changed"
	EvtLockResponse          = "editing_lock_response"   // direct
	EvtUnlockResponse        = "editing_unlock_response" // direct
	EvtError                 = "error"                   // direct
)

const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// Reasons a lock was released without the holder asking.
const (
	ReasonDisconnect = "disconnect"
	ReasonExpired    = "expired"
	ReasonForced     = "forced"
)

// Error codes carried by ErrorPayload.
const (
	ErrCodeBadJSON       = "bad_json"
	ErrCodeUnknownType   = "unknown_type"
	ErrCodeMissingField  = "missing_field"
	ErrCodeBadResourceID = "bad_resource_id"
)

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Client is one entry of a presence listing.
type Client struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ActiveTerminal string `json:"active_terminal,omitempty"`
	ConnectedAt    int64  `json:"connected_at"` // unix millis
}

type ConnectionEstablished struct {
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	ClientCount int    `json:"client_count"`
	Timestamp   int64  `json:"timestamp"`
}

type ClientsUpdated struct {
	Clients []Client `json:"clients"`
	Count   int      `json:"count"`
}

type PresenceUpdate struct {
	TerminalID string   `json:"terminal_id"`
	Clients    []Client `json:"clients"`
	Action     string   `json:"action"` // join | leave
	ClientID   string   `json:"client_id"`
	Username   string   `json:"username,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}

type JoinSuccess struct {
	TerminalID string   `json:"terminal_id"`
	Clients    []Client `json:"clients"`
}

type LeaveSuccess struct {
	TerminalID string `json:"terminal_id"`
}

type TerminalEvent struct {
	TerminalID string `json:"terminal_id"`
	Name       string `json:"name,omitempty"`
	Port       int    `json:"port,omitempty"`
	SenderID   string `json:"sender_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

type VariableChanged struct {
	TerminalID string `json:"terminal_id"`
	Name       string `json:"name"`
	Value      any    `json:"value"`
	Action     string `json:"action"` // create | update | delete
	SenderID   string `json:"sender_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

type PlaybookChanged struct {
	TerminalID string `json:"terminal_id"`
	Name       string `json:"name"`
	Action     string `json:"action"` // load | update | close
	SenderID   string `json:"sender_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// NotesChanged is sent as notes_changed for terminal notes (TerminalID set)
// and as global_notes_changed otherwise.
type NotesChanged struct {
	TerminalID string `json:"terminal_id,omitempty"`
	Content    string `json:"content"`
	SenderID   string `json:"sender_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

type LockChanged struct {
	ResourceID string `json:"resource_id"`
	Locked     bool   `json:"locked"`
	ClientID   string `json:"client_id,omitempty"`
	Username   string `json:"username,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// LockInfo describes the current holder of a resource.
type LockInfo struct {
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	AcquiredAt int64  `json:"timestamp"`
}

type LockResponse struct {
	ResourceID string    `json:"resource_id"`
	Success    bool      `json:"success"`
	LockInfo   *LockInfo `json:"lock_info,omitempty"`
}

type UnlockResponse struct {
	ResourceID string `json:"resource_id"`
	Success    bool   `json:"success"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// Lock is one entry of the lock listing endpoint.
type Lock struct {
	ResourceID string `json:"resource_id"`
	Kind       string `json:"kind"`
	TerminalID string `json:"terminal_id,omitempty"`
	Name       string `json:"name,omitempty"`
	LockInfo
}
