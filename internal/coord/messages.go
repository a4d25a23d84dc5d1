package coord

import "github.com/DoyleJ11/wavesync/internal/resource"

// Msg is anything the coordinator loop accepts. The set is closed: only the
// types in this file implement it.
type Msg interface{ eventName() string }

// Connect registers a transport-level connection. ConnID is issued by the
// transport and stays stable for the connection's lifetime.
type Connect struct {
	ConnID   string
	Username string
}

// Disconnect is the only cancellation signal: it removes the connection and
// frees every lock it held.
type Disconnect struct{ ConnID string }

type JoinTerminal struct {
	ConnID     string
	TerminalID string
}

type LeaveTerminal struct {
	ConnID     string
	TerminalID string
}

// TerminalLifecycle relays terminal_created, terminal_renamed and
// terminal_closed notifications from the terminal manager.
type TerminalLifecycle struct {
	ConnID     string
	Event      string
	TerminalID string
	Name       string
	Port       int
}

type VariableUpdated struct {
	ConnID     string
	TerminalID string
	Name       string
	Value      any
	Action     string
}

type PlaybookUpdated struct {
	ConnID     string
	TerminalID string
	Name       string
	Action     string
}

// NotesUpdated with an empty TerminalID targets the global notes.
type NotesUpdated struct {
	ConnID     string
	TerminalID string
	Content    string
}

type EditingStarted struct {
	ConnID string
	Key    resource.Key
}

type EditingStopped struct {
	ConnID string
	Key    resource.Key
}

// ForceUnlock clears a lock regardless of holder. Reply, when set, receives
// whether a lock existed.
type ForceUnlock struct {
	Key   resource.Key
	Reply chan bool
}

// Invalid carries a request rejected at the wire boundary so the loop can
// answer it with an error reply.
type Invalid struct {
	ConnID  string
	Event   string
	Code    string
	Message string
}

// Sweep expires stale locks. The loop sends it to itself on a ticker; tests
// can send it directly.
type Sweep struct{}

type Shutdown struct{}

// GetState reflects loop-owned counters without racing the loop.
type GetState struct {
	Reply chan View
}

type View struct {
	Clients int
	Locks   int
}

func (Connect) eventName() string             { return "connect" }
func (Disconnect) eventName() string          { return "disconnect" }
func (JoinTerminal) eventName() string        { return "join_terminal" }
func (LeaveTerminal) eventName() string       { return "leave_terminal" }
func (m TerminalLifecycle) eventName() string { return m.Event }
func (VariableUpdated) eventName() string     { return "variable_updated" }
func (PlaybookUpdated) eventName() string     { return "playbook_updated" }
func (NotesUpdated) eventName() string        { return "notes_updated" }
func (EditingStarted) eventName() string      { return "editing_started" }
func (EditingStopped) eventName() string      { return "editing_stopped" }
func (ForceUnlock) eventName() string         { return "force_unlock" }
func (Invalid) eventName() string             { return "invalid" }
func (Sweep) eventName() string               { return "sweep" }
func (Shutdown) eventName() string            { return "shutdown" }
func (GetState) eventName() string            { return "get_state" }
