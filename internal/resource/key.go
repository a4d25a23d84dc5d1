package resource

import (
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyID = errors.New("empty resource id")
var ErrMalformedID = errors.New("malformed resource id")

type Kind string

const (
	KindNotes     Kind = "notes"
	KindPlaybook  Kind = "playbook"
	KindVariables Kind = "variables"
)

// GlobalScope is the literal scope segment addressing the global audience.
const GlobalScope = "global"

const sep = ":"

// Scope is either global (Terminal == "") or one terminal's room.
type Scope struct {
	Terminal string
}

func Global() Scope                 { return Scope{} }
func TerminalScope(id string) Scope { return Scope{Terminal: id} }
func (s Scope) IsGlobal() bool      { return s.Terminal == "" }

func (s Scope) String() string {
	if s.IsGlobal() {
		return GlobalScope
	}
	return s.Terminal
}

// Key identifies an editable resource. It is comparable and used directly as a map key.
type Key struct {
	Kind  Kind
	Scope Scope
	Name  string
}

func (k Key) String() string {
	if k.Name == "" {
		return string(k.Kind) + sep + k.Scope.String()
	}
	// playbook:<name> is the short form for global playbooks
	if k.Kind == KindPlaybook && k.Scope.IsGlobal() {
		return string(k.Kind) + sep + k.Name
	}
	return string(k.Kind) + sep + k.Scope.String() + sep + k.Name
}

// Parse turns a wire resource id ("notes:global", "notes:t1", "playbook:deploy.md",
// "playbook:t1:deploy.md") into a Key.
func Parse(id string) (Key, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Key{}, ErrEmptyID
	}

	parts := strings.SplitN(id, sep, 3)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return Key{}, fmt.Errorf("%w: %q has an empty segment", ErrMalformedID, id)
		}
	}
	if len(parts) < 2 {
		return Key{}, fmt.Errorf("%w: %q has no scope", ErrMalformedID, id)
	}

	k := Key{Kind: Kind(parts[0])}

	if len(parts) == 2 {
		if k.Kind == KindPlaybook && parts[1] != GlobalScope {
			k.Name = parts[1]
			return k, nil
		}
		k.Scope = parseScope(parts[1])
		return k, nil
	}

	k.Scope = parseScope(parts[1])
	k.Name = parts[2]
	return k, nil
}

func parseScope(s string) Scope {
	if s == GlobalScope {
		return Global()
	}
	return TerminalScope(s)
}

// NotesKey addresses the notes panel of terminal, or the global notes when terminal is empty.
func NotesKey(terminal string) Key {
	return Key{Kind: KindNotes, Scope: Scope{Terminal: terminal}}
}
