// Package session tracks the lifecycle of an LSP connection and the live
// sessions of a daemon.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

// ErrInvalidTransition is returned when a lifecycle transition is not legal
// from the current state.
var ErrInvalidTransition = errors.New("session: invalid lifecycle transition")

// State is a connection lifecycle state.
type State int

const (
	Uninitialized State = iota
	Initializing
	Running
	ShuttingDown
	Exited
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting-down"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Verdict is the outcome of checking a message against the lifecycle state.
type Verdict int

const (
	// Allow dispatches the message.
	Allow Verdict = iota
	// Drop ignores a notification.
	Drop
	// RejectNotInitialized answers a request with ServerNotInitialized.
	RejectNotInitialized
	// RejectInvalid answers a request with InvalidRequest.
	RejectInvalid
)

// Err returns the error response for a rejecting verdict, nil otherwise.
func (v Verdict) Err(method string, state State) *rpc.Error {
	switch v {
	case RejectNotInitialized:
		return rpc.Errorf(rpc.CodeServerNotInitialized, "server not initialized: %s", method)
	case RejectInvalid:
		return rpc.Errorf(rpc.CodeInvalidRequest, "%s not allowed while %s", method, state)
	default:
		return nil
	}
}

// Negotiated is what initialize settled on.
type Negotiated struct {
	Encoding     lsp.OffsetEncoding
	Capabilities lsp.ServerCapabilities
	Client       *lsp.ClientInfo
	RootURI      lsp.DocumentURI
	Folders      []lsp.WorkspaceFolder
	Trace        string
}

// Info is a read-only snapshot of a session.
type Info struct {
	ID        string
	State     State
	CreatedAt time.Time
	Negotiated
}

// Session is the lifecycle state machine of one connection. It is safe for
// concurrent use; only the connection's reader transitions it.
type Session struct {
	id        string
	createdAt time.Time

	mu         sync.RWMutex
	state      State
	clean      bool
	negotiated Negotiated
}

// New returns a session in the Uninitialized state.
func New() *Session {
	return &Session{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		state:     Uninitialized,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Check decides what to do with a message given the current state.
func (s *Session) Check(method string, isRequest bool) Verdict {
	state := s.State()

	if method == lsp.MethodExit && !isRequest {
		if state == Exited {
			return Drop
		}
		return Allow
	}

	if method == lsp.MethodInitialize {
		if !isRequest {
			return Drop
		}
		if state == Uninitialized {
			return Allow
		}
		return RejectInvalid
	}

	switch state {
	case Uninitialized, Initializing:
		if isRequest {
			return RejectNotInitialized
		}
		return Drop
	case Running:
		return Allow
	default:
		if isRequest {
			return RejectInvalid
		}
		return Drop
	}
}

// BeginInitialize moves Uninitialized to Initializing.
func (s *Session) BeginInitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Uninitialized {
		return fmt.Errorf("%w: initialize while %s", ErrInvalidTransition, s.state)
	}
	s.state = Initializing
	return nil
}

// CompleteInitialize records the negotiation and moves to Running.
func (s *Session) CompleteInitialize(n Negotiated) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Initializing {
		return fmt.Errorf("%w: complete initialize while %s", ErrInvalidTransition, s.state)
	}
	n.Folders = slices.Clone(n.Folders)
	s.negotiated = n
	s.state = Running
	return nil
}

// AbortInitialize returns a failed initialize to Uninitialized.
func (s *Session) AbortInitialize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Initializing {
		s.state = Uninitialized
	}
}

// Shutdown moves Running to ShuttingDown. No resources are released.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return fmt.Errorf("%w: shutdown while %s", ErrInvalidTransition, s.state)
	}
	s.state = ShuttingDown
	return nil
}

// Exit moves any state to Exited. clean reports whether shutdown preceded it.
func (s *Session) Exit() (clean bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Exited {
		s.clean = s.state == ShuttingDown
		s.state = Exited
	}
	return s.clean
}

// SetTrace records the trace level requested by $/setTrace.
func (s *Session) SetTrace(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.negotiated.Trace = value
}

// UpdateFolders applies a workspace folder change event.
func (s *Session) UpdateFolders(added, removed []lsp.WorkspaceFolder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folders := slices.DeleteFunc(s.negotiated.Folders, func(f lsp.WorkspaceFolder) bool {
		return slices.ContainsFunc(removed, func(r lsp.WorkspaceFolder) bool { return r.URI == f.URI })
	})
	for _, f := range added {
		if !slices.ContainsFunc(folders, func(e lsp.WorkspaceFolder) bool { return e.URI == f.URI }) {
			folders = append(folders, f)
		}
	}
	s.negotiated.Folders = folders
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.negotiated
	n.Folders = slices.Clone(n.Folders)
	return Info{
		ID:         s.id,
		State:      s.state,
		CreatedAt:  s.createdAt,
		Negotiated: n,
	}
}
