package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState is the authentication phase of a server-side session.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "Unauthenticated"
	case StateAuthenticated:
		return "Authenticated"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for message handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, m Message)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps tags to handlers with state-based access control.
type Registry struct {
	handlers map[Tag]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[Tag]*handlerEntry),
		log:      log,
	}
}

// Register maps a tag to a handler, restricted to the given session states.
func (reg *Registry) Register(tag Tag, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[tag] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch decodes data, validates the session state and calls the
// handler registered for the message's tag. Malformed payloads come back
// as *DecodeError; tags without a handler are ignored.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	m, err := Decode(data)
	if err != nil {
		return err
	}
	tag := m.Tag()
	reg.log.Debug("message received",
		zap.Stringer("tag", tag),
		zap.Int("size", len(data)),
		zap.Stringer("state", state),
	)

	entry, ok := reg.handlers[tag]
	if !ok {
		reg.log.Debug("no handler for tag", zap.Stringer("tag", tag))
		return nil
	}

	if !entry.allowedStates[state] {
		reg.log.Warn("tag not allowed in state",
			zap.Stringer("tag", tag),
			zap.Stringer("state", state),
		)
		return fmt.Errorf("tag %s not allowed in state %s", tag, state)
	}

	return reg.safeCall(entry.fn, sess, m)
}

// safeCall executes a handler with panic recovery to prevent a single
// bad message from crashing the entire server loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, m Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.Stringer("tag", m.Tag()),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for tag %s: %v", m.Tag(), rec)
		}
	}()
	fn(sess, m)
	return nil
}
