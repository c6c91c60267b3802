// Package protocol defines the messages exchanged between the controller and the worker.
//
// Every frame is a Message. Commands travel controller to worker, Events travel back,
// and the Kind field is the only discriminator. A separate Cmd field carries the
// one-time initialization handshake.
package protocol

import (
	"fmt"
	"math"
)

// Kind discriminates commands from events.
type Kind string

const (
	KindCommand Kind = "IO#Command"
	KindEvent   Kind = "IO#Event"
)

// EventType is the outcome carried by an Event.
type EventType string

const (
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Handshake commands.
const (
	CmdInitialize  = "initialize"
	CmdInitialized = "initialized"
)

// Message is the single wire frame. ID and Fn are kept loosely typed so that a
// malformed frame can still be inspected and answered.
type Message struct {
	Kind    Kind      `json:"kind,omitempty"`
	ID      any       `json:"id,omitempty"`
	Fn      any       `json:"fn,omitempty"`
	Args    []any     `json:"args,omitempty"`
	Type    EventType `json:"type,omitempty"`
	Result  any       `json:"result,omitempty"`
	Message string    `json:"message,omitempty"`
	Cmd     string    `json:"cmd,omitempty"`
	// Trace carries the trace context of the call that sent a Command.
	Trace map[string]string `json:"trace,omitempty"`
}

// NewCommand builds a Command frame.
func NewCommand(id uint64, fn string, args []any) Message {
	if args == nil {
		args = []any{}
	}
	return Message{Kind: KindCommand, ID: id, Fn: fn, Args: args}
}

// NewResult builds a successful Event for id.
func NewResult(id uint64, result any) Message {
	return Message{Kind: KindEvent, ID: id, Type: EventResult, Result: result}
}

// NewError builds a failed Event for id. Only the message text crosses the boundary.
func NewError(id uint64, message string) Message {
	return Message{Kind: KindEvent, ID: id, Type: EventError, Message: message}
}

// NumericID returns the id as an unsigned integer. It reports false when the id
// is missing, not a number, negative or fractional.
func (m Message) NumericID() (uint64, bool) {
	switch v := m.ID.(type) {
	case uint64:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case float64:
		if v < 0 || v != math.Trunc(v) || v > math.MaxUint64 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

// FuncName returns the function name of a Command, or false when it is not a non-empty string.
func (m Message) FuncName() (string, bool) {
	s, ok := m.Fn.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// IsHandshake reports whether the frame belongs to the initialization exchange.
func (m Message) IsHandshake() bool {
	return m.Cmd == CmdInitialize || m.Cmd == CmdInitialized
}

func (m Message) String() string {
	if m.Cmd != "" {
		return fmt.Sprintf("handshake(%s)", m.Cmd)
	}
	return fmt.Sprintf("%s(id=%v fn=%v type=%s)", m.Kind, m.ID, m.Fn, m.Type)
}
