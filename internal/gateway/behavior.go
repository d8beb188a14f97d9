package gateway

import "net/http"

// Behavior is the user-supplied event-handler implementing one service's
// per-session application logic. A fresh instance is produced by a
// service's Factory for every accepted session; the core delivers events
// to it in the order OnOpen, then zero or more OnMessage/OnError, then
// exactly one terminal OnClose.
//
// Implementations must tolerate being called from a goroutine other than
// whichever one constructed them: the core never guarantees which
// goroutine drives a session's events, only that events for the same
// session never run concurrently with each other.
type Behavior interface {
	OnOpen(s *Session)
	OnMessage(s *Session, msg MessageEventArgs)
	OnError(s *Session, err ErrorEventArgs)
	OnClose(s *Session, ev CloseEventArgs)
}

// CookieProcessor is an optional extension a Behavior may implement to
// inspect or reject a handshake's cookies before the opening handshake
// completes. Returning false causes the host to answer 400 Bad Request
// and close the socket without ever calling OnOpen.
type CookieProcessor interface {
	ProcessCookies(r *http.Request, header http.Header) bool
}

// Factory produces a fresh Behavior instance for each accepted session.
// Registration APIs take a Factory closure, never a reflected type, so
// that behaviors can close over per-service state.
type Factory func() Behavior

// Opcode distinguishes a text frame from a binary frame in MessageEventArgs.
type Opcode int

const (
	OpcodeText Opcode = iota
	OpcodeBinary
)

// MessageEventArgs carries one inbound WebSocket data frame.
type MessageEventArgs struct {
	Opcode  Opcode
	Payload []byte
}

// ErrorEventArgs carries a data-plane error: something that happened
// while serving a session but that must not tear down the process. It is
// always delivered through Behavior.OnError, never propagated as a Go
// error up through the Server.
type ErrorEventArgs struct {
	Message string
	Err     error
}

// CloseEventArgs carries the terminal disposition of a session.
type CloseEventArgs struct {
	Code     uint16
	Reason   string
	WasClean bool
}
