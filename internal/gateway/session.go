package gateway

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SessionState mirrors the underlying WebSocket endpoint's state.
type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionOpen
	SessionClosing
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "Connecting"
	case SessionOpen:
		return "Open"
	case SessionClosing:
		return "Closing"
	case SessionClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// HandshakeContext is the immutable snapshot of the upgrade request taken
// at handshake time: request URI, headers, query parameters, cookies, and
// whatever identity authentication attached to the request.
type HandshakeContext struct {
	RequestURI *url.URL
	Header     http.Header
	Query      url.Values
	Cookies    []*http.Cookie
	Identity   string // authenticated username, empty under AuthAnonymous
}

// Session is one bound WebSocket connection: its id, start time, the
// handshake snapshot, the underlying socket, and the behavior instance
// driving it. A Session is reachable from its manager's lookup exactly
// between the Open and Close events.
type Session struct {
	id        string
	startedAt time.Time
	context   *HandshakeContext
	conn      *websocket.Conn
	behavior  Behavior
	waitTime  time.Duration

	manager *SessionManager

	writeMu     sync.Mutex
	connCloseMu sync.Once
	state       atomicState

	pingMu      sync.Mutex
	pendingPong chan struct{}

	closeInfoOnce sync.Once
	closeCode     uint16
	closeReason   string
	closeClean    bool

	finalizeOnce sync.Once
	doneCh       chan struct{}
}

func newSession(conn *websocket.Conn, ctx *HandshakeContext, behavior Behavior, waitTime time.Duration) *Session {
	s := &Session{
		context:  ctx,
		conn:     conn,
		behavior: behavior,
		waitTime: waitTime,
		doneCh:   make(chan struct{}),
	}
	s.state.store(State(SessionConnecting))
	conn.SetPongHandler(func(string) error {
		s.signalPong()
		return nil
	})
	return s
}

// ID returns the session's allocated id. Empty until the manager has
// added the session (i.e. before OnOpen has fired).
func (s *Session) ID() string { return s.id }

// StartedAt returns the time the session was opened.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Context returns the handshake snapshot captured at Open time.
func (s *Session) Context() *HandshakeContext { return s.context }

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState { return SessionState(s.state.load()) }

func (s *Session) setState(st SessionState) { s.state.store(State(st)) }

// Send writes a message to the client. text selects a text frame over a
// binary frame. It blocks until the frame is written or the connection
// errors; callers that must not block the caller's own goroutine should
// use SendAsync.
func (s *Session) Send(data []byte, text bool) error {
	if s.State() != SessionOpen {
		return fmt.Errorf("session %s is not open", s.id)
	}

	mt := websocket.BinaryMessage
	if text {
		mt = websocket.TextMessage
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(mt, data)
}

// SendAsync writes a message on a new goroutine and invokes completed
// (if non-nil) with the result once the write finishes. Used by
// SessionManager.Broadcast's chained-completion fan-out so one slow
// client cannot block the accept loop or other broadcasts in flight.
func (s *Session) SendAsync(data []byte, text bool, completed func(error)) {
	go func() {
		err := s.Send(data, text)
		if completed != nil {
			completed(err)
		}
	}()
}

// Ping sends a ping control frame and blocks until a pong arrives or
// WaitTime elapses, returning true iff the pong arrived in time. Ping
// payloads over 125 bytes are rejected per the control-frame limit.
func (s *Session) Ping(message []byte) bool {
	if len(message) > 125 {
		return false
	}
	if s.State() != SessionOpen {
		return false
	}

	wait := make(chan struct{})
	s.setPendingPong(wait)

	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	err := s.conn.WriteMessage(websocket.PingMessage, message)
	s.writeMu.Unlock()
	if err != nil {
		return false
	}

	select {
	case <-wait:
		return true
	case <-time.After(s.waitTime):
		return false
	}
}

func (s *Session) setPendingPong(ch chan struct{}) {
	s.pingMu.Lock()
	s.pendingPong = ch
	s.pingMu.Unlock()
}

func (s *Session) signalPong() {
	s.pingMu.Lock()
	ch := s.pendingPong
	s.pendingPong = nil
	s.pingMu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// reservedCloseCode reports whether code must never be transmitted on the
// wire (RFC 6455 §7.4): 1005 (no status present) and 1006 (abnormal).
func reservedCloseCode(code uint16) bool {
	return code == 1005 || code == 1006
}

// maxCloseReasonBytes is the control-frame payload limit (125 bytes)
// minus the 2-byte status code, leaving 123 bytes for the UTF-8 reason.
const maxCloseReasonBytes = 123

func (s *Session) recordCloseInfo(code uint16, reason string, clean bool) {
	s.closeInfoOnce.Do(func() {
		s.closeCode = code
		s.closeReason = reason
		s.closeClean = clean
	})
}

func (s *Session) closeConn() {
	s.connCloseMu.Do(func() {
		_ = s.conn.Close()
	})
}

// Close initiates the closing handshake with the given code and reason and
// unblocks the session's read loop. Reserved codes (1005, 1006) suppress
// the Close frame entirely: the socket is torn down without ever writing
// one, though the code is still recorded on the CloseEventArgs eventually
// delivered to the behavior by the read loop's finalize step.
func (s *Session) Close(code uint16, reason string) error {
	if len(reason) > maxCloseReasonBytes {
		return &ConfigError{Field: "reason", Message: fmt.Sprintf("close reason exceeds %d UTF-8 bytes", maxCloseReasonBytes)}
	}

	s.recordCloseInfo(code, reason, true)
	s.setState(SessionClosing)

	if !reservedCloseCode(code) {
		s.writeMu.Lock()
		deadline := time.Now().Add(s.waitTime)
		msg := websocket.FormatCloseMessage(int(code), reason)
		_ = s.conn.SetWriteDeadline(deadline)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		s.writeMu.Unlock()
	}

	s.closeConn()
	return nil
}

// Done returns a channel closed once the session has fully closed, after
// its terminal OnClose has been delivered.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// readLoop pumps inbound frames until the connection errors, dispatching
// each to the behavior and finishing with exactly one OnClose. It must
// run on its own goroutine; SessionManager.add starts it once per
// session, after OnOpen has been delivered.
func (s *Session) readLoop() {
	defer s.finalize(nil)

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finalize(err)
			return
		}

		switch mt {
		case websocket.TextMessage:
			s.dispatchMessage(MessageEventArgs{Opcode: OpcodeText, Payload: data})
		case websocket.BinaryMessage:
			s.dispatchMessage(MessageEventArgs{Opcode: OpcodeBinary, Payload: data})
		default:
			// control frames are handled by gorilla's ping/pong/close
			// handlers before ReadMessage ever returns them here.
		}
	}
}

func (s *Session) dispatchMessage(msg MessageEventArgs) {
	defer s.recoverInto("OnMessage")
	s.behavior.OnMessage(s, msg)
}

func (s *Session) recoverInto(callback string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("behavior %s panicked: %v", callback, r)
		log.Printf("gateway: session %s: %v", s.id, err)
		s.safeOnError(ErrorEventArgs{Message: err.Error(), Err: err})
	}
}

func (s *Session) safeOnError(ev ErrorEventArgs) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("gateway: session %s: OnError panicked: %v", s.id, r)
		}
	}()
	s.behavior.OnError(s, ev)
}

// finalize runs exactly once per session: it records the close
// disposition (if not already recorded by an explicit Close call),
// closes the socket, marks the session Closed, and delivers the one
// terminal OnClose. readErr is the error ReadMessage returned (also when
// Close has torn down the socket and so unblocked the read); it is nil
// only for readLoop's deferred call, which records a normal 1000 close if
// nothing has been recorded yet.
func (s *Session) finalize(readErr error) {
	s.finalizeOnce.Do(func() {
		if readErr != nil {
			code, reason, clean := closeInfoFromError(readErr)
			s.recordCloseInfo(code, reason, clean)
		} else {
			s.recordCloseInfo(1000, "", true)
		}

		s.closeConn()
		s.setState(SessionClosed)

		ev := CloseEventArgs{Code: s.closeCode, Reason: s.closeReason, WasClean: s.closeClean}
		func() {
			defer s.recoverInto("OnClose")
			s.behavior.OnClose(s, ev)
		}()

		if s.manager != nil {
			s.manager.remove(s)
		}
		close(s.doneCh)
	})
}

// closeInfoFromError classifies a ReadMessage error into a close code,
// reason, and cleanliness. A peer-initiated close frame is clean and
// carries whatever code/reason the peer sent; anything else (reset,
// EOF, read-deadline, or a local Close unblocking the read) is treated
// as abnormal termination, RFC 6455 §7.1.6's 1006.
func closeInfoFromError(err error) (code uint16, reason string, clean bool) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return uint16(closeErr.Code), closeErr.Text, true
	}
	return 1006, err.Error(), false
}
