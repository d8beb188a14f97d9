package gateway

import (
	"log"
	"sync"
	"time"
)

const (
	// DefaultWaitTime bounds how long a session waits for a pong before
	// Ping gives up, and how long Close waits for the close handshake.
	DefaultWaitTime = 1 * time.Second

	// defaultSweepInterval is how often Sweep runs when KeepClean is
	// enabled, unless overridden by SetSweepInterval.
	defaultSweepInterval = 60 * time.Second
)

// SessionManager owns the set of sessions bound to one service path. It
// is safe for concurrent use: Add/Remove/TryGet are guarded by a mutex,
// while fan-out operations (Broadcast, Broadping) take a point-in-time
// snapshot under the lock and then operate on the copy so a slow or
// misbehaving session cannot hold the lock for the whole fan-out.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	waitTime      time.Duration
	keepClean     bool
	sweepInterval time.Duration

	state      atomicState
	sweepOnce  sync.Once
	sweepMu    sync.Mutex
	sweepStopC chan struct{}
}

// NewSessionManager creates a manager with the given per-ping wait time.
// A zero waitTime falls back to DefaultWaitTime.
func NewSessionManager(waitTime time.Duration) *SessionManager {
	if waitTime <= 0 {
		waitTime = DefaultWaitTime
	}
	m := &SessionManager{
		sessions:      make(map[string]*Session),
		waitTime:      waitTime,
		sweepInterval: defaultSweepInterval,
		sweepStopC:    make(chan struct{}),
	}
	m.state.store(StateReady)
	return m
}

// WaitTime returns the duration Ping and Close wait for a peer response.
func (m *SessionManager) WaitTime() time.Duration { return m.waitTime }

// SetSweepInterval overrides how often KeepClean runs Sweep. Must be
// called before KeepClean starts the background ticker; a non-positive
// value is ignored.
func (m *SessionManager) SetSweepInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.sweepInterval = d
}

// Count returns the number of sessions currently bound.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// add binds conn as a new Session under this manager, allocates its id,
// delivers OnOpen, and then starts its read loop, so OnOpen completes
// before any message is read. It is called by the host
// once the opening handshake and any CookieProcessor check succeed.
// While the manager is ShuttingDown or Stop it refuses the session
// (logged, no-op) and reports false so the caller can tear down the
// already-upgraded connection.
func (m *SessionManager) add(sess *Session) bool {
	if st := m.state.load(); st == StateShuttingDown || st == StateStop {
		log.Printf("gateway: session manager: refusing new session while %s", st)
		return false
	}

	sess.manager = m
	sess.id = newSessionID()
	sess.startedAt = time.Now()
	sess.setState(SessionOpen)

	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	func() {
		defer sess.recoverInto("OnOpen")
		sess.behavior.OnOpen(sess)
	}()
	go sess.readLoop()
	return true
}

// remove unbinds a session. Called by Session.finalize once its terminal
// close has been recorded; safe to call even if the session was never
// successfully added.
func (m *SessionManager) remove(sess *Session) {
	m.mu.Lock()
	delete(m.sessions, sess.id)
	m.mu.Unlock()
}

// TryGet looks up a session by id.
func (m *SessionManager) TryGet(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *SessionManager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast sends data to every bound session. Sends are chained: each
// session's send completes before the next session's send begins, and
// the chain runs on the caller's goroutine, so Broadcast returns only
// after the last send has completed and one slow client delays both the
// later sessions and the caller. A failed send is logged and the chain
// moves on to the next session.
func (m *SessionManager) Broadcast(data []byte, text bool) {
	m.BroadcastExcept(data, text, "")
}

// BroadcastExcept is Broadcast but skips the session whose id equals
// exclude, used so a session's own message is not echoed back to it.
func (m *SessionManager) BroadcastExcept(data []byte, text bool, exclude string) {
	for _, s := range m.snapshot() {
		if exclude != "" && s.id == exclude {
			continue
		}
		done := make(chan struct{})
		s.SendAsync(data, text, func(err error) {
			if err != nil {
				log.Printf("gateway: broadcast to session %s: %v", s.id, err)
			}
			close(done)
		})
		<-done
	}
}

// SendTo sends data to exactly one session by id, returning false if no
// such session is currently bound.
func (m *SessionManager) SendTo(id string, data []byte, text bool) bool {
	s, ok := m.TryGet(id)
	if !ok {
		return false
	}
	return s.Send(data, text) == nil
}

// PingTo pings exactly one session by id, returning false if no such
// session is bound or it did not reply within WaitTime.
func (m *SessionManager) PingTo(id string, message []byte) bool {
	s, ok := m.TryGet(id)
	if !ok {
		return false
	}
	return s.Ping(message)
}

// Broadping pings every bound session one after another and returns a
// map, keyed by session id, recording whether each session's pong
// arrived within WaitTime.
func (m *SessionManager) Broadping(message []byte) map[string]bool {
	sessions := m.snapshot()
	results := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		results[s.id] = s.Ping(message)
	}
	return results
}

// Sweep computes the inactive set via Broadping and closes each inactive
// session, still present, with code 1006 (Abnormal), the liveness pass
// KeepClean runs periodically. Only one Sweep may run at a time, guarded
// by sweepMu, a lock distinct from the main session lock so a slow sweep
// never stalls Add/Remove/TryGet. Sweep refuses to run (and aborts mid-
// run) while the manager is ShuttingDown, Stop, or empty.
func (m *SessionManager) Sweep() {
	if st := m.state.load(); st == StateShuttingDown || st == StateStop {
		return
	}
	if m.Count() == 0 {
		return
	}

	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	cid := newCorrelationID()
	for id, ponged := range m.Broadping(nil) {
		if ponged {
			continue
		}
		if st := m.state.load(); st == StateShuttingDown || st == StateStop {
			return
		}
		if sess, ok := m.TryGet(id); ok {
			log.Printf("gateway: sweep[%s]: session %s failed liveness check, closing", cid, id)
			_ = sess.Close(1006, "")
		}
	}
}

// KeepClean starts a background goroutine that calls Sweep on a timer
// (60s by default, see SetSweepInterval) until Stop is called. Calling
// it more than once has no additional effect.
func (m *SessionManager) KeepClean() {
	m.sweepOnce.Do(func() {
		m.keepClean = true
		go func() {
			ticker := time.NewTicker(m.sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					m.Sweep()
				case <-m.sweepStopC:
					return
				}
			}
		}()
	})
}

// Stop transitions the manager Ready/Start -> ShuttingDown -> Stop,
// closes every bound session with the given code and reason, and stops
// the KeepClean sweeper if running. Once ShuttingDown, add refuses any
// new session. Calling Stop more than once is safe; later calls are
// no-ops.
func (m *SessionManager) Stop(code uint16, reason string) {
	for {
		cur := m.state.load()
		if cur == StateShuttingDown || cur == StateStop {
			return
		}
		if m.state.compareAndSwap(cur, StateShuttingDown) {
			break
		}
	}

	select {
	case <-m.sweepStopC:
	default:
		close(m.sweepStopC)
	}

	var wg sync.WaitGroup
	for _, s := range m.snapshot() {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			_ = s.Close(code, reason)
			<-s.Done()
		}(s)
	}
	wg.Wait()

	m.state.store(StateStop)
}
