package gateway

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// newSessionID allocates a session id: a UUID-v4 rendered as 32 lowercase
// hex characters with no dashes, per the wire-level id format. Collision
// within one SessionManager is treated as impossible (probability <= 2^-122).
func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// newCorrelationID returns a time-sortable id. It tags a single sweep
// cycle in log lines, so the lines for one cycle can be grepped together,
// and it serves as the Digest authentication nonce sent in
// WWW-Authenticate challenges. It is distinct from a session id and never
// identifies a session.
func newCorrelationID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}
