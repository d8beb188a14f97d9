package gateway

import (
	"crypto/md5"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeFinder struct {
	identity string
	secret   string
	realm    string
}

func (f *fakeFinder) VerifyBasic(identity, secret string) bool {
	return identity == f.identity && secret == f.secret
}

func (f *fakeFinder) HA1(identity, realm string) (string, bool) {
	if identity != f.identity || realm != f.realm {
		return "", false
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s:%s", identity, realm, f.secret)))
	return fmt.Sprintf("%x", sum), true
}

func TestAuthenticator_Anonymous(t *testing.T) {
	a := NewAuthenticator(AuthAnonymous, "realm", nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	identity, err := a.Authenticate(rec, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity != "" {
		t.Errorf("identity = %q, want empty", identity)
	}
}

func TestAuthenticator_BasicSuccess(t *testing.T) {
	finder := &fakeFinder{identity: "alice", secret: "hunter2", realm: "test"}
	a := NewAuthenticator(AuthBasic, "test", finder)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("alice", "hunter2")
	rec := httptest.NewRecorder()

	identity, err := a.Authenticate(rec, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity != "alice" {
		t.Errorf("identity = %q, want alice", identity)
	}
}

func TestAuthenticator_BasicFailureChallenges(t *testing.T) {
	finder := &fakeFinder{identity: "alice", secret: "hunter2", realm: "test"}
	a := NewAuthenticator(AuthBasic, "test", finder)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("alice", "wrong")
	rec := httptest.NewRecorder()

	_, err := a.Authenticate(rec, req)
	if err == nil {
		t.Fatal("expected error for wrong password")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate challenge header")
	}
}

func TestAuthenticator_DigestRoundTrip(t *testing.T) {
	finder := &fakeFinder{identity: "alice", secret: "hunter2", realm: "test"}
	a := NewAuthenticator(AuthDigest, "test", finder)

	// First request: no credentials, expect a challenge with a nonce.
	req1 := httptest.NewRequest(http.MethodGet, "/resource", nil)
	rec1 := httptest.NewRecorder()
	if _, err := a.Authenticate(rec1, req1); err == nil {
		t.Fatal("expected error on uncredentialed request")
	}
	challenge := rec1.Header().Get("WWW-Authenticate")
	if challenge == "" {
		t.Fatal("expected digest challenge header")
	}
	nonce := extractParam(challenge, "nonce")
	if nonce == "" {
		t.Fatal("expected nonce in challenge")
	}

	ha1, ok := finder.HA1("alice", "test")
	if !ok {
		t.Fatal("expected HA1 for alice")
	}
	ha2 := md5Hex(http.MethodGet + ":/resource")
	response := md5Hex(ha1 + ":" + nonce + ":" + ha2)

	req2 := httptest.NewRequest(http.MethodGet, "/resource", nil)
	req2.Header.Set("Authorization", fmt.Sprintf(
		`Digest username="alice", realm="test", nonce="%s", uri="/resource", response="%s"`,
		nonce, response))
	rec2 := httptest.NewRecorder()

	identity, err := a.Authenticate(rec2, req2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity != "alice" {
		t.Errorf("identity = %q, want alice", identity)
	}
}

// extractParam pulls one key="value" pair out of a WWW-Authenticate
// Digest challenge header, which (unlike an Authorization header) has
// no username/response fields so parseDigestHeader does not apply.
func extractParam(header, key string) string {
	marker := key + `="`
	idx := strings.Index(header, marker)
	if idx < 0 {
		return ""
	}
	rest := header[idx+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}
