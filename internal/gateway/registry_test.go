package gateway

import (
	"testing"
	"time"
)

func TestServiceRegistry_AddNormalizesPath(t *testing.T) {
	r := NewServiceRegistry()
	host, err := r.Add("/chat/", func() Behavior { return newRecordingBehavior() }, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host.Path() != "/chat" {
		t.Errorf("Path() = %q, want /chat", host.Path())
	}

	got, ok := r.TryGet("/chat")
	if !ok || got != host {
		t.Error("TryGet(/chat) did not return the registered host")
	}
	got2, ok := r.TryGet("/chat/")
	if !ok || got2 != host {
		t.Error("TryGet(/chat/) should resolve to the same normalized host")
	}
}

func TestServiceRegistry_AddRejectsInvalidPath(t *testing.T) {
	r := NewServiceRegistry()
	_, err := r.Add("no-leading-slash", func() Behavior { return newRecordingBehavior() }, time.Second)
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestServiceRegistry_AddRejectsDuplicatePath(t *testing.T) {
	r := NewServiceRegistry()
	first, err := r.Add("/chat", func() Behavior { return newRecordingBehavior() }, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = r.Add("/chat", func() Behavior { return newRecordingBehavior() }, time.Second)
	if err == nil {
		t.Fatal("expected error registering a duplicate path")
	}

	got, ok := r.TryGet("/chat")
	if !ok || got != first {
		t.Error("duplicate Add must leave the original host registered")
	}
}

func TestServiceRegistry_RemoveUnregistersPath(t *testing.T) {
	r := NewServiceRegistry()
	_, err := r.Add("/chat", func() Behavior { return newRecordingBehavior() }, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.Remove("/chat")

	if _, ok := r.TryGet("/chat"); ok {
		t.Error("expected /chat to be unregistered after Remove")
	}
}

func TestServiceRegistry_RemoveUnknownPathIsNoop(t *testing.T) {
	r := NewServiceRegistry()
	r.Remove("/does-not-exist") // must not panic
}

func TestServiceRegistry_TryGetUnknownPath(t *testing.T) {
	r := NewServiceRegistry()
	if _, ok := r.TryGet("/missing"); ok {
		t.Error("expected TryGet to report false for an unregistered path")
	}
}

func TestServiceRegistry_BroadcastToUnknownPathIsNoop(t *testing.T) {
	r := NewServiceRegistry()
	r.BroadcastTo("/missing", []byte("x"), true) // must not panic
}

func TestServiceRegistry_BroadpingNestsResultsByPath(t *testing.T) {
	r := NewServiceRegistry()
	if _, err := r.Add("/chat", func() Behavior { return newRecordingBehavior() }, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := r.Broadping([]byte("ping"))
	if _, ok := results["/chat"]; !ok {
		t.Fatal("expected an entry for /chat even with no bound sessions")
	}
	if len(results["/chat"]) != 0 {
		t.Errorf("expected empty session map for a host with no sessions, got %v", results["/chat"])
	}
}
