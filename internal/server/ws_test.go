package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vibeknowing/companion/internal/session"
)

func TestHubBroadcastEventShape(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.ArtifactChunk(session.ArtifactSummary, "streamed text")

	select {
	case msg := <-ch:
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if payload["type"] != "artifact_chunk" {
			t.Fatalf("expected event type artifact_chunk, got %#v", payload["type"])
		}
		if payload["artifact"] != "summary" {
			t.Fatalf("expected artifact summary, got %#v", payload["artifact"])
		}
		if payload["version"] == nil {
			t.Fatalf("expected version field in payload: %s", string(msg))
		}
		if payload["timestamp"] == nil {
			t.Fatalf("expected timestamp field in payload: %s", string(msg))
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for hub broadcast")
	}
}

func TestHubSlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Overfill the subscriber buffer; broadcasts must still return.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.LoadingChanged(session.Loading{Active: true, Kind: session.LoadingSummary})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}
