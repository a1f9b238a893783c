package server

import (
	"time"

	"github.com/vibeknowing/companion/internal/session"
	"github.com/vibeknowing/companion/internal/stream"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type ArtifactChunkEvent struct {
	Event
	Artifact string `json:"artifact"`
	Text     string `json:"text"`
}

type ArtifactCompleteEvent struct {
	Event
	Artifact string `json:"artifact"`
	Content  string `json:"content"`
}

type SegmentsReplacedEvent struct {
	Event
	Segments []stream.Segment `json:"segments"`
}

type LoadingEvent struct {
	Event
	Active  bool   `json:"active"`
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

type ChatTurnEvent struct {
	Event
	Role    string `json:"role"`
	Content string `json:"content"`
}

type SuggestionsEvent struct {
	Event
	Suggestions []session.Suggestion `json:"suggestions"`
}

type VideoSummaryEvent struct {
	Event
	Summary string `json:"summary"`
}

type ErrorEvent struct {
	Event
	Message string `json:"message"`
}

type SessionResetEvent struct {
	Event
	InputMode string `json:"input_mode"`
}

type TabsEvent struct {
	Event
	OutputTab string `json:"output_tab"`
	PanelTab  string `json:"panel_tab"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

type SnapshotEvent struct {
	Event
	Session session.Session `json:"session"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
