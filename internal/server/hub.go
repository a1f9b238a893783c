package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/vibeknowing/companion/internal/session"
	"github.com/vibeknowing/companion/internal/stream"
)

// Hub fans session state changes out to all connected websocket clients. It
// implements session.Notifier; sends never block, a slow client just misses
// events and resyncs from the snapshot endpoint.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) ArtifactChunk(artifact session.Artifact, text string) {
	h.broadcastEvent(ArtifactChunkEvent{
		Event:    newEvent("artifact_chunk", time.Now().UTC()),
		Artifact: string(artifact),
		Text:     text,
	})
}

func (h *Hub) ArtifactComplete(artifact session.Artifact, full string) {
	h.broadcastEvent(ArtifactCompleteEvent{
		Event:    newEvent("artifact_complete", time.Now().UTC()),
		Artifact: string(artifact),
		Content:  full,
	})
}

func (h *Hub) SegmentsReplaced(segments []stream.Segment) {
	h.broadcastEvent(SegmentsReplacedEvent{
		Event:    newEvent("segments", time.Now().UTC()),
		Segments: segments,
	})
}

func (h *Hub) LoadingChanged(loading session.Loading) {
	h.broadcastEvent(LoadingEvent{
		Event:   newEvent("loading", time.Now().UTC()),
		Active:  loading.Active,
		Kind:    string(loading.Kind),
		Message: loading.Message,
	})
}

func (h *Hub) ChatTurnAdded(turn session.ChatTurn) {
	h.broadcastEvent(ChatTurnEvent{
		Event:   newEvent("chat_turn", time.Now().UTC()),
		Role:    string(turn.Role),
		Content: turn.Content,
	})
}

func (h *Hub) SuggestionsReady(suggestions []session.Suggestion) {
	h.broadcastEvent(SuggestionsEvent{
		Event:       newEvent("suggestions", time.Now().UTC()),
		Suggestions: suggestions,
	})
}

func (h *Hub) VideoSummaryReady(summary string) {
	h.broadcastEvent(VideoSummaryEvent{
		Event:   newEvent("video_summary", time.Now().UTC()),
		Summary: summary,
	})
}

func (h *Hub) ErrorOccurred(message string) {
	h.broadcastEvent(ErrorEvent{
		Event:   newEvent("error", time.Now().UTC()),
		Message: message,
	})
}

func (h *Hub) SessionReset(mode session.InputMode) {
	h.broadcastEvent(SessionResetEvent{
		Event:     newEvent("session_reset", time.Now().UTC()),
		InputMode: string(mode),
	})
}

func (h *Hub) TabChanged(output session.OutputTab, panel session.PanelTab) {
	h.broadcastEvent(TabsEvent{
		Event:     newEvent("tabs", time.Now().UTC()),
		OutputTab: string(output),
		PanelTab:  string(panel),
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
