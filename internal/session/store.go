// Package session holds the authoritative in-memory state for one analysis
// session. Every mutation that originates from an asynchronous stream event
// carries the generation it was started under; mutations from a superseded
// generation are silent no-ops, so events from an aborted request can never
// corrupt current state.
package session

import (
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vibeknowing/companion/internal/classify"
	"github.com/vibeknowing/companion/internal/stream"
)

// Store is the mutex-guarded session state holder.
type Store struct {
	mu       sync.Mutex
	s        Session
	notifier Notifier

	suggestionsFetched bool
	lastVideoID        string
}

// NewStore creates an empty session.
func NewStore() *Store {
	return &Store{
		s: Session{
			ID:        uuid.NewString(),
			InputMode: ModeURL,
			OutputTab: TabTranscript,
			PanelTab:  PanelQuiz,
		},
	}
}

// SetNotifier registers the presentation-layer notifier. Pass nil to detach.
func (st *Store) SetNotifier(n Notifier) {
	st.mu.Lock()
	st.notifier = n
	st.mu.Unlock()
}

// Snapshot returns a deep copy of the current session state.
func (st *Store) Snapshot() Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.copySessionLocked()
}

func (st *Store) copySessionLocked() Session {
	s := st.s
	s.Segments = append([]stream.Segment(nil), st.s.Segments...)
	s.ChatHistory = append([]ChatTurn(nil), st.s.ChatHistory...)
	s.Suggestions = append([]Suggestion(nil), st.s.Suggestions...)
	return s
}

// Generation returns the current generation counter.
func (st *Store) Generation() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.Generation
}

// BeginGeneration bumps the generation counter for a new top-level request
// and returns the new value. All stream events of the request must carry it.
func (st *Store) BeginGeneration() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Generation++
	return st.s.Generation
}

// ResetForInput clears all per-source state for a new submission, bumps the
// generation so stale in-flight updates become no-ops, and returns the new
// generation. The input mode and source fields survive; everything derived
// from the previous source does not.
func (st *Store) ResetForInput(mode InputMode) uint64 {
	st.mu.Lock()
	st.s.InputMode = mode
	st.s.Title = ""
	st.s.LastError = ""
	st.s.Transcript = ""
	st.s.Segments = nil
	st.s.Summary = ""
	st.s.Quiz = ""
	st.s.VideoSummary = ""
	st.s.ChatHistory = nil
	st.s.Suggestions = nil
	st.s.TranscriptComplete = false
	st.s.Loading = Loading{}
	st.s.URLKind = ""
	st.s.EmbedURL = ""
	st.s.OutputTab = TabTranscript
	st.s.PanelTab = PanelQuiz
	st.s.Generation++
	gen := st.s.Generation
	st.suggestionsFetched = false
	st.lastVideoID = ""
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.SessionReset(mode)
	}
	return gen
}

// SetSource records the raw user input for the active mode.
func (st *Store) SetSource(mode InputMode, value string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	switch mode {
	case ModeURL:
		st.s.SourceURL = value
	case ModeText:
		st.s.SourceText = value
	case ModeFile:
		st.s.SourceFileName = value
	}
}

// SetURLKind records the classifier result and the derived embed URL.
func (st *Store) SetURLKind(kind classify.Kind, embedURL string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.URLKind = kind
	st.s.EmbedURL = embedURL
}

// SetTitle records the source title reported by the backend (video or file
// name) for this generation.
func (st *Store) SetTitle(gen uint64, title string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if gen != st.s.Generation {
		return
	}
	st.s.Title = title
}

// ReportError records a user-visible failure message for this generation
// and notifies, so connected clients can show it.
func (st *Store) ReportError(gen uint64, message string) {
	st.mu.Lock()
	if gen != st.s.Generation {
		st.mu.Unlock()
		return
	}
	st.s.LastError = message
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.ErrorOccurred(message)
	}
}

// SetTabs updates the active output and panel tabs and notifies.
func (st *Store) SetTabs(output OutputTab, panel PanelTab) {
	st.mu.Lock()
	st.s.OutputTab = output
	st.s.PanelTab = panel
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.TabChanged(output, panel)
	}
}

// Tabs returns the active output and panel tabs.
func (st *Store) Tabs() (OutputTab, PanelTab) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.OutputTab, st.s.PanelTab
}

// AppendArtifact appends streamed text to an artifact buffer. It never
// drops data for the current generation: completion is a flag, not a
// truncation.
func (st *Store) AppendArtifact(gen uint64, artifact Artifact, text string) {
	st.mu.Lock()
	if gen != st.s.Generation {
		st.mu.Unlock()
		return
	}
	switch artifact {
	case ArtifactTranscript:
		st.s.Transcript += text
	case ArtifactSummary:
		st.s.Summary += text
	case ArtifactQuiz:
		st.s.Quiz += text
	}
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.ArtifactChunk(artifact, text)
	}
}

// AppendTranscriptChunk appends a transcript_chunk payload with its
// trailing newline separator.
func (st *Store) AppendTranscriptChunk(gen uint64, text string) {
	st.AppendArtifact(gen, ArtifactTranscript, text+"\n")
}

// ReplaceTranscript replaces the whole transcript and drops any segments
// (legacy full-transcript records).
func (st *Store) ReplaceTranscript(gen uint64, text string) {
	st.mu.Lock()
	if gen != st.s.Generation {
		st.mu.Unlock()
		return
	}
	st.s.Transcript = text
	st.s.Segments = nil
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.ArtifactComplete(ArtifactTranscript, text)
	}
}

// SetSegments replaces the segment list wholesale and keeps the flat
// transcript derived from it.
func (st *Store) SetSegments(gen uint64, segments []stream.Segment) {
	st.mu.Lock()
	if gen != st.s.Generation {
		st.mu.Unlock()
		return
	}
	st.s.Segments = append([]stream.Segment(nil), segments...)
	st.s.Transcript = stream.JoinSegments(segments)
	n := st.notifier
	copied := append([]stream.Segment(nil), segments...)
	st.mu.Unlock()

	if n != nil {
		n.SegmentsReplaced(copied)
	}
}

// MarkTranscriptComplete finalizes the transcript artifact for this
// generation. Returns true if the flag transitioned from false to true, so
// downstream triggers fire exactly once per transcript generation.
func (st *Store) MarkTranscriptComplete(gen uint64) bool {
	st.mu.Lock()
	if gen != st.s.Generation || st.s.TranscriptComplete {
		st.mu.Unlock()
		return false
	}
	st.s.TranscriptComplete = true
	full := st.s.Transcript
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.ArtifactComplete(ArtifactTranscript, full)
	}
	return true
}

// FinalizeArtifact replaces an artifact with its fully buffered content,
// correcting any interleaving artifacts from streaming.
func (st *Store) FinalizeArtifact(gen uint64, artifact Artifact, full string) {
	st.mu.Lock()
	if gen != st.s.Generation {
		st.mu.Unlock()
		return
	}
	switch artifact {
	case ArtifactTranscript:
		st.s.Transcript = full
	case ArtifactSummary:
		st.s.Summary = full
	case ArtifactQuiz:
		st.s.Quiz = full
	}
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.ArtifactComplete(artifact, full)
	}
}

// ClearArtifact discards an artifact's content. Used by cancellation, where
// partial AI-generated content is not considered usable.
func (st *Store) ClearArtifact(artifact Artifact) {
	st.mu.Lock()
	switch artifact {
	case ArtifactTranscript:
		st.s.Transcript = ""
		st.s.Segments = nil
		st.s.TranscriptComplete = false
	case ArtifactSummary:
		st.s.Summary = ""
	case ArtifactQuiz:
		st.s.Quiz = ""
	}
	st.mu.Unlock()
}

// Artifact returns the current content of an artifact buffer.
func (st *Store) Artifact(artifact Artifact) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	switch artifact {
	case ArtifactTranscript:
		return st.s.Transcript
	case ArtifactSummary:
		return st.s.Summary
	case ArtifactQuiz:
		return st.s.Quiz
	}
	return ""
}

// Transcript returns the transcript and whether it is complete.
func (st *Store) Transcript() (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.Transcript, st.s.TranscriptComplete
}

// TranscriptPrefix returns at most n leading bytes of the transcript.
func (st *Store) TranscriptPrefix(n int) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	if n <= 0 || len(st.s.Transcript) <= n {
		return st.s.Transcript
	}
	return st.s.Transcript[:n]
}

// SetLoading updates the loading status and notifies.
func (st *Store) SetLoading(active bool, kind LoadingKind, message string) {
	st.mu.Lock()
	st.s.Loading = Loading{Active: active, Kind: kind, Message: message}
	loading := st.s.Loading
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.LoadingChanged(loading)
	}
}

// SetProgress updates the loading message for this generation.
func (st *Store) SetProgress(gen uint64, message string) {
	st.mu.Lock()
	if gen != st.s.Generation || !st.s.Loading.Active {
		st.mu.Unlock()
		return
	}
	st.s.Loading.Message = message
	loading := st.s.Loading
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.LoadingChanged(loading)
	}
}

// Loading returns the current loading status.
func (st *Store) Loading() Loading {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.Loading
}

// AppendUserTurn appends a user chat turn. Returns false when the last turn
// is already a user turn awaiting its answer.
func (st *Store) AppendUserTurn(content string) bool {
	st.mu.Lock()
	if n := len(st.s.ChatHistory); n > 0 && st.s.ChatHistory[n-1].Role == RoleUser {
		st.mu.Unlock()
		return false
	}
	turn := ChatTurn{Role: RoleUser, Content: content}
	st.s.ChatHistory = append(st.s.ChatHistory, turn)
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.ChatTurnAdded(turn)
	}
	return true
}

// AppendAssistantTurn appends an assistant chat turn. Returns false when no
// unanswered user turn exists, preserving strict user/assistant alternation.
func (st *Store) AppendAssistantTurn(gen uint64, content string) bool {
	st.mu.Lock()
	if gen != st.s.Generation {
		st.mu.Unlock()
		return false
	}
	if n := len(st.s.ChatHistory); n == 0 || st.s.ChatHistory[n-1].Role != RoleUser {
		st.mu.Unlock()
		return false
	}
	turn := ChatTurn{Role: RoleAssistant, Content: content}
	st.s.ChatHistory = append(st.s.ChatHistory, turn)
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.ChatTurnAdded(turn)
	}
	return true
}

// DropUnansweredUserTurn removes a trailing user turn, undoing the
// optimistic append when a chat request is cancelled.
func (st *Store) DropUnansweredUserTurn() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if n := len(st.s.ChatHistory); n > 0 && st.s.ChatHistory[n-1].Role == RoleUser {
		st.s.ChatHistory = st.s.ChatHistory[:n-1]
	}
}

// ChatHistory returns a copy of the conversation.
func (st *Store) ChatHistory() []ChatTurn {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]ChatTurn(nil), st.s.ChatHistory...)
}

// SetSuggestions replaces the suggested-questions list wholesale.
func (st *Store) SetSuggestions(gen uint64, suggestions []Suggestion) {
	st.mu.Lock()
	if gen != st.s.Generation {
		st.mu.Unlock()
		return
	}
	st.s.Suggestions = append([]Suggestion(nil), suggestions...)
	copied := append([]Suggestion(nil), suggestions...)
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.SuggestionsReady(copied)
	}
}

// ClaimSuggestionsFetch is the once-per-transcript-generation latch for the
// suggested-questions fetch. The first call after a reset (or a new
// generation) wins; later calls for the same generation return false.
func (st *Store) ClaimSuggestionsFetch(gen uint64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if gen != st.s.Generation || st.suggestionsFetched {
		return false
	}
	st.suggestionsFetched = true
	return true
}

// ClaimVideoSummaryFetch is the per-video dedup latch for the video-summary
// fetch. Repeated completion events for the same video within one
// submission do not refetch; a new submission clears the latch, so an
// explicit resubmission of the same URL always refetches.
func (st *Store) ClaimVideoSummaryFetch(gen uint64, videoID string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if gen != st.s.Generation || videoID == "" || videoID == st.lastVideoID {
		return false
	}
	st.lastVideoID = videoID
	return true
}

// SetVideoSummary stores the short video summary shown beside the player.
func (st *Store) SetVideoSummary(gen uint64, text string) {
	st.mu.Lock()
	if gen != st.s.Generation {
		st.mu.Unlock()
		return
	}
	st.s.VideoSummary = text
	n := st.notifier
	st.mu.Unlock()

	if n != nil {
		n.VideoSummaryReady(text)
	}
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

// VideoSummaryFallback derives the degraded video summary used when the
// backend fetch fails: a prefix of the transcript with blank lines
// collapsed, suffixed with an ellipsis.
func VideoSummaryFallback(transcript string, n int) string {
	if n > 0 && len(transcript) > n {
		transcript = transcript[:n]
	}
	collapsed := blankLines.ReplaceAllString(transcript, " ")
	return strings.TrimSpace(collapsed) + "..."
}
