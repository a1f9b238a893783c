package session

import (
	"github.com/vibeknowing/companion/internal/classify"
	"github.com/vibeknowing/companion/internal/stream"
)

// InputMode selects which source field of the session is relevant.
type InputMode string

const (
	ModeURL  InputMode = "url"
	ModeText InputMode = "text"
	ModeFile InputMode = "file"
)

// Artifact names one piece of AI-generated content tracked by the session.
type Artifact string

const (
	ArtifactTranscript Artifact = "transcript"
	ArtifactSummary    Artifact = "summary"
	ArtifactQuiz       Artifact = "quiz"
)

// LoadingKind identifies which operation is in flight. At most one
// generation request is active at a time.
type LoadingKind string

const (
	LoadingNone       LoadingKind = ""
	LoadingTranscript LoadingKind = "transcript"
	LoadingSummary    LoadingKind = "summary"
	LoadingQuiz       LoadingKind = "quiz"
	LoadingChat       LoadingKind = "chat"
)

// Loading is the session's in-flight status.
type Loading struct {
	Active  bool        `json:"active"`
	Kind    LoadingKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

// ChatRole is a chat turn author.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn is one entry of the conversation. Turns alternate starting with
// the user; an assistant turn is appended only after its paired user turn.
type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// Suggestion is one suggested question for the chat panel.
type Suggestion struct {
	Topic    string `json:"topic"`
	Question string `json:"question"`
}

// OutputTab is the active left-panel tab.
type OutputTab string

const (
	TabTranscript OutputTab = "transcript"
	TabSummary    OutputTab = "summary"
	TabQuiz       OutputTab = "quiz"
)

// PanelTab is the active right-panel tab.
type PanelTab string

const (
	PanelVideo PanelTab = "video"
	PanelQuiz  PanelTab = "quiz"
	PanelChat  PanelTab = "chat"
)

// Session is a snapshot of one analysis session's state.
type Session struct {
	ID             string           `json:"id"`
	InputMode      InputMode        `json:"input_mode"`
	SourceURL      string           `json:"source_url,omitempty"`
	SourceText     string           `json:"source_text,omitempty"`
	SourceFileName string           `json:"source_file_name,omitempty"`
	URLKind        classify.Kind    `json:"url_kind,omitempty"`
	EmbedURL       string           `json:"embed_url,omitempty"`
	Title          string           `json:"title,omitempty"`
	Transcript     string           `json:"transcript"`
	Segments       []stream.Segment `json:"segments,omitempty"`
	Summary        string           `json:"summary"`
	Quiz           string           `json:"quiz"`
	VideoSummary   string           `json:"video_summary,omitempty"`
	ChatHistory    []ChatTurn       `json:"chat_history"`
	Suggestions    []Suggestion     `json:"suggestions"`

	TranscriptComplete bool      `json:"transcript_complete"`
	LastError          string    `json:"last_error,omitempty"`
	Loading            Loading   `json:"loading"`
	OutputTab          OutputTab `json:"output_tab"`
	PanelTab           PanelTab  `json:"panel_tab"`
	Generation         uint64    `json:"generation"`
}

// Notifier receives state-change notifications so the presentation layer
// can push them to connected clients. All methods must be non-blocking.
type Notifier interface {
	ArtifactChunk(artifact Artifact, text string)
	ArtifactComplete(artifact Artifact, full string)
	SegmentsReplaced(segments []stream.Segment)
	LoadingChanged(loading Loading)
	ChatTurnAdded(turn ChatTurn)
	SuggestionsReady(suggestions []Suggestion)
	VideoSummaryReady(summary string)
	ErrorOccurred(message string)
	SessionReset(mode InputMode)
	TabChanged(output OutputTab, panel PanelTab)
}
