package orchestrate

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vibeknowing/companion/internal/backend"
	"github.com/vibeknowing/companion/internal/session"
	"github.com/vibeknowing/companion/internal/stream"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	segmentsBody    string
	segmentsType    string
	transcriptBody  string
	uploadResponse  backend.TranscriptResponse
	summaryBody     string
	summaryStream   func(ctx context.Context) io.ReadCloser
	quizBody        string
	quizStream      func(ctx context.Context) io.ReadCloser
	videoSummary    string
	videoSummaryErr error
	chatAnswer      string
	chatErr         error
	questions       []backend.SuggestedQuestion
	questionsErr    error
	scrapeText      string
	scrapeErr       error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:          map[string]int{},
		segmentsType:   "text/event-stream",
		segmentsBody:   "data: {\"type\": \"complete\"}\n\n",
		transcriptBody: "data: {\"type\": \"complete\"}\n\n",
		summaryBody:    "a summary",
		quizBody:       "a quiz",
		chatAnswer:     "an answer",
		videoSummary:   "short video summary",
	}
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) Transcript(_ context.Context, _ string) (backend.TranscriptResponse, error) {
	f.record("transcript")
	return backend.TranscriptResponse{Transcript: "legacy transcript"}, nil
}

func (f *fakeBackend) TranscribeAudio(_ context.Context, _ string) (backend.TranscriptResponse, error) {
	f.record("transcribe-audio")
	return backend.TranscriptResponse{Transcript: "legacy audio transcript"}, nil
}

func (f *fakeBackend) UploadTranscript(_ context.Context, _ string, _ io.Reader) (backend.TranscriptResponse, error) {
	f.record("upload")
	return f.uploadResponse, nil
}

func (f *fakeBackend) StreamTranscript(_ context.Context, _ string) (io.ReadCloser, error) {
	f.record("transcript-stream")
	return io.NopCloser(strings.NewReader(f.transcriptBody)), nil
}

func (f *fakeBackend) TranscriptSegments(_ context.Context, _ string) (io.ReadCloser, string, error) {
	f.record("segments")
	return io.NopCloser(strings.NewReader(f.segmentsBody)), f.segmentsType, nil
}

func (f *fakeBackend) StreamSummary(ctx context.Context, _ string, _ bool) (io.ReadCloser, error) {
	f.record("summary")
	if f.summaryStream != nil {
		return f.summaryStream(ctx), nil
	}
	return io.NopCloser(strings.NewReader(f.summaryBody)), nil
}

func (f *fakeBackend) StreamQuiz(ctx context.Context, _ string, _ bool) (io.ReadCloser, error) {
	f.record("quiz")
	if f.quizStream != nil {
		return f.quizStream(ctx), nil
	}
	return io.NopCloser(strings.NewReader(f.quizBody)), nil
}

func (f *fakeBackend) VideoSummary(_ context.Context, _, _ string) (string, error) {
	f.record("video-summary")
	return f.videoSummary, f.videoSummaryErr
}

func (f *fakeBackend) StreamChat(_ context.Context, _ string, _ []backend.ChatMessage) (io.ReadCloser, error) {
	f.record("chat")
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return io.NopCloser(strings.NewReader(f.chatAnswer)), nil
}

func (f *fakeBackend) SuggestedQuestions(_ context.Context, _ string) ([]backend.SuggestedQuestion, error) {
	f.record("suggestions")
	return f.questions, f.questionsErr
}

func (f *fakeBackend) Scrape(_ context.Context, _ string) (string, error) {
	f.record("scrape")
	return f.scrapeText, f.scrapeErr
}

func newTestOrchestrator(fb *fakeBackend) *Orchestrator {
	return New(fb, session.NewStore(), Options{})
}

func TestInvalidURLMakesNoNetworkCall(t *testing.T) {
	fb := newFakeBackend()
	o := newTestOrchestrator(fb)

	for _, raw := range []string{"", "   ", "not a url", "ftp://example.com"} {
		if err := o.SubmitURL(raw); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("SubmitURL(%q): expected ErrInvalidURL, got %v", raw, err)
		}
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.calls) != 0 {
		t.Fatalf("expected zero network calls, got %v", fb.calls)
	}
}

func TestVideoSubmissionFlow(t *testing.T) {
	fb := newFakeBackend()
	fb.segmentsBody = strings.Join([]string{
		`data: {"type": "transcript_chunk", "content": "welcome to the lecture"}`,
		`data: {"type": "segments", "segments": [{"start": 0, "text": "welcome"}, {"start": 3, "text": "to the lecture"}]}`,
		`data: {"type": "complete"}`,
	}, "\n\n") + "\n\n"
	fb.questions = []backend.SuggestedQuestion{{Topic: "Intro", Question: "What is covered?"}}
	o := newTestOrchestrator(fb)

	if err := o.SubmitURL("https://www.youtube.com/watch?v=abc12345678"); err != nil {
		t.Fatalf("SubmitURL failed: %v", err)
	}
	o.Wait()

	snap := o.Store().Snapshot()
	if snap.URLKind != "video" {
		t.Fatalf("expected video kind, got %q", snap.URLKind)
	}
	if snap.EmbedURL != "https://www.youtube.com/embed/abc12345678" {
		t.Fatalf("unexpected embed url %q", snap.EmbedURL)
	}
	if snap.OutputTab != session.TabTranscript || snap.PanelTab != session.PanelVideo {
		t.Fatalf("unexpected tabs %q/%q", snap.OutputTab, snap.PanelTab)
	}
	if snap.Transcript != "welcome to the lecture" {
		t.Fatalf("expected segment-derived transcript, got %q", snap.Transcript)
	}
	if !snap.TranscriptComplete {
		t.Fatal("transcript must be complete")
	}
	if snap.VideoSummary != "short video summary" {
		t.Fatalf("expected video summary, got %q", snap.VideoSummary)
	}
	if len(snap.Suggestions) != 1 || snap.Suggestions[0].Topic != "Intro" {
		t.Fatalf("unexpected suggestions %+v", snap.Suggestions)
	}
	// Transcript tab is active, so no generation starts on its own.
	if fb.count("summary") != 0 || fb.count("quiz") != 0 {
		t.Fatal("no summary or quiz generation may start while the transcript tab is active")
	}
}

func TestTextSubmissionAutoSummary(t *testing.T) {
	fb := newFakeBackend()
	o := newTestOrchestrator(fb)

	if err := o.SubmitText("Hello world"); err != nil {
		t.Fatalf("SubmitText failed: %v", err)
	}
	o.Wait()

	snap := o.Store().Snapshot()
	if snap.Transcript != "Hello world" {
		t.Fatalf("expected transcript from text input, got %q", snap.Transcript)
	}
	if !snap.TranscriptComplete {
		t.Fatal("text input must complete the transcript immediately")
	}
	if snap.Summary != "a summary" {
		t.Fatalf("expected auto-generated summary, got %q", snap.Summary)
	}
	if fb.count("summary") != 1 {
		t.Fatalf("expected exactly one summary call, got %d", fb.count("summary"))
	}
}

func TestWebsiteScrapeFlow(t *testing.T) {
	fb := newFakeBackend()
	fb.scrapeText = "article body"
	o := newTestOrchestrator(fb)

	if err := o.SubmitURL("https://example.com/articles/42"); err != nil {
		t.Fatalf("SubmitURL failed: %v", err)
	}
	o.Wait()

	snap := o.Store().Snapshot()
	if snap.URLKind != "website" {
		t.Fatalf("expected website kind, got %q", snap.URLKind)
	}
	if snap.Transcript != "article body" {
		t.Fatalf("expected scraped transcript, got %q", snap.Transcript)
	}
	if snap.OutputTab != session.TabSummary || snap.Summary != "a summary" {
		t.Fatalf("website submissions go straight to summary, got tab %q summary %q", snap.OutputTab, snap.Summary)
	}
	if fb.count("scrape") != 1 || fb.count("suggestions") != 1 {
		t.Fatalf("unexpected call counts %v", fb.calls)
	}
}

func TestSummaryIdempotence(t *testing.T) {
	fb := newFakeBackend()
	o := newTestOrchestrator(fb)
	if err := o.SubmitText("some transcript text"); err != nil {
		t.Fatalf("SubmitText failed: %v", err)
	}
	o.Wait()
	if fb.count("summary") != 1 {
		t.Fatalf("expected one summary call after submit, got %d", fb.count("summary"))
	}

	// A second non-forced call short-circuits on existing content.
	if err := o.GenerateSummary(false); err != nil {
		t.Fatalf("GenerateSummary failed: %v", err)
	}
	if fb.count("summary") != 1 {
		t.Fatalf("expected short-circuit, got %d summary calls", fb.count("summary"))
	}

	// Forcing refetches and fully replaces prior content.
	fb.summaryBody = "a better summary"
	if err := o.GenerateSummary(true); err != nil {
		t.Fatalf("forced GenerateSummary failed: %v", err)
	}
	if fb.count("summary") != 2 {
		t.Fatalf("expected a second call when forced, got %d", fb.count("summary"))
	}
	if got := o.Store().Artifact(session.ArtifactSummary); got != "a better summary" {
		t.Fatalf("expected replaced summary, got %q", got)
	}
}

func TestSuggestionsFetchedOncePerTranscript(t *testing.T) {
	fb := newFakeBackend()
	fb.questions = []backend.SuggestedQuestion{{Topic: "T", Question: "Q"}}
	o := newTestOrchestrator(fb)

	if err := o.SubmitText("transcript content"); err != nil {
		t.Fatalf("SubmitText failed: %v", err)
	}
	o.Wait()

	// Re-evaluating completion-dependent paths must not refetch.
	if err := o.SelectOutputTab(session.TabSummary); err != nil {
		t.Fatalf("SelectOutputTab failed: %v", err)
	}
	if err := o.SelectOutputTab(session.TabTranscript); err != nil {
		t.Fatalf("SelectOutputTab failed: %v", err)
	}
	o.Wait()

	if fb.count("suggestions") != 1 {
		t.Fatalf("expected exactly one suggestions fetch, got %d", fb.count("suggestions"))
	}

	// A new submission resets the latch.
	if err := o.SubmitText("new transcript"); err != nil {
		t.Fatalf("SubmitText failed: %v", err)
	}
	o.Wait()
	if fb.count("suggestions") != 2 {
		t.Fatalf("expected refetch for new input, got %d", fb.count("suggestions"))
	}
}

func TestSuggestionFailureLeavesArtifactsIntact(t *testing.T) {
	fb := newFakeBackend()
	fb.questionsErr = errors.New("backend down")
	o := newTestOrchestrator(fb)

	if err := o.SubmitText("transcript content"); err != nil {
		t.Fatalf("SubmitText failed: %v", err)
	}
	o.Wait()

	snap := o.Store().Snapshot()
	if snap.Summary != "a summary" {
		t.Fatalf("suggestion failure must not roll back the summary, got %q", snap.Summary)
	}
	if len(snap.Suggestions) != 0 {
		t.Fatalf("expected empty suggestions after failure, got %+v", snap.Suggestions)
	}
}

// blockingStream yields one chunk, then blocks until the request context is
// cancelled, simulating a stalled generation stream.
type blockingStream struct {
	ctx     context.Context
	chunk   string
	yielded bool
	started chan struct{}
}

func (s *blockingStream) Read(p []byte) (int, error) {
	if !s.yielded {
		s.yielded = true
		n := copy(p, s.chunk)
		close(s.started)
		return n, nil
	}
	<-s.ctx.Done()
	return 0, s.ctx.Err()
}

func (s *blockingStream) Close() error { return nil }

func TestCancelDiscardsPartialQuiz(t *testing.T) {
	fb := newFakeBackend()
	started := make(chan struct{})
	fb.quizStream = func(ctx context.Context) io.ReadCloser {
		return &blockingStream{ctx: ctx, chunk: "Q1: What is...", started: started}
	}
	o := newTestOrchestrator(fb)
	if err := o.SubmitText("transcript content"); err != nil {
		t.Fatalf("SubmitText failed: %v", err)
	}
	o.Wait()

	done := make(chan error, 1)
	go func() { done <- o.GenerateQuiz(false) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("quiz stream never started")
	}
	o.Cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancelled generation must not report an error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not return after cancel")
	}

	snap := o.Store().Snapshot()
	if snap.Quiz != "" {
		t.Fatalf("partial quiz must be discarded on cancel, got %q", snap.Quiz)
	}
	if snap.Loading.Active {
		t.Fatal("loading must be inactive after cancel")
	}
}

func TestNewSubmissionSupersedesInFlightRequest(t *testing.T) {
	fb := newFakeBackend()
	started := make(chan struct{})
	fb.quizStream = func(ctx context.Context) io.ReadCloser {
		return &blockingStream{ctx: ctx, chunk: "stale quiz text", started: started}
	}
	o := newTestOrchestrator(fb)
	if err := o.SubmitText("first transcript"); err != nil {
		t.Fatalf("SubmitText failed: %v", err)
	}
	o.Wait()

	done := make(chan error, 1)
	go func() { done <- o.GenerateQuiz(false) }()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("quiz stream never started")
	}

	// A new top-level submission supersedes the stalled quiz request.
	if err := o.SubmitText("second transcript"); err != nil {
		t.Fatalf("second SubmitText failed: %v", err)
	}
	o.Wait()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stale request did not unwind")
	}

	snap := o.Store().Snapshot()
	if snap.Transcript != "second transcript" {
		t.Fatalf("expected state from the new submission, got %q", snap.Transcript)
	}
	if strings.Contains(snap.Quiz, "stale") {
		t.Fatalf("stale request mutated current state: %q", snap.Quiz)
	}
}

func TestChatAppendsTurnsAndSurvivesFailure(t *testing.T) {
	fb := newFakeBackend()
	o := newTestOrchestrator(fb)
	if err := o.SubmitText("transcript content"); err != nil {
		t.Fatalf("SubmitText failed: %v", err)
	}
	o.Wait()

	if err := o.SubmitChat("what is this about?"); err != nil {
		t.Fatalf("SubmitChat failed: %v", err)
	}

	fb.chatErr = errors.New("backend exploded")
	if err := o.SubmitChat("and this?"); err != nil {
		t.Fatalf("SubmitChat must absorb transport failures, got %v", err)
	}

	history := o.Store().ChatHistory()
	if len(history) != 4 {
		t.Fatalf("expected 4 turns, got %+v", history)
	}
	for i, turn := range history {
		want := session.RoleUser
		if i%2 == 1 {
			want = session.RoleAssistant
		}
		if turn.Role != want {
			t.Fatalf("turn %d: expected %q, got %q", i, want, turn.Role)
		}
	}
	if history[1].Content != "an answer" {
		t.Fatalf("unexpected first answer %q", history[1].Content)
	}
	if !strings.Contains(history[3].Content, "Unable to respond") {
		t.Fatalf("expected synthetic error reply, got %q", history[3].Content)
	}
}

func TestUploadDocumentGoesStraightToSummary(t *testing.T) {
	fb := newFakeBackend()
	fb.uploadResponse = backend.TranscriptResponse{Transcript: "document text", Title: "Notes"}
	o := newTestOrchestrator(fb)

	if err := o.SubmitFile("notes.pdf", 1024, strings.NewReader("bytes")); err != nil {
		t.Fatalf("SubmitFile failed: %v", err)
	}
	o.Wait()

	snap := o.Store().Snapshot()
	if snap.OutputTab != session.TabSummary || snap.PanelTab != session.PanelChat {
		t.Fatalf("unexpected tabs %q/%q", snap.OutputTab, snap.PanelTab)
	}
	if snap.Summary != "a summary" {
		t.Fatalf("document upload must auto-generate a summary, got %q", snap.Summary)
	}
	if snap.Title != "Notes" {
		t.Fatalf("backend-reported title must be kept, got %q", snap.Title)
	}
}

func TestUploadAudioShowsTranscriptWithoutAutoSummary(t *testing.T) {
	fb := newFakeBackend()
	fb.uploadResponse = backend.TranscriptResponse{Transcript: "spoken words"}
	o := newTestOrchestrator(fb)

	if err := o.SubmitFile("lecture.mp3", 1024, strings.NewReader("bytes")); err != nil {
		t.Fatalf("SubmitFile failed: %v", err)
	}
	o.Wait()

	snap := o.Store().Snapshot()
	if snap.OutputTab != session.TabTranscript {
		t.Fatalf("audio uploads keep the transcript tab, got %q", snap.OutputTab)
	}
	if fb.count("summary") != 0 {
		t.Fatal("audio uploads must not auto-generate a summary")
	}
	if snap.Transcript != "spoken words" {
		t.Fatalf("unexpected transcript %q", snap.Transcript)
	}
}

func TestSelectQuizPanelTriggersGeneration(t *testing.T) {
	fb := newFakeBackend()
	fb.uploadResponse = backend.TranscriptResponse{Transcript: "spoken words"}
	o := newTestOrchestrator(fb)
	if err := o.SubmitFile("lecture.mp3", 1024, strings.NewReader("bytes")); err != nil {
		t.Fatalf("SubmitFile failed: %v", err)
	}
	o.Wait()

	if err := o.SelectPanelTab(session.PanelQuiz); err != nil {
		t.Fatalf("SelectPanelTab failed: %v", err)
	}
	if got := o.Store().Artifact(session.ArtifactQuiz); got != "a quiz" {
		t.Fatalf("expected generated quiz, got %q", got)
	}

	// Revisits short-circuit on existing content.
	if err := o.SelectPanelTab(session.PanelQuiz); err != nil {
		t.Fatalf("SelectPanelTab failed: %v", err)
	}
	if fb.count("quiz") != 1 {
		t.Fatalf("expected one quiz call, got %d", fb.count("quiz"))
	}
}

func TestResubmittingSameVideoRefetchesSummary(t *testing.T) {
	fb := newFakeBackend()
	fb.segmentsBody = "data: {\"type\": \"transcript_chunk\", \"content\": \"words\"}\n\ndata: {\"type\": \"complete\"}\n\n"
	o := newTestOrchestrator(fb)

	url := "https://www.youtube.com/watch?v=abc12345678"
	if err := o.SubmitURL(url); err != nil {
		t.Fatalf("first SubmitURL failed: %v", err)
	}
	o.Wait()
	if err := o.SubmitURL(url); err != nil {
		t.Fatalf("second SubmitURL failed: %v", err)
	}
	o.Wait()

	if fb.count("video-summary") != 2 {
		t.Fatalf("explicit resubmission must refetch the video summary, got %d calls", fb.count("video-summary"))
	}
}

func TestVideoSummaryFallsBackToTranscriptPrefix(t *testing.T) {
	fb := newFakeBackend()
	fb.segmentsBody = "data: {\"type\": \"transcript_chunk\", \"content\": \"the spoken words\"}\n\ndata: {\"type\": \"complete\"}\n\n"
	fb.videoSummaryErr = errors.New("summarizer down")
	fb.videoSummary = ""
	o := newTestOrchestrator(fb)

	if err := o.SubmitURL("https://www.youtube.com/watch?v=abc12345678"); err != nil {
		t.Fatalf("SubmitURL failed: %v", err)
	}
	o.Wait()

	snap := o.Store().Snapshot()
	if !strings.HasSuffix(snap.VideoSummary, "...") || !strings.Contains(snap.VideoSummary, "the spoken words") {
		t.Fatalf("expected transcript-derived fallback, got %q", snap.VideoSummary)
	}
}

// errorRecorder is a session.Notifier that captures failure messages and
// ignores everything else.
type errorRecorder struct {
	mu     sync.Mutex
	errors []string
}

func (n *errorRecorder) ErrorOccurred(message string) {
	n.mu.Lock()
	n.errors = append(n.errors, message)
	n.mu.Unlock()
}

func (n *errorRecorder) recorded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

func (n *errorRecorder) ArtifactChunk(session.Artifact, string)        {}
func (n *errorRecorder) ArtifactComplete(session.Artifact, string)     {}
func (n *errorRecorder) SegmentsReplaced([]stream.Segment)             {}
func (n *errorRecorder) LoadingChanged(session.Loading)                {}
func (n *errorRecorder) ChatTurnAdded(session.ChatTurn)                {}
func (n *errorRecorder) SuggestionsReady([]session.Suggestion)         {}
func (n *errorRecorder) VideoSummaryReady(string)                      {}
func (n *errorRecorder) SessionReset(session.InputMode)                {}
func (n *errorRecorder) TabChanged(session.OutputTab, session.PanelTab) {}

func TestTranscriptStreamErrorSurfaces(t *testing.T) {
	fb := newFakeBackend()
	fb.segmentsBody = strings.Join([]string{
		`data: {"type": "transcript_chunk", "content": "partial words"}`,
		`data: {"type": "error", "message": "no audio found"}`,
	}, "\n\n") + "\n\n"
	o := newTestOrchestrator(fb)
	recorder := &errorRecorder{}
	o.Store().SetNotifier(recorder)

	err := o.SubmitURL("https://www.youtube.com/watch?v=abc12345678")
	var failure *StreamFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected a stream failure, got %v", err)
	}
	if failure.Message != "no audio found" {
		t.Fatalf("expected backend message, got %q", failure.Message)
	}
	o.Wait()

	snap := o.Store().Snapshot()
	if snap.LastError != "no audio found" {
		t.Fatalf("expected recorded failure, got %q", snap.LastError)
	}
	if snap.Transcript != "" || snap.TranscriptComplete {
		t.Fatalf("failed stream must leave no partial transcript, got %+v", snap)
	}
	if snap.Loading.Active {
		t.Fatal("loading must be inactive after a failed stream")
	}
	got := recorder.recorded()
	if len(got) != 1 || got[0] != "no audio found" {
		t.Fatalf("expected the failure to be pushed to clients, got %v", got)
	}
}

func TestSupersededRequestKeepsSuccessorLoading(t *testing.T) {
	fb := newFakeBackend()
	quizStarted := make(chan struct{})
	fb.quizStream = func(ctx context.Context) io.ReadCloser {
		return &blockingStream{ctx: ctx, chunk: "Q1:", started: quizStarted}
	}
	summaryStarted := make(chan struct{})
	fb.summaryStream = func(ctx context.Context) io.ReadCloser {
		return &blockingStream{ctx: ctx, chunk: "in progress", started: summaryStarted}
	}
	o := newTestOrchestrator(fb)
	if err := o.SubmitText("transcript content"); err != nil {
		t.Fatalf("SubmitText failed: %v", err)
	}
	// The automatic summary generation is the first summaryStream consumer.
	select {
	case <-summaryStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("auto summary never started")
	}
	o.Cancel()
	o.Wait()

	quizDone := make(chan error, 1)
	go func() { quizDone <- o.GenerateQuiz(false) }()
	select {
	case <-quizStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("quiz stream never started")
	}

	// A forced summary supersedes the stalled quiz. The quiz goroutine
	// unwinds while the summary is still streaming; its deferred loading
	// reset must not clear the summary's state.
	summaryStarted = make(chan struct{})
	started := summaryStarted
	fb.summaryStream = func(ctx context.Context) io.ReadCloser {
		return &blockingStream{ctx: ctx, chunk: "a better summary", started: started}
	}
	summaryDone := make(chan error, 1)
	go func() { summaryDone <- o.GenerateSummary(true) }()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("forced summary never started")
	}
	select {
	case <-quizDone:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded quiz did not unwind")
	}

	loading := o.Store().Loading()
	if !loading.Active || loading.Kind != session.LoadingSummary {
		t.Fatalf("successor loading state was clobbered: %+v", loading)
	}

	o.Cancel()
	select {
	case <-summaryDone:
	case <-time.After(2 * time.Second):
		t.Fatal("summary did not unwind after cancel")
	}
}
