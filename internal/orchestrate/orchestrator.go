// Package orchestrate drives the backend call sequence for each kind of
// input, feeds the stream decoder into the session store, and owns
// cancellation. At most one generation request (transcript, summary, quiz
// or chat) is in flight at a time; starting a new one cancels its
// predecessor. Background effects that follow transcript completion
// (suggested questions, video summary) touch disjoint state fields and run
// concurrently with whatever generation the active tab triggers.
package orchestrate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vibeknowing/companion/internal/backend"
	"github.com/vibeknowing/companion/internal/classify"
	"github.com/vibeknowing/companion/internal/session"
	"github.com/vibeknowing/companion/internal/stream"
)

// Backend is the slice of the API client the orchestrator needs.
type Backend interface {
	Transcript(ctx context.Context, sourceURL string) (backend.TranscriptResponse, error)
	TranscribeAudio(ctx context.Context, sourceURL string) (backend.TranscriptResponse, error)
	UploadTranscript(ctx context.Context, filename string, r io.Reader) (backend.TranscriptResponse, error)
	StreamTranscript(ctx context.Context, sourceURL string) (io.ReadCloser, error)
	TranscriptSegments(ctx context.Context, sourceURL string) (io.ReadCloser, string, error)
	StreamSummary(ctx context.Context, transcript string, refresh bool) (io.ReadCloser, error)
	StreamQuiz(ctx context.Context, transcript string, refresh bool) (io.ReadCloser, error)
	VideoSummary(ctx context.Context, transcript, videoURL string) (string, error)
	StreamChat(ctx context.Context, transcript string, history []backend.ChatMessage) (io.ReadCloser, error)
	SuggestedQuestions(ctx context.Context, summaryPrefix string) ([]backend.SuggestedQuestion, error)
	Scrape(ctx context.Context, sourceURL string) (string, error)
}

// Options are the orchestrator's tuning knobs.
type Options struct {
	// SuggestionPrefix bounds the transcript prefix sent to the
	// suggested-questions endpoint.
	SuggestionPrefix int
	// VideoSummaryFallbackLen bounds the transcript-derived fallback shown
	// when the video-summary fetch fails.
	VideoSummaryFallbackLen int
}

func (o Options) withDefaults() Options {
	if o.SuggestionPrefix <= 0 {
		o.SuggestionPrefix = 10000
	}
	if o.VideoSummaryFallbackLen <= 0 {
		o.VideoSummaryFallbackLen = 200
	}
	return o
}

// Orchestrator coordinates one session's backend calls.
type Orchestrator struct {
	backend Backend
	store   *session.Store
	opts    Options

	mu               sync.Mutex
	requestSeq       uint64
	requestCancel    context.CancelFunc
	submissionCancel context.CancelFunc
	background       sync.WaitGroup
}

// New creates an orchestrator over the given backend and session store.
func New(b Backend, store *session.Store, opts Options) *Orchestrator {
	return &Orchestrator{backend: b, store: store, opts: opts.withDefaults()}
}

// Store returns the session store the orchestrator mutates.
func (o *Orchestrator) Store() *session.Store {
	return o.store
}

// beginSubmission cancels any in-flight work, resets the session for a new
// source, and opens the submission-scoped context that background effects
// inherit.
func (o *Orchestrator) beginSubmission(mode session.InputMode) (context.Context, uint64) {
	o.mu.Lock()
	if o.requestCancel != nil {
		o.requestCancel()
		o.requestCancel = nil
	}
	if o.submissionCancel != nil {
		o.submissionCancel()
	}
	subCtx, subCancel := context.WithCancel(context.Background())
	o.submissionCancel = subCancel
	o.mu.Unlock()

	gen := o.store.ResetForInput(mode)
	return subCtx, gen
}

// beginRequest cancels the in-flight generation request, if any, and opens
// the context for a new one. The returned id ties the caller's endRequest
// to this request, so a superseded request unwinding late cannot clear its
// successor's loading state.
func (o *Orchestrator) beginRequest(kind session.LoadingKind, message string) (context.Context, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.requestCancel != nil {
		o.requestCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.requestCancel = cancel
	o.requestSeq++
	o.store.SetLoading(true, kind, message)
	return ctx, o.requestSeq
}

// endRequest resets the loading state, but only when the calling request is
// still the current one.
func (o *Orchestrator) endRequest(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if id != o.requestSeq {
		return
	}
	o.store.SetLoading(false, session.LoadingNone, "")
}

// Cancel aborts the in-flight request and its submission's background
// effects. The partially received content of whatever artifact was in
// flight is discarded; partial AI-generated content is not usable.
func (o *Orchestrator) Cancel() {
	// Snapshot what was in flight before cancelling: once the context is
	// cancelled the request goroutine unwinds and resets the loading state
	// on its own.
	loading := o.store.Loading()

	o.mu.Lock()
	if o.requestCancel != nil {
		o.requestCancel()
		o.requestCancel = nil
	}
	if o.submissionCancel != nil {
		o.submissionCancel()
		o.submissionCancel = nil
	}
	o.mu.Unlock()

	// Fence any straggling writes from the aborted request.
	o.store.BeginGeneration()

	switch loading.Kind {
	case session.LoadingTranscript:
		o.store.ClearArtifact(session.ArtifactTranscript)
	case session.LoadingSummary:
		o.store.ClearArtifact(session.ArtifactSummary)
	case session.LoadingQuiz:
		o.store.ClearArtifact(session.ArtifactQuiz)
	case session.LoadingChat:
		o.store.DropUnansweredUserTurn()
	}
	o.store.SetLoading(false, session.LoadingNone, "")
}

// Wait blocks until all background effects have finished. Intended for
// shutdown and tests.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// SubmitURL classifies a URL and runs the matching call sequence. Invalid
// URLs are rejected synchronously without a network call.
func (o *Orchestrator) SubmitURL(rawURL string) error {
	kind := classify.Classify(rawURL)
	if kind == classify.Invalid {
		return ErrInvalidURL
	}

	subCtx, gen := o.beginSubmission(session.ModeURL)
	o.store.SetSource(session.ModeURL, rawURL)

	switch kind {
	case classify.Video:
		o.store.SetURLKind(kind, classify.Embeddable(rawURL))
		o.store.SetTabs(session.TabTranscript, session.PanelVideo)
		return o.runVideoTranscript(subCtx, gen, rawURL)
	case classify.AudioFile, classify.AudioPlatform, classify.CloudDocument:
		o.store.SetURLKind(kind, "")
		o.store.SetTabs(session.TabTranscript, session.PanelChat)
		return o.runAudioTranscript(subCtx, gen, rawURL)
	default:
		o.store.SetURLKind(classify.Website, "")
		o.store.SetTabs(session.TabSummary, session.PanelChat)
		return o.runScrape(subCtx, gen, rawURL)
	}
}

// SubmitText uses the text directly as the transcript; no transcription
// round trip is needed.
func (o *Orchestrator) SubmitText(text string) error {
	subCtx, gen := o.beginSubmission(session.ModeText)
	o.store.SetSource(session.ModeText, text)
	o.store.SetTabs(session.TabSummary, session.PanelChat)

	o.store.FinalizeArtifact(gen, session.ArtifactTranscript, text)
	o.onTranscriptComplete(subCtx, gen)
	return nil
}

// largeAudioThreshold is the upload size beyond which the slow-path
// loading message is shown for audio containers.
const largeAudioThreshold = 24 * 1024 * 1024

// SubmitFile uploads a file and routes panels by its extension: documents
// skip the transcript tab and generate a summary immediately, audio shows
// the transcript and waits for the user.
func (o *Orchestrator) SubmitFile(filename string, size int64, r io.Reader) error {
	subCtx, gen := o.beginSubmission(session.ModeFile)
	o.store.SetSource(session.ModeFile, filename)

	isDocument := classify.IsDocumentFilename(filename)
	if isDocument {
		o.store.SetTabs(session.TabSummary, session.PanelChat)
	} else {
		o.store.SetTabs(session.TabTranscript, session.PanelChat)
	}

	message := "Processing file..."
	lower := strings.ToLower(filename)
	if size > largeAudioThreshold && (strings.HasSuffix(lower, ".mp3") || strings.HasSuffix(lower, ".mp4")) {
		message = "Processing large audio file (this may take a while)..."
	}
	ctx, reqID := o.beginRequest(session.LoadingTranscript, message)
	defer o.endRequest(reqID)

	resp, err := o.backend.UploadTranscript(ctx, filename, r)
	if err != nil {
		if isCanceled(err) {
			return nil
		}
		return err
	}

	if resp.Title != "" {
		o.store.SetTitle(gen, resp.Title)
	}
	o.store.FinalizeArtifact(gen, session.ArtifactTranscript, resp.Transcript)
	o.onTranscriptComplete(subCtx, gen)
	return nil
}

// SubmitChat sends one chat turn. The user turn is appended optimistically
// before the network call; the assistant turn is appended only once the
// full streamed answer is assembled. A failed turn gets a synthetic
// assistant reply so the conversation is never left truncated.
func (o *Orchestrator) SubmitChat(message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}
	if !o.store.AppendUserTurn(message) {
		return ErrChatPending
	}

	transcript, _ := o.store.Transcript()
	history := make([]backend.ChatMessage, 0)
	for _, turn := range o.store.ChatHistory() {
		history = append(history, backend.ChatMessage{Role: string(turn.Role), Content: turn.Content})
	}

	ctx, reqID := o.beginRequest(session.LoadingChat, "")
	defer o.endRequest(reqID)
	gen := o.store.Generation()

	body, err := o.backend.StreamChat(ctx, transcript, history)
	if err != nil {
		return o.finishChatError(gen, err)
	}
	defer func() { _ = body.Close() }()

	var answer strings.Builder
	err = stream.DecodeText(ctx, body, func(ev stream.Event) {
		if ev.Type == stream.TextChunk {
			answer.WriteString(ev.Text)
		}
	})
	if err != nil {
		return o.finishChatError(gen, err)
	}

	o.store.AppendAssistantTurn(gen, answer.String())
	return nil
}

func (o *Orchestrator) finishChatError(gen uint64, err error) error {
	if isCanceled(err) {
		o.store.DropUnansweredUserTurn()
		return nil
	}
	slog.Error("chat turn failed", "error", err)
	o.store.AppendAssistantTurn(gen, "❌ Unable to respond.")
	return nil
}

// GenerateSummary streams summary generation. Without force, an existing
// summary short-circuits the call.
func (o *Orchestrator) GenerateSummary(force bool) error {
	return o.generate(session.ArtifactSummary, force)
}

// GenerateQuiz streams quiz generation. Without force, an existing quiz
// short-circuits the call.
func (o *Orchestrator) GenerateQuiz(force bool) error {
	return o.generate(session.ArtifactQuiz, force)
}

func (o *Orchestrator) generate(artifact session.Artifact, force bool) error {
	transcript, _ := o.store.Transcript()
	if transcript == "" {
		return nil
	}
	if !force && o.store.Artifact(artifact) != "" {
		return nil
	}

	kind := session.LoadingSummary
	open := o.backend.StreamSummary
	message := "Generating summary..."
	if artifact == session.ArtifactQuiz {
		kind = session.LoadingQuiz
		open = o.backend.StreamQuiz
		message = "Generating quiz..."
	}

	ctx, reqID := o.beginRequest(kind, message)
	defer o.endRequest(reqID)
	gen := o.store.Generation()
	o.store.ClearArtifact(artifact)

	body, err := open(ctx, transcript, force)
	if err != nil {
		if isCanceled(err) {
			return nil
		}
		return err
	}
	defer func() { _ = body.Close() }()

	var content strings.Builder
	err = stream.DecodeText(ctx, body, func(ev stream.Event) {
		if ev.Type == stream.TextChunk {
			content.WriteString(ev.Text)
			o.store.AppendArtifact(gen, artifact, ev.Text)
		}
	})
	if err != nil {
		if isCanceled(err) {
			return nil
		}
		o.store.ClearArtifact(artifact)
		return err
	}

	// Replace the streamed-in text with the full buffered content to
	// correct any interleaving artifacts.
	o.store.FinalizeArtifact(gen, artifact, content.String())
	return nil
}

// SelectOutputTab records the active left tab. Selecting Summary or Quiz
// after transcript completion starts generation unless content already
// exists.
func (o *Orchestrator) SelectOutputTab(tab session.OutputTab) error {
	_, panel := o.store.Tabs()
	o.store.SetTabs(tab, panel)

	_, complete := o.store.Transcript()
	if !complete {
		return nil
	}
	switch tab {
	case session.TabSummary:
		return o.GenerateSummary(false)
	case session.TabQuiz:
		return o.GenerateQuiz(false)
	}
	return nil
}

// SelectPanelTab records the active right tab. Selecting the quiz panel
// after transcript completion starts quiz generation unless a quiz exists.
func (o *Orchestrator) SelectPanelTab(tab session.PanelTab) error {
	output, _ := o.store.Tabs()
	o.store.SetTabs(output, tab)

	_, complete := o.store.Transcript()
	if tab == session.PanelQuiz && complete {
		return o.GenerateQuiz(false)
	}
	return nil
}

// Refresh force-regenerates an artifact, bypassing the existing-content
// short-circuit and fully replacing prior content.
func (o *Orchestrator) Refresh(artifact session.Artifact) error {
	switch artifact {
	case session.ArtifactSummary:
		return o.GenerateSummary(true)
	case session.ArtifactQuiz:
		return o.GenerateQuiz(true)
	}
	return nil
}

// runVideoTranscript drives the segments endpoint, which answers either an
// event-framed stream or a plain JSON document.
func (o *Orchestrator) runVideoTranscript(subCtx context.Context, gen uint64, rawURL string) error {
	ctx, reqID := o.beginRequest(session.LoadingTranscript, "Extracting transcript...")
	defer o.endRequest(reqID)

	body, contentType, err := o.backend.TranscriptSegments(ctx, rawURL)
	if err != nil {
		if isCanceled(err) {
			return nil
		}
		// Legacy backends only expose the non-streaming endpoint.
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			return o.runLegacyTranscript(subCtx, ctx, gen, rawURL, o.backend.Transcript)
		}
		return err
	}
	defer func() { _ = body.Close() }()

	if strings.Contains(contentType, "text/event-stream") {
		return o.consumeTranscriptStream(subCtx, ctx, gen, body)
	}

	// Whole-document JSON answer.
	data, err := io.ReadAll(body)
	if err != nil {
		if isCanceled(err) {
			return nil
		}
		return err
	}
	if applyTranscriptDocument(o.store, gen, data) {
		o.onTranscriptComplete(subCtx, gen)
		return nil
	}
	// Not JSON after all: some backends stream without the event-stream
	// content type. Re-decode the buffered body as frames.
	return o.consumeTranscriptStream(subCtx, ctx, gen, strings.NewReader(string(data)))
}

// runAudioTranscript drives the event-framed transcript stream for audio
// files, audio platforms and cloud documents.
func (o *Orchestrator) runAudioTranscript(subCtx context.Context, gen uint64, rawURL string) error {
	ctx, reqID := o.beginRequest(session.LoadingTranscript, "Processing audio...")
	defer o.endRequest(reqID)

	body, err := o.backend.StreamTranscript(ctx, rawURL)
	if err != nil {
		if isCanceled(err) {
			return nil
		}
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			return o.runLegacyTranscript(subCtx, ctx, gen, rawURL, o.backend.TranscribeAudio)
		}
		return err
	}
	defer func() { _ = body.Close() }()

	return o.consumeTranscriptStream(subCtx, ctx, gen, body)
}

// runLegacyTranscript is the non-streaming fallback used when a backend
// predates the stream endpoints.
func (o *Orchestrator) runLegacyTranscript(subCtx, ctx context.Context, gen uint64, rawURL string, fetch func(context.Context, string) (backend.TranscriptResponse, error)) error {
	resp, err := fetch(ctx, rawURL)
	if err != nil {
		if isCanceled(err) {
			return nil
		}
		return err
	}
	if resp.Title != "" {
		o.store.SetTitle(gen, resp.Title)
	}
	o.store.FinalizeArtifact(gen, session.ArtifactTranscript, resp.Transcript)
	o.onTranscriptComplete(subCtx, gen)
	return nil
}

func (o *Orchestrator) consumeTranscriptStream(subCtx, ctx context.Context, gen uint64, body io.Reader) error {
	var failure error
	if err := stream.DecodeEvents(ctx, body, o.transcriptEventSink(subCtx, gen, &failure)); err != nil {
		if isCanceled(err) {
			return nil
		}
		return err
	}
	return failure
}

// transcriptEventSink maps decoded transcript events onto store
// transitions. A terminal error event clears the partial transcript,
// records the backend's message on the session, and is written to failure
// so callers surface it; end of stream completes the transcript and fires
// the downstream triggers.
func (o *Orchestrator) transcriptEventSink(subCtx context.Context, gen uint64, failure *error) func(stream.Event) {
	return func(ev stream.Event) {
		switch ev.Type {
		case stream.TranscriptChunk:
			o.store.AppendTranscriptChunk(gen, ev.Text)
		case stream.TranscriptFull:
			o.store.ReplaceTranscript(gen, ev.Text)
		case stream.SegmentsEvent:
			o.store.SetSegments(gen, ev.Segments)
		case stream.Progress:
			o.store.SetProgress(gen, ev.Message)
		case stream.Complete:
			o.onTranscriptComplete(subCtx, gen)
		case stream.ErrorEvent:
			message := ev.Message
			if message == "" {
				message = "Transcript extraction failed."
			}
			slog.Error("transcript stream failed", "message", message)
			o.store.ClearArtifact(session.ArtifactTranscript)
			o.store.ReportError(gen, message)
			*failure = &StreamFailure{Message: message}
		}
	}
}

// runScrape fetches website text, which arrives whole, then behaves like a
// completed transcript.
func (o *Orchestrator) runScrape(subCtx context.Context, gen uint64, rawURL string) error {
	ctx, reqID := o.beginRequest(session.LoadingTranscript, "Scraping website...")
	defer o.endRequest(reqID)

	text, err := o.backend.Scrape(ctx, rawURL)
	if err != nil {
		if isCanceled(err) {
			return nil
		}
		return err
	}

	o.store.FinalizeArtifact(gen, session.ArtifactTranscript, text)
	o.onTranscriptComplete(subCtx, gen)
	return nil
}

// onTranscriptComplete fires the downstream triggers exactly once per
// transcript generation: the background fetches (suggested questions, and
// the video summary for video sources), then summary or quiz generation
// when the matching tab is active.
func (o *Orchestrator) onTranscriptComplete(subCtx context.Context, gen uint64) {
	if !o.store.MarkTranscriptComplete(gen) {
		return
	}

	o.runBackgroundEffects(subCtx, gen)

	output, panel := o.store.Tabs()
	switch {
	case output == session.TabSummary:
		if err := o.GenerateSummary(false); err != nil {
			slog.Error("auto summary generation failed", "error", err)
		}
	case output == session.TabQuiz || panel == session.PanelQuiz:
		if err := o.GenerateQuiz(false); err != nil {
			slog.Error("auto quiz generation failed", "error", err)
		}
	}
}

// runBackgroundEffects starts the post-transcript fetches. They touch
// disjoint state fields, so they run concurrently; failures are logged and
// never roll back artifacts that already succeeded.
func (o *Orchestrator) runBackgroundEffects(subCtx context.Context, gen uint64) {
	snap := o.store.Snapshot()

	g, ctx := errgroup.WithContext(subCtx)

	if o.store.ClaimSuggestionsFetch(gen) {
		prefix := o.store.TranscriptPrefix(o.opts.SuggestionPrefix)
		g.Go(func() error {
			questions, err := o.backend.SuggestedQuestions(ctx, prefix)
			if err != nil {
				if !isCanceled(err) {
					slog.Warn("suggested questions fetch failed", "error", err)
				}
				return nil
			}
			suggestions := make([]session.Suggestion, 0, len(questions))
			for _, q := range questions {
				suggestions = append(suggestions, session.Suggestion{Topic: q.Topic, Question: q.Question})
			}
			o.store.SetSuggestions(gen, suggestions)
			return nil
		})
	}

	if snap.InputMode == session.ModeURL && snap.URLKind == classify.Video && snap.EmbedURL != "" {
		videoID := classify.VideoID(snap.EmbedURL)
		if o.store.ClaimVideoSummaryFetch(gen, videoID) {
			prefix := o.store.TranscriptPrefix(o.opts.SuggestionPrefix)
			embedURL := snap.EmbedURL
			g.Go(func() error {
				summary, err := o.backend.VideoSummary(ctx, prefix, embedURL)
				if err != nil || summary == "" {
					if err != nil && !isCanceled(err) {
						slog.Warn("video summary fetch failed", "error", err)
					}
					transcript, _ := o.store.Transcript()
					summary = session.VideoSummaryFallback(transcript, o.opts.VideoSummaryFallbackLen)
				}
				o.store.SetVideoSummary(gen, summary)
				return nil
			})
		}
	}

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		_ = g.Wait()
	}()
}

// applyTranscriptDocument interprets a whole-body JSON answer from the
// segments endpoint. Returns false when the body is not such a document.
func applyTranscriptDocument(store *session.Store, gen uint64, data []byte) bool {
	doc, ok := stream.ParseTranscriptDocument(data)
	if !ok {
		return false
	}
	if len(doc.Segments) > 0 {
		store.SetSegments(gen, doc.Segments)
	} else {
		store.ReplaceTranscript(gen, doc.Transcript)
	}
	return true
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
