// Package backend is the HTTP client for the remote processing API. The
// backend performs all actual work (transcription, summarization, quiz and
// chat generation, scraping); this client only shapes requests and hands
// response bodies to the stream decoder. All endpoints are relative to one
// configured base URL and carry no authentication.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the processing backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a client for the given base URL. A zero timeout disables the
// client-side deadline; streamed generations are unbounded and end only on
// completion, cancellation, or transport failure.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// errorBody is the error payload shape backends return; either key may be
// used depending on the endpoint.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func apiErrorFrom(status int, body []byte) *APIError {
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		if eb.Error != "" {
			return &APIError{StatusCode: status, Message: eb.Error}
		}
		if eb.Message != "" {
			return &APIError{StatusCode: status, Message: eb.Message}
		}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return apiErrorFrom(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// openStream issues a request and returns the raw body for the stream
// decoder, along with the response Content-Type. Non-2xx responses are
// drained into an *APIError.
func (c *Client) openStream(ctx context.Context, method, path string, body any) (io.ReadCloser, string, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, "", apiErrorFrom(resp.StatusCode, respBody)
	}

	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// Transcript fetches a transcript without streaming (legacy endpoint).
func (c *Client) Transcript(ctx context.Context, sourceURL string) (TranscriptResponse, error) {
	var resp TranscriptResponse
	err := c.doJSON(ctx, http.MethodGet, "/transcript?url="+url.QueryEscape(sourceURL), nil, &resp)
	return resp, err
}

// TranscribeAudio transcribes an audio URL without streaming (legacy
// endpoint).
func (c *Client) TranscribeAudio(ctx context.Context, sourceURL string) (TranscriptResponse, error) {
	var resp TranscriptResponse
	err := c.doJSON(ctx, http.MethodGet, "/transcribe-audio?url="+url.QueryEscape(sourceURL), nil, &resp)
	return resp, err
}

// UploadTranscript uploads a file (multipart field "file") and returns the
// extracted transcript.
func (c *Client) UploadTranscript(ctx context.Context, filename string, r io.Reader) (TranscriptResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return TranscriptResponse{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return TranscriptResponse{}, fmt.Errorf("copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return TranscriptResponse{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcript/upload", &buf)
	if err != nil {
		return TranscriptResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TranscriptResponse{}, fmt.Errorf("upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return TranscriptResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return TranscriptResponse{}, apiErrorFrom(resp.StatusCode, respBody)
	}

	var tr TranscriptResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return TranscriptResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return tr, nil
}

// StreamTranscript opens the event-framed transcript stream for an audio
// URL.
func (c *Client) StreamTranscript(ctx context.Context, sourceURL string) (io.ReadCloser, error) {
	body, _, err := c.openStream(ctx, http.MethodPost, "/transcript/stream", map[string]string{"url": sourceURL})
	return body, err
}

// TranscriptSegments opens the segments endpoint for a video URL. The
// response is either an event-framed stream or a plain JSON document; the
// returned content type tells them apart.
func (c *Client) TranscriptSegments(ctx context.Context, sourceURL string) (io.ReadCloser, string, error) {
	return c.openStream(ctx, http.MethodGet, "/transcript/segments?url="+url.QueryEscape(sourceURL), nil)
}

// StreamSummary opens the plain incremental summary stream.
func (c *Client) StreamSummary(ctx context.Context, transcript string, refresh bool) (io.ReadCloser, error) {
	body, _, err := c.openStream(ctx, http.MethodPost, "/summary/summarize-stream", generateRequest{
		Transcript: transcript,
		Refresh:    refresh,
		UseOpenAI:  true,
	})
	return body, err
}

// StreamQuiz opens the plain incremental quiz (Q&A) stream.
func (c *Client) StreamQuiz(ctx context.Context, transcript string, refresh bool) (io.ReadCloser, error) {
	body, _, err := c.openStream(ctx, http.MethodPost, "/summary/qna-stream", generateRequest{
		Transcript: transcript,
		Refresh:    refresh,
		UseOpenAI:  true,
	})
	return body, err
}

// VideoSummary fetches the short non-streaming summary shown beside the
// video player. The transcript argument must already be truncated by the
// caller.
func (c *Client) VideoSummary(ctx context.Context, transcript, videoURL string) (string, error) {
	var resp struct {
		Summary string `json:"summary"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/summary/summarize-video", map[string]string{
		"transcript": transcript,
		"url":        videoURL,
	}, &resp)
	return resp.Summary, err
}

// StreamChat opens the plain incremental chat answer stream. The backend is
// stateless across calls, so the full history travels on every turn.
func (c *Client) StreamChat(ctx context.Context, transcript string, history []ChatMessage) (io.ReadCloser, error) {
	body, _, err := c.openStream(ctx, http.MethodPost, "/chat/on-topic", chatRequest{
		Transcript:  transcript,
		ChatHistory: history,
	})
	return body, err
}

// SuggestedQuestions fetches suggested questions for a transcript prefix.
func (c *Client) SuggestedQuestions(ctx context.Context, summaryPrefix string) ([]SuggestedQuestion, error) {
	var resp struct {
		Questions []SuggestedQuestion `json:"questions"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/chat/suggested-questions", map[string]string{
		"summary": summaryPrefix,
	}, &resp)
	return resp.Questions, err
}

// Scrape extracts the text content of a website.
func (c *Client) Scrape(ctx context.Context, sourceURL string) (string, error) {
	var resp struct {
		Transcript string `json:"transcript"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/scrape", map[string]string{"url": sourceURL}, &resp)
	return resp.Transcript, err
}
