package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vibeknowing/companion/internal/backend"
	"github.com/vibeknowing/companion/internal/orchestrate"
	"github.com/vibeknowing/companion/internal/session"
)

// maxUploadMemory bounds how much of a multipart upload is buffered in
// memory before spilling to disk.
const maxUploadMemory = 32 << 20

// Intents is the slice of the orchestrator the HTTP layer drives.
type Intents interface {
	SubmitURL(rawURL string) error
	SubmitText(text string) error
	SubmitFile(filename string, size int64, r io.Reader) error
	SubmitChat(message string) error
	Refresh(artifact session.Artifact) error
	SelectOutputTab(tab session.OutputTab) error
	SelectPanelTab(tab session.PanelTab) error
	Cancel()
}

// SessionSource exposes the current session state for reads.
type SessionSource interface {
	Snapshot() session.Session
}

type analyzeRequest struct {
	Mode string `json:"mode"`
	URL  string `json:"url,omitempty"`
	Text string `json:"text,omitempty"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type refreshRequest struct {
	Artifact string `json:"artifact"`
}

type tabRequest struct {
	Output string `json:"output,omitempty"`
	Panel  string `json:"panel,omitempty"`
}

func registerAPIRoutes(mux *http.ServeMux, intents Intents, sessions SessionSource, warnings []string) {
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessions.Snapshot())
	})

	mux.HandleFunc("POST /api/analyze", func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}

		var err error
		switch req.Mode {
		case "url":
			err = intents.SubmitURL(req.URL)
		case "text":
			if req.Text == "" {
				writeJSONError(w, http.StatusBadRequest, "text is required")
				return
			}
			err = intents.SubmitText(req.Text)
		default:
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
			return
		}
		if err != nil {
			writeIntentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions.Snapshot())
	})

	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse upload: %v", err))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer func() { _ = file.Close() }()

		if err := intents.SubmitFile(header.Filename, header.Size, file); err != nil {
			writeIntentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions.Snapshot())
	})

	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		if err := intents.SubmitChat(req.Message); err != nil {
			writeIntentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions.Snapshot())
	})

	mux.HandleFunc("POST /api/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		artifact := session.Artifact(req.Artifact)
		if artifact != session.ArtifactSummary && artifact != session.ArtifactQuiz {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("artifact %q is not refreshable", req.Artifact))
			return
		}
		if err := intents.Refresh(artifact); err != nil {
			writeIntentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions.Snapshot())
	})

	mux.HandleFunc("POST /api/tab", func(w http.ResponseWriter, r *http.Request) {
		var req tabRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}

		if req.Output != "" {
			tab, ok := parseOutputTab(req.Output)
			if !ok {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown output tab %q", req.Output))
				return
			}
			if err := intents.SelectOutputTab(tab); err != nil {
				writeIntentError(w, err)
				return
			}
		}
		if req.Panel != "" {
			tab, ok := parsePanelTab(req.Panel)
			if !ok {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown panel tab %q", req.Panel))
				return
			}
			if err := intents.SelectPanelTab(tab); err != nil {
				writeIntentError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, sessions.Snapshot())
	})

	mux.HandleFunc("POST /api/cancel", func(w http.ResponseWriter, r *http.Request) {
		intents.Cancel()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		ws := warnings
		if ws == nil {
			ws = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"loading":  sessions.Snapshot().Loading,
			"warnings": ws,
		})
	})
}

func parseOutputTab(raw string) (session.OutputTab, bool) {
	switch tab := session.OutputTab(raw); tab {
	case session.TabTranscript, session.TabSummary, session.TabQuiz:
		return tab, true
	}
	return "", false
}

func parsePanelTab(raw string) (session.PanelTab, bool) {
	switch tab := session.PanelTab(raw); tab {
	case session.PanelVideo, session.PanelQuiz, session.PanelChat:
		return tab, true
	}
	return "", false
}

// writeIntentError maps orchestrator errors onto HTTP statuses: bad input is
// the caller's fault, anything else means the analysis backend failed.
func writeIntentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrate.ErrInvalidURL):
		writeJSONError(w, http.StatusBadRequest, "unrecognized or invalid URL")
	case errors.Is(err, orchestrate.ErrChatPending):
		writeJSONError(w, http.StatusConflict, "a chat turn is already awaiting its answer")
	default:
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			writeJSONError(w, http.StatusBadGateway, apiErr.Message)
			return
		}
		writeJSONError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
