// Package stream decodes backend response bodies into discrete application
// events. Two wire shapes exist: plain incremental text (summary, quiz and
// chat generation) and data:-framed JSON records separated by blank lines
// (transcript streaming).
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// EventType identifies a decoded stream event.
type EventType string

const (
	// TextChunk carries an incremental slice of artifact text.
	TextChunk EventType = "text_chunk"
	// TranscriptChunk carries a transcript slice that is appended with a
	// trailing newline separator.
	TranscriptChunk EventType = "transcript_chunk"
	// TranscriptFull carries a complete transcript that replaces anything
	// accumulated so far (legacy untyped records).
	TranscriptFull EventType = "transcript"
	// SegmentsEvent carries a full replacement list of timestamped segments.
	SegmentsEvent EventType = "segments"
	// Progress carries a human-readable status message.
	Progress EventType = "progress"
	// Complete is terminal; no further events follow.
	Complete EventType = "complete"
	// ErrorEvent is terminal and carries a failure message.
	ErrorEvent EventType = "error"
)

// Segment is a timestamped slice of a transcript.
type Segment struct {
	Start float64 `json:"start"`
	Text  string  `json:"text"`
}

// Event is one decoded application-level event.
type Event struct {
	Type     EventType
	Text     string
	Segments []Segment
	Message  string
}

// JoinSegments derives the flat transcript from a segment list, joining
// segment texts with single spaces.
func JoinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

// TranscriptDocument is the whole-body JSON answer some backends return
// from the segments endpoint instead of a stream.
type TranscriptDocument struct {
	Segments   []Segment `json:"segments"`
	Transcript string    `json:"transcript"`
}

// ParseTranscriptDocument interprets a response body as a whole-document
// JSON answer. It reports false when the body is not such a document, which
// tells the caller to fall back to frame decoding.
func ParseTranscriptDocument(data []byte) (TranscriptDocument, bool) {
	var doc TranscriptDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return TranscriptDocument{}, false
	}
	if len(doc.Segments) == 0 && doc.Transcript == "" {
		return TranscriptDocument{}, false
	}
	return doc, true
}

const readBufferSize = 4096

// DecodeText consumes a plain incremental text response. Every read chunk
// is emitted as a TextChunk event; a multi-byte rune split across reads is
// held back until its remaining bytes arrive, so every emitted chunk is
// valid UTF-8. End of stream emits an implicit Complete. Decoding stops
// promptly once ctx is cancelled and no events are emitted afterwards.
func DecodeText(ctx context.Context, r io.Reader, emit func(Event)) error {
	buf := make([]byte, readBufferSize)
	var tail []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			chunk := append(tail, buf[:n]...)
			cut := partialRuneStart(chunk)
			tail = append([]byte(nil), chunk[cut:]...)
			if cut > 0 {
				emit(Event{Type: TextChunk, Text: string(chunk[:cut])})
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// A held partial rune at end of stream is emitted as-is;
				// the bytes belong to the content even when truncated.
				if len(tail) > 0 {
					emit(Event{Type: TextChunk, Text: string(tail)})
				}
				emit(Event{Type: Complete})
				return nil
			}
			return err
		}
	}
}

// partialRuneStart returns the index where an incomplete trailing UTF-8
// sequence begins, or len(b) when the buffer ends on a rune boundary.
// Invalid sequences are not repaired; they pass through at full length.
func partialRuneStart(b []byte) int {
	n := len(b)
	for i := n - 1; i >= 0 && i > n-utf8.UTFMax; i-- {
		c := b[i]
		if c < utf8.RuneSelf {
			return n
		}
		if c >= 0xC0 {
			size := 2
			switch {
			case c >= 0xF0:
				size = 4
			case c >= 0xE0:
				size = 3
			}
			if i+size > n {
				return i
			}
			return n
		}
		// Continuation byte, keep scanning backwards.
	}
	return n
}

var recordSeparator = regexp.MustCompile(`\n\n+`)

// DecodeEvents consumes a data:-framed event stream. Records are separated
// by one or more blank lines; each record's payload is the JSON after the
// data: prefix. A partial trailing record is buffered across reads since
// records are not chunk-aligned. Records that fail to parse as JSON are
// dropped and decoding continues; this is deliberately lossy for a record
// split exactly at a read boundary whose prefix happens to terminate with a
// blank line. End of stream without an explicit complete/error record emits
// an implicit Complete.
func DecodeEvents(ctx context.Context, r io.Reader, emit func(Event)) error {
	buf := make([]byte, readBufferSize)
	var pending strings.Builder

	flush := func(final bool) bool {
		data := pending.String()
		pending.Reset()

		records := recordSeparator.Split(data, -1)
		if !final && len(records) > 0 {
			// The last record may be incomplete; keep it for the next read.
			pending.WriteString(records[len(records)-1])
			records = records[:len(records)-1]
		}

		for _, record := range records {
			ev, ok := parseRecord(record)
			if !ok {
				continue
			}
			emit(ev)
			if ev.Type == Complete || ev.Type == ErrorEvent {
				return true
			}
		}
		return false
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			pending.Write(buf[:n])
			if flush(false) {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !flush(true) {
					emit(Event{Type: Complete})
				}
				return nil
			}
			return err
		}
	}
}

// wireRecord is the union of every payload shape the backend emits: typed
// records carry a type key, while two legacy shapes carry bare segments or
// a bare transcript.
type wireRecord struct {
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Message    string    `json:"message"`
	Segments   []Segment `json:"segments"`
	Transcript string    `json:"transcript"`
}

func parseRecord(record string) (Event, bool) {
	trimmed := strings.TrimSpace(record)
	if !strings.HasPrefix(trimmed, "data:") {
		return Event{}, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))

	var rec wireRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		// Malformed or incomplete JSON: drop the record.
		return Event{}, false
	}

	switch rec.Type {
	case "transcript_chunk":
		if rec.Content == "" {
			return Event{}, false
		}
		return Event{Type: TranscriptChunk, Text: rec.Content}, true
	case "segments":
		if len(rec.Segments) == 0 {
			return Event{}, false
		}
		return Event{Type: SegmentsEvent, Segments: rec.Segments}, true
	case "progress":
		if rec.Message == "" {
			return Event{}, false
		}
		return Event{Type: Progress, Message: rec.Message}, true
	case "complete":
		return Event{Type: Complete}, true
	case "error":
		return Event{Type: ErrorEvent, Message: rec.Message}, true
	case "":
		// Untyped legacy records.
		if len(rec.Segments) > 0 {
			return Event{Type: SegmentsEvent, Segments: rec.Segments}, true
		}
		if rec.Transcript != "" {
			return Event{Type: TranscriptFull, Text: rec.Transcript}, true
		}
	}
	return Event{}, false
}
