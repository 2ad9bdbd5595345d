// Package sse writes Server-Sent Events and keeps a readable transcript of
// what was streamed.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Event names.
const (
	EventStatus = "status"
	EventDelta  = "delta"
	EventTool   = "tool"
	EventResult = "result"
	EventError  = "error"
	EventDone   = "done"
)

type statusData struct {
	Message string `json:"message"`
}

type deltaData struct {
	Text string `json:"text"`
}

type toolData struct {
	Name   string `json:"name"`
	Phase  string `json:"phase"`
	Detail string `json:"detail,omitempty"`
}

type errorData struct {
	Error string `json:"error"`
}

// Writer streams events to one HTTP response. It is safe for concurrent
// use. Events sent through the typed helpers are also recorded in the
// Accumulator returned by Transcript.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	acc     *Accumulator
	err     error
}

// NewWriter sets the event-stream headers and writes the status line.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming is not supported by this response writer")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher, acc: &Accumulator{}}, nil
}

// Send writes one event with data encoded as JSON. After the first write
// error every call returns that error.
func (s *Writer) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s event", event)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		s.err = errors.Wrap(err, "client disconnected")
		return s.err
	}
	s.flusher.Flush()
	return nil
}

// Status sends a status message.
func (s *Writer) Status(msg string) error {
	s.acc.Status(msg)
	return s.Send(EventStatus, statusData{Message: msg})
}

// Delta sends a chunk of streamed text.
func (s *Writer) Delta(text string) error {
	s.acc.Delta(text)
	return s.Send(EventDelta, deltaData{Text: text})
}

// Tool reports a tool phase change.
func (s *Writer) Tool(name, phase, detail string) error {
	s.acc.Tool(name, phase, detail)
	return s.Send(EventTool, toolData{Name: name, Phase: phase, Detail: detail})
}

// Result sends the final payload of an operation.
func (s *Writer) Result(v any) error {
	return s.Send(EventResult, v)
}

// Error sends an error event with the given user-facing message.
func (s *Writer) Error(msg string) error {
	s.acc.Status("error: " + msg)
	return s.Send(EventError, errorData{Error: msg})
}

// Done ends the stream.
func (s *Writer) Done() error {
	return s.Send(EventDone, struct{}{})
}

// Transcript returns what has been streamed so far.
func (s *Writer) Transcript() *Accumulator {
	return s.acc
}

// BlockKind classifies transcript blocks.
type BlockKind string

const (
	BlockText   BlockKind = "text"
	BlockTool   BlockKind = "tool"
	BlockStatus BlockKind = "status"
)

// Block is one display unit of a transcript.
type Block struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text"`
}

// Accumulator merges consecutive deltas into a single text block, so a
// streamed answer reads as one paragraph rather than hundreds of
// fragments.
type Accumulator struct {
	mu     sync.Mutex
	blocks []Block
}

// Delta appends text to the current text block, starting one if needed.
func (a *Accumulator) Delta(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.blocks); n > 0 && a.blocks[n-1].Kind == BlockText {
		a.blocks[n-1].Text += text
		return
	}
	a.blocks = append(a.blocks, Block{Kind: BlockText, Text: text})
}

// Tool records a tool call. Only starts and failures are kept; a finish
// adds nothing a reader needs.
func (a *Accumulator) Tool(name, phase, detail string) {
	var text string
	switch phase {
	case "start":
		text = name
		if detail != "" {
			text += " " + detail
		}
	case "error":
		text = name + " failed"
		if detail != "" {
			text += ": " + detail
		}
	default:
		return
	}
	a.add(Block{Kind: BlockTool, Text: text})
}

// Status records a status line.
func (a *Accumulator) Status(msg string) {
	a.add(Block{Kind: BlockStatus, Text: msg})
}

func (a *Accumulator) add(b Block) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocks = append(a.blocks, b)
}

// Blocks returns a copy of the transcript.
func (a *Accumulator) Blocks() []Block {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Block(nil), a.blocks...)
}

// Text returns the concatenated text blocks only.
func (a *Accumulator) Text() string {
	var parts []string
	for _, b := range a.Blocks() {
		if b.Kind == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// String renders the transcript as Markdown.
func (a *Accumulator) String() string {
	var sb strings.Builder
	for _, b := range a.Blocks() {
		switch b.Kind {
		case BlockText:
			sb.WriteString(strings.TrimSpace(b.Text))
			sb.WriteString("\n\n")
		case BlockTool:
			sb.WriteString("> 🔧 ")
			sb.WriteString(b.Text)
			sb.WriteString("\n\n")
		case BlockStatus:
			sb.WriteString("_")
			sb.WriteString(b.Text)
			sb.WriteString("_\n\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
