package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Directions of a transcript event.
const (
	EventInbound  = "i"
	EventOutbound = "o"
)

// TranscriptHeader is the first line of a transcript.
type TranscriptHeader struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	URL       string `json:"url,omitempty"`
	Codec     string `json:"codec,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// TranscriptEvent is one recorded frame.
// Format: [time_offset, direction, frame]
type TranscriptEvent struct {
	TimeOffset float64
	Direction  string
	Frame      string
}

// MarshalJSON implements custom JSON marshaling for TranscriptEvent.
func (e TranscriptEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.TimeOffset, e.Direction, e.Frame})
}

// UnmarshalJSON implements custom JSON unmarshaling for TranscriptEvent.
func (e *TranscriptEvent) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event format: expected 3 elements, got %d", len(arr))
	}

	timeOffset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid time offset type")
	}
	direction, ok := arr[1].(string)
	if !ok || (direction != EventInbound && direction != EventOutbound) {
		return fmt.Errorf("invalid event direction %v", arr[1])
	}
	frame, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid event frame type")
	}

	e.TimeOffset = timeOffset
	e.Direction = direction
	e.Frame = frame
	return nil
}

// Transcript records every raw frame of a session as JSON lines: a header
// followed by one event per frame.
type Transcript struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	startTime time.Time
	mu        sync.Mutex
}

// NewTranscript creates a transcript at filePath.
func NewTranscript(filePath string) (*Transcript, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript: %w", err)
	}

	return &Transcript{
		writer:    file,
		file:      file,
		startTime: time.Now(),
	}, nil
}

// NewTranscriptWithWriter creates a transcript writing to w.
func NewTranscriptWithWriter(w io.Writer) *Transcript {
	return &Transcript{
		writer:    w,
		startTime: time.Now(),
	}
}

// WriteHeader writes the header line. Call it once before any event.
func (t *Transcript) WriteHeader(sessionID, url, codec string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	header := TranscriptHeader{
		Version:   1,
		SessionID: sessionID,
		URL:       url,
		Codec:     codec,
		Timestamp: t.startTime.Unix(),
	}

	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// WriteInbound records a frame received from the server.
func (t *Transcript) WriteInbound(frame []byte) error {
	return t.writeEvent(EventInbound, frame)
}

// WriteOutbound records a frame sent to the server.
func (t *Transcript) WriteOutbound(frame []byte) error {
	return t.writeEvent(EventOutbound, frame)
}

func (t *Transcript) writeEvent(direction string, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	event := TranscriptEvent{
		TimeOffset: time.Since(t.startTime).Seconds(),
		Direction:  direction,
		Frame:      string(frame),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close closes the transcript file if the transcript owns it.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file != nil {
		return t.file.Close()
	}
	return nil
}

// ReadTranscript parses a transcript written by Transcript.
func ReadTranscript(r io.Reader) (TranscriptHeader, []TranscriptEvent, error) {
	var header TranscriptHeader
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return header, nil, err
		}
		return header, nil, fmt.Errorf("empty transcript")
	}
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return header, nil, fmt.Errorf("invalid header: %w", err)
	}

	var events []TranscriptEvent
	for scanner.Scan() {
		var ev TranscriptEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return header, events, fmt.Errorf("invalid event %d: %w", len(events)+1, err)
		}
		events = append(events, ev)
	}
	return header, events, scanner.Err()
}
