// Package wyoming implements the line-oriented streaming protocol spoken by
// voice satellites and speech services.
//
// # Framing
//
// Each message is a single JSON header line terminated by '\n':
//
//	{"type": "audio-chunk", "data": {...}, "payload_length": 2048}
//
// When payload_length is present and non-zero, exactly that many raw bytes
// follow the header line (e.g. PCM audio). Messages with no binary payload
// omit the field or set it to null.
//
// # Event Types
//
// The gateway consumes and produces a small subset of the protocol:
//
//	transcribe   → start a recognition session (optional language)
//	audio-start  → declares stream parameters, begins the audio stream
//	audio-chunk  → raw PCM payload
//	audio-stop   → end of audio
//	transcript   ← recognition result; empty text signals rejection
//	describe     → client probes service capabilities
//	info         ← service description
package wyoming

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event type names.
const (
	TypeDescribe   = "describe"
	TypeInfo       = "info"
	TypeTranscribe = "transcribe"
	TypeAudioStart = "audio-start"
	TypeAudioChunk = "audio-chunk"
	TypeAudioStop  = "audio-stop"
	TypeTranscript = "transcript"
)

// ErrProtocol indicates a malformed or out-of-order message. Errors of this
// kind terminate the offending connection only.
var ErrProtocol = errors.New("wyoming: protocol error")

// Event is a single protocol message: a type, an optional JSON data object,
// and an optional binary payload.
type Event struct {
	Type    string
	Data    json.RawMessage
	Payload []byte
}

// header is the wire form of the JSON header line.
type header struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data,omitempty"`
	PayloadLength *int            `json:"payload_length,omitempty"`
}

// Unmarshal decodes the event's data object into v.
func (e *Event) Unmarshal(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s event has no data", ErrProtocol, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: bad %s data: %v", ErrProtocol, e.Type, err)
	}
	return nil
}

// Transcribe requests a recognition session.
type Transcribe struct {
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
}

// AudioFormat describes the PCM stream parameters carried by audio-start
// and audio-chunk events.
type AudioFormat struct {
	Rate     int `json:"rate"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

// Transcript carries the recognition result. An empty Text means the audio
// was rejected and the pipeline should stop silently.
type Transcript struct {
	Text string `json:"text"`
}

// Info describes the service capabilities in response to a describe event.
type Info struct {
	ASR []ASRProgram `json:"asr,omitempty"`
}

// ASRProgram describes one speech-to-text program offered by the service.
type ASRProgram struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Installed   bool   `json:"installed"`
}

// NewEvent builds an event with the given data object marshaled into the
// header. It panics only if data cannot be marshaled, which indicates a
// programming error.
func NewEvent(typ string, data any) *Event {
	ev := &Event{Type: typ}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			panic(fmt.Sprintf("wyoming: marshal %s data: %v", typ, err))
		}
		ev.Data = b
	}
	return ev
}

// NewTranscribe builds a transcribe event. Language may be empty.
func NewTranscribe(language string) *Event {
	if language == "" {
		return NewEvent(TypeTranscribe, nil)
	}
	return NewEvent(TypeTranscribe, Transcribe{Language: language})
}

// NewAudioStart builds an audio-start event for the given format.
func NewAudioStart(f AudioFormat) *Event {
	return NewEvent(TypeAudioStart, f)
}

// NewAudioChunk builds an audio-chunk event carrying pcm as its payload.
func NewAudioChunk(f AudioFormat, pcm []byte) *Event {
	ev := NewEvent(TypeAudioChunk, f)
	ev.Payload = pcm
	return ev
}

// NewAudioStop builds an audio-stop event.
func NewAudioStop() *Event {
	return NewEvent(TypeAudioStop, nil)
}

// NewTranscript builds a transcript event. An empty text is a valid
// (rejecting) transcript.
func NewTranscript(text string) *Event {
	return NewEvent(TypeTranscript, Transcript{Text: text})
}

// NewInfo builds an info event.
func NewInfo(info Info) *Event {
	return NewEvent(TypeInfo, info)
}
