package wyoming

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	events := []*Event{
		NewTranscribe("en"),
		NewAudioStart(AudioFormat{Rate: 16000, Width: 2, Channels: 1}),
		NewAudioChunk(AudioFormat{Rate: 16000, Width: 2, Channels: 1}, pcm),
		NewAudioStop(),
		NewTranscript("hello world"),
	}
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			t.Fatalf("write %s: %v", ev.Type, err)
		}
	}

	r := NewReader(&buf)
	for i, want := range events {
		got, err := r.Read()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got.Type != want.Type {
			t.Errorf("event %d: type %q, want %q", i, got.Type, want.Type)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("event %d: payload %v, want %v", i, got.Payload, want.Payload)
		}
	}
	if _, err := r.Read(); err != io.EOF {
		t.Errorf("expected io.EOF after last event, got %v", err)
	}
}

func TestReadAudioStartData(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Write(NewAudioStart(AudioFormat{Rate: 22050, Width: 2, Channels: 1})); err != nil {
		t.Fatal(err)
	}

	ev, err := NewReader(&buf).Read()
	if err != nil {
		t.Fatal(err)
	}
	var f AudioFormat
	if err := ev.Unmarshal(&f); err != nil {
		t.Fatal(err)
	}
	if f.Rate != 22050 || f.Width != 2 || f.Channels != 1 {
		t.Errorf("unexpected format: %+v", f)
	}
}

func TestReadMalformedHeader(t *testing.T) {
	r := NewReader(strings.NewReader("not json\n"))
	if _, err := r.Read(); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

func TestReadMissingType(t *testing.T) {
	r := NewReader(strings.NewReader(`{"data": {}}` + "\n"))
	if _, err := r.Read(); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

func TestReadShortPayload(t *testing.T) {
	r := NewReader(strings.NewReader(`{"type": "audio-chunk", "payload_length": 100}` + "\nabc"))
	if _, err := r.Read(); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

func TestReadNegativePayloadLength(t *testing.T) {
	r := NewReader(strings.NewReader(`{"type": "audio-chunk", "payload_length": -1}` + "\n"))
	if _, err := r.Read(); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

func TestNullPayloadLength(t *testing.T) {
	r := NewReader(strings.NewReader(`{"type": "audio-stop", "data": null, "payload_length": null}` + "\n"))
	ev, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Type != TypeAudioStop || ev.Payload != nil {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestTranscriptEmptyText(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Write(NewTranscript("")); err != nil {
		t.Fatal(err)
	}
	ev, err := NewReader(&buf).Read()
	if err != nil {
		t.Fatal(err)
	}
	var tr Transcript
	if err := ev.Unmarshal(&tr); err != nil {
		t.Fatal(err)
	}
	if tr.Text != "" {
		t.Errorf("expected empty text, got %q", tr.Text)
	}
}
