package wyoming

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

const (
	// MaxHeaderBytes bounds the JSON header line length.
	MaxHeaderBytes = 1 << 20 // 1 MiB

	// MaxPayloadBytes bounds a single event's binary payload.
	MaxPayloadBytes = 1 << 24 // 16 MiB
)

// Reader decodes events from a stream.
//
// Reader is not safe for concurrent use; a connection has exactly one
// reading goroutine.
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a Reader on top of r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64<<10)}
}

// Read decodes the next event, including its binary payload if any.
// It returns io.EOF when the stream ends cleanly between events, and an
// error wrapping ErrProtocol for malformed input.
func (r *Reader) Read() (*Event, error) {
	line, err := r.readHeaderLine()
	if err != nil {
		return nil, err
	}

	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("%w: bad header: %v", ErrProtocol, err)
	}
	if h.Type == "" {
		return nil, fmt.Errorf("%w: header missing type", ErrProtocol)
	}

	ev := &Event{Type: h.Type, Data: h.Data}
	if h.PayloadLength != nil && *h.PayloadLength != 0 {
		n := *h.PayloadLength
		if n < 0 || n > MaxPayloadBytes {
			return nil, fmt.Errorf("%w: payload_length %d out of range", ErrProtocol, n)
		}
		ev.Payload = make([]byte, n)
		if _, err := io.ReadFull(r.br, ev.Payload); err != nil {
			return nil, fmt.Errorf("%w: short payload for %s: %v", ErrProtocol, h.Type, err)
		}
	}
	return ev, nil
}

func (r *Reader) readHeaderLine() ([]byte, error) {
	var line []byte
	for {
		frag, err := r.br.ReadSlice('\n')
		line = append(line, frag...)
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			if len(line) > MaxHeaderBytes {
				return nil, fmt.Errorf("%w: header line exceeds %d bytes", ErrProtocol, MaxHeaderBytes)
			}
			continue
		}
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		return nil, err
	}
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty header line", ErrProtocol)
	}
	return line, nil
}

// Writer encodes events onto a stream.
//
// Writer is safe for concurrent use; the header line and its payload are
// written atomically with respect to other Write calls.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer on top of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes a single event: header line, then payload bytes if any.
func (w *Writer) Write(ev *Event) error {
	h := header{Type: ev.Type, Data: ev.Data}
	if len(ev.Payload) > 0 {
		n := len(ev.Payload)
		h.PayloadLength = &n
	}
	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("wyoming: marshal header: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	if len(ev.Payload) > 0 {
		if _, err := w.w.Write(ev.Payload); err != nil {
			return err
		}
	}
	return nil
}
