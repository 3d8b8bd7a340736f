package gateway

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/haivivi/voicegate/pkg/voiceprint"
	"github.com/haivivi/voicegate/pkg/wyoming"
)

func startServer(t *testing.T, v Verifier, relay Transcriber) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(v, relay, WithServerLogger(slog.New(slog.DiscardHandler)))
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	return ln.Addr().String(), func() {
		cancel()
		<-done
	}
}

// runStream speaks one full inbound stream against the server and
// returns the transcript.
func runStream(t *testing.T, addr string, audio []byte) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	w := wyoming.NewWriter(conn)
	r := wyoming.NewReader(conn)
	for _, ev := range []*wyoming.Event{
		wyoming.NewTranscribe(""),
		wyoming.NewAudioStart(format16k),
		wyoming.NewAudioChunk(format16k, audio),
		wyoming.NewAudioStop(),
	} {
		if err := w.Write(ev); err != nil {
			t.Fatal(err)
		}
	}
	for {
		ev, err := r.Read()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Type != wyoming.TypeTranscript {
			continue
		}
		var tr wyoming.Transcript
		if err := ev.Unmarshal(&tr); err != nil {
			t.Fatal(err)
		}
		return tr.Text
	}
}

func TestServerAcceptedStream(t *testing.T) {
	v := &fakeVerifier{result: voiceprint.Result{Matched: true, Speaker: "alice", Score: 0.62, Pass: 1}}
	relay := &fakeRelay{text: "what time is it"}
	addr, stop := startServer(t, v, relay)
	defer stop()

	if text := runStream(t, addr, make([]byte, 32000)); text != "what time is it" {
		t.Errorf("transcript = %q", text)
	}
	if relay.count() != 1 {
		t.Errorf("relay calls = %d, want 1", relay.count())
	}
}

func TestServerRejectedStream(t *testing.T) {
	v := &fakeVerifier{result: voiceprint.Result{Score: 0.20}}
	relay := &fakeRelay{}
	addr, stop := startServer(t, v, relay)
	defer stop()

	if text := runStream(t, addr, make([]byte, 32000)); text != "" {
		t.Errorf("transcript = %q, want empty", text)
	}
	if relay.count() != 0 {
		t.Errorf("relay calls = %d, want 0", relay.count())
	}
}

func TestServerSurvivesBadConnection(t *testing.T) {
	v := &fakeVerifier{result: voiceprint.Result{Matched: true, Speaker: "alice", Score: 0.9, Pass: 1}}
	relay := &fakeRelay{text: "still here"}
	addr, stop := startServer(t, v, relay)
	defer stop()

	// A connection that talks garbage gets dropped without taking the
	// listener down.
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	conn.Write([]byte("not json at all\n"))
	conn.Close()

	if text := runStream(t, addr, make([]byte, 32000)); text != "still here" {
		t.Errorf("transcript after bad connection = %q", text)
	}
}

func TestServerStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(&fakeVerifier{}, &fakeRelay{}, WithServerLogger(slog.New(slog.DiscardHandler)))

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
