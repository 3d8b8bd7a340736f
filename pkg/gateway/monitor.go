package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/jsontime"
	"github.com/haivivi/voicegate/pkg/voiceprint"
)

// Verdict is one session's outcome, published to monitor subscribers.
type Verdict struct {
	Session string            `json:"session"`
	Matched bool              `json:"matched"`
	Speaker string            `json:"speaker,omitempty"`
	Score   float64           `json:"score"`
	Pass    int               `json:"pass,omitempty"`
	Audio   jsontime.Duration `json:"audio"`
	Elapsed jsontime.Duration `json:"elapsed"`
	Time    jsontime.Milli    `json:"time"`
}

func (s *Session) verdict(res voiceprint.Result, bufBytes int, elapsed time.Duration) Verdict {
	return Verdict{
		Session: s.id,
		Matched: res.Matched,
		Speaker: res.Speaker,
		Score:   res.Score,
		Pass:    res.Pass,
		Audio:   jsontime.Duration(pcm.L16Mono16K.Duration(bufBytes)),
		Elapsed: jsontime.Duration(elapsed),
		Time:    jsontime.NowMilli(),
	}
}

// Monitor broadcasts session verdicts to websocket subscribers for live
// observation. A nil Monitor is valid and publishes nothing. Slow
// subscribers lose verdicts rather than stalling sessions.
type Monitor struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewMonitor creates a Monitor. logger may be nil.
func NewMonitor(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		logger: logger,
		upgrader: websocket.Upgrader{
			// The monitor is an operator tool on a trusted port.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[chan []byte]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket and streams verdicts
// until the client goes away.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("monitor upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch := make(chan []byte, 16)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
	}()
	m.logger.Info("monitor subscriber connected", "remote", r.RemoteAddr)

	// Discard inbound frames; their errors signal disconnect.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-ch:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// publish fans a verdict out to every subscriber, dropping it for any
// whose buffer is full.
func (m *Monitor) publish(v Verdict) {
	if m == nil {
		return
	}
	msg, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("monitor marshal failed", "err", err)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}
