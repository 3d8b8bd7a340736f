package voiceprint

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ExecModel implements [Model] by running an external embedder command
// per extraction: raw PCM16 goes to the child's stdin, the child writes
// exactly Dimension() little-endian float32 values to stdout.
//
// This keeps the actual inference stack (PyTorch, ONNX Runtime, a GPU
// context) out of the gateway process; the command is typically a thin
// wrapper around a pretrained speaker model. The [Gateway] permit already
// guarantees at most one child runs at a time.
type ExecModel struct {
	command string
	args    []string
	env     []string
	dim     int
	timeout time.Duration
}

// ExecModelOption configures an ExecModel.
type ExecModelOption func(*ExecModel)

// WithExecArgs sets extra command arguments.
func WithExecArgs(args ...string) ExecModelOption {
	return func(m *ExecModel) { m.args = args }
}

// WithExecEnv appends KEY=VALUE pairs to the child environment, on top of
// the parent environment. Used for device selection and model cache
// location (e.g. "VOICEGATE_DEVICE=cuda").
func WithExecEnv(env ...string) ExecModelOption {
	return func(m *ExecModel) { m.env = env }
}

// WithExecDimension overrides the expected embedding dimension.
// Default: EmbeddingDim (192).
func WithExecDimension(dim int) ExecModelOption {
	return func(m *ExecModel) {
		if dim > 0 {
			m.dim = dim
		}
	}
}

// WithExecTimeout bounds one extraction (default 30 s). A stalled child
// would otherwise hold the gateway permit indefinitely.
func WithExecTimeout(d time.Duration) ExecModelOption {
	return func(m *ExecModel) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewExecModel creates an ExecModel running the given command.
func NewExecModel(command string, opts ...ExecModelOption) *ExecModel {
	m := &ExecModel{
		command: command,
		dim:     EmbeddingDim,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Extract runs the embedder command once and parses its output vector.
func (m *ExecModel) Extract(audio []byte) ([]float32, error) {
	if len(audio) == 0 || len(audio)%2 != 0 {
		return nil, fmt.Errorf("%w: bad audio length %d", ErrModel, len(audio))
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.command, m.args...)
	cmd.Stdin = bytes.NewReader(audio)
	if len(m.env) > 0 {
		cmd.Env = append(os.Environ(), m.env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("%w: %s: %v (%s)", ErrModel, m.command, err, detail)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrModel, m.command, err)
	}

	want := m.dim * 4
	if stdout.Len() != want {
		return nil, fmt.Errorf("%w: %s wrote %d bytes, want %d", ErrModel, m.command, stdout.Len(), want)
	}
	vec := make([]float32, m.dim)
	if err := binary.Read(&stdout, binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("%w: decode embedding: %v", ErrModel, err)
	}
	return vec, nil
}

// Dimension returns the expected embedding dimension.
func (m *ExecModel) Dimension() int { return m.dim }

// Close is a no-op; each extraction runs its own child process.
func (m *ExecModel) Close() error { return nil }

var _ Model = (*ExecModel)(nil)
