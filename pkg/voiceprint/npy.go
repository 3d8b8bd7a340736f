package voiceprint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Voiceprint files are NumPy .npy arrays as written by the enrollment
// tooling: a fixed-length 1-D float array. Only the subset of the format
// those files use is handled here: little-endian float32/float64, C order,
// one dimension.

var npyMagic = []byte("\x93NUMPY")

// readNPY parses a .npy file into a float32 vector.
func readNPY(r io.Reader) ([]float32, error) {
	head := make([]byte, 8)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("voiceprint: npy: short magic: %w", err)
	}
	if !bytes.Equal(head[:6], npyMagic) {
		return nil, fmt.Errorf("voiceprint: npy: bad magic %q", head[:6])
	}
	major := head[6]

	var headerLen int
	switch major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("voiceprint: npy: header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("voiceprint: npy: header length: %w", err)
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("voiceprint: npy: unsupported version %d", major)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("voiceprint: npy: short header: %w", err)
	}

	descr, count, err := parseNPYHeader(string(header))
	if err != nil {
		return nil, err
	}

	switch descr {
	case "<f4":
		vec := make([]float32, count)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("voiceprint: npy: short data: %w", err)
		}
		return vec, nil
	case "<f8":
		raw := make([]float64, count)
		if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
			return nil, fmt.Errorf("voiceprint: npy: short data: %w", err)
		}
		vec := make([]float32, count)
		for i, v := range raw {
			vec[i] = float32(v)
		}
		return vec, nil
	default:
		return nil, fmt.Errorf("voiceprint: npy: unsupported dtype %q", descr)
	}
}

// parseNPYHeader extracts the dtype and element count from the Python
// dict literal in the header, e.g.
//
//	{'descr': '<f4', 'fortran_order': False, 'shape': (192,), }
func parseNPYHeader(h string) (descr string, count int, err error) {
	descr, err = npyHeaderValue(h, "'descr':", "'", "'")
	if err != nil {
		return "", 0, err
	}
	if strings.Contains(h, "'fortran_order': True") {
		return "", 0, fmt.Errorf("voiceprint: npy: fortran order not supported")
	}
	shape, err := npyHeaderValue(h, "'shape':", "(", ")")
	if err != nil {
		return "", 0, err
	}

	count = 1
	dims := 0
	for _, part := range strings.Split(shape, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return "", 0, fmt.Errorf("voiceprint: npy: bad shape (%s)", shape)
		}
		count *= n
		if n != 1 {
			dims++
		}
	}
	// Accept (192,), (1, 192) and similar; reject true matrices.
	if dims > 1 {
		return "", 0, fmt.Errorf("voiceprint: npy: expected 1-D vector, got shape (%s)", shape)
	}
	if count == 0 || count > math.MaxInt32 {
		return "", 0, fmt.Errorf("voiceprint: npy: bad element count %d", count)
	}
	return descr, count, nil
}

func npyHeaderValue(h, key, open, end string) (string, error) {
	i := strings.Index(h, key)
	if i < 0 {
		return "", fmt.Errorf("voiceprint: npy: header missing %s", key)
	}
	rest := h[i+len(key):]
	a := strings.Index(rest, open)
	if a < 0 {
		return "", fmt.Errorf("voiceprint: npy: malformed %s", key)
	}
	rest = rest[a+len(open):]
	b := strings.Index(rest, end)
	if b < 0 {
		return "", fmt.Errorf("voiceprint: npy: malformed %s", key)
	}
	return rest[:b], nil
}

// writeNPY writes a float32 vector as a version 1.0 .npy file. Used by
// tests and enrollment helpers.
func writeNPY(w io.Writer, vec []float32) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d,), }", len(vec))
	// Pad with spaces so that magic+version+len+header is a multiple of 64,
	// terminated by a newline, per the format spec.
	total := len(npyMagic) + 2 + 2 + len(header) + 1
	if pad := 64 - total%64; pad != 64 {
		header += strings.Repeat(" ", pad)
	}
	header += "\n"

	if _, err := w.Write(npyMagic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, vec)
}
