package voiceprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/haivivi/voicegate/pkg/storage"
)

// ErrNoVoiceprints is returned by Load when the scan finds no usable
// voiceprint files. A gateway with an empty store can never accept audio,
// so startup should refuse it unless explicitly configured otherwise.
var ErrNoVoiceprints = errors.New("voiceprint: no voiceprints found")

// Store holds the enrolled voiceprints: speaker name → one or more
// embedding vectors. It is immutable after Load, so concurrent readers
// need no locking. A reload requires a process restart.
type Store struct {
	speakers map[string][][]float32
}

// Load scans fs for .npy voiceprint files and builds the store.
//
// Layout: either one file per speaker ("alice.npy") or a speaker-named
// directory with several samples ("alice/1.npy", "alice/2.npy"). Files
// that fail to parse are skipped with a warning; an entirely empty scan
// returns ErrNoVoiceprints alongside the (valid, empty) store.
func Load(ctx context.Context, fs storage.FileStore, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	paths, err := fs.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("voiceprint: scan voiceprints: %w", err)
	}

	s := &Store{speakers: make(map[string][][]float32)}
	for _, p := range paths {
		if !strings.HasSuffix(p, ".npy") {
			continue
		}
		speaker := speakerName(p)
		if speaker == "" {
			continue
		}
		r, err := fs.Read(ctx, p)
		if err != nil {
			logger.Warn("skipping unreadable voiceprint", "path", p, "err", err)
			continue
		}
		vec, err := readNPY(r)
		r.Close()
		if err != nil {
			logger.Warn("skipping malformed voiceprint", "path", p, "err", err)
			continue
		}
		s.speakers[speaker] = append(s.speakers[speaker], vec)
		logger.Info("loaded voiceprint", "speaker", speaker, "path", p, "dim", len(vec))
	}

	if len(s.speakers) == 0 {
		return s, ErrNoVoiceprints
	}
	return s, nil
}

// speakerName derives the speaker from a voiceprint path: the first path
// element, stripped of the .npy extension if it is a bare file.
func speakerName(p string) string {
	first := p
	if i := strings.IndexByte(p, '/'); i >= 0 {
		first = p[:i]
	} else {
		first = strings.TrimSuffix(first, path.Ext(first))
	}
	return first
}

// Speakers returns the enrolled speaker names in sorted order.
func (s *Store) Speakers() []string {
	names := make([]string, 0, len(s.speakers))
	for name := range s.speakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of stored vectors for the given speaker.
func (s *Store) Count(speaker string) int {
	return len(s.speakers[speaker])
}

// Similarity returns the best cosine similarity between the embedding and
// any of the speaker's stored vectors. Unknown speakers score -1.
func (s *Store) Similarity(embedding []float32, speaker string) float64 {
	best := -1.0
	for _, vec := range s.speakers[speaker] {
		if sim := CosineSimilarity(embedding, vec); sim > best {
			best = sim
		}
	}
	return best
}

// Best returns the speaker whose voiceprints are most similar to the
// embedding, with the winning score. ok is false for an empty store.
// Ties break toward the lexicographically smaller name, which keeps the
// result deterministic.
func (s *Store) Best(embedding []float32) (speaker string, score float64, ok bool) {
	score = -1.0
	for _, name := range s.Speakers() {
		if sim := s.Similarity(embedding, name); sim > score {
			score = sim
			speaker = name
			ok = true
		}
	}
	return speaker, score, ok
}

// CosineSimilarity computes the cosine similarity of two vectors, clamped
// to [-1, 1]. Mismatched lengths or a zero-norm vector score 0 (treated as
// non-matching; a zero vector has no direction).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}
