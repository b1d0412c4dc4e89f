package vectorizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

const defaultBatchSize = 32

// ErrModelUnavailable is returned when the embedding backend cannot be loaded.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Backend produces raw (not necessarily normalized) embeddings.
type Backend interface {
	Name() string
	// Probe checks the backend is reachable and reports the vector dimension.
	Probe(ctx context.Context) (int, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Loader lazily initialises a Model. Load is safe to call repeatedly.
type Loader struct {
	backend   Backend
	batchSize int
	logger    *slog.Logger

	mu    sync.Mutex
	model *Model
}

// NewLoader wires a backend; batchSize <= 0 falls back to 32.
func NewLoader(backend Backend, batchSize int, logger *slog.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{backend: backend, batchSize: batchSize, logger: logger}
}

// Load returns the ready model, probing the backend on first use only.
func (l *Loader) Load(ctx context.Context) (*Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.model != nil {
		return l.model, nil
	}
	if l.backend == nil {
		return nil, fmt.Errorf("%w: no backend configured", ErrModelUnavailable)
	}

	l.logger.Info("loading embedding model", "model", l.backend.Name())
	dim, err := l.backend.Probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, l.backend.Name(), err)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %s reported dimension %d", ErrModelUnavailable, l.backend.Name(), dim)
	}

	l.model = &Model{backend: l.backend, dim: dim, batchSize: l.batchSize}
	return l.model, nil
}

// Model is a loaded embedding model handle.
type Model struct {
	backend   Backend
	dim       int
	batchSize int
}

// Name identifies the underlying model.
func (m *Model) Name() string {
	return m.backend.Name()
}

// Dimension is the length of every encoded vector.
func (m *Model) Dimension() int {
	return m.dim
}

// Encode embeds texts in order and returns unit-length vectors.
func (m *Model) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += m.batchSize {
		end := min(start+m.batchSize, len(texts))
		batch := texts[start:end]

		vectors, err := m.backend.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embed batch %d-%d: backend returned %d vectors for %d texts", start, end, len(vectors), len(batch))
		}
		for i, vec := range vectors {
			if len(vec) != m.dim {
				return nil, fmt.Errorf("embed text %d: expected %d dimensions, got %d", start+i, m.dim, len(vec))
			}
			out = append(out, Normalize(vec))
		}
	}
	return out, nil
}

// Normalize scales v to unit length in place and returns it. Zero vectors are left untouched.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
