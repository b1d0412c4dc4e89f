package vectorizer

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashingBackend embeds text as a signed feature-hashed bag of words and word bigrams.
// It needs no model files, so it serves offline runs and tests.
type HashingBackend struct {
	dim int
}

var _ Backend = (*HashingBackend)(nil)

// NewHashingBackend builds a backend producing dim-sized vectors.
func NewHashingBackend(dim int) *HashingBackend {
	return &HashingBackend{dim: dim}
}

func (h *HashingBackend) Name() string {
	return fmt.Sprintf("hashing-%d", h.dim)
}

func (h *HashingBackend) Probe(context.Context) (int, error) {
	if h.dim <= 0 {
		return 0, fmt.Errorf("hashing dimension must be positive, got %d", h.dim)
	}
	return h.dim, nil
}

func (h *HashingBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashingBackend) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return vec
}

func (h *HashingBackend) add(vec []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	bucket := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[bucket] += weight
}
