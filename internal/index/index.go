package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// NoMatch pads search results when k exceeds the number of indexed vectors.
const NoMatch = -1

var (
	ErrEmptyInput        = errors.New("index: no vectors to build from")
	ErrDimensionMismatch = errors.New("index: dimension mismatch")
	ErrEmptyIndex        = errors.New("index: loaded index contains no vectors")
	ErrNotBuilt          = errors.New("index: not built")
)

// Index answers exact inner-product queries over unit vectors.
type Index struct {
	dim     int
	vectors [][]float32
}

// Build copies vectors into a new index. Vectors are expected to be unit length.
func Build(vectors [][]float32) (*Index, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyInput
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: vector 0 is empty", ErrDimensionMismatch)
	}

	stored := make([][]float32, len(vectors))
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(vec), dim)
		}
		stored[i] = append([]float32(nil), vec...)
	}
	return &Index{dim: dim, vectors: stored}, nil
}

// Dim returns the vector dimensionality.
func (ix *Index) Dim() int {
	return ix.dim
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	return len(ix.vectors)
}

// Search returns, per query, the k best scores and their build positions.
// Rows are padded with -Inf / NoMatch when k exceeds Len.
func (ix *Index) Search(queries [][]float32, k int) ([][]float64, [][]int, error) {
	if ix == nil {
		return nil, nil, ErrNotBuilt
	}
	scores := make([][]float64, len(queries))
	ids := make([][]int, len(queries))
	if k < 0 {
		k = 0
	}

	order := make([]int, len(ix.vectors))
	dots := make([]float64, len(ix.vectors))
	for q, query := range queries {
		if len(query) != ix.dim {
			return nil, nil, fmt.Errorf("%w: query %d has %d dimensions, want %d", ErrDimensionMismatch, q, len(query), ix.dim)
		}

		for i, vec := range ix.vectors {
			order[i] = i
			dots[i] = dot(query, vec)
		}
		sort.SliceStable(order, func(a, b int) bool {
			return dots[order[a]] > dots[order[b]]
		})

		rowScores := make([]float64, k)
		rowIDs := make([]int, k)
		for j := 0; j < k; j++ {
			if j < len(order) {
				rowScores[j] = dots[order[j]]
				rowIDs[j] = order[j]
				continue
			}
			rowScores[j] = math.Inf(-1)
			rowIDs[j] = NoMatch
		}
		scores[q] = rowScores
		ids[q] = rowIDs
	}
	return scores, ids, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
