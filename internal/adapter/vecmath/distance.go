package vecmath

import (
	"fmt"
	"sort"

	"dedup/internal/domain"
)

// SquaredL2 returns the squared Euclidean distance between a and b.
// Identical vectors yield exactly 0.
func SquaredL2(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum, nil
}

// Candidate is a stored vector considered during a brute-force search.
type Candidate struct {
	ID     string
	Vector []float32
}

// Nearest ranks candidates by squared L2 distance to query and returns the n closest.
// Ties keep candidate order.
func Nearest(query []float32, candidates []Candidate, n int) ([]domain.Neighbor, error) {
	if n <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	scored := make([]domain.Neighbor, 0, len(candidates))
	for _, c := range candidates {
		d, err := SquaredL2(query, c.Vector)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", c.ID, err)
		}
		scored = append(scored, domain.Neighbor{ID: c.ID, Distance: d})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Distance < scored[j].Distance
	})

	if n > len(scored) {
		n = len(scored)
	}
	return scored[:n], nil
}
