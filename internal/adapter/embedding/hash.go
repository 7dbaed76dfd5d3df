package embedding

import (
	"context"
	"math"
	"regexp"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashEmbedder is an offline embedder that feature-hashes word tokens,
// character trigrams, the whole body and its byte length into a fixed
// number of buckets. Features are case-sensitive.
// Equal inputs always produce bit-identical vectors.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{dimension: dimension}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	acc := make([]float64, e.dimension)

	for _, tok := range wordPattern.FindAllString(text, -1) {
		e.add(acc, "w:"+tok, 1.0)
	}

	runes := []rune(text)
	for i := 0; i+3 <= len(runes); i++ {
		e.add(acc, "c:"+string(runes[i:i+3]), 0.5)
	}

	// Whole-body and length features separate inputs with no words or
	// trigrams in common, including the empty string.
	e.add(acc, "b:"+text, 1.0)
	e.add(acc, "B:"+text, 1.0)
	e.add(acc, "n:"+strconv.Itoa(len(text)), 1.0)

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// add uses the low bits of the hash for the bucket and bit 63 for the sign,
// which keeps colliding features from always reinforcing each other.
func (e *HashEmbedder) add(acc []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(e.dimension)
	if h>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return "hash"
}
