package embeddings

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/errors"
)

const trigramWeight = 0.5

// HashingEncoder is a deterministic local encoder. Word tokens and character
// trigrams are hashed into a fixed number of signed buckets and the result is
// L2 normalised. It needs no model and is meant for offline use and tests.
type HashingEncoder struct {
	name string
	dims int
}

// NewHashingEncoder creates an encoder producing vectors of dims dimensions
func NewHashingEncoder(name string, dims int) (*HashingEncoder, error) {
	if dims < 2 {
		return nil, errors.NewInvalidInputError("hashing dimensions must be >= 2, got %d", dims)
	}
	if name == "" {
		name = "hashing"
	}
	return &HashingEncoder{name: name, dims: dims}, nil
}

// Encode hashes each text independently
func (h *HashingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, encodingError(err, "hashing interrupted at text %d", i)
			}
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashingEncoder) vector(text string) []float32 {
	acc := make([]float64, h.dims)
	add := func(feature string, weight float64) {
		sum := xxhash.Sum64String(feature)
		bucket := int(sum % uint64(h.dims))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		acc[bucket] += weight
	}

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		add("w:"+tok, 1)
		padded := []rune(" " + tok + " ")
		for i := 0; i+3 <= len(padded); i++ {
			add("c:"+string(padded[i:i+3]), trigramWeight)
		}
	}
	if len(tokens) == 0 {
		// punctuation-only and empty texts still get a stable non-zero vector
		add("raw:"+text, 1)
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		// features cancelled out; fall back to the raw text bucket
		acc[xxhash.Sum64String("raw:"+text)%uint64(h.dims)] = 1
		norm = 1
	}

	vec := make([]float32, h.dims)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (h *HashingEncoder) ModelInfo() ModelInfo {
	return ModelInfo{Name: h.name, Backend: am.BackendHashing, Dimensions: h.dims}
}

func (h *HashingEncoder) Close() error { return nil }
