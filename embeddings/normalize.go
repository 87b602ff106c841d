package embeddings

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText applies NFKC, drops control characters and collapses runs of
// whitespace to a single space.
func NormalizeText(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
	return strings.Join(strings.Fields(normed), " ")
}

// NormalizeAll returns a normalised copy of texts
func NormalizeAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = NormalizeText(t)
	}
	return out
}

// normalizing runs NormalizeAll before delegating to the wrapped encoder
type normalizing struct {
	Encoder
}

// WithNormalization wraps enc so every text is normalised before encoding
func WithNormalization(enc Encoder) Encoder {
	return &normalizing{Encoder: enc}
}

func (n *normalizing) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	return n.Encoder.Encode(ctx, NormalizeAll(texts))
}

func (n *normalizing) Initialize(ctx context.Context) error {
	if init, ok := n.Encoder.(Initializer); ok {
		return init.Initialize(ctx)
	}
	return nil
}
