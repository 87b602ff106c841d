// Package embeddings is the vector source: it turns texts into fixed
// dimension vectors through a configured backend.
package embeddings

import "context"

// ModelInfo describes an encoder's model
type ModelInfo struct {
	Name    string `json:"name" yaml:"name"`
	Backend string `json:"backend" yaml:"backend"`

	// Dimensions is 0 until the backend has produced its first vector
	Dimensions int `json:"dimensions" yaml:"dimensions"`
}

// Encoder produces one vector per text, in input order, all of the same
// dimension. Failures carry ErrModelUnavailable or ErrEncoding.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	ModelInfo() ModelInfo
	Close() error
}

// Initializer is implemented by encoders that must reach their backend
// before serving requests
type Initializer interface {
	Initialize(ctx context.Context) error
}
