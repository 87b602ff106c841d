package embeddings

import (
	"encoding/binary"
	"math"

	"github.com/teranos/semcluster/errors"
)

// SerializeEmbedding packs a vector as little-endian float32s
func SerializeEmbedding(embedding []float32) ([]byte, error) {
	if len(embedding) == 0 {
		return nil, errors.New("embedding cannot be empty")
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf, nil
}

// DeserializeEmbedding is the inverse of SerializeEmbedding
func DeserializeEmbedding(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errors.Newf("invalid embedding data length: %d", len(data))
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return embedding, nil
}

// checkShape verifies that rows has one vector per text and that every
// vector has the same non-zero dimension. It returns that dimension.
func checkShape(model string, rows [][]float32, texts int) (int, error) {
	if len(rows) != texts {
		return 0, encodingError(nil, "model %s returned %d vectors for %d texts", model, len(rows), texts)
	}
	if texts == 0 {
		return 0, nil
	}
	dims := len(rows[0])
	if dims == 0 {
		return 0, encodingError(nil, "model %s returned an empty vector", model)
	}
	for i, row := range rows {
		if len(row) != dims {
			return 0, encodingError(nil, "model %s returned dimension %d at index %d, expected %d", model, len(row), i, dims)
		}
	}
	return dims, nil
}
