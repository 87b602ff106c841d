package embeddings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/errors"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry("", zaptest.NewLogger(t).Sugar())
	a, _ := NewHashingEncoder("a", 8)
	b, _ := NewHashingEncoder("b", 16)
	require.NoError(t, r.Register("a", a))
	require.NoError(t, r.Register("b", b))
	assert.Error(t, r.Register("a", a), "duplicate name")

	_, err := r.Get("a")
	require.Error(t, err)
	assert.True(t, errors.IsAssertionFailure(err), "Get before Initialize")

	require.NoError(t, r.Initialize(context.Background()))
	assert.Error(t, r.Register("c", a), "registry is frozen after Initialize")

	assert.Equal(t, "a", r.Default())
	assert.Equal(t, []string{"a", "b"}, r.Names())

	enc, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "a", enc.ModelInfo().Name)

	_, err = r.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	models := r.Models()
	require.Len(t, models, 2)
	assert.Equal(t, 16, models[1].Dimensions)

	require.NoError(t, r.Close())
}

func TestRegistryInitializeFailsForUnknownDefault(t *testing.T) {
	r := NewRegistry("missing", nil)
	a, _ := NewHashingEncoder("a", 8)
	require.NoError(t, r.Register("a", a))
	assert.Error(t, r.Initialize(context.Background()))
}

func TestRegistryInitializeSurfacesUnavailableModel(t *testing.T) {
	client, _ := newTestClient(t, &fakeBackend{models: []string{"bge"}})

	r := NewRegistry("", nil)
	require.NoError(t, r.Register("bge", NewHTTPEncoder(client, "bge", 8, 1)))
	require.NoError(t, r.Register("m3", NewHTTPEncoder(client, "m3", 8, 1)))

	err := r.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, IsModelUnavailable(err))
	assert.Contains(t, err.Error(), "m3")
}

func TestFromConfigHashingWithCache(t *testing.T) {
	cfg := am.DefaultConfig()
	cfg.Embeddings.Backend = am.BackendHashing
	cfg.Embeddings.DefaultModel = "local"
	cfg.Embeddings.Models = []string{"local", "other"}
	cfg.Embeddings.HashingDimensions = 32
	cfg.Embeddings.CachePath = filepath.Join(t.TempDir(), "cache.db")

	r, err := FromConfig(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Initialize(context.Background()))

	assert.Equal(t, []string{"local", "other"}, r.Names())

	enc, err := r.Get("other")
	require.NoError(t, err)
	vectors, err := enc.Encode(context.Background(), []string{" hello  world ", "hello world"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 32)
	assert.Equal(t, vectors[0], vectors[1], "normalisation makes both texts the same key")
}

func TestFromConfigUnknownBackend(t *testing.T) {
	cfg := am.DefaultConfig()
	cfg.Embeddings.Backend = "onnx"
	_, err := FromConfig(cfg, nil)
	assert.Error(t, err)
}
