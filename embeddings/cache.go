package embeddings

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/logger"
)

// lookupChunk keeps IN (...) lists under SQLite's bound parameter limit
const lookupChunk = 500

// CachedEncoder stores vectors in SQLite keyed by model and text so repeated
// texts skip the backend. A cache failure is logged and bypassed; it never
// fails or alters an Encode.
type CachedEncoder struct {
	inner  Encoder
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewCachedEncoder wraps inner with a cache on db. The embedding_cache table
// must exist (db.Migrate creates it).
func NewCachedEncoder(inner Encoder, db *sql.DB, log *zap.SugaredLogger) *CachedEncoder {
	if log == nil {
		log = logger.Logger
	}
	return &CachedEncoder{inner: inner, db: db, logger: log}
}

// CacheKey is the hex sha1 of model, a NUL byte and text
func CacheKey(model, text string) string {
	h := sha1.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Encode returns cached vectors where present and encodes the rest in a
// single call to the wrapped encoder
func (c *CachedEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.inner.ModelInfo().Name

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = CacheKey(model, t)
	}

	hits, err := c.lookup(ctx, model, keys)
	if err != nil {
		c.logger.Warnw("Embedding cache lookup failed, encoding everything",
			logger.FieldModel, model,
			logger.FieldError, err.Error(),
		)
		hits = map[string][]float32{}
	}

	var missTexts, missKeys []string
	seen := make(map[string]bool)
	for i, key := range keys {
		if _, ok := hits[key]; ok || seen[key] {
			continue
		}
		seen[key] = true
		missTexts = append(missTexts, texts[i])
		missKeys = append(missKeys, key)
	}

	c.logger.Debugw("Embedding cache",
		logger.FieldModel, model,
		"hits", len(texts)-len(missTexts),
		"misses", len(missTexts),
	)

	if len(missTexts) > 0 {
		fresh, err := c.inner.Encode(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if _, err := checkShape(model, fresh, len(missTexts)); err != nil {
			return nil, err
		}
		for i, key := range missKeys {
			hits[key] = fresh[i]
		}
		if err := c.store(ctx, model, missKeys, fresh); err != nil {
			c.logger.Warnw("Embedding cache write failed",
				logger.FieldModel, model,
				logger.FieldError, err.Error(),
			)
		}
	}

	out := make([][]float32, len(texts))
	for i, key := range keys {
		out[i] = hits[key]
	}
	return out, nil
}

func (c *CachedEncoder) lookup(ctx context.Context, model string, keys []string) (map[string][]float32, error) {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			unique = append(unique, k)
		}
	}

	hits := make(map[string][]float32)
	for start := 0; start < len(unique); start += lookupChunk {
		end := start + lookupChunk
		if end > len(unique) {
			end = len(unique)
		}
		chunk := unique[start:end]

		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, model)
		for _, k := range chunk {
			args = append(args, k)
		}
		query := "SELECT key, vector FROM embedding_cache WHERE model = ? AND key IN (?" +
			strings.Repeat(", ?", len(chunk)-1) + ")"

		rows, err := c.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, errors.Wrap(err, "query embedding cache")
		}
		for rows.Next() {
			var key string
			var blob []byte
			if err := rows.Scan(&key, &blob); err != nil {
				rows.Close()
				return nil, errors.Wrap(err, "scan embedding cache row")
			}
			vec, err := DeserializeEmbedding(blob)
			if err != nil {
				// corrupt rows are treated as misses and overwritten
				continue
			}
			hits[key] = vec
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "iterate embedding cache")
		}
		rows.Close()
	}
	return hits, nil
}

func (c *CachedEncoder) store(ctx context.Context, model string, keys []string, vectors [][]float32) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin cache write")
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO embedding_cache (key, model, dimensions, vector) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare cache write")
	}
	defer stmt.Close()

	for i, key := range keys {
		blob, err := SerializeEmbedding(vectors[i])
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, key, model, len(vectors[i]), blob); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "write cache entry %s", key)
		}
	}
	return errors.Wrap(tx.Commit(), "commit cache write")
}

// ModelInfo reports the wrapped encoder's model
func (c *CachedEncoder) ModelInfo() ModelInfo {
	return c.inner.ModelInfo()
}

// Initialize forwards to the wrapped encoder when it has a setup step
func (c *CachedEncoder) Initialize(ctx context.Context) error {
	if init, ok := c.inner.(Initializer); ok {
		return init.Initialize(ctx)
	}
	return nil
}

// Close closes the wrapped encoder. The database belongs to the caller.
func (c *CachedEncoder) Close() error {
	return c.inner.Close()
}
