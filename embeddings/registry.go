package embeddings

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/db"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/logger"
)

// Registry holds the named encoders of the process. Encoders are registered
// and initialised once at startup; afterwards the registry is read-only.
type Registry struct {
	mu           sync.RWMutex
	encoders     map[string]Encoder
	order        []string
	defaultModel string
	initialized  bool
	cacheDB      *sql.DB
	logger       *zap.SugaredLogger
}

// NewRegistry creates an empty registry. An empty defaultModel means the
// first registered model.
func NewRegistry(defaultModel string, log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = logger.Logger
	}
	return &Registry{
		encoders:     make(map[string]Encoder),
		defaultModel: defaultModel,
		logger:       log,
	}
}

// Register adds enc under name. It fails after Initialize.
func (r *Registry) Register(name string, enc Encoder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return errors.Newf("cannot register model %s after initialization", name)
	}
	if name == "" {
		return errors.NewInvalidInputError("model name cannot be empty")
	}
	if _, exists := r.encoders[name]; exists {
		return errors.Newf("model %s already registered", name)
	}
	r.encoders[name] = enc
	r.order = append(r.order, name)
	return nil
}

// Initialize brings up every encoder that needs it. A model the backend
// cannot serve fails the whole registry with ErrModelUnavailable.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}
	if len(r.order) == 0 {
		return errors.WithHint(errors.New("no embedding models configured"),
			"set embeddings.models in am.toml")
	}
	if r.defaultModel == "" {
		r.defaultModel = r.order[0]
	}
	if _, ok := r.encoders[r.defaultModel]; !ok {
		return errors.Newf("default model %s is not among the configured models", r.defaultModel)
	}

	for _, name := range r.order {
		start := time.Now()
		if init, ok := r.encoders[name].(Initializer); ok {
			if err := init.Initialize(ctx); err != nil {
				return errors.Wrapf(err, "initialize model %s", name)
			}
		}
		r.logger.Infow("Model ready",
			logger.FieldModel, name,
			logger.FieldBackend, r.encoders[name].ModelInfo().Backend,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	}

	r.initialized = true
	return nil
}

// Get returns the encoder for name; "" selects the default model
func (r *Registry) Get(name string) (Encoder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.initialized {
		return nil, errors.AssertionFailedf("embedding registry used before Initialize")
	}
	if name == "" {
		name = r.defaultModel
	}
	enc, ok := r.encoders[name]
	if !ok {
		return nil, errors.WithHintf(
			errors.Mark(errors.NewInvalidInputError("model %q not loaded", name), errors.ErrNotFound),
			"loaded models: %s", strings.Join(r.order, ", "))
	}
	return enc, nil
}

// Default returns the default model name
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultModel
}

// Names returns the registered model names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Models describes every registered model, sorted by name
func (r *Registry) Models() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModelInfo, 0, len(r.order))
	for _, name := range r.order {
		info := r.encoders[name].ModelInfo()
		info.Name = name
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close closes every encoder and the cache database, if one was opened
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, name := range r.order {
		if err := r.encoders[name].Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close model %s", name))
		}
	}
	if r.cacheDB != nil {
		if err := r.cacheDB.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close embedding cache"))
		}
		r.cacheDB = nil
	}
	r.initialized = false
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// FromConfig builds a registry with one encoder per configured model.
// Initialize must still be called before use.
func FromConfig(cfg *am.Config, log *zap.SugaredLogger) (*Registry, error) {
	if log == nil {
		log = logger.ComponentLogger("embeddings")
	}
	ec := cfg.Embeddings
	r := NewRegistry(ec.DefaultModel, log)

	var client *Client
	if ec.Backend == am.BackendHTTP {
		var err error
		client, err = NewClient(ClientConfig{
			BaseURL:           ec.BaseURL,
			Timeout:           time.Duration(ec.TimeoutSeconds) * time.Second,
			RequestsPerSecond: ec.RequestsPerSecond,
		}, log)
		if err != nil {
			return nil, err
		}
	}

	if ec.CachePath != "" {
		cacheDB, err := db.OpenWithMigrations(ec.CachePath, log)
		if err != nil {
			return nil, errors.Wrap(err, "open embedding cache")
		}
		r.cacheDB = cacheDB
	}

	for _, name := range cfg.ModelNames() {
		var enc Encoder
		switch ec.Backend {
		case am.BackendHTTP:
			enc = NewHTTPEncoder(client, name, ec.BatchSize, ec.MaxParallel)
		case am.BackendHashing:
			h, err := NewHashingEncoder(name, ec.HashingDimensions)
			if err != nil {
				r.Close()
				return nil, err
			}
			enc = h
		default:
			r.Close()
			return nil, errors.Newf("unknown embeddings backend %q", ec.Backend)
		}

		if r.cacheDB != nil {
			enc = NewCachedEncoder(enc, r.cacheDB, log)
		}
		if ec.Normalize {
			enc = WithNormalization(enc)
		}
		if err := r.Register(name, enc); err != nil {
			r.Close()
			return nil, err
		}
	}

	log.Debugw("Embedding registry configured",
		logger.FieldBackend, ec.Backend,
		"models", r.order,
		"cache", ec.CachePath != "",
	)
	return r, nil
}
