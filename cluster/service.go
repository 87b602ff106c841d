// Package cluster is the clustering pipeline behind every outer surface:
// boundary validation, encoding through the vector source, HDBSCAN and
// weighted aggregation.
package cluster

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/semcluster/aggregate"
	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/embeddings"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/hdbscan"
	"github.com/teranos/semcluster/logger"
	"github.com/teranos/semcluster/metric"
)

// Models resolves a model name to its encoder. *embeddings.Registry
// satisfies it.
type Models interface {
	Get(name string) (embeddings.Encoder, error)
	Default() string
}

// settings is the hot-reloadable part of the service
type settings struct {
	params   hdbscan.Params
	maxItems int
}

// Service runs clustering requests. It is safe for concurrent use: it holds
// only the injected model source and an atomically swapped settings snapshot.
type Service struct {
	models  Models
	current atomic.Pointer[settings]
	metrics *metric.Metrics
	logger  *zap.SugaredLogger
}

// NewService creates a service with defaults taken from cfg. models may be
// nil when only ClusterVectors is used.
func NewService(models Models, cfg am.ClusteringConfig, m *metric.Metrics, log *zap.SugaredLogger) (*Service, error) {
	if log == nil {
		log = logger.ComponentLogger("cluster")
	}
	s := &Service{models: models, metrics: m, logger: log}
	if err := s.UpdateConfig(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateConfig swaps in new defaults. Requests already running keep the
// snapshot they started with.
func (s *Service) UpdateConfig(cfg am.ClusteringConfig) error {
	params, err := Options{}.Apply(ParamsFromConfig(cfg))
	if err != nil {
		return errors.Wrap(err, "clustering defaults")
	}
	if params.Alpha == 0 {
		params.Alpha = 1
	}
	// n is unknown here; check everything except the item count
	if err := params.Validate(params.MinClusterSize); err != nil {
		return errors.Wrap(err, "clustering defaults")
	}

	s.current.Store(&settings{params: params, maxItems: cfg.MaxItems})
	s.logger.Infow("Clustering defaults updated",
		"min_cluster_size", params.MinClusterSize,
		"min_samples", params.MinSamples,
		logger.FieldMetric, params.Metric,
		"cluster_selection_epsilon", params.ClusterSelectionEpsilon,
		"alpha", params.Alpha,
		"max_items", cfg.MaxItems,
	)
	return nil
}

// Defaults returns the parameters applied when a request overrides nothing
func (s *Service) Defaults() hdbscan.Params {
	return s.current.Load().params
}

// MaxItems returns the largest accepted request, 0 meaning unbounded
func (s *Service) MaxItems() int {
	return s.current.Load().maxItems
}

// Cluster embeds req.Texts with the requested model and clusters them.
// Failures carry errors.ErrInvalidInput, ErrCollaboratorFailure or
// ErrComputationFailure.
func (s *Service) Cluster(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	log := logger.LoggerFromContext(ctx, s.logger)
	defer func() { s.finish(log, start, resp, err) }()

	params, err := s.validate(req.Texts, req.Weights, req.Options)
	if err != nil {
		return nil, err
	}
	if s.models == nil {
		return nil, errors.AssertionFailedf("cluster service has no vector source")
	}
	enc, err := s.models.Get(req.Model)
	if err != nil {
		return nil, err
	}
	model := enc.ModelInfo().Name
	if model == "" {
		model = req.Model
	}

	encodeStart := time.Now()
	vectors, err := s.encode(ctx, enc, model, req.Texts)
	if err != nil {
		return nil, err
	}
	encodeTime := time.Since(encodeStart)
	s.metrics.ObserveStage("encode", encodeTime)
	log.Debugw("Texts encoded",
		logger.FieldModel, model,
		logger.FieldItems, len(req.Texts),
		logger.FieldDims, len(vectors[0]),
		logger.FieldDurationMS, encodeTime.Milliseconds(),
	)

	resp, err = s.run(ctx, req.Texts, vectors, req.Weights, params)
	if err != nil {
		return nil, err
	}
	resp.Model = model
	resp.Timings.EncodeMS = ms(encodeTime)
	resp.Timings.TotalMS = ms(time.Since(start))
	return resp, nil
}

// ClusterVectors clusters caller-supplied vectors. Ragged or empty vectors
// are invalid input here since no collaborator produced them.
func (s *Service) ClusterVectors(ctx context.Context, req VectorsRequest) (resp *Response, err error) {
	start := time.Now()
	log := logger.LoggerFromContext(ctx, s.logger)
	defer func() { s.finish(log, start, resp, err) }()

	params, err := s.validate(req.Texts, req.Weights, req.Options)
	if err != nil {
		return nil, err
	}
	if len(req.Vectors) != len(req.Texts) {
		return nil, errors.NewInvalidInputError("got %d vectors for %d texts", len(req.Vectors), len(req.Texts))
	}
	dims := len(req.Vectors[0])
	for i, v := range req.Vectors {
		if len(v) == 0 || len(v) != dims {
			return nil, errors.NewInvalidInputError("vector at index %d has dimension %d, expected %d", i, len(v), dims)
		}
	}

	resp, err = s.run(ctx, req.Texts, req.Vectors, req.Weights, params)
	if err != nil {
		return nil, err
	}
	resp.Timings.TotalMS = ms(time.Since(start))
	return resp, nil
}

// validate enforces the request boundary before anything expensive runs
func (s *Service) validate(texts []string, weights []int64, opts Options) (hdbscan.Params, error) {
	cur := s.current.Load()

	n := len(texts)
	if n == 0 {
		return hdbscan.Params{}, errors.NewInvalidInputError("texts cannot be empty")
	}
	if weights != nil && len(weights) != n {
		return hdbscan.Params{}, errors.NewInvalidInputError("got %d weights for %d texts", len(weights), n)
	}
	for i, w := range weights {
		if w < 0 {
			return hdbscan.Params{}, errors.NewInvalidInputError("weight at index %d is negative (%d)", i, w)
		}
	}
	if cur.maxItems > 0 && n > cur.maxItems {
		return hdbscan.Params{}, errors.WithHintf(
			errors.NewInvalidInputError("got %d texts, the limit is %d", n, cur.maxItems),
			"split the request or raise clustering.max_items")
	}

	params, err := opts.Apply(cur.params)
	if err != nil {
		return hdbscan.Params{}, err
	}
	if err := params.Validate(n); err != nil {
		return hdbscan.Params{}, err
	}
	return params, nil
}

func (s *Service) encode(ctx context.Context, enc embeddings.Encoder, model string, texts []string) ([][]float32, error) {
	s.metrics.RecordEncoded(model, len(texts))

	vectors, err := enc.Encode(ctx, texts)
	if err != nil {
		if errors.IsCollaboratorFailure(err) {
			return nil, err
		}
		return nil, errors.WrapCollaborator(err, "encode texts")
	}

	// the core must never see a partial or inconsistent vector set
	if len(vectors) != len(texts) {
		return nil, errors.WrapCollaborator(
			errors.Mark(errors.Newf("model %s returned %d vectors for %d texts", model, len(vectors), len(texts)), embeddings.ErrEncoding),
			"encode texts")
	}
	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dims {
			return nil, errors.WrapCollaborator(
				errors.Mark(errors.Newf("model %s returned dimension %d at index %d, expected %d", model, len(v), i, dims), embeddings.ErrEncoding),
				"encode texts")
		}
	}
	return vectors, nil
}

// run is the shared core: HDBSCAN then aggregation
func (s *Service) run(ctx context.Context, texts []string, vectors [][]float32, weights []int64, params hdbscan.Params) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "before clustering")
	}

	done := s.metrics.TrackInFlight()
	clusterStart := time.Now()
	result, err := hdbscan.Cluster(ctx, vectors, params)
	done()
	if err != nil {
		return nil, err
	}
	clusterTime := time.Since(clusterStart)
	s.metrics.ObserveStage("cluster", clusterTime)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "after clustering")
	}

	aggStart := time.Now()
	summary, err := aggregate.Summarize(aggregate.Input{
		Texts:         texts,
		Weights:       weights,
		Labels:        result.Labels,
		Probabilities: result.Probabilities,
	})
	if err != nil {
		return nil, err
	}
	aggTime := time.Since(aggStart)
	s.metrics.ObserveStage("aggregate", aggTime)

	return &Response{
		Result:     *summary,
		Dimensions: len(vectors[0]),
		Params:     params,
		Timings: Timings{
			ClusterMS:   ms(clusterTime),
			AggregateMS: ms(aggTime),
		},
	}, nil
}

func (s *Service) finish(log *zap.SugaredLogger, start time.Time, resp *Response, err error) {
	if err != nil {
		kind := errors.Kind(err)
		s.metrics.RecordOutcome(kind)
		if kind == "invalid_input" {
			log.Debugw("Clustering request rejected", logger.FieldError, err.Error())
			return
		}
		log.Errorw("Clustering failed",
			logger.FieldErrorKind, kind,
			logger.FieldError, err.Error(),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
		return
	}

	s.metrics.RecordOutcome("ok")
	s.metrics.RecordResult(resp.TotalItems, resp.TotalClusters, resp.NoiseCount)
	log.Infow("Clustering complete",
		logger.FieldItems, resp.TotalItems,
		logger.FieldClusters, resp.TotalClusters,
		logger.FieldNoise, resp.NoiseCount,
		logger.FieldMetric, resp.Params.Metric,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
