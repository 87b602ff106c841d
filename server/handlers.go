package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/teranos/semcluster/cluster"
	"github.com/teranos/semcluster/embeddings"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/logger"
)

// modelsResponse extends the FlagEmbedding /models reply with model details
type modelsResponse struct {
	embeddings.ModelsResponse
	DefaultModel string                 `json:"default_model"`
	Models       []embeddings.ModelInfo `json:"models"`
}

// handleCluster serves POST /cluster
func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req cluster.Request
	if !s.readJSON(w, r, &req) {
		return
	}

	resp, err := s.withSlot(r.Context(), func(ctx context.Context) (*cluster.Response, error) {
		return s.service.Cluster(ctx, req)
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

// handleClusterVectors serves POST /cluster/vectors
func (s *Server) handleClusterVectors(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req cluster.VectorsRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	resp, err := s.withSlot(r.Context(), func(ctx context.Context) (*cluster.Response, error) {
		return s.service.ClusterVectors(ctx, req)
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

// withSlot runs fn once a clustering slot is free. Waiting counts against
// the request deadline.
func (s *Server) withSlot(ctx context.Context, fn func(context.Context) (*cluster.Response, error)) (*cluster.Response, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "waiting for a clustering slot")
	}
	s.inFlight.Add(1)
	defer func() {
		s.inFlight.Add(-1)
		s.sem.Release(1)
	}()
	return fn(ctx)
}

// handleEmbed serves POST /embed with the FlagEmbedding request and reply
// shapes. An empty model selects the default one.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req embeddings.EmbedRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	enc, err := s.models.Get(req.Model)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Model \"%s\" not loaded.", req.Model))
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	if len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, `"texts" cannot be empty.`)
		return
	}

	model := req.Model
	if model == "" {
		model = s.models.Default()
	}
	s.metricsSink().RecordEncoded(model, len(req.Texts))

	vectors, err := enc.Encode(r.Context(), req.Texts)
	if err != nil {
		if !errors.IsCollaboratorFailure(err) {
			err = errors.WrapCollaborator(err, "encode texts")
		}
		s.writeServiceError(w, r, err)
		return
	}

	logger.LoggerFromContext(r.Context(), s.logger).Debugw("Texts embedded",
		logger.FieldModel, model,
		logger.FieldItems, len(req.Texts),
	)
	_ = writeJSON(w, http.StatusOK, embeddings.EmbedResponse{Embeddings: vectors})
}

// handleModels serves GET /models
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	_ = writeJSON(w, http.StatusOK, modelsResponse{
		ModelsResponse: embeddings.ModelsResponse{LoadedModels: s.models.Names()},
		DefaultModel:   s.models.Default(),
		Models:         s.models.Models(),
	})
}
