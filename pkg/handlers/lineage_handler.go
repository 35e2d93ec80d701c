package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/apperrors"
	"github.com/lineagraph/lineage-engine/pkg/dialect"
	"github.com/lineagraph/lineage-engine/pkg/extract"
	"github.com/lineagraph/lineage-engine/pkg/inference"
	"github.com/lineagraph/lineage-engine/pkg/models"
	"github.com/lineagraph/lineage-engine/pkg/parser"
	"github.com/lineagraph/lineage-engine/pkg/repositories"
	"github.com/lineagraph/lineage-engine/pkg/retrieval"
)

// IngestFileRequest for POST /api/lineage/files
type IngestFileRequest struct {
	FilePath  string `json:"file_path"`
	Text      string `json:"text"`
	Dialect   string `json:"dialect,omitempty"` // registry id or "auto"
	ProjectID string `json:"project_id,omitempty"`
}

// IngestFileResponse reports what one file contributed to the graph.
type IngestFileResponse struct {
	FilePath     string `json:"file_path"`
	Dialect      string `json:"dialect"`
	Units        int    `json:"units"`
	NodesWritten int    `json:"nodes_written"`
	EdgesWritten int    `json:"edges_written"`
	ParseError   bool   `json:"parse_error"`
}

// InferRequest for POST /api/lineage/infer
type InferRequest struct {
	Scope     string `json:"scope"` // "Kind:key" or bare object name
	ProjectID string `json:"project_id,omitempty"`
}

// InferResponse lists the proposals now awaiting review.
type InferResponse struct {
	Scope          string         `json:"scope"`
	Proposals      []*models.Edge `json:"proposals"`
	Written        int            `json:"written"`
	Degraded       bool           `json:"degraded"`
	DegradedReason string         `json:"degraded_reason,omitempty"`
}

// DialectListResponse for GET /api/lineage/dialects
type DialectListResponse struct {
	Dialects []*models.Dialect `json:"dialects"`
	Total    int               `json:"total"`
}

// LineageHandler handles file ingestion and inference HTTP requests.
type LineageHandler struct {
	resolver  dialect.Resolver
	registry  repositories.DialectRegistryRepository
	parser    *parser.Parser
	extractor extract.Extractor
	retriever retrieval.Retriever
	proposer  inference.Proposer
	ingestor  inference.Ingestor
	logger    *zap.Logger
}

// NewLineageHandler creates a new lineage handler.
func NewLineageHandler(
	resolver dialect.Resolver,
	registry repositories.DialectRegistryRepository,
	p *parser.Parser,
	extractor extract.Extractor,
	retriever retrieval.Retriever,
	proposer inference.Proposer,
	ingestor inference.Ingestor,
	logger *zap.Logger,
) *LineageHandler {
	return &LineageHandler{
		resolver:  resolver,
		registry:  registry,
		parser:    p,
		extractor: extractor,
		retriever: retriever,
		proposer:  proposer,
		ingestor:  ingestor,
		logger:    logger,
	}
}

// RegisterRoutes registers the lineage handler's routes on the given mux.
func (h *LineageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/lineage/files", h.IngestFile)
	mux.HandleFunc("POST /api/lineage/infer", h.Infer)
	mux.HandleFunc("GET /api/lineage/dialects", h.ListDialects)
}

// IngestFile handles POST /api/lineage/files: parse one file and merge its
// deterministic nodes and edges into the graph.
func (h *LineageHandler) IngestFile(w http.ResponseWriter, r *http.Request) {
	var req IngestFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.FilePath == "" || req.Text == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "file_path and text are required")
		return
	}
	if req.Dialect == "" {
		req.Dialect = models.DialectAuto
	}

	parserKey, err := h.resolver.Resolve(r.Context(), req.Dialect)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnknownDialect) {
			h.writeError(w, http.StatusBadRequest, "unknown_dialect", err.Error())
			return
		}
		h.logger.Error("Failed to resolve dialect",
			zap.String("dialect", req.Dialect),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "resolve_dialect_failed", err.Error())
		return
	}

	tree := h.parser.Parse(req.FilePath, req.Text, parserKey, req.ProjectID)

	stats, err := h.extractor.ExtractAndUpsert(r.Context(), tree)
	if err != nil {
		h.logger.Error("Failed to ingest file",
			zap.String("file_path", req.FilePath),
			zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "ingest_failed", err.Error())
		return
	}

	response := IngestFileResponse{
		FilePath:     tree.FilePath,
		Dialect:      parserKey,
		Units:        len(tree.Units),
		NodesWritten: stats.NodesWritten,
		EdgesWritten: stats.EdgesWritten,
		ParseError:   tree.ParseError,
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Infer handles POST /api/lineage/infer: retrieve context around a scope,
// ask the model for edges, and persist what survives validation as
// pending_review.
func (h *LineageHandler) Infer(w http.ResponseWriter, r *http.Request) {
	var req InferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Scope == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "scope is required")
		return
	}

	contextResult, err := h.retriever.Retrieve(r.Context(), req.Scope, req.ProjectID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "scope_not_found", err.Error())
		case errors.Is(err, apperrors.ErrGraphUnavailable):
			h.writeError(w, http.StatusServiceUnavailable, "graph_unavailable", err.Error())
		default:
			h.logger.Error("Failed to retrieve context",
				zap.String("scope", req.Scope),
				zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "retrieve_context_failed", err.Error())
		}
		return
	}

	response := InferResponse{
		Scope:          contextResult.Scope.String(),
		Proposals:      []*models.Edge{},
		Degraded:       contextResult.Degraded,
		DegradedReason: contextResult.DegradedReason,
	}

	proposals, err := h.proposer.Propose(r.Context(), contextResult, req.ProjectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoProposals) {
			// An empty queue is a valid outcome, not a failure.
			if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response, Message: err.Error()}); err != nil {
				h.logger.Error("Failed to write response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to generate proposals",
			zap.String("scope", req.Scope),
			zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "inference_failed", err.Error())
		return
	}

	written, err := h.ingestor.IngestProposals(r.Context(), proposals)
	if err != nil {
		h.logger.Error("Failed to ingest proposals",
			zap.String("scope", req.Scope),
			zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "ingest_proposals_failed", err.Error())
		return
	}

	response.Proposals = proposals
	response.Written = written

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListDialects handles GET /api/lineage/dialects.
func (h *LineageHandler) ListDialects(w http.ResponseWriter, r *http.Request) {
	dialects, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list dialects", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "list_dialects_failed", err.Error())
		return
	}

	response := DialectListResponse{
		Dialects: dialects,
		Total:    len(dialects),
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *LineageHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
