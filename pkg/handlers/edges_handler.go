package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/apperrors"
	"github.com/lineagraph/lineage-engine/pkg/graph"
	"github.com/lineagraph/lineage-engine/pkg/models"
	"github.com/lineagraph/lineage-engine/pkg/review"
)

// EdgeListResponse for GET /api/lineage/edges
type EdgeListResponse struct {
	Edges []*models.Edge `json:"edges"`
	Total int            `json:"total"`
}

// ReviewEdgeRequest for POST /api/lineage/edges/{eid}/review
type ReviewEdgeRequest struct {
	Action models.ReviewAction `json:"action"` // approve | reject
}

// BackfillResponse for POST /api/lineage/edges/backfill
type BackfillResponse struct {
	Updated int `json:"updated"`
}

// EdgesHandler handles edge listing, review, and provenance backfill.
type EdgesHandler struct {
	store  graph.Store
	review review.Service
	logger *zap.Logger
}

// NewEdgesHandler creates a new edges handler.
func NewEdgesHandler(store graph.Store, reviewService review.Service, logger *zap.Logger) *EdgesHandler {
	return &EdgesHandler{
		store:  store,
		review: reviewService,
		logger: logger,
	}
}

// RegisterRoutes registers the edges handler's routes on the given mux.
func (h *EdgesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/lineage/edges", h.List)
	mux.HandleFunc("POST /api/lineage/edges/{eid}/review", h.Review)
	mux.HandleFunc("POST /api/lineage/edges/backfill", h.Backfill)
}

// List handles GET /api/lineage/edges with optional status, kind,
// project_id, min_confidence, and limit query parameters.
func (h *EdgesHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	edges, err := h.store.ListEdges(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list edges", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "list_edges_failed", err.Error())
		return
	}

	response := EdgeListResponse{Edges: edges, Total: len(edges)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Review handles POST /api/lineage/edges/{eid}/review.
func (h *EdgesHandler) Review(w http.ResponseWriter, r *http.Request) {
	edgeID, err := uuid.Parse(r.PathValue("eid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_edge_id", "Edge ID must be a UUID")
		return
	}

	var req ReviewEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if !req.Action.IsValid() {
		h.writeError(w, http.StatusBadRequest, "validation_error", "action must be approve or reject")
		return
	}

	edge, err := h.review.Review(r.Context(), edgeID, req.Action)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "edge_not_found", err.Error())
		case errors.Is(err, apperrors.ErrInvalidTransition):
			h.writeError(w, http.StatusConflict, "invalid_transition", err.Error())
		default:
			h.logger.Error("Failed to review edge",
				zap.String("edge_id", edgeID.String()),
				zap.Error(err))
			h.writeError(w, http.StatusServiceUnavailable, "review_failed", err.Error())
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: edge}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Backfill handles POST /api/lineage/edges/backfill: stamp default
// provenance fields onto edges predating the provenance model. Safe to
// re-run; a second call reports zero updates.
func (h *EdgesHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	updated, err := h.store.BackfillProvenance(r.Context())
	if err != nil {
		h.logger.Error("Failed to backfill provenance", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "backfill_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: BackfillResponse{Updated: updated}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *EdgesHandler) parseFilter(w http.ResponseWriter, r *http.Request) (models.EdgeFilter, bool) {
	q := r.URL.Query()
	filter := models.EdgeFilter{
		ProjectID: q.Get("project_id"),
		Status:    q.Get("status"),
	}

	if kind := q.Get("kind"); kind != "" {
		k := models.EdgeKind(kind)
		if !k.IsValid() {
			h.writeError(w, http.StatusBadRequest, "validation_error", "unknown edge kind "+kind)
			return models.EdgeFilter{}, false
		}
		filter.Kind = k
	}

	if raw := q.Get("min_confidence"); raw != "" {
		min, err := strconv.ParseFloat(raw, 64)
		if err != nil || min < 0 || min > 1 {
			h.writeError(w, http.StatusBadRequest, "validation_error", "min_confidence must be in [0,1]")
			return models.EdgeFilter{}, false
		}
		filter.MinConfidence = &min
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.writeError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
			return models.EdgeFilter{}, false
		}
		filter.Limit = limit
	}

	return filter, true
}

func (h *EdgesHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
