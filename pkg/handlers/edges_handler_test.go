package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/apperrors"
	"github.com/lineagraph/lineage-engine/pkg/graph"
	"github.com/lineagraph/lineage-engine/pkg/models"
)

type mockReviewService struct {
	ReviewFunc      func(ctx context.Context, edgeID uuid.UUID, action models.ReviewAction) (*models.Edge, error)
	ListPendingFunc func(ctx context.Context, projectID string, limit int) ([]*models.Edge, error)
}

func (m *mockReviewService) Review(ctx context.Context, edgeID uuid.UUID, action models.ReviewAction) (*models.Edge, error) {
	if m.ReviewFunc != nil {
		return m.ReviewFunc(ctx, edgeID, action)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockReviewService) ListPending(ctx context.Context, projectID string, limit int) ([]*models.Edge, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx, projectID, limit)
	}
	return nil, nil
}

func newEdgesMux(store *graph.MockStore, reviewSvc *mockReviewService) *http.ServeMux {
	handler := NewEdgesHandler(store, reviewSvc, zap.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) ApiResponse {
	t.Helper()
	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestEdgesHandler_List(t *testing.T) {
	pending := &models.Edge{
		ID:         uuid.New(),
		Source:     models.NodeRef{Kind: models.NodeKindCodeUnit, Key: "dbo.sp_archive"},
		Target:     models.NodeRef{Kind: models.NodeKindDataAsset, Key: "dbo.orders"},
		Kind:       models.EdgeKindReadsFrom,
		Provenance: models.EdgeSourceLLM,
		Confidence: 0.8,
		Status:     models.EdgeStatusPendingReview,
	}

	var gotFilter models.EdgeFilter
	store := &graph.MockStore{
		ListEdgesFunc: func(ctx context.Context, filter models.EdgeFilter) ([]*models.Edge, error) {
			gotFilter = filter
			return []*models.Edge{pending}, nil
		},
	}
	mux := newEdgesMux(store, &mockReviewService{})

	req := httptest.NewRequest(http.MethodGet,
		"/api/lineage/edges?status=pending_review&kind=READS_FROM&min_confidence=0.5&limit=10&project_id=p1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	assert.Equal(t, models.EdgeStatusPendingReview, gotFilter.Status)
	assert.Equal(t, models.EdgeKindReadsFrom, gotFilter.Kind)
	assert.Equal(t, "p1", gotFilter.ProjectID)
	require.NotNil(t, gotFilter.MinConfidence)
	assert.Equal(t, 0.5, *gotFilter.MinConfidence)
	assert.Equal(t, 10, gotFilter.Limit)
}

func TestEdgesHandler_List_ValidationErrors(t *testing.T) {
	mux := newEdgesMux(&graph.MockStore{}, &mockReviewService{})

	tests := []struct {
		name  string
		query string
	}{
		{"unknown kind", "?kind=MANAGES"},
		{"confidence out of range", "?min_confidence=1.5"},
		{"confidence not a number", "?min_confidence=high"},
		{"zero limit", "?limit=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/lineage/edges"+tt.query, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, "validation_error", resp.Error)
		})
	}
}

func TestEdgesHandler_Review(t *testing.T) {
	edgeID := uuid.New()
	approved := &models.Edge{
		ID:         edgeID,
		Kind:       models.EdgeKindWritesTo,
		Provenance: models.EdgeSourceLLM,
		Status:     models.EdgeStatusApproved,
	}

	reviewSvc := &mockReviewService{
		ReviewFunc: func(ctx context.Context, id uuid.UUID, action models.ReviewAction) (*models.Edge, error) {
			assert.Equal(t, edgeID, id)
			assert.Equal(t, models.ReviewActionApprove, action)
			return approved, nil
		},
	}
	mux := newEdgesMux(&graph.MockStore{}, reviewSvc)

	req := httptest.NewRequest(http.MethodPost,
		"/api/lineage/edges/"+edgeID.String()+"/review",
		strings.NewReader(`{"action":"approve"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestEdgesHandler_Review_Errors(t *testing.T) {
	edgeID := uuid.New()

	tests := []struct {
		name     string
		path     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed edge id",
			path:     "/api/lineage/edges/not-a-uuid/review",
			body:     `{"action":"approve"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_edge_id",
		},
		{
			name:     "invalid action",
			path:     "/api/lineage/edges/" + edgeID.String() + "/review",
			body:     `{"action":"defer"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "validation_error",
		},
		{
			name:     "unknown edge",
			path:     "/api/lineage/edges/" + edgeID.String() + "/review",
			body:     `{"action":"reject"}`,
			err:      apperrors.ErrNotFound,
			wantCode: http.StatusNotFound,
			wantErr:  "edge_not_found",
		},
		{
			name:     "already reviewed",
			path:     "/api/lineage/edges/" + edgeID.String() + "/review",
			body:     `{"action":"approve"}`,
			err:      apperrors.ErrInvalidTransition,
			wantCode: http.StatusConflict,
			wantErr:  "invalid_transition",
		},
		{
			name:     "store outage",
			path:     "/api/lineage/edges/" + edgeID.String() + "/review",
			body:     `{"action":"approve"}`,
			err:      assert.AnError,
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "review_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reviewSvc := &mockReviewService{
				ReviewFunc: func(ctx context.Context, id uuid.UUID, action models.ReviewAction) (*models.Edge, error) {
					return nil, tt.err
				},
			}
			mux := newEdgesMux(&graph.MockStore{}, reviewSvc)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantErr, resp.Error)
		})
	}
}

func TestEdgesHandler_Backfill(t *testing.T) {
	store := &graph.MockStore{
		BackfillProvenanceFunc: func(ctx context.Context) (int, error) {
			return 7, nil
		},
	}
	mux := newEdgesMux(store, &mockReviewService{})

	req := httptest.NewRequest(http.MethodPost, "/api/lineage/edges/backfill", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var backfill BackfillResponse
	require.NoError(t, json.Unmarshal(data, &backfill))
	assert.Equal(t, 7, backfill.Updated)
}
