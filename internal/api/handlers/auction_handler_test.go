package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"auction-worker/internal/domain"
	"auction-worker/internal/services"
	"auction-worker/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubController struct {
	doc     *domain.AuctionDocument
	outcome services.Outcome
	err     error
	calls   []string
}

func (s *stubController) AuctionID() string {
	return "UA-1"
}

func (s *stubController) LoadDocument(ctx context.Context) (*domain.AuctionDocument, error) {
	s.calls = append(s.calls, "load")
	if s.doc == nil {
		return nil, domain.ErrDocumentNotFound
	}
	return s.doc, nil
}

func (s *stubController) Cancel(ctx context.Context) (services.Outcome, error) {
	s.calls = append(s.calls, "cancel")
	return s.outcome, s.err
}

func (s *stubController) Reschedule(ctx context.Context) (services.Outcome, error) {
	s.calls = append(s.calls, "reschedule")
	return s.outcome, s.err
}

func (s *stubController) PostAnnounce(ctx context.Context) (services.Outcome, error) {
	s.calls = append(s.calls, "announce")
	return s.outcome, s.err
}

func serve(t *testing.T, controller AuctionController, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := NewServer(NewAuctionHandler(controller, logger.NewNop()), nil, logger.NewNop())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, &stubController{}, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "UA-1", body["auction_id"])
}

func TestGetAuction(t *testing.T) {
	tests := []struct {
		name   string
		target string
		doc    *domain.AuctionDocument
		status int
	}{
		{
			name:   "found",
			target: "/api/v1/auctions/UA-1",
			doc:    &domain.AuctionDocument{ID: "UA-1", Revision: "1-a", CurrentStage: domain.StageNew},
			status: http.StatusOK,
		},
		{
			name:   "document missing",
			target: "/api/v1/auctions/UA-1",
			status: http.StatusNotFound,
		},
		{
			name:   "other auction",
			target: "/api/v1/auctions/UA-2",
			doc:    &domain.AuctionDocument{ID: "UA-1"},
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &stubController{doc: tt.doc}, http.MethodGet, tt.target)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				var doc domain.AuctionDocument
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
				assert.Equal(t, "1-a", doc.Revision)
			}
		})
	}
}

func TestOperations(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		outcome services.Outcome
		err     error
		status  int
		call    string
	}{
		{name: "cancel applied", target: "/api/v1/auctions/UA-1/cancel", outcome: services.OutcomeApplied, status: http.StatusOK, call: "cancel"},
		{name: "cancel missing", target: "/api/v1/auctions/UA-1/cancel", outcome: services.OutcomeNotFound, status: http.StatusNotFound, call: "cancel"},
		{name: "reschedule abandoned", target: "/api/v1/auctions/UA-1/reschedule", outcome: services.OutcomeAbandoned, status: http.StatusConflict, call: "reschedule"},
		{name: "announce skipped", target: "/api/v1/auctions/UA-1/announce", outcome: services.OutcomeSkipped, status: http.StatusOK, call: "announce"},
		{name: "conflict retries exhausted", target: "/api/v1/auctions/UA-1/cancel", err: domain.ErrConflictRetriesExhausted, status: http.StatusConflict, call: "cancel"},
		{name: "auction not published", target: "/api/v1/auctions/UA-1/announce", err: domain.ErrAuctionNotPublished, status: http.StatusServiceUnavailable, call: "announce"},
		{name: "unexpected error", target: "/api/v1/auctions/UA-1/reschedule", err: errors.New("redis down"), status: http.StatusInternalServerError, call: "reschedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controller := &stubController{outcome: tt.outcome, err: tt.err}

			rec := serve(t, controller, http.MethodPost, tt.target)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, []string{tt.call}, controller.calls)
			if tt.err == nil {
				var resp OperationResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, OperationResponse{AuctionID: "UA-1", Outcome: string(tt.outcome)}, resp)
			}
		})
	}
}

func TestOperations_OtherAuction(t *testing.T) {
	controller := &stubController{outcome: services.OutcomeApplied}

	rec := serve(t, controller, http.MethodPost, "/api/v1/auctions/UA-9/cancel")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, controller.calls)
}
