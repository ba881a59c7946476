// internal/api/handlers_test.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "recommendation-engine/internal/common/errors"
	"recommendation-engine/internal/common/logger"
	"recommendation-engine/internal/models"
	"recommendation-engine/internal/recommender/service"
)

// ==========================
// Test Helper Functions
// ==========================

type stubRecommender struct {
	recommend func(ctx context.Context, userID int64, rc models.RecommendationContext, bypass bool) (*models.Recommendations, error)
	record    func(ctx context.Context, userID, candidateID int64, kind string, weight float64) (*models.InteractionRecord, error)
	clear     func(ctx context.Context, userID int64) (int, error)
	syncUser  func(ctx context.Context, u *models.UserProfile) error
	syncBiz   func(ctx context.Context, c *models.Candidate) error
	delUser   func(ctx context.Context, id int64) error
	delBiz    func(ctx context.Context, id int64) error
	list      func(ctx context.Context, userID int64, limit int) ([]models.InteractionRecord, error)
	health    service.HealthReport
}

func (s *stubRecommender) GetRecommendations(ctx context.Context, userID int64, rc models.RecommendationContext, bypass bool) (*models.Recommendations, error) {
	return s.recommend(ctx, userID, rc, bypass)
}

func (s *stubRecommender) RecordInteraction(ctx context.Context, userID, candidateID int64, kind string, weight float64) (*models.InteractionRecord, error) {
	return s.record(ctx, userID, candidateID, kind, weight)
}

func (s *stubRecommender) ClearUserCache(ctx context.Context, userID int64) (int, error) {
	return s.clear(ctx, userID)
}

func (s *stubRecommender) SyncUser(ctx context.Context, u *models.UserProfile) error {
	return s.syncUser(ctx, u)
}

func (s *stubRecommender) SyncCandidate(ctx context.Context, c *models.Candidate) error {
	return s.syncBiz(ctx, c)
}

func (s *stubRecommender) DeleteUser(ctx context.Context, id int64) error {
	return s.delUser(ctx, id)
}

func (s *stubRecommender) DeleteCandidate(ctx context.Context, id int64) error {
	return s.delBiz(ctx, id)
}

func (s *stubRecommender) ListInteractions(ctx context.Context, userID int64, limit int) ([]models.InteractionRecord, error) {
	return s.list(ctx, userID, limit)
}

func (s *stubRecommender) Health(context.Context) service.HealthReport {
	return s.health
}

func newTestServer(t *testing.T, stub *stubRecommender) *httptest.Server {
	t.Helper()
	h := NewHandler(stub, logger.NewTestLogger(t), nil)
	srv := httptest.NewServer(h.Routes(5 * time.Second))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "error envelope missing: %v", body)
	code, _ := e["code"].(string)
	return code
}

// ==========================
// Recommendation Endpoint Tests
// ==========================

func TestGetRecommendations(t *testing.T) {
	var (
		gotUser   int64
		gotCtx    models.RecommendationContext
		gotBypass bool
	)
	stub := &stubRecommender{
		recommend: func(_ context.Context, userID int64, rc models.RecommendationContext, bypass bool) (*models.Recommendations, error) {
			gotUser, gotCtx, gotBypass = userID, rc, bypass
			return &models.Recommendations{
				UserID: userID,
				Source: models.SourceComputed,
				Items:  []models.ScoredCandidate{{CandidateID: 3, Name: "Coffee Corner", Score: 0.71}},
				Count:  1,
			}, nil
		},
	}
	srv := newTestServer(t, stub)

	resp, body := doRequest(t, http.MethodGet,
		srv.URL+`/recommend/42?max_results=5&use_cache=false&context=`+
			`%7B%22categories%22%3A%5B%22cafe%22%5D%2C%22location%22%3A%7B%22lat%22%3A40.7%2C%22lon%22%3A-74%7D%2C%22time_of_day%22%3A%22am%22%7D`, "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "computed", body["source"])
	assert.Equal(t, float64(1), body["count"])
	recs := body["recommendations"].([]interface{})
	require.Len(t, recs, 1)
	assert.Equal(t, float64(3), recs[0].(map[string]interface{})["business_id"])

	assert.Equal(t, int64(42), gotUser)
	assert.True(t, gotBypass)
	assert.Equal(t, 5, gotCtx.MaxResults)
	assert.Equal(t, []string{"cafe"}, gotCtx.Categories)
	require.NotNil(t, gotCtx.Location)
	assert.Equal(t, 40.7, gotCtx.Location.Lat)
}

func TestGetRecommendations_Defaults(t *testing.T) {
	var gotBypass = true
	stub := &stubRecommender{
		recommend: func(_ context.Context, userID int64, rc models.RecommendationContext, bypass bool) (*models.Recommendations, error) {
			gotBypass = bypass
			return &models.Recommendations{UserID: userID, Source: models.SourceCache, Items: []models.ScoredCandidate{}}, nil
		},
	}
	srv := newTestServer(t, stub)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/recommend/1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cache", body["source"])
	assert.Equal(t, []interface{}{}, body["recommendations"])
	assert.False(t, gotBypass)
}

func TestGetRecommendations_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{name: "non-numeric user", path: "/recommend/abc", wantStatus: http.StatusBadRequest, wantCode: "INVALID_INPUT"},
		{name: "zero user", path: "/recommend/0", wantStatus: http.StatusBadRequest, wantCode: "INVALID_INPUT"},
		{name: "bad context JSON", path: "/recommend/1?context=%7Bnope", wantStatus: http.StatusBadRequest, wantCode: "INVALID_INPUT"},
		{name: "bad max_results", path: "/recommend/1?max_results=0", wantStatus: http.StatusBadRequest, wantCode: "INVALID_INPUT"},
		{name: "bad use_cache", path: "/recommend/1?use_cache=maybe", wantStatus: http.StatusBadRequest, wantCode: "INVALID_INPUT"},
		{name: "unknown user", path: "/recommend/9", serviceErr: apperrors.NewNotFoundError("user", 9), wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "store down", path: "/recommend/9", serviceErr: apperrors.NewStoreUnavailableError("load_user", errors.New("refused")), wantStatus: http.StatusServiceUnavailable, wantCode: "STORE_UNAVAILABLE"},
		{name: "unexpected", path: "/recommend/9", serviceErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubRecommender{
				recommend: func(context.Context, int64, models.RecommendationContext, bool) (*models.Recommendations, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					return &models.Recommendations{}, nil
				},
			}
			srv := newTestServer(t, stub)

			resp, body := doRequest(t, http.MethodGet, srv.URL+tt.path, "")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, errorCode(t, body))
		})
	}
}

func TestGetRecommendations_RetryAfterOnStoreFailure(t *testing.T) {
	stub := &stubRecommender{
		recommend: func(context.Context, int64, models.RecommendationContext, bool) (*models.Recommendations, error) {
			return nil, apperrors.NewStoreUnavailableError("load_candidates", errors.New("timeout"))
		},
	}
	srv := newTestServer(t, stub)

	resp, _ := doRequest(t, http.MethodGet, srv.URL+"/recommend/1", "")
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

// ==========================
// Interaction Endpoint Tests
// ==========================

func TestRecordInteraction(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotWeight float64
	stub := &stubRecommender{
		record: func(_ context.Context, userID, candidateID int64, kind string, weight float64) (*models.InteractionRecord, error) {
			gotWeight = weight
			if kind == "bookmark" {
				return nil, apperrors.NewInvalidInteractionKindError(kind)
			}
			return &models.InteractionRecord{
				UserID: userID, CandidateID: candidateID, Kind: models.InteractionKind(kind), Weight: weight, Timestamp: ts,
			}, nil
		},
	}
	srv := newTestServer(t, stub)

	t.Run("default weight", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/interaction",
			`{"user_id": 1, "business_id": 3, "interaction_type": "like"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "recorded", body["status"])
		assert.Equal(t, "like", body["interaction_type"])
		assert.Equal(t, 1.0, gotWeight)
	})

	t.Run("explicit weight", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, srv.URL+"/interaction",
			`{"user_id": 1, "business_id": 3, "interaction_type": "save", "weight": 2.5}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2.5, gotWeight)
	})

	t.Run("invalid kind", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/interaction",
			`{"user_id": 1, "business_id": 3, "interaction_type": "bookmark"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_INTERACTION_KIND", errorCode(t, body))
	})

	t.Run("schema violations", func(t *testing.T) {
		for _, payload := range []string{
			`{"business_id": 3, "interaction_type": "like"}`,
			`{"user_id": "one", "business_id": 3, "interaction_type": "like"}`,
			`{"user_id": 1, "business_id": 3, "interaction_type": "like", "weight": -1}`,
			`not json`,
		} {
			resp, body := doRequest(t, http.MethodPost, srv.URL+"/interaction", payload)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
			assert.Equal(t, "INVALID_INPUT", errorCode(t, body), payload)
		}
	})
}

func TestListInteractions(t *testing.T) {
	var gotLimit int
	stub := &stubRecommender{
		list: func(_ context.Context, userID int64, limit int) ([]models.InteractionRecord, error) {
			gotLimit = limit
			if limit > service.MaxInteractionPage {
				return nil, apperrors.NewInvalidInputError("limit too large")
			}
			return []models.InteractionRecord{{UserID: userID, CandidateID: 3, Kind: models.InteractionView, Weight: 1}}, nil
		},
	}
	srv := newTestServer(t, stub)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/user/1/interactions", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["interactions_count"])
	assert.Equal(t, 0, gotLimit)

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/user/1/interactions?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/user/1/interactions?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ==========================
// Cache and Sync Endpoint Tests
// ==========================

func TestClearCache(t *testing.T) {
	stub := &stubRecommender{
		clear: func(_ context.Context, userID int64) (int, error) {
			if userID == 2 {
				return 0, apperrors.NewCacheUnavailableError("invalidate", errors.New("down"))
			}
			return 3, nil
		},
	}
	srv := newTestServer(t, stub)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/cache/clear/1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["deleted"])

	resp, body = doRequest(t, http.MethodPost, srv.URL+"/cache/clear/2", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "CACHE_UNAVAILABLE", errorCode(t, body))
}

func TestSyncEndpoints(t *testing.T) {
	var (
		gotUser *models.UserProfile
		gotBiz  *models.Candidate
	)
	stub := &stubRecommender{
		syncUser: func(_ context.Context, u *models.UserProfile) error { gotUser = u; return nil },
		syncBiz:  func(_ context.Context, c *models.Candidate) error { gotBiz = c; return nil },
		delUser: func(_ context.Context, id int64) error {
			if id == 404 {
				return apperrors.NewNotFoundError("user", id)
			}
			return nil
		},
		delBiz: func(context.Context, int64) error { return nil },
	}
	srv := newTestServer(t, stub)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/sync/user",
		`{"id": 7, "username": "ana", "email": "ana@example.com", "interests": ["Coffee", "wifi"], "location": {"lat": 40.7, "lon": -74.0}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "synced", body["status"])
	require.NotNil(t, gotUser)
	assert.True(t, gotUser.Interests.Contains("coffee"))
	require.NotNil(t, gotUser.Location)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/sync/user", `{"username": "no id"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doRequest(t, http.MethodPost, srv.URL+"/sync/business",
		`{"id": 3, "name": "Coffee Corner", "categories": ["cafe"], "tags": ["wifi"], "popularity_score": 8.5, "rating": 4.6, "rating_count": 120}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["business_id"])
	require.NotNil(t, gotBiz)
	assert.Equal(t, 8.5, gotBiz.Popularity)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/sync/business", `{"id": 3}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doRequest(t, http.MethodDelete, srv.URL+"/sync/user/7", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "deleted", body["status"])

	resp, body = doRequest(t, http.MethodDelete, srv.URL+"/sync/user/404", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))

	resp, _ = doRequest(t, http.MethodDelete, srv.URL+"/sync/business/3", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// ==========================
// Health and Middleware Tests
// ==========================

func TestHealthAndReady(t *testing.T) {
	stub := &stubRecommender{health: service.HealthReport{
		Status:     service.StatusDegraded,
		Components: map[string]string{"postgres": "ok", "redis": "connection refused"},
	}}
	srv := newTestServer(t, stub)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "a cache outage does not fail readiness")

	stub.health.Components["postgres"] = "refused"
	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRequestIDMiddleware(t *testing.T) {
	stub := &stubRecommender{health: service.HealthReport{Status: service.StatusHealthy, Components: map[string]string{}}}
	srv := newTestServer(t, stub)

	resp, _ := doRequest(t, http.MethodGet, srv.URL+"/health", "")
	_, err := uuid.Parse(resp.Header.Get(requestIDHeader))
	assert.NoError(t, err)

	id := uuid.New().String()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, id)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, id, resp2.Header.Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubRecommender{})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
