// internal/api/router.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "recommendation-engine/internal/common/errors"
	"recommendation-engine/internal/common/logger"
	"recommendation-engine/internal/common/observability"
	"recommendation-engine/internal/models"
	"recommendation-engine/internal/recommender/service"
)

// Recommender is the service surface exposed over HTTP.
type Recommender interface {
	GetRecommendations(ctx context.Context, userID int64, rc models.RecommendationContext, bypassCache bool) (*models.Recommendations, error)
	RecordInteraction(ctx context.Context, userID, candidateID int64, kind string, weight float64) (*models.InteractionRecord, error)
	ClearUserCache(ctx context.Context, userID int64) (int, error)
	SyncUser(ctx context.Context, u *models.UserProfile) error
	SyncCandidate(ctx context.Context, c *models.Candidate) error
	DeleteUser(ctx context.Context, id int64) error
	DeleteCandidate(ctx context.Context, id int64) error
	ListInteractions(ctx context.Context, userID int64, limit int) ([]models.InteractionRecord, error)
	Health(ctx context.Context) service.HealthReport
}

// Handler serves the recommendation API.
type Handler struct {
	svc    Recommender
	errs   *apperrors.ErrorHandler
	logger logger.Logger
	obs    *observability.Observability
}

func NewHandler(svc Recommender, log logger.Logger, obs *observability.Observability) *Handler {
	if obs == nil {
		obs = observability.NewNoop()
	}
	log = log.WithFields(map[string]interface{}{"component": "api"})
	return &Handler{
		svc:    svc,
		errs:   apperrors.NewErrorHandler(log),
		logger: log,
		obs:    obs,
	}
}

// Routes builds the chi router.
func (h *Handler) Routes(requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/recommend/{userID}", h.getRecommendations)
	r.Post("/interaction", h.recordInteraction)
	r.Post("/cache/clear/{userID}", h.clearCache)
	r.Get("/user/{userID}/interactions", h.listInteractions)

	r.Route("/sync", func(r chi.Router) {
		r.Post("/user", h.syncUser)
		r.Post("/business", h.syncBusiness)
		r.Delete("/user/{id}", h.deleteUser)
		r.Delete("/business/{id}", h.deleteBusiness)
	})

	return r
}
