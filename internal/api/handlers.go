// internal/api/handlers.go
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "recommendation-engine/internal/common/errors"
	"recommendation-engine/internal/common/validation"
	"recommendation-engine/internal/models"
	"recommendation-engine/internal/recommender/service"
)

const maxBodyBytes = 1 << 20

// ==========================
// Recommendations
// ==========================

// contextParam is the JSON accepted in the `context` query parameter.
// Unknown fields are ignored.
type contextParam struct {
	MaxResults int              `json:"max_results"`
	Categories []string         `json:"categories"`
	Tags       []string         `json:"tags"`
	Location   *models.GeoPoint `json:"location"`
	Toggles    models.Toggles   `json:"toggles"`
}

func (h *Handler) getRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}

	rc, err := parseRecommendationContext(r)
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}

	useCache := true
	if raw := r.URL.Query().Get("use_cache"); raw != "" {
		if useCache, err = strconv.ParseBool(raw); err != nil {
			h.errs.HandleHTTPError(w, r, apperrors.NewInvalidInputError("use_cache must be a boolean"))
			return
		}
	}

	recs, err := h.svc.GetRecommendations(r.Context(), userID, rc, !useCache)
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func parseRecommendationContext(r *http.Request) (models.RecommendationContext, error) {
	q := r.URL.Query()
	var p contextParam
	if raw := strings.TrimSpace(q.Get("context")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return models.RecommendationContext{}, apperrors.NewInvalidInputError(fmt.Sprintf("invalid context JSON: %v", err))
		}
	}

	rc := models.RecommendationContext{
		MaxResults: p.MaxResults,
		Categories: p.Categories,
		Tags:       p.Tags,
		Location:   p.Location,
		Toggles:    p.Toggles,
	}
	if raw := q.Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return rc, apperrors.NewInvalidInputError("max_results must be a positive integer")
		}
		rc.MaxResults = n
	}
	return rc, nil
}

// ==========================
// Interactions
// ==========================

type interactionRequest struct {
	UserID          int64    `json:"user_id"`
	BusinessID      int64    `json:"business_id"`
	InteractionType string   `json:"interaction_type"`
	Weight          *float64 `json:"weight"`
}

func (h *Handler) recordInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := decodeBody(r, validation.InteractionRequest, &req); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	weight := 1.0
	if req.Weight != nil {
		weight = *req.Weight
	}

	record, err := h.svc.RecordInteraction(r.Context(), req.UserID, req.BusinessID, req.InteractionType, weight)
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "recorded",
		"user_id":          record.UserID,
		"business_id":      record.CandidateID,
		"interaction_type": record.Kind,
		"weight":           record.Weight,
		"timestamp":        record.Timestamp.Format(time.RFC3339Nano),
	})
}

func (h *Handler) listInteractions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit == 0 {
			h.errs.HandleHTTPError(w, r, apperrors.NewInvalidInputError(
				fmt.Sprintf("limit must be between 1 and %d", service.MaxInteractionPage)))
			return
		}
	}

	records, err := h.svc.ListInteractions(r.Context(), userID, limit)
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":            userID,
		"interactions_count": len(records),
		"interactions":       records,
	})
}

// ==========================
// Cache
// ==========================

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}

	n, err := h.svc.ClearUserCache(r.Context(), userID)
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"deleted": n,
		"message": fmt.Sprintf("Cleared %d cache entries for user %d", n, userID),
	})
}

// ==========================
// Sync
// ==========================

func (h *Handler) syncUser(w http.ResponseWriter, r *http.Request) {
	var u models.UserProfile
	if err := decodeBody(r, validation.SyncUserRequest, &u); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	if err := h.svc.SyncUser(r.Context(), &u); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "synced", "user_id": u.ID})
}

func (h *Handler) syncBusiness(w http.ResponseWriter, r *http.Request) {
	var c models.Candidate
	if err := decodeBody(r, validation.SyncBusinessRequest, &c); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	if err := h.svc.SyncCandidate(r.Context(), &c); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "synced", "business_id": c.ID})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	if err := h.svc.DeleteUser(r.Context(), id); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "user_id": id})
}

func (h *Handler) deleteBusiness(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	if err := h.svc.DeleteCandidate(r.Context(), id); err != nil {
		h.errs.HandleHTTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "business_id": id})
}

// ==========================
// Health
// ==========================

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health(r.Context()))
}

// ready fails while the feature store is unreachable. A missing cache only
// degrades latency, so it does not affect readiness.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	report := h.svc.Health(r.Context())
	status := http.StatusOK
	if report.Components["postgres"] != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// ==========================
// Helpers
// ==========================

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewInvalidInputError(fmt.Sprintf("%s must be a positive integer, got %q", name, raw))
	}
	return id, nil
}

// decodeBody validates the request body against schema and decodes it into dst.
func decodeBody(r *http.Request, schema *validation.Schema, dst interface{}) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("read body: %v", err))
	}
	if len(raw) > maxBodyBytes {
		return apperrors.NewInvalidInputError("request body too large")
	}
	if err := schema.Validate(raw); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("decode body: %v", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
