package cron

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/jobs"
	"github.com/kevin07696/settlement-service/pkg/resilience"
)

// WeekDispatcher fans a week out to per-driver recompute tasks
type WeekDispatcher interface {
	EnqueueWeek(ctx context.Context, weekID string, force bool) (*jobs.FanOutResult, error)
}

// RecomputeHandler handles cron job endpoints for settlement recomputation
type RecomputeHandler struct {
	dispatcher WeekDispatcher
	timeouts   *resilience.TimeoutConfig
	logger     *zap.Logger
	cronSecret string // Secret token for authenticating cron requests
}

// NewRecomputeHandler creates a new recompute cron handler
func NewRecomputeHandler(
	dispatcher WeekDispatcher,
	timeouts *resilience.TimeoutConfig,
	logger *zap.Logger,
	cronSecret string,
) *RecomputeHandler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &RecomputeHandler{
		dispatcher: dispatcher,
		timeouts:   timeouts,
		logger:     logger,
		cronSecret: cronSecret,
	}
}

// RecomputeWeekRequest is the optional request body
type RecomputeWeekRequest struct {
	WeekID string `json:"week_id"` // ISO week, defaults to the previous week
	Force  bool   `json:"force"`   // bypass the draft cache
}

// RecomputeWeekResponse reports the fan-out
type RecomputeWeekResponse struct {
	Success bool `json:"success"`
	*jobs.FanOutResult
	ProcessedAt string `json:"processed_at"`
}

// RecomputeWeek handles POST /cron/recompute-week
func (h *RecomputeHandler) RecomputeWeek(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Recompute cron job triggered",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}
	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request", zap.String("remote_addr", r.RemoteAddr))
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RecomputeWeekRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	ctx, cancel := h.timeouts.CronContext(r.Context())
	defer cancel()

	res, err := h.dispatcher.EnqueueWeek(ctx, req.WeekID, req.Force)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case domain.IsValidationError(err):
			status = http.StatusBadRequest
		case domain.IsStorageError(err):
			status = http.StatusServiceUnavailable
		}
		h.logger.Error("Recompute dispatch failed", zap.Error(err))
		h.respondError(w, status, err.Error())
		return
	}

	resp := RecomputeWeekResponse{
		Success:      res.Failed == 0,
		FanOutResult: res,
		ProcessedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusAccepted
	if !resp.Success {
		status = http.StatusPartialContent // 206 indicates partial success
	}
	h.respondJSON(w, status, resp)
}

// authenticateRequest accepts the secret as X-Cron-Secret or a bearer token
func (h *RecomputeHandler) authenticateRequest(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	if token := r.Header.Get("X-Cron-Secret"); token != "" {
		return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
	}
	auth := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(auth), []byte("Bearer "+h.cronSecret)) == 1
}

func (h *RecomputeHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func (h *RecomputeHandler) respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
