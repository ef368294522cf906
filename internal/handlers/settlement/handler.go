// Package settlement serves the driver-week settlement API.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/services/payment"
	"github.com/kevin07696/settlement-service/internal/services/ports"
	"github.com/kevin07696/settlement-service/pkg/resilience"
)

const dateLayout = "2006-01-02"

// Handler serves settlement reads and payment commits
type Handler struct {
	settlements    ports.SettlementService
	payments       ports.PaymentRecorder
	timeouts       *resilience.TimeoutConfig
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandler creates a new settlement handler
func NewHandler(
	settlements ports.SettlementService,
	payments ports.PaymentRecorder,
	timeouts *resilience.TimeoutConfig,
	maxUploadBytes int64,
	logger *zap.Logger,
) *Handler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Handler{
		settlements:    settlements,
		payments:       payments,
		timeouts:       timeouts,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Routes mounts the handler under r
func (h *Handler) Routes(r chi.Router) {
	r.Get("/drivers/{driverID}/weeks/{weekID}/settlement", h.GetSettlement)
	r.Post("/drivers/{driverID}/weeks/{weekID}/payments", h.CommitPayment)
}

// GetSettlement handles GET /drivers/{driverID}/weeks/{weekID}/settlement
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverID")
	weekID := chi.URLParam(r, "weekID")

	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(w, domain.NewDomainError(domain.ErrorCodeInvalidInput, "refresh must be a boolean"))
			return
		}
		refresh = v
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	rec, err := h.settlements.GetDriverWeekSettlement(ctx, driverID, weekID, refresh)
	if err != nil {
		h.logFailure("get settlement", driverID, weekID, err)
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toSettlementResponse(rec))
}

// CommitPayment handles POST /drivers/{driverID}/weeks/{weekID}/payments.
// Accepts a JSON body or a multipart form with an optional "proof" file.
func (h *Handler) CommitPayment(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverID")
	weekID := chi.URLParam(r, "weekID")

	req, cleanup, err := h.parseCommit(w, r)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	txn, err := h.payments.CommitPayment(ctx, driverID, weekID, req)
	switch {
	case err == nil:
		h.respondJSON(w, http.StatusCreated, toPaymentResponse(txn, false))
	case domain.IsDomainError(err, domain.ErrorCodeAlreadyPaid) && txn != nil:
		h.logger.Info("payment already recorded",
			zap.String("driver_id", driverID),
			zap.String("week_id", weekID),
			zap.String("transaction_id", txn.ID))
		h.respondJSON(w, http.StatusOK, toPaymentResponse(txn, true))
	default:
		h.logFailure("commit payment", driverID, weekID, err)
		h.respondError(w, err)
	}
}

func (h *Handler) parseCommit(w http.ResponseWriter, r *http.Request) (payment.CommitRequest, func(), error) {
	var out payment.CommitRequest
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.parseMultipart(r)
	}

	var body CommitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return out, nil, domain.WrapError(domain.ErrorCodeInvalidInput, "invalid JSON body", err)
	}
	out, err := toCommitRequest(body)
	return out, nil, err
}

func (h *Handler) parseMultipart(r *http.Request) (payment.CommitRequest, func(), error) {
	var out payment.CommitRequest
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return out, nil, domain.WrapError(domain.ErrorCodeInvalidInput, "invalid multipart form", err)
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	body := CommitPaymentRequest{
		PaymentDate: r.FormValue("payment_date"),
		Notes:       r.FormValue("notes"),
		Actor:       r.FormValue("actor"),
	}
	var err error
	if body.BonusAmount, err = formDecimal(r, "bonus_amount"); err != nil {
		return out, cleanup, err
	}
	if body.DiscountAmount, err = formDecimal(r, "discount_amount"); err != nil {
		return out, cleanup, err
	}
	if out, err = toCommitRequest(body); err != nil {
		return out, cleanup, err
	}

	file, header, err := r.FormFile("proof")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return out, cleanup, nil
	case err != nil:
		return out, cleanup, domain.WrapError(domain.ErrorCodeInvalidInput, "read proof file", err)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	out.Proof = &payment.EvidenceFile{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}
	return out, func() {
		_ = file.Close()
		cleanup()
	}, nil
}

func formDecimal(r *http.Request, field string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, domain.WrapError(domain.ErrorCodeInvalidInput, field+" must be a decimal", err)
	}
	return d, nil
}

func toCommitRequest(body CommitPaymentRequest) (payment.CommitRequest, error) {
	req := payment.CommitRequest{
		BonusAmount:    body.BonusAmount,
		DiscountAmount: body.DiscountAmount,
		Notes:          body.Notes,
		Actor:          body.Actor,
	}
	if body.PaymentDate != "" {
		d, err := time.Parse(dateLayout, body.PaymentDate)
		if err != nil {
			return req, domain.WrapError(domain.ErrorCodeInvalidInput, "payment_date must be YYYY-MM-DD", err)
		}
		req.PaymentDate = &d
	}
	return req, nil
}

// statusFor maps a domain error code to an HTTP status
func statusFor(err error) int {
	switch domain.GetErrorCode(err) {
	case domain.ErrorCodeNotFound, domain.ErrorCodeNoData:
		return http.StatusNotFound
	case domain.ErrorCodeInvalidInput:
		return http.StatusBadRequest
	case domain.ErrorCodeConflict, domain.ErrorCodeAlreadyPaid:
		return http.StatusConflict
	case domain.ErrorCodeStorageFailure, domain.ErrorCodePartialSourceFailure:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	detail := ErrorDetail{Code: string(domain.ErrorCodeInternalError), Message: "internal error"}

	var de *domain.DomainError
	if errors.As(err, &de) {
		detail = ErrorDetail{Code: string(de.Code), Message: de.Message}
		if len(de.Details) > 0 {
			detail.Details = de.Details
		}
	} else if status == http.StatusGatewayTimeout {
		detail.Message = "request timed out"
	}
	h.respondJSON(w, status, ErrorBody{Error: detail})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) logFailure(op, driverID, weekID string, err error) {
	fields := []zap.Field{
		zap.String("driver_id", driverID),
		zap.String("week_id", weekID),
		zap.String("code", string(domain.GetErrorCode(err))),
		zap.Error(err),
	}
	if statusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", fields...)
		return
	}
	h.logger.Info(op+" rejected", fields...)
}
