package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// SettlementResponse is the JSON view of a settlement record
type SettlementResponse struct {
	ID       string `json:"id"`
	DriverID string `json:"driver_id"`
	WeekID   string `json:"week_id"`

	models.SettlementAmounts

	PaymentStatus        models.PaymentStatus `json:"payment_status"`
	PaymentTransactionID *string              `json:"payment_transaction_id,omitempty"`
	PaidAt               *time.Time           `json:"paid_at,omitempty"`
	Diagnostics          []models.Diagnostic  `json:"diagnostics"`
	PolicyVersion        string               `json:"policy_version"`
	ComputedAt           time.Time            `json:"computed_at"`
	Version              int64                `json:"version"`
}

func toSettlementResponse(rec *models.SettlementRecord) SettlementResponse {
	diags := rec.Diagnostics
	if diags == nil {
		diags = []models.Diagnostic{}
	}
	return SettlementResponse{
		ID:                   rec.ID,
		DriverID:             rec.DriverID,
		WeekID:               rec.WeekID,
		SettlementAmounts:    rec.SettlementAmounts,
		PaymentStatus:        rec.PaymentStatus,
		PaymentTransactionID: rec.PaymentTransactionID,
		PaidAt:               rec.PaidAt,
		Diagnostics:          diags,
		PolicyVersion:        rec.PolicyVersion,
		ComputedAt:           rec.ComputedAt,
		Version:              rec.Version,
	}
}

// CommitPaymentRequest is the JSON body of a payment commit. Multipart
// requests carry the same names as form fields plus a "proof" file.
type CommitPaymentRequest struct {
	BonusAmount    decimal.Decimal `json:"bonus_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PaymentDate    string          `json:"payment_date"` // YYYY-MM-DD
	Notes          string          `json:"notes"`
	Actor          string          `json:"actor"`
}

// PaymentResponse is the JSON view of a payment transaction
type PaymentResponse struct {
	ID              string          `json:"id"`
	SettlementID    string          `json:"settlement_id"`
	DriverID        string          `json:"driver_id"`
	WeekID          string          `json:"week_id"`
	BaseAmount      decimal.Decimal `json:"base_amount"`
	BonusAmount     decimal.Decimal `json:"bonus_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaymentDate     string          `json:"payment_date"`
	ProofURL        *string         `json:"proof_url,omitempty"`
	Actor           string          `json:"actor"`
	Notes           string          `json:"notes,omitempty"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	AlreadyRecorded bool            `json:"already_recorded"`
}

func toPaymentResponse(p *models.PaymentTransaction, alreadyRecorded bool) PaymentResponse {
	return PaymentResponse{
		ID:              p.ID,
		SettlementID:    p.RecordID,
		DriverID:        p.DriverID,
		WeekID:          p.WeekID,
		BaseAmount:      p.BaseAmount,
		BonusAmount:     p.BonusAmount,
		DiscountAmount:  p.DiscountAmount,
		TotalAmount:     p.TotalAmount,
		PaymentDate:     p.PaymentDate.Format(dateLayout),
		ProofURL:        p.ProofURL,
		Actor:           p.Actor,
		Notes:           p.Notes,
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
		AlreadyRecorded: alreadyRecorded,
	}
}

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
