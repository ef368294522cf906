// Package fixtures builds drivers, agreements and ingestion rows for tests.
package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// Week2025W07 is the week most tests settle: Mon 2025-02-10 to Sun 2025-02-16.
const Week2025W07 = "2025-W07"

// Dec parses a decimal literal and panics on malformed input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DecPtr returns a pointer to a parsed decimal.
func DecPtr(s string) *decimal.Decimal {
	d := Dec(s)
	return &d
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// DriverBuilder provides fluent API for building test drivers.
type DriverBuilder struct {
	driver *models.Driver
}

// NewDriver creates an active affiliate driver with no overrides.
func NewDriver(id string) *DriverBuilder {
	return &DriverBuilder{
		driver: &models.Driver{
			ID:        id,
			Name:      "Driver " + id,
			Type:      models.DriverTypeAffiliate,
			Active:    true,
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func (b *DriverBuilder) Renter(weeklyFee string) *DriverBuilder {
	b.driver.Type = models.DriverTypeRenter
	b.driver.RentalFee = DecPtr(weeklyFee)
	return b
}

func (b *DriverBuilder) WithFeeOverride(mode models.FeeMode, value string) *DriverBuilder {
	b.driver.FeeOverride = &models.FeeRule{Mode: mode, Value: Dec(value)}
	return b
}

func (b *DriverBuilder) ReferredBy(uplineID string) *DriverBuilder {
	b.driver.ReferredBy = Ptr(uplineID)
	return b
}

func (b *DriverBuilder) Inactive() *DriverBuilder {
	b.driver.Active = false
	return b
}

func (b *DriverBuilder) Build() *models.Driver {
	return b.driver
}

// Entry builds one ingestion row for the given platform tag.
func Entry(driverID, weekID, tag, amount string, trips int) models.IngestionEntry {
	p, _ := models.ParsePlatform(tag)
	return models.IngestionEntry{
		ID:          uuid.NewString(),
		DriverID:    driverID,
		WeekID:      weekID,
		Platform:    p,
		RawPlatform: tag,
		Amount:      Dec(amount),
		Trips:       trips,
	}
}

// AgreementBuilder provides fluent API for building financing agreements.
type AgreementBuilder struct {
	agreement *models.FinancingAgreement
}

// NewLoan creates an active amortizing agreement starting 2025-01-01.
func NewLoan(id, driverID, principal string, termWeeks int, weeklyInterest string) *AgreementBuilder {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &AgreementBuilder{
		agreement: &models.FinancingAgreement{
			ID:                    id,
			DriverID:              driverID,
			Kind:                  models.FinancingAmortizing,
			Principal:             Dec(principal),
			TermWeeks:             termWeeks,
			RemainingWeeks:        termWeeks,
			WeeklyInterestPercent: Dec(weeklyInterest),
			StartDate:             now,
			Status:                models.FinancingActive,
			CreatedAt:             now,
			UpdatedAt:             now,
		},
	}
}

// NewFixedDiscount creates an open-ended flat weekly discount.
func NewFixedDiscount(id, driverID, amount string) *AgreementBuilder {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &AgreementBuilder{
		agreement: &models.FinancingAgreement{
			ID:                    id,
			DriverID:              driverID,
			Kind:                  models.FinancingFixedDiscount,
			FixedAmount:           Dec(amount),
			WeeklyInterestPercent: decimal.Zero,
			StartDate:             now,
			Status:                models.FinancingActive,
			CreatedAt:             now,
			UpdatedAt:             now,
		},
	}
}

func (b *AgreementBuilder) StartingOn(t time.Time) *AgreementBuilder {
	b.agreement.StartDate = t
	return b
}

func (b *AgreementBuilder) WithRemaining(weeks int) *AgreementBuilder {
	b.agreement.RemainingWeeks = weeks
	return b
}

func (b *AgreementBuilder) Build() *models.FinancingAgreement {
	return b.agreement
}

// DefaultPolicy is a snapshot with 6% VAT, a fixed 35.00 admin fee and all
// accumulators disabled.
func DefaultPolicy() models.PolicySnapshot {
	return models.PolicySnapshot{
		VATRate:     Dec("0.06"),
		DefaultFee:  models.FeeRule{Mode: models.FeeModeFixedAmount, Value: Dec("35")},
		Eligibility: "start_before_week_end",
		Commission: models.CommissionPolicy{
			Rules: map[models.DriverType]models.CommissionRule{},
		},
		Referral: models.ReferralPolicy{
			LevelRates:       []decimal.Decimal{Dec("2"), Dec("1"), Dec("0.5")},
			MaxDepth:         3,
			RevenueThreshold: decimal.Zero,
		},
	}
}
