// Package financing computes weekly financing charges and consumes
// agreement installments when a payment is committed.
package financing

import (
	"context"
	"fmt"
	"sort"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// Ledger reads and consumes a driver's financing agreements.
type Ledger struct {
	repo     ports.FinancingRepository
	registry *Registry
	logger   ports.Logger
}

// NewLedger creates a financing ledger
func NewLedger(repo ports.FinancingRepository, registry *Registry, logger ports.Logger) *Ledger {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Ledger{repo: repo, registry: registry, logger: logger}
}

// EligibleLines returns one line per agreement charged in week and their
// total (installments plus interest). It never mutates agreements.
func (l *Ledger) EligibleLines(ctx context.Context, driverID string, week models.Week, policyName string) ([]models.FinancingLine, decimal.Decimal, error) {
	policy, err := l.registry.Lookup(policyName)
	if err != nil {
		return nil, decimal.Zero, err
	}

	agreements, err := l.repo.ListActive(ctx, nil, driverID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("list financing agreements: %w", err)
	}

	// Stable order keeps the stored line list deterministic.
	sort.Slice(agreements, func(i, j int) bool { return agreements[i].ID < agreements[j].ID })

	lines := make([]models.FinancingLine, 0, len(agreements))
	total := decimal.Zero
	for _, a := range agreements {
		if !policy.Eligible(a, week) {
			continue
		}
		installment := a.Installment()
		line := models.FinancingLine{
			AgreementID: a.ID,
			Kind:        a.Kind,
			Installment: installment,
			Interest:    a.Interest(installment),
		}
		lines = append(lines, line)
		total = total.Add(line.Total())
	}

	return lines, models.Round2(total), nil
}

// ConsumeWeek applies the commit-time side effect for every line of a paid
// settlement. It must run inside the payment transaction. Returns how many
// agreements were actually decremented; repeated calls for the same week
// decrement nothing.
func (l *Ledger) ConsumeWeek(ctx context.Context, tx ports.DBTX, lines []models.FinancingLine, weekID string) (int, error) {
	consumed := 0
	for _, line := range lines {
		ok, err := l.repo.ConsumeWeek(ctx, tx, line.AgreementID, weekID)
		if err != nil {
			return consumed, fmt.Errorf("consume agreement %s: %w", line.AgreementID, err)
		}
		if ok {
			consumed++
		} else {
			l.logger.Debug("financing week already consumed",
				ports.String("agreement_id", line.AgreementID),
				ports.WeekID(weekID))
		}
	}
	return consumed, nil
}
