package commission

import (
	"context"
	"fmt"
	"sort"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// GoalResult lists the tiers a week satisfied and their summed reward.
type GoalResult struct {
	Reward decimal.Decimal
	Tiers  []string
}

// GoalEvaluator matches a week's rides and revenue against tier definitions.
type GoalEvaluator struct {
	repo ports.GoalRepository
}

// NewGoalEvaluator creates a goal evaluator
func NewGoalEvaluator(repo ports.GoalRepository) *GoalEvaluator {
	return &GoalEvaluator{repo: repo}
}

// Evaluate pays every satisfied tier once. Tiers stack.
func (e *GoalEvaluator) Evaluate(ctx context.Context, rides int, revenue decimal.Decimal) (GoalResult, error) {
	tiers, err := e.repo.ListActiveTiers(ctx, nil)
	if err != nil {
		return GoalResult{Reward: decimal.Zero}, fmt.Errorf("list goal tiers: %w", err)
	}

	sort.Slice(tiers, func(i, j int) bool { return tiers[i].ID < tiers[j].ID })

	res := GoalResult{Reward: decimal.Zero}
	for _, tier := range tiers {
		if !tier.Active || !tier.Satisfied(rides, revenue) {
			continue
		}
		res.Reward = res.Reward.Add(models.NonNegative(tier.Reward))
		res.Tiers = append(res.Tiers, tier.ID)
	}
	res.Reward = models.Round2(res.Reward)
	return res, nil
}
