package financing

import (
	"fmt"
	"sort"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// EligibilityPolicy decides whether an agreement is charged in a given week.
type EligibilityPolicy interface {
	Name() string
	Eligible(agreement *models.FinancingAgreement, week models.Week) bool
}

// Built-in policy names
const (
	PolicyStartBeforeWeekEnd   = "start_before_week_end"
	PolicyStartBeforeWeekStart = "start_before_week_start"
)

// startBoundPolicy charges an agreement once its start date is on or before
// a boundary of the week.
type startBoundPolicy struct {
	name     string
	useStart bool
}

func (p startBoundPolicy) Name() string { return p.name }

func (p startBoundPolicy) Eligible(a *models.FinancingAgreement, week models.Week) bool {
	bound := week.End
	if p.useStart {
		bound = week.Start
	}
	if a.StartDate.After(bound) {
		return false
	}

	switch a.Kind {
	case models.FinancingAmortizing:
		return a.RemainingWeeks > 0
	case models.FinancingFixedDiscount:
		return a.Status == models.FinancingActive
	default:
		return false
	}
}

// Registry holds eligibility policies by name.
type Registry struct {
	policies map[string]EligibilityPolicy
}

// NewRegistry returns a registry pre-loaded with the built-in policies.
func NewRegistry() *Registry {
	r := &Registry{policies: make(map[string]EligibilityPolicy)}
	r.Register(startBoundPolicy{name: PolicyStartBeforeWeekEnd})
	r.Register(startBoundPolicy{name: PolicyStartBeforeWeekStart, useStart: true})
	return r
}

// Register adds or replaces a policy.
func (r *Registry) Register(p EligibilityPolicy) {
	r.policies[p.Name()] = p
}

// Lookup returns the named policy.
func (r *Registry) Lookup(name string) (EligibilityPolicy, error) {
	p, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown eligibility policy %q (known: %v)", name, r.Names())
	}
	return p, nil
}

// Names lists registered policies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for n := range r.policies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
