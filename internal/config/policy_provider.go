package config

import (
	"context"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// PolicyProvider serves the snapshot built from the environment at startup.
// Policy changes take effect on restart, which recomputes only unpaid weeks.
type PolicyProvider struct {
	snapshot models.PolicySnapshot
}

// NewPolicyProvider validates cfg once and freezes the result
func NewPolicyProvider(cfg PolicyConfig) (*PolicyProvider, error) {
	snap, err := cfg.Snapshot()
	if err != nil {
		return nil, err
	}
	return &PolicyProvider{snapshot: snap}, nil
}

// Snapshot implements ports.PolicyProvider
func (p *PolicyProvider) Snapshot(context.Context) (models.PolicySnapshot, error) {
	return p.snapshot, nil
}
