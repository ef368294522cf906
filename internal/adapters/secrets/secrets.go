// Package secrets provides the secret backends used to resolve credentials at startup.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"go.uber.org/zap"
)

// ErrSecretNotFound is returned when a backend has no secret at the path
var ErrSecretNotFound = errors.New("secret not found")

// Backend names accepted by New
const (
	BackendAWS   = "aws"
	BackendVault = "vault"
	BackendEnv   = "env"
)

// Options selects and configures a backend
type Options struct {
	Backend string
	AWS     AWSConfig
	Vault   VaultConfig
}

// New returns the configured secret store
func New(ctx context.Context, opts Options, logger *zap.Logger) (ports.SecretStore, error) {
	switch opts.Backend {
	case BackendAWS:
		return NewAWSStore(ctx, opts.AWS, logger)
	case BackendVault:
		return NewVaultStore(ctx, opts.Vault, logger)
	case BackendEnv, "":
		logger.Warn("Using environment secret store - NOT for production use")
		return NewEnvStore(), nil
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", opts.Backend)
	}
}

// Resolve returns the secret at path, or fallback when path is empty.
func Resolve(ctx context.Context, store ports.SecretStore, path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	v, err := store.GetSecret(ctx, path)
	if err != nil {
		return "", fmt.Errorf("resolve secret %s: %w", path, err)
	}
	return v, nil
}
