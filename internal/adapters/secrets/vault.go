package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for the HashiCorp Vault backend
type VaultConfig struct {
	Address    string
	AuthMethod string // "token" or "approle"
	Token      string
	RoleID     string
	SecretID   string
	Namespace  string
	MountPath  string // KV v2 mount, default "secret"
	CacheTTL   time.Duration
}

// VaultStore reads secrets from a KV v2 engine. Each secret is expected to
// keep its value under the "value" key.
type VaultStore struct {
	client *vault.Client
	mount  string
	cache  *secretCache
	logger *zap.Logger
}

// NewVaultStore creates and authenticates a Vault client
func NewVaultStore(ctx context.Context, cfg VaultConfig, logger *zap.Logger) (*VaultStore, error) {
	vc := vault.DefaultConfig()
	vc.Address = cfg.Address

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("create Vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	switch cfg.AuthMethod {
	case "", "token":
		if cfg.Token == "" {
			return nil, fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return nil, fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return nil, fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return nil, fmt.Errorf("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
	default:
		return nil, fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}

	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}

	logger.Info("Vault store initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", mount))

	return &VaultStore{client: client, mount: mount, cache: newSecretCache(cfg.CacheTTL), logger: logger}, nil
}

// GetSecret reads the "value" key of the secret at path
func (s *VaultStore) GetSecret(ctx context.Context, path string) (string, error) {
	if v, ok := s.cache.get(path); ok {
		return v, nil
	}

	secret, err := s.client.KVv2(s.mount).Get(ctx, strings.TrimPrefix(path, "/"))
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		s.logger.Error("Failed to read secret from Vault", zap.String("path", path), zap.Error(err))
		return "", fmt.Errorf("read secret %s: %w", path, err)
	}

	value, ok := secret.Data["value"].(string)
	if !ok {
		return "", fmt.Errorf("secret %s has no string \"value\" key", path)
	}

	s.cache.set(path, value)
	return value, nil
}
