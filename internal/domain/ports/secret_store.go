package ports

import "context"

// SecretStore resolves credentials (database password, object store keys)
// from a secret backend at startup.
type SecretStore interface {
	// GetSecret returns the secret value stored at path.
	GetSecret(ctx context.Context, path string) (string, error)
}
