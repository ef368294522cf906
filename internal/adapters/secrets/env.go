package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvStore resolves secrets from environment variables, for development.
// The path "db/password" is read from SECRET_DB_PASSWORD.
type EnvStore struct {
	lookup func(string) (string, bool)
}

// NewEnvStore creates a store backed by the process environment
func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

// EnvVar returns the variable name a secret path maps to
func EnvVar(path string) string {
	r := strings.NewReplacer("/", "_", "-", "_", ".", "_")
	return "SECRET_" + strings.ToUpper(r.Replace(strings.Trim(path, "/")))
}

// GetSecret returns the environment value for path
func (s *EnvStore) GetSecret(ctx context.Context, path string) (string, error) {
	v, ok := s.lookup(EnvVar(path))
	if !ok {
		return "", fmt.Errorf("%w: %s (%s)", ErrSecretNotFound, path, EnvVar(path))
	}
	return v, nil
}
