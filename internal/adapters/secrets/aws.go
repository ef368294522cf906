package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"go.uber.org/zap"
)

// AWSConfig contains configuration for the AWS Secrets Manager backend
type AWSConfig struct {
	Region   string
	Profile  string // local development only
	Endpoint string // LocalStack
	CacheTTL time.Duration
}

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSStore reads secrets from AWS Secrets Manager
type AWSStore struct {
	client secretsManagerAPI
	cache  *secretCache
	logger *zap.Logger
}

// NewAWSStore creates a Secrets Manager backed store using the default credential chain
func NewAWSStore(ctx context.Context, cfg AWSConfig, logger *zap.Logger) (*AWSStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("AWS Secrets Manager store initialized",
		zap.String("region", cfg.Region),
		zap.Duration("cache_ttl", cfg.CacheTTL))

	return &AWSStore{client: client, cache: newSecretCache(cfg.CacheTTL), logger: logger}, nil
}

// GetSecret returns the string value of the secret at path (name or ARN)
func (s *AWSStore) GetSecret(ctx context.Context, path string) (string, error) {
	if v, ok := s.cache.get(path); ok {
		return v, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(path),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		s.logger.Error("Failed to read secret from AWS", zap.String("path", path), zap.Error(err))
		return "", fmt.Errorf("get secret %s: %w", path, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", path)
	}

	s.cache.set(path, *out.SecretString)
	return *out.SecretString, nil
}
