// Package session loads ColumnTheory configuration and builds the AWS
// clients used for migrations, locking and attribute encryption.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// configLoadFunc is a variable to allow mocking config.LoadDefaultConfig in tests
var configLoadFunc = config.LoadDefaultConfig

// Session holds the resolved AWS config for one Config.
type Session struct {
	config    *Config
	awsConfig aws.Config
}

// NewSession resolves credentials: an explicit provider, then static keys,
// then the default chain. RoleARN wraps the result in an assume-role provider.
func NewSession(ctx context.Context, cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	options := make([]func(*config.LoadOptions) error, 0, len(cfg.AWSConfigOptions)+5)
	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	}

	switch {
	case cfg.CredentialsProvider != nil:
		options = append(options, config.WithCredentialsProvider(cfg.CredentialsProvider))
	case cfg.AccessKeyID != "":
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	maxAttempts := cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	options = append(options,
		config.WithRetryMode(aws.RetryModeStandard),
		config.WithRetryMaxAttempts(maxAttempts),
		config.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	options = append(options, cfg.AWSConfigOptions...)

	awsConfig, err := configLoadFunc(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if awsConfig.Retryer == nil {
		awsConfig.Retryer = func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = maxAttempts
			})
		}
	}

	if cfg.RoleARN != "" {
		stsClient := sts.NewFromConfig(awsConfig)
		provider := stscreds.NewAssumeRoleProvider(stsClient, cfg.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			if cfg.ExternalID != "" {
				o.ExternalID = aws.String(cfg.ExternalID)
			}
			o.RoleSessionName = "columntheory"
		})
		awsConfig.Credentials = aws.NewCredentialsCache(provider)
	}

	return &Session{config: cfg, awsConfig: awsConfig}, nil
}

// Config returns the session configuration
func (s *Session) Config() *Config {
	return s.config
}

// AWSConfig returns the AWS configuration
func (s *Session) AWSConfig() aws.Config {
	return s.awsConfig
}

// DynamoDB returns a client for the migration ledger and lock tables.
func (s *Session) DynamoDB() *dynamodb.Client {
	return dynamodb.NewFromConfig(s.awsConfig, func(o *dynamodb.Options) {
		if s.config.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.config.Endpoint)
		}
	})
}

// S3 returns a client for migration sources.
func (s *Session) S3() *s3.Client {
	return s3.NewFromConfig(s.awsConfig, func(o *s3.Options) {
		if s.config.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.config.Endpoint)
			o.UsePathStyle = true
		}
	})
}

// KMS returns Config.KMSClient when set, else a client from the AWS config.
func (s *Session) KMS() KMSClient {
	if s.config.KMSClient != nil {
		return s.config.KMSClient
	}
	return kms.NewFromConfig(s.awsConfig, func(o *kms.Options) {
		if s.config.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.config.Endpoint)
		}
	})
}
