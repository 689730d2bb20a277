package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerClient is the subset of the AWS Secrets Manager SDK this
// package depends on, so tests can inject a fake.
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerPassword is a Provider that resolves a password from a
// field of an AWS Secrets Manager secret, the first time it's asked and
// never again — the server may never challenge for a password at all (a
// trust-authenticated connection), in which case no network call happens.
type SecretsManagerPassword struct {
	client SecretsManagerClient
	arn    string
	key    string

	mu       sync.Mutex
	resolved bool
	value    string
	err      error
}

// NewSecretsManagerPassword builds a Provider backed by secret arn's JSON
// field named key.
func NewSecretsManagerPassword(client SecretsManagerClient, arn, key string) *SecretsManagerPassword {
	return &SecretsManagerPassword{client: client, arn: arn, key: key}
}

// NewSecretsManagerPasswordFromEnv loads AWS configuration from the
// environment (shared config files, env vars, EC2/ECS role credentials)
// and builds a Provider from it.
func NewSecretsManagerPasswordFromEnv(ctx context.Context, arn, key string) (*SecretsManagerPassword, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: load AWS config: %w", err)
	}
	return NewSecretsManagerPassword(secretsmanager.NewFromConfig(cfg), arn, key), nil
}

// ResolvePassword implements Provider.
func (p *SecretsManagerPassword) ResolvePassword(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return p.value, p.err
	}

	p.value, p.err = p.fetch(ctx)
	p.resolved = true
	return p.value, p.err
}

func (p *SecretsManagerPassword) fetch(ctx context.Context) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &p.arn,
	})
	if err != nil {
		return "", fmt.Errorf("auth: get secret %s: %w", p.arn, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("auth: secret %s has no string value", p.arn)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(*out.SecretString), &data); err != nil {
		return "", fmt.Errorf("auth: parse secret %s as JSON: %w", p.arn, err)
	}

	val, ok := data[p.key]
	if !ok {
		return "", fmt.Errorf("auth: key %q not found in secret %s", p.key, p.arn)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("auth: value at key %q is not a string (got %T)", p.key, val)
	}
	return str, nil
}
