package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

var ErrSecretNotFound = errors.New("secret not found")

type Store interface {
	GetSecret(ctx context.Context, id string) (string, error)
}

type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type SecretsManagerStore struct {
	client SecretsManagerAPI
}

func NewSecretsManagerStore(cfg aws.Config) *SecretsManagerStore {
	return NewFromClient(secretsmanager.NewFromConfig(cfg))
}

func NewFromClient(client SecretsManagerAPI) *SecretsManagerStore {
	return &SecretsManagerStore{client: client}
}

// GetSecret returns the string value of the secret. Secrets stored only as
// binary are rejected since every secret this service reads is text.
func (s *SecretsManagerStore) GetSecret(ctx context.Context, id string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			slog.Error("secret does not exist", "secret_id", id)
			return "", fmt.Errorf("%w: %s: %w", ErrSecretNotFound, id, err)
		}
		slog.Error("error retrieving secret", "secret_id", id, "error", err)
		return "", fmt.Errorf("failed to retrieve secret %s: %w", id, err)
	}

	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", id)
	}
	return *out.SecretString, nil
}
