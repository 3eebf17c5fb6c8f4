// Package secrets resolves credentials kept in AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type API interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type Resolver struct {
	client API
}

func NewResolver(client API) *Resolver {
	return &Resolver{client: client}
}

func Connect(ctx context.Context, region string) (*Resolver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", err)
	}
	return NewResolver(secretsmanager.NewFromConfig(cfg)), nil
}

type botSecret struct {
	TelegramBotToken string `json:"TelegramBotToken"`
}

// TelegramToken reads the current version of secretID and returns its
// TelegramBotToken field.
func (r *Resolver) TelegramToken(ctx context.Context, secretID string) (string, error) {
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get %s: %w", secretID, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secrets: %s has no string value", secretID)
	}

	var s botSecret
	if err := json.Unmarshal([]byte(*out.SecretString), &s); err != nil {
		return "", fmt.Errorf("secrets: decode %s: %w", secretID, err)
	}
	if s.TelegramBotToken == "" {
		return "", fmt.Errorf("secrets: %s has no TelegramBotToken", secretID)
	}
	return s.TelegramBotToken, nil
}
