package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

type plainAuth struct {
	username string
	password string
}

func newPlainAuth(username, password string) *plainAuth {
	return &plainAuth{username: username, password: password}
}

func (a *plainAuth) Credentials() (string, string, error) {
	return a.username, a.password, nil
}

type gmkTokenProvider struct {
	lg *zap.Logger
}

func newGmkTokenProvider(lg *zap.Logger) *gmkTokenProvider {
	return &gmkTokenProvider{lg: lg}
}

// Token implements sarama.AccessTokenProvider.
func (p *gmkTokenProvider) Token() (*sarama.AccessToken, error) {
	creds, err := google.FindDefaultCredentials(context.Background(), cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("kafka: find default credentials: %w", err)
	}
	token, err := creds.TokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("kafka: fetch token: %w", err)
	}
	p.lg.Debug("kafka oauth token refreshed", zap.Time("expiry", token.Expiry))
	return &sarama.AccessToken{Token: token.AccessToken}, nil
}
