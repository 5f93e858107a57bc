// -----------------------------------------------------------------------
// Auth service - Google service-account token acquisition
// -----------------------------------------------------------------------

package auth

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const sheetsScope = "https://www.googleapis.com/auth/spreadsheets"

// Service acquires Google API access tokens from a service-account key
// file. Tokens are cached and refreshed by the underlying token source.
type Service struct {
	config *common.GoogleAuthConfig
	logger arbor.ILogger

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewService creates the token service. The key file is not read until
// the first token request, so a missing file surfaces as a run failure
// rather than a startup failure.
func NewService(config *common.GoogleAuthConfig, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		logger: logger,
	}
}

var _ interfaces.TokenService = (*Service)(nil)

// AccessToken returns a valid bearer token, refreshing if needed.
func (s *Service) AccessToken(ctx context.Context) (string, error) {
	source, err := s.tokenSource(ctx)
	if err != nil {
		return "", err
	}

	token, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to acquire access token: %w", err)
	}
	if !token.Valid() {
		return "", fmt.Errorf("acquired token is not valid")
	}
	return token.AccessToken, nil
}

func (s *Service) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source != nil {
		return s.source, nil
	}

	if s.config.CredentialsFile == "" {
		return nil, fmt.Errorf("google credentials file is not configured")
	}

	data, err := os.ReadFile(s.config.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, sheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service-account credentials: %w", err)
	}

	s.logger.Info().Str("client_email", jwtConfig.Email).Msg("Service-account credentials loaded")
	s.source = oauth2.ReuseTokenSource(nil, jwtConfig.TokenSource(ctx))
	return s.source, nil
}
