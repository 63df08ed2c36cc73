package salesforce

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feral-file/crm-reports/internal/adapter"
	"github.com/feral-file/crm-reports/internal/config"
	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/logger"
)

// assertionLifetime is how long a JWT bearer assertion stays valid
const assertionLifetime = 3 * time.Minute

// TokenProvider defines the interface for acquiring bearer tokens to enable mocking
//
//go:generate mockgen -source=auth.go -destination=../../mocks/salesforce_token_provider.go -package=mocks -mock_names=TokenProvider=MockTokenProvider
type TokenProvider interface {
	// Token returns a bearer token for the query resource.
	// The first successful token is reused for the life of the provider.
	Token(ctx context.Context) (string, error)
}

// tokenResponse is the body of the OAuth token endpoint
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	InstanceURL      string `json:"instance_url"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// RealTokenProvider implements TokenProvider with the OAuth 2.0 token endpoint
type RealTokenProvider struct {
	cfg        config.SalesforceConfig
	httpClient adapter.HTTPClient
	fs         adapter.FileSystem
	clock      adapter.Clock
	json       adapter.JSON

	mu    sync.Mutex
	token string
}

// NewTokenProvider creates a new token provider
func NewTokenProvider(cfg config.SalesforceConfig, httpClient adapter.HTTPClient, fs adapter.FileSystem, clock adapter.Clock, json adapter.JSON) TokenProvider {
	return &RealTokenProvider{
		cfg:        cfg,
		httpClient: httpClient,
		fs:         fs,
		clock:      clock,
		json:       json,
	}
}

// Token returns the cached token or requests a new one
func (p *RealTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" {
		return p.token, nil
	}

	form, err := p.form()
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}

	respBody, err := p.httpClient.PostForm(ctx, p.cfg.TokenEndpoint(), form)
	if err != nil {
		var statusErr *adapter.StatusError
		if errors.As(err, &statusErr) {
			var resp tokenResponse
			if p.json.Unmarshal(statusErr.Body, &resp) == nil && resp.Error != "" {
				return "", fmt.Errorf("%w: %s: %s", domain.ErrAuth, resp.Error, resp.ErrorDescription)
			}
		}
		return "", fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}

	var resp tokenResponse
	if err := p.json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: failed to unmarshal token response: %w", domain.ErrAuth, err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s: %s", domain.ErrAuth, resp.Error, resp.ErrorDescription)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: token response has no access_token", domain.ErrAuth)
	}

	logger.InfoCtx(ctx, "Acquired access token",
		zap.String("grant_type", p.cfg.GrantType),
		zap.String("instance_url", resp.InstanceURL),
	)

	p.token = resp.AccessToken
	return p.token, nil
}

// form builds the token request body for the configured grant type
func (p *RealTokenProvider) form() (url.Values, error) {
	form := url.Values{}
	form.Set("grant_type", p.cfg.GrantType)

	switch p.cfg.GrantType {
	case config.GrantClientCredentials:
		form.Set("client_id", p.cfg.ClientID)
		form.Set("client_secret", p.cfg.ClientSecret)
	case config.GrantPassword:
		form.Set("client_id", p.cfg.ClientID)
		form.Set("client_secret", p.cfg.ClientSecret)
		form.Set("username", p.cfg.Username)
		form.Set("password", p.cfg.Password+p.cfg.SecurityToken)
	case config.GrantJWTBearer:
		assertion, err := p.assertion()
		if err != nil {
			return nil, err
		}
		form.Set("assertion", assertion)
	default:
		return nil, fmt.Errorf("unsupported grant type %q", p.cfg.GrantType)
	}

	return form, nil
}

// assertion signs a short-lived RS256 assertion for the JWT bearer grant
func (p *RealTokenProvider) assertion() (string, error) {
	keyPEM, err := p.fs.ReadFile(p.cfg.PrivateKeyPath)
	if err != nil {
		return "", fmt.Errorf("failed to read private key: %w", err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	now := p.clock.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    p.cfg.ClientID,
		Subject:   p.cfg.Username,
		Audience:  jwt.ClaimStrings{p.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}

	return signed, nil
}
