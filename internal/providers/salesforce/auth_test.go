package salesforce_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/crm-reports/internal/adapter"
	"github.com/feral-file/crm-reports/internal/config"
	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/mocks"
	"github.com/feral-file/crm-reports/internal/providers/salesforce"
)

const testTokenEndpoint = testDomain + "/services/oauth2/token"

func baseAuthConfig() config.SalesforceConfig {
	return config.SalesforceConfig{
		Domain:       testDomain,
		APIVersion:   "60.0",
		GrantType:    config.GrantClientCredentials,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}
}

func TestTokenProvider_ClientCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := mocks.NewMockHTTPClient(ctrl)
	ctx := context.Background()

	provider := salesforce.NewTokenProvider(baseAuthConfig(), httpClient, adapter.NewFileSystem(), adapter.NewClock(), adapter.NewJSON())

	expectedForm := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"client-id"},
		"client_secret": {"client-secret"},
	}
	httpClient.EXPECT().
		PostForm(ctx, testTokenEndpoint, expectedForm).
		Return([]byte(`{"access_token": "00Dxx!token", "instance_url": "https://acme.my.salesforce.com", "token_type": "Bearer"}`), nil).
		Times(1)

	token, err := provider.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "00Dxx!token", token)

	// The token is cached for the rest of the run
	token, err = provider.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "00Dxx!token", token)
}

func TestTokenProvider_Password(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := mocks.NewMockHTTPClient(ctrl)
	ctx := context.Background()

	cfg := baseAuthConfig()
	cfg.GrantType = config.GrantPassword
	cfg.Username = "ops@acme.com"
	cfg.Password = "hunter2"
	cfg.SecurityToken = "XYZ"

	provider := salesforce.NewTokenProvider(cfg, httpClient, adapter.NewFileSystem(), adapter.NewClock(), adapter.NewJSON())

	expectedForm := url.Values{
		"grant_type":    {"password"},
		"client_id":     {"client-id"},
		"client_secret": {"client-secret"},
		"username":      {"ops@acme.com"},
		"password":      {"hunter2XYZ"},
	}
	httpClient.EXPECT().
		PostForm(ctx, testTokenEndpoint, expectedForm).
		Return([]byte(`{"access_token": "pw-token"}`), nil)

	token, err := provider.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pw-token", token)
}

func TestTokenProvider_JWTBearer(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := mocks.NewMockHTTPClient(ctrl)
	ctx := context.Background()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "server.key")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0600))

	cfg := baseAuthConfig()
	cfg.GrantType = config.GrantJWTBearer
	cfg.ClientSecret = ""
	cfg.Username = "ops@acme.com"
	cfg.PrivateKeyPath = keyPath
	cfg.Audience = "https://login.salesforce.com"

	provider := salesforce.NewTokenProvider(cfg, httpClient, adapter.NewFileSystem(), adapter.NewClock(), adapter.NewJSON())

	httpClient.EXPECT().
		PostForm(ctx, testTokenEndpoint, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, form url.Values) ([]byte, error) {
			assert.Equal(t, config.GrantJWTBearer, form.Get("grant_type"))
			assert.Empty(t, form.Get("client_secret"))

			claims := &jwt.RegisteredClaims{}
			parsed, err := jwt.ParseWithClaims(form.Get("assertion"), claims, func(token *jwt.Token) (interface{}, error) {
				return &key.PublicKey, nil
			}, jwt.WithValidMethods([]string{"RS256"}))
			require.NoError(t, err)
			assert.True(t, parsed.Valid)
			assert.Equal(t, "client-id", claims.Issuer)
			assert.Equal(t, "ops@acme.com", claims.Subject)
			assert.Equal(t, jwt.ClaimStrings{"https://login.salesforce.com"}, claims.Audience)
			assert.NotEmpty(t, claims.ID)

			return []byte(`{"access_token": "jwt-token"}`), nil
		})

	token, err := provider.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", token)
}

func TestTokenProvider_JWTBearer_MissingKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := mocks.NewMockHTTPClient(ctrl)

	cfg := baseAuthConfig()
	cfg.GrantType = config.GrantJWTBearer
	cfg.Username = "ops@acme.com"
	cfg.PrivateKeyPath = filepath.Join(t.TempDir(), "missing.key")

	provider := salesforce.NewTokenProvider(cfg, httpClient, adapter.NewFileSystem(), adapter.NewClock(), adapter.NewJSON())

	_, err := provider.Token(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.ErrorContains(t, err, "private key")
}

func TestTokenProvider_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		err         error
		errContains string
	}{
		{
			name:        "oauth error body",
			err:         &adapter.StatusError{StatusCode: 400, Body: []byte(`{"error": "invalid_client_id", "error_description": "client identifier invalid"}`)},
			errContains: "invalid_client_id",
		},
		{
			name:        "status without oauth body",
			err:         &adapter.StatusError{StatusCode: 500, Body: []byte("oops")},
			errContains: "500",
		},
		{
			name:        "network error",
			err:         errors.New("dial tcp: i/o timeout"),
			errContains: "i/o timeout",
		},
		{
			name:        "malformed body",
			body:        []byte(`not json`),
			errContains: "unmarshal",
		},
		{
			name:        "error in successful body",
			body:        []byte(`{"error": "invalid_grant", "error_description": "authentication failure"}`),
			errContains: "invalid_grant",
		},
		{
			name:        "empty token",
			body:        []byte(`{"access_token": ""}`),
			errContains: "no access_token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			httpClient := mocks.NewMockHTTPClient(ctrl)

			provider := salesforce.NewTokenProvider(baseAuthConfig(), httpClient, adapter.NewFileSystem(), adapter.NewClock(), adapter.NewJSON())

			httpClient.EXPECT().PostForm(gomock.Any(), testTokenEndpoint, gomock.Any()).Return(tt.body, tt.err)

			token, err := provider.Token(context.Background())
			assert.ErrorIs(t, err, domain.ErrAuth)
			assert.NotErrorIs(t, err, domain.ErrFetch)
			assert.ErrorContains(t, err, tt.errContains)
			assert.Empty(t, token)
		})
	}
}

func TestTokenProvider_RetriesAfterFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := mocks.NewMockHTTPClient(ctrl)
	ctx := context.Background()

	provider := salesforce.NewTokenProvider(baseAuthConfig(), httpClient, adapter.NewFileSystem(), adapter.NewClock(), adapter.NewJSON())

	gomock.InOrder(
		httpClient.EXPECT().PostForm(ctx, testTokenEndpoint, gomock.Any()).Return(nil, errors.New("timeout")),
		httpClient.EXPECT().PostForm(ctx, testTokenEndpoint, gomock.Any()).Return([]byte(`{"access_token": "second"}`), nil),
	)

	_, err := provider.Token(ctx)
	require.Error(t, err)

	token, err := provider.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", token)
}
