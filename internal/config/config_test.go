package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/crm-reports/internal/domain"
)

// clearEnv blanks every variable the loader reads so the host environment cannot leak into a test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, legacy := range legacyEnvNames {
		t.Setenv(legacy, "")
	}
	for _, key := range []string{
		"CRM_REPORTS_DEBUG",
		"CRM_REPORTS_SALESFORCE_DOMAIN",
		"CRM_REPORTS_SALESFORCE_CLIENT_ID",
		"CRM_REPORTS_SALESFORCE_CLIENT_SECRET",
		"CRM_REPORTS_SALESFORCE_GRANT_TYPE",
		"CRM_REPORTS_SALESFORCE_API_VERSION",
		"CRM_REPORTS_SALESFORCE_MAX_PAGES",
		"CRM_REPORTS_FILES_SALES_MEMBERS",
		"CRM_REPORTS_FILES_WRITE_MODE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadReportsConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *ReportsConfig)
	}{
		{
			name: "valid config file",
			configFile: `
debug: true
sentry_dsn: "https://sentry.example.com"
salesforce:
  domain: "https://acme.my.salesforce.com"
  api_version: "61.0"
  grant_type: "password"
  client_id: "client"
  client_secret: "secret"
  username: "ops@acme.com"
  password: "hunter2"
  security_token: "tok"
  timeout: "15s"
  retry_max_elapsed: "30s"
  max_pages: 50
files:
  sales_members: "members.xlsx"
  sales_members_sheet: "Team"
  lead_members_output: "leads.xlsx"
  won_opportunities_output: "won.xlsx"
  open_opportunities_output: "open.xlsx"
  write_mode: "replace"
lead_owner:
  query: "SELECT Id FROM LeadHistory"
  track_columns:
    - track: "SDR Owner"
      column: "SDR"
  name_columns:
    - column: "SDR Name"
      id_column: "SDR"
forecast:
  concurrency: 4
`,
			validate: func(t *testing.T, cfg *ReportsConfig) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "https://sentry.example.com", cfg.SentryDSN)
				assert.Equal(t, "https://acme.my.salesforce.com", cfg.Salesforce.Domain)
				assert.Equal(t, "61.0", cfg.Salesforce.APIVersion)
				assert.Equal(t, GrantPassword, cfg.Salesforce.GrantType)
				assert.Equal(t, "ops@acme.com", cfg.Salesforce.Username)
				assert.Equal(t, "tok", cfg.Salesforce.SecurityToken)
				assert.Equal(t, 15*time.Second, cfg.Salesforce.Timeout)
				assert.Equal(t, 30*time.Second, cfg.Salesforce.RetryMaxElapsed)
				assert.Equal(t, 50, cfg.Salesforce.MaxPages)
				assert.Equal(t, "members.xlsx", cfg.Files.SalesMembers)
				assert.Equal(t, "Team", cfg.Files.SalesMembersSheet)
				assert.Equal(t, "replace", cfg.Files.WriteMode)
				assert.Equal(t, "SELECT Id FROM LeadHistory", cfg.LeadOwner.Query)
				assert.Equal(t, []TrackColumn{{Track: "SDR Owner", Column: "SDR"}}, cfg.LeadOwner.TrackColumns)
				assert.Equal(t, []NameColumn{{Column: "SDR Name", IDColumn: "SDR"}}, cfg.LeadOwner.NameColumns)
				assert.Equal(t, 4, cfg.Forecast.Concurrency)
			},
		},
		{
			name: "config with defaults",
			configFile: `
salesforce:
  domain: "https://acme.my.salesforce.com"
  client_id: "client"
  client_secret: "secret"
`,
			validate: func(t *testing.T, cfg *ReportsConfig) {
				assert.False(t, cfg.Debug)
				assert.Equal(t, "60.0", cfg.Salesforce.APIVersion)
				assert.Equal(t, GrantClientCredentials, cfg.Salesforce.GrantType)
				assert.Equal(t, 60*time.Second, cfg.Salesforce.Timeout)
				assert.Equal(t, 2*time.Minute, cfg.Salesforce.RetryMaxElapsed)
				assert.Equal(t, 10000, cfg.Salesforce.MaxPages)
				assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.Audience)
				assert.Equal(t, RateLimitConfig{RequestsPerSecond: 0, Burst: 1}, cfg.Salesforce.RateLimit)
				assert.Equal(t, "Sales Members", cfg.Files.SalesMembersSheet)
				assert.Equal(t, "append", cfg.Files.WriteMode)
				assert.Equal(t, DefaultLeadHistoryQuery, cfg.LeadOwner.Query)
				assert.Equal(t, DefaultTrackColumns(), cfg.LeadOwner.TrackColumns)
				assert.Equal(t, DefaultNameColumns(), cfg.LeadOwner.NameColumns)
				assert.Equal(t, DefaultForecastQuery, cfg.Forecast.ForecastQuery)
				assert.Equal(t, 2, cfg.Forecast.Concurrency)
			},
		},
		{
			name:        "missing config file",
			configFile:  "",
			expectError: false,
			validate: func(t *testing.T, cfg *ReportsConfig) {
				assert.Equal(t, "60.0", cfg.Salesforce.APIVersion)
			},
		},
		{
			name: "invalid value",
			configFile: `
salesforce:
  max_pages: invalid
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			tmpDir := t.TempDir()
			var configFile string

			if tt.configFile != "" {
				configFile = filepath.Join(tmpDir, "config.yaml")
				err := os.WriteFile(configFile, []byte(tt.configFile), 0600)
				require.NoError(t, err)
			} else {
				configFile = filepath.Join(tmpDir, "nonexistent.yaml")
			}

			cfg, err := LoadReportsConfig(configFile, tmpDir)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoadReportsConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	configFile := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
salesforce:
  domain: "https://from-file.my.salesforce.com"
`), 0600))

	t.Setenv("CRM_REPORTS_SALESFORCE_DOMAIN", "https://from-env.my.salesforce.com")
	t.Setenv("CRM_REPORTS_SALESFORCE_MAX_PAGES", "7")

	cfg, err := LoadReportsConfig(configFile, tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "https://from-env.my.salesforce.com", cfg.Salesforce.Domain)
	assert.Equal(t, 7, cfg.Salesforce.MaxPages)
}

func TestLoadReportsConfig_LegacyDotEnv(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	envFile := `PROD_DOMAIN=https://legacy.my.salesforce.com
PROD_CONSUMER_KEY=legacy-key
PROD_CONSUMER_SECRET=legacy-secret
API_VERSION=59.0
SALES_MEMBERS_FILE=legacy-members.xlsx
OUTPUT_FILE_LEAD_MEMBERS=legacy-leads.xlsx
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".env"), []byte(envFile), 0600))

	cfg, err := LoadReportsConfig(filepath.Join(tmpDir, "nonexistent.yaml"), tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "https://legacy.my.salesforce.com", cfg.Salesforce.Domain)
	assert.Equal(t, "legacy-key", cfg.Salesforce.ClientID)
	assert.Equal(t, "legacy-secret", cfg.Salesforce.ClientSecret)
	assert.Equal(t, "59.0", cfg.Salesforce.APIVersion)
	assert.Equal(t, "legacy-members.xlsx", cfg.Files.SalesMembers)
	assert.Equal(t, "legacy-leads.xlsx", cfg.Files.LeadMembersOutput)
	require.NoError(t, cfg.Validate())
}

func TestReportsConfig_Validate(t *testing.T) {
	valid := func() *ReportsConfig {
		return &ReportsConfig{
			Salesforce: SalesforceConfig{
				Domain:       "https://acme.my.salesforce.com",
				APIVersion:   "60.0",
				GrantType:    GrantClientCredentials,
				ClientID:     "client",
				ClientSecret: "secret",
				MaxPages:     10,
			},
			Files: FilesConfig{WriteMode: "append"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*ReportsConfig)
		wantErr bool
	}{
		{name: "valid client credentials", mutate: func(*ReportsConfig) {}},
		{name: "missing domain", mutate: func(c *ReportsConfig) { c.Salesforce.Domain = "" }, wantErr: true},
		{name: "missing client id", mutate: func(c *ReportsConfig) { c.Salesforce.ClientID = "" }, wantErr: true},
		{name: "non positive max pages", mutate: func(c *ReportsConfig) { c.Salesforce.MaxPages = 0 }, wantErr: true},
		{name: "missing secret", mutate: func(c *ReportsConfig) { c.Salesforce.ClientSecret = "" }, wantErr: true},
		{
			name: "password grant without username",
			mutate: func(c *ReportsConfig) {
				c.Salesforce.GrantType = GrantPassword
				c.Salesforce.Password = "pw"
			},
			wantErr: true,
		},
		{
			name: "password grant",
			mutate: func(c *ReportsConfig) {
				c.Salesforce.GrantType = GrantPassword
				c.Salesforce.Username = "ops@acme.com"
				c.Salesforce.Password = "pw"
			},
		},
		{
			name: "jwt grant without key",
			mutate: func(c *ReportsConfig) {
				c.Salesforce.GrantType = GrantJWTBearer
				c.Salesforce.Username = "ops@acme.com"
			},
			wantErr: true,
		},
		{
			name: "jwt grant",
			mutate: func(c *ReportsConfig) {
				c.Salesforce.GrantType = GrantJWTBearer
				c.Salesforce.ClientSecret = ""
				c.Salesforce.Username = "ops@acme.com"
				c.Salesforce.PrivateKeyPath = "server.key"
				c.Salesforce.Audience = "https://login.salesforce.com"
			},
		},
		{
			name: "rate limit without burst",
			mutate: func(c *ReportsConfig) {
				c.Salesforce.RateLimit = RateLimitConfig{RequestsPerSecond: 5}
			},
			wantErr: true,
		},
		{
			name: "rate limit",
			mutate: func(c *ReportsConfig) {
				c.Salesforce.RateLimit = RateLimitConfig{RequestsPerSecond: 5, Burst: 2}
			},
		},
		{name: "unknown grant", mutate: func(c *ReportsConfig) { c.Salesforce.GrantType = "implicit" }, wantErr: true},
		{name: "unknown write mode", mutate: func(c *ReportsConfig) { c.Files.WriteMode = "merge" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSalesforceConfig_Endpoints(t *testing.T) {
	cfg := SalesforceConfig{Domain: "https://acme.my.salesforce.com/", APIVersion: "60.0"}
	assert.Equal(t, "https://acme.my.salesforce.com/services/data/v60.0/query/?q=", cfg.QueryEndpoint())
	assert.Equal(t, "https://acme.my.salesforce.com/services/oauth2/token", cfg.TokenEndpoint())
}
