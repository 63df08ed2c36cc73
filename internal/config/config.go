package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/feral-file/crm-reports/internal/domain"
)

const serviceName = "crm-reports"

// Supported OAuth grant types
const (
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
	GrantJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// SalesforceConfig holds the org connection settings
type SalesforceConfig struct {
	Domain          string          `mapstructure:"domain"`
	APIVersion      string          `mapstructure:"api_version"`
	GrantType       string          `mapstructure:"grant_type"`
	ClientID        string          `mapstructure:"client_id"`
	ClientSecret    string          `mapstructure:"client_secret"`
	Username        string          `mapstructure:"username"`
	Password        string          `mapstructure:"password"`
	SecurityToken   string          `mapstructure:"security_token"`
	PrivateKeyPath  string          `mapstructure:"private_key_path"`  // PEM encoded RSA key for the JWT bearer grant
	Audience        string          `mapstructure:"audience"`          // JWT bearer audience, the login host of the org
	Timeout         time.Duration   `mapstructure:"timeout"`           // Per-request HTTP timeout
	RetryMaxElapsed time.Duration   `mapstructure:"retry_max_elapsed"` // Total time spent retrying one request
	MaxPages        int             `mapstructure:"max_pages"`         // Ceiling on continuation pages per query
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles outbound query requests. Zero RequestsPerSecond disables throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// FilesConfig holds input and output workbook locations
type FilesConfig struct {
	SalesMembers            string `mapstructure:"sales_members"`
	SalesMembersSheet       string `mapstructure:"sales_members_sheet"`
	LeadMembersOutput       string `mapstructure:"lead_members_output"`
	WonOpportunitiesOutput  string `mapstructure:"won_opportunities_output"`
	OpenOpportunitiesOutput string `mapstructure:"open_opportunities_output"`
	WriteMode               string `mapstructure:"write_mode"` // "append" replaces same-named sheets, "replace" rewrites the workbook
}

// TrackColumn renames a resolved track (a reference Team label) to an output column
type TrackColumn struct {
	Track  string `mapstructure:"track"`
	Column string `mapstructure:"column"`
}

// NameColumn adds a display-name column looked up from an ID column
type NameColumn struct {
	Column   string `mapstructure:"column"`
	IDColumn string `mapstructure:"id_column"`
}

// LeadOwnerConfig holds settings of the lead owner report
// Track and name columns are lists because viper lower-cases map keys
type LeadOwnerConfig struct {
	Query        string        `mapstructure:"query"`
	TrackColumns []TrackColumn `mapstructure:"track_columns"`
	NameColumns  []NameColumn  `mapstructure:"name_columns"`
}

// ForecastConfig holds settings of the opportunity and forecast reports
type ForecastConfig struct {
	WonOpportunityQuery  string `mapstructure:"won_opportunity_query"`
	OpenOpportunityQuery string `mapstructure:"open_opportunity_query"`
	ForecastQuery        string `mapstructure:"forecast_query"`
	OpenForecastQuery    string `mapstructure:"open_forecast_query"`
	Concurrency          int    `mapstructure:"concurrency"`
}

// ReportsConfig holds configuration for the crm-reports command
type ReportsConfig struct {
	BaseConfig `mapstructure:",squash"`
	Salesforce SalesforceConfig `mapstructure:"salesforce"`
	Files      FilesConfig      `mapstructure:"files"`
	LeadOwner  LeadOwnerConfig  `mapstructure:"lead_owner"`
	Forecast   ForecastConfig   `mapstructure:"forecast"`
}

// LoadReportsConfig loads configuration for the crm-reports command
func LoadReportsConfig(configFile string, envPath string) (*ReportsConfig, error) {
	v := configureViper(serviceName, configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("salesforce.api_version", "60.0")
	v.SetDefault("salesforce.grant_type", GrantClientCredentials)
	v.SetDefault("salesforce.timeout", "60s")
	v.SetDefault("salesforce.retry_max_elapsed", "2m")
	v.SetDefault("salesforce.max_pages", 10000)
	v.SetDefault("salesforce.audience", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit.requests_per_second", 0)
	v.SetDefault("salesforce.rate_limit.burst", 1)
	v.SetDefault("files.sales_members_sheet", "Sales Members")
	v.SetDefault("files.write_mode", "append")
	v.SetDefault("lead_owner.query", DefaultLeadHistoryQuery)
	v.SetDefault("lead_owner.track_columns", DefaultTrackColumns())
	v.SetDefault("lead_owner.name_columns", DefaultNameColumns())
	v.SetDefault("forecast.won_opportunity_query", DefaultWonOpportunityQuery)
	v.SetDefault("forecast.open_opportunity_query", DefaultOpenOpportunityQuery)
	v.SetDefault("forecast.forecast_query", DefaultForecastQuery)
	v.SetDefault("forecast.open_forecast_query", DefaultOpenForecastQuery)
	v.SetDefault("forecast.concurrency", 2)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg ReportsConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings every command needs to talk to the org
func (c *ReportsConfig) Validate() error {
	sf := c.Salesforce
	if sf.Domain == "" {
		return fmt.Errorf("%w: salesforce.domain is required", domain.ErrInvalidConfig)
	}
	if sf.APIVersion == "" {
		return fmt.Errorf("%w: salesforce.api_version is required", domain.ErrInvalidConfig)
	}
	if sf.ClientID == "" {
		return fmt.Errorf("%w: salesforce.client_id is required", domain.ErrInvalidConfig)
	}
	if sf.MaxPages <= 0 {
		return fmt.Errorf("%w: salesforce.max_pages must be positive", domain.ErrInvalidConfig)
	}
	if sf.RateLimit.RequestsPerSecond < 0 || (sf.RateLimit.RequestsPerSecond > 0 && sf.RateLimit.Burst <= 0) {
		return fmt.Errorf("%w: salesforce.rate_limit needs a non negative rate and a positive burst", domain.ErrInvalidConfig)
	}

	switch sf.GrantType {
	case GrantClientCredentials:
		if sf.ClientSecret == "" {
			return fmt.Errorf("%w: salesforce.client_secret is required for %s", domain.ErrInvalidConfig, sf.GrantType)
		}
	case GrantPassword:
		if sf.ClientSecret == "" || sf.Username == "" || sf.Password == "" {
			return fmt.Errorf("%w: salesforce.client_secret, username and password are required for %s", domain.ErrInvalidConfig, sf.GrantType)
		}
	case GrantJWTBearer:
		if sf.Username == "" || sf.PrivateKeyPath == "" || sf.Audience == "" {
			return fmt.Errorf("%w: salesforce.username, private_key_path and audience are required for %s", domain.ErrInvalidConfig, sf.GrantType)
		}
	default:
		return fmt.Errorf("%w: unsupported salesforce.grant_type %q", domain.ErrInvalidConfig, sf.GrantType)
	}

	switch c.Files.WriteMode {
	case "append", "replace":
	default:
		return fmt.Errorf("%w: unsupported files.write_mode %q", domain.ErrInvalidConfig, c.Files.WriteMode)
	}

	return nil
}

// QueryEndpoint returns the query resource prefix, e.g. https://org.my.salesforce.com/services/data/v60.0/query/?q=
func (c *SalesforceConfig) QueryEndpoint() string {
	return fmt.Sprintf("%s/services/data/v%s/query/?q=", strings.TrimSuffix(c.Domain, "/"), c.APIVersion)
}

// TokenEndpoint returns the OAuth token endpoint of the org
func (c *SalesforceConfig) TokenEndpoint() string {
	return strings.TrimSuffix(c.Domain, "/") + "/services/oauth2/token"
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("CRM_REPORTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// legacyEnvNames maps config keys to the variable names older .env files use
var legacyEnvNames = map[string]string{
	"salesforce.domain":              "PROD_DOMAIN",
	"salesforce.client_id":           "PROD_CONSUMER_KEY",
	"salesforce.client_secret":       "PROD_CONSUMER_SECRET",
	"salesforce.username":            "PROD_USERNAME",
	"salesforce.password":            "PROD_PASSWORD",
	"salesforce.security_token":      "PROD_SECURITY_TOKEN",
	"salesforce.api_version":         "API_VERSION",
	"files.sales_members":            "SALES_MEMBERS_FILE",
	"files.lead_members_output":      "OUTPUT_FILE_LEAD_MEMBERS",
	"files.won_opportunities_output": "OUTPUT_FILE_WON_OPPO_FC",
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Salesforce
		"salesforce.domain",
		"salesforce.api_version",
		"salesforce.grant_type",
		"salesforce.client_id",
		"salesforce.client_secret",
		"salesforce.username",
		"salesforce.password",
		"salesforce.security_token",
		"salesforce.private_key_path",
		"salesforce.audience",
		"salesforce.timeout",
		"salesforce.retry_max_elapsed",
		"salesforce.max_pages",
		"salesforce.rate_limit.requests_per_second",
		"salesforce.rate_limit.burst",
		// Files
		"files.sales_members",
		"files.sales_members_sheet",
		"files.lead_members_output",
		"files.won_opportunities_output",
		"files.open_opportunities_output",
		"files.write_mode",
		// Reports
		"lead_owner.query",
		"forecast.won_opportunity_query",
		"forecast.open_opportunity_query",
		"forecast.forecast_query",
		"forecast.open_forecast_query",
		"forecast.concurrency",
	}

	for _, key := range keys {
		envName := "CRM_REPORTS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if legacy, ok := legacyEnvNames[key]; ok {
			_ = v.BindEnv(key, envName, legacy)
			continue
		}
		_ = v.BindEnv(key, envName)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}
