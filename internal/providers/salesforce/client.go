package salesforce

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/feral-file/crm-reports/internal/adapter"
	"github.com/feral-file/crm-reports/internal/config"
	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/flatten"
	"github.com/feral-file/crm-reports/internal/logger"
	"github.com/feral-file/crm-reports/internal/ratelimit"
)

// PROVIDER_NAME names the Salesforce limiter in the rate limit proxy
const PROVIDER_NAME = "salesforce"

// QueryResponse is one page of the query resource
type QueryResponse struct {
	TotalSize      int             `json:"totalSize"`
	Done           bool            `json:"done"`
	NextRecordsURL string          `json:"nextRecordsUrl,omitempty"`
	Records        []domain.Record `json:"records"`
}

// APIError is one entry of the error list the REST API returns on failure
type APIError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// QueryClient defines the interface for query operations to enable mocking
//
//go:generate mockgen -source=client.go -destination=../../mocks/salesforce_client.go -package=mocks -mock_names=QueryClient=MockQueryClient
type QueryClient interface {
	// FetchAll runs query, follows every continuation page, strips the metadata
	// field from each record and from the related sub-records named in related
	// (dotted paths such as "Lead.Owner" are allowed) and flattens the result.
	// Records keep server order.
	FetchAll(ctx context.Context, query string, related []string) ([]domain.FlatRecord, error)

	// FetchPage runs query and returns the first page as sent by the server
	FetchPage(ctx context.Context, query string) (*QueryResponse, error)
}

// RealQueryClient implements QueryClient against the REST query resource
type RealQueryClient struct {
	httpClient     adapter.HTTPClient
	tokens         TokenProvider
	rateLimitProxy ratelimit.Proxy
	json           adapter.JSON
	cfg            config.SalesforceConfig
}

// NewQueryClient creates a new query client
func NewQueryClient(cfg config.SalesforceConfig, httpClient adapter.HTTPClient, tokens TokenProvider, rateLimitProxy ratelimit.Proxy, json adapter.JSON) QueryClient {
	return &RealQueryClient{
		httpClient:     httpClient,
		tokens:         tokens,
		rateLimitProxy: rateLimitProxy,
		json:           json,
		cfg:            cfg,
	}
}

// FetchAll runs query and returns every record, flattened
func (c *RealQueryClient) FetchAll(ctx context.Context, query string, related []string) ([]domain.FlatRecord, error) {
	page, err := c.get(ctx, c.cfg.QueryEndpoint()+FormatQuery(query))
	if err != nil {
		return nil, err
	}

	records := page.Records
	pages := 1
	seen := make(map[string]struct{})
	for page.NextRecordsURL != "" {
		next := page.NextRecordsURL
		if c.cfg.MaxPages > 0 && pages >= c.cfg.MaxPages {
			return nil, fmt.Errorf("%w: more than %d pages", domain.ErrPageLimitExceeded, c.cfg.MaxPages)
		}
		if _, ok := seen[next]; ok {
			return nil, fmt.Errorf("%w: continuation %s repeated", domain.ErrPageLimitExceeded, next)
		}
		seen[next] = struct{}{}

		page, err = c.get(ctx, strings.TrimSuffix(c.cfg.Domain, "/")+next)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
		pages++
	}

	logger.DebugCtx(ctx, "Fetched query results",
		zap.Int("pages", pages),
		zap.Int("records", len(records)),
	)

	results := make([]domain.FlatRecord, 0, len(records))
	for i, record := range records {
		if err := stripMetadata(record, related); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		flat, err := flatten.Flatten(record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		results = append(results, flat)
	}

	return results, nil
}

// FetchPage runs query and returns the first page untouched
func (c *RealQueryClient) FetchPage(ctx context.Context, query string) (*QueryResponse, error) {
	return c.get(ctx, c.cfg.QueryEndpoint()+FormatQuery(query))
}

// get requests one page
func (c *RealQueryClient) get(ctx context.Context, url string) (*QueryResponse, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
	}

	respBody, err := ratelimit.Request(ctx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) ([]byte, error) {
		return c.httpClient.GetBytes(ctx, url, headers)
	})
	if err != nil {
		return nil, c.describe(err)
	}

	var page QueryResponse
	if err := c.json.Unmarshal(respBody, &page); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal query response: %w", domain.ErrFetch, err)
	}
	if page.Records == nil {
		return nil, fmt.Errorf("%w: query response has no records", domain.ErrFetch)
	}

	return &page, nil
}

// describe wraps a transport failure as a fetch error, surfacing the API error codes when present
func (c *RealQueryClient) describe(err error) error {
	var statusErr *adapter.StatusError
	if errors.As(err, &statusErr) {
		var apiErrors []APIError
		if c.json.Unmarshal(statusErr.Body, &apiErrors) == nil && len(apiErrors) > 0 {
			return fmt.Errorf("%w: status %d: %s: %s", domain.ErrFetch, statusErr.StatusCode, apiErrors[0].ErrorCode, apiErrors[0].Message)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrFetch, err)
}

// stripMetadata removes the metadata field from record and from each related sub-record
func stripMetadata(record domain.Record, related []string) error {
	if _, ok := record[domain.MetadataField]; !ok {
		return fmt.Errorf("%w: missing %s", domain.ErrMalformedRecord, domain.MetadataField)
	}
	delete(record, domain.MetadataField)

	for _, key := range related {
		sub, err := lookupRelated(record, key)
		if err != nil {
			return err
		}
		if sub == nil {
			continue
		}
		if _, ok := sub[domain.MetadataField]; !ok {
			return fmt.Errorf("%w: related record %s is missing %s", domain.ErrMalformedRecord, key, domain.MetadataField)
		}
		delete(sub, domain.MetadataField)
	}

	return nil
}

// lookupRelated walks a dotted key to a sub-record. Absent or null links yield nil.
func lookupRelated(record domain.Record, key string) (map[string]any, error) {
	current := map[string]any(record)
	for _, part := range strings.Split(key, ".") {
		value, ok := current[part]
		if !ok || value == nil {
			return nil, nil
		}

		switch v := value.(type) {
		case map[string]any:
			current = v
		case domain.Record:
			current = v
		default:
			return nil, fmt.Errorf("%w: related key %s is not a record", domain.ErrMalformedRecord, key)
		}
	}
	return current, nil
}
