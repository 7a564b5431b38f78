// Package supabase implements the Backend port against the Supabase
// PostgREST API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/centroplan/pvpanel/internal/domain/model"
	"github.com/centroplan/pvpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Backend = (*Client)(nil)

const (
	sitesTable   = "sites_mapping"
	clientsTable = "clients_mapping"

	siteColumns = "id,name,code,nominal_power,address,commission_date,client_map_id,ignore_site"
)

// Client implements the driven.Backend port over the PostgREST REST API.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	key     string
}

// NewClient creates a Supabase API client. Requests go through an httpcache
// memory-cache transport so repeated reads honor PostgREST ETag/conditional
// request semantics. The key is sent as both the apikey header and the
// bearer token, as the Supabase data API expects.
func NewClient(rawURL, key string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing supabase URL: %w", err)
	}

	httpClient := httpcache.NewMemoryCacheTransport().Client()
	httpClient.Timeout = 30 * time.Second

	return &Client{
		http:    httpClient,
		baseURL: u,
		key:     key,
	}, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, key string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	return &Client{
		http:    httpClient,
		baseURL: u,
		key:     key,
	}, nil
}

// FetchSites retrieves all non-ignored sites ordered by name, matching the
// dashboard's listing query.
func (c *Client) FetchSites(ctx context.Context) ([]model.Site, error) {
	query := url.Values{}
	query.Set("select", siteColumns)
	query.Set("ignore_site", "eq.false")
	query.Set("order", "name.asc")

	var records []siteRecord
	if err := c.get(ctx, sitesTable, query, &records); err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}

	sites := make([]model.Site, 0, len(records))
	for _, rec := range records {
		site, err := mapSite(rec)
		if err != nil {
			return nil, fmt.Errorf("listing sites: %w", err)
		}
		sites = append(sites, site)
	}

	return sites, nil
}

// FetchClients retrieves all clients ordered by name.
func (c *Client) FetchClients(ctx context.Context) ([]model.Client, error) {
	query := url.Values{}
	query.Set("select", "id,name")
	query.Set("order", "name.asc")

	var records []clientRecord
	if err := c.get(ctx, clientsTable, query, &records); err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}

	clients := make([]model.Client, 0, len(records))
	for _, rec := range records {
		clients = append(clients, mapClient(rec))
	}

	return clients, nil
}

// InsertSite creates a new site and returns the stored row, including the
// backend-assigned id.
func (c *Client) InsertSite(ctx context.Context, change model.SiteChange) (*model.Site, error) {
	records, err := c.write(ctx, http.MethodPost, sitesTable, nil, toChangeRecord(change))
	if err != nil {
		return nil, fmt.Errorf("inserting site %q: %w", change.Name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("inserting site %q: backend returned no representation", change.Name)
	}

	site, err := mapSite(records[0])
	if err != nil {
		return nil, fmt.Errorf("inserting site %q: %w", change.Name, err)
	}
	return &site, nil
}

// UpdateSite updates an existing site and returns the stored row. PostgREST
// reports an update that matched no rows as an empty representation, which
// maps to driven.ErrSiteNotFound.
func (c *Client) UpdateSite(ctx context.Context, id int64, change model.SiteChange) (*model.Site, error) {
	query := url.Values{}
	query.Set("id", fmt.Sprintf("eq.%d", id))

	records, err := c.write(ctx, http.MethodPatch, sitesTable, query, toChangeRecord(change))
	if err != nil {
		return nil, fmt.Errorf("updating site %d: %w", id, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("updating site %d: %w", id, driven.ErrSiteNotFound)
	}

	site, err := mapSite(records[0])
	if err != nil {
		return nil, fmt.Errorf("updating site %d: %w", id, err)
	}
	return &site, nil
}

// get performs a GET against a table and decodes the JSON array response.
func (c *Client) get(ctx context.Context, table string, query url.Values, dest any) error {
	resp, err := c.do(ctx, http.MethodGet, table, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", table, err)
	}

	return nil
}

// write performs a POST or PATCH with Prefer: return=representation and
// decodes the returned rows.
func (c *Client) write(ctx context.Context, method, table string, query url.Values, payload any) ([]siteRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", table, err)
	}

	resp, err := c.do(ctx, method, table, query, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, decodeAPIError(resp)
	}

	var records []siteRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", table, err)
	}

	return records, nil
}

// do builds and executes one PostgREST request with auth headers applied.
func (c *Client) do(ctx context.Context, method, table string, query url.Values, body io.Reader) (*http.Response, error) {
	u := c.baseURL.JoinPath("rest", "v1", table)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", table, err)
	}

	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, table, err)
	}

	slog.Debug("supabase api call",
		"method", method,
		"table", table,
		"status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return resp, nil
}

// apiError is the PostgREST error body.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// decodeAPIError turns a non-2xx PostgREST response into an error carrying
// the status and, when present, the structured message.
func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("supabase api error (status %d, code %s): %s", resp.StatusCode, apiErr.Code, apiErr.Message)
	}

	return fmt.Errorf("supabase api error: status %d", resp.StatusCode)
}
