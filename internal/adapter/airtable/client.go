package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/duck57/poke-db/internal/config"
)

// Client reads submission rows from the Airtable REST API.
type Client struct {
	apiKey     string
	table      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an Airtable client for the configured table.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		apiKey: cfg.AirtableAPIKey,
		table:  cfg.AirtableTable,
		httpClient: &http.Client{
			Timeout: cfg.AirtableTimeout,
		},
		baseURL: cfg.AirtableBaseURL,
		logger:  logger,
	}
}

// RecordsAfter returns every row of base whose serial exceeds serial,
// following Airtable's offset pagination until the last page.
func (c *Client) RecordsAfter(ctx context.Context, base string, serial int) ([]Record, error) {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(base), url.PathEscape(c.table))
	params := url.Values{
		"filterByFormula": {"serial>" + strconv.Itoa(serial)},
		"pageSize":        {"100"},
	}

	var out []Record
	for page := 1; ; page++ {
		resp, err := c.doRequest(ctx, u+"?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("base %s page %d: %w", base, page, err)
		}
		out = append(out, resp.Records...)
		c.logger.Debug("airtable page fetched", "base", base, "page", page, "records", len(resp.Records))
		if resp.Offset == "" {
			return out, nil
		}
		params.Set("offset", resp.Offset)
	}
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (listResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return listResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return listResponse{}, fmt.Errorf("list records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return listResponse{}, fmt.Errorf("airtable API error: status %d: %s", resp.StatusCode, body)
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return listResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return list, nil
}

// Airtable API response types.

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// Record is one row of the submissions table.
type Record struct {
	ID          string `json:"id"`
	CreatedTime string `json:"createdTime"`
	Fields      Fields `json:"fields"`
}

// Fields holds the columns the importer reads.
type Fields struct {
	Serial  int    `json:"serial"`
	Name    string `json:"Name"`
	Summary string `json:"summary"`
}
