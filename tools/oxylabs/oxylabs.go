// Package oxylabs implements the product search tool on top of the Oxylabs
// realtime Amazon search API. Unlike the business search, results are left in
// their raw structured shape; the model is asked to re-render them in the
// continuation stream.
package oxylabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/genui/genui/tools"
)

// ToolName is the identifier advertised to the model.
const ToolName = "get_products"

const (
	defaultBaseURL = "https://realtime.oxylabs.io/v1/queries"
	maxResults     = 10
)

type (
	// Client calls the Oxylabs realtime queries endpoint.
	Client struct {
		http     *http.Client
		username string
		password string
		baseURL  string
	}

	// Options configures the client.
	Options struct {
		// Username and Password are the Oxylabs basic auth credentials.
		Username string
		Password string
		// BaseURL overrides the queries endpoint, for tests.
		BaseURL string
		// HTTPClient overrides the default HTTP client.
		HTTPClient *http.Client
	}

	searchArgs struct {
		Query string `json:"query"`
	}

	queryResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Results []struct {
			Content struct {
				Results struct {
					Organic []json.RawMessage `json:"organic"`
				} `json:"results"`
			} `json:"content"`
		} `json:"results"`
	}
)

// New builds an Oxylabs client.
func New(opts Options) (*Client, error) {
	if opts.Username == "" || opts.Password == "" {
		return nil, errors.New("oxylabs credentials are required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc, username: opts.Username, password: opts.Password, baseURL: baseURL}, nil
}

// Name implements tools.Tool.
func (c *Client) Name() string { return ToolName }

// Description implements tools.Tool.
func (c *Client) Description() string {
	return "Search for products on Amazon. Use this when users ask to shop for or compare physical products."
}

// InputSchema implements tools.Tool.
func (c *Client) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The product search term (e.g., 'mechanical keyboard', 'running shoes')",
			},
		},
		"required": []any{"query"},
	}
}

// Invoke implements tools.Tool.
func (c *Client) Invoke(ctx context.Context, args json.RawMessage) (tools.Result, error) {
	var in searchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return tools.Result{}, fmt.Errorf("decode args: %w", err)
	}
	if in.Query == "" {
		return tools.Result{}, errors.New("search query is required")
	}
	organic, err := c.Search(ctx, in.Query)
	if err != nil {
		return tools.Result{}, err
	}
	data, err := json.Marshal(organic)
	if err != nil {
		return tools.Result{}, fmt.Errorf("encode results: %w", err)
	}
	return tools.Result{
		Payload: map[string]any{"results": organic},
		Prompt:  "Generate UI components with these products to respond to the user prompt: " + string(data),
	}, nil
}

// Search queries the realtime API and returns up to maxResults organic
// results.
func (c *Client) Search(ctx context.Context, query string) ([]json.RawMessage, error) {
	body := map[string]any{
		"source":       "amazon_search",
		"query":        query,
		"geo_location": "90210",
		"parse":        true,
		"context": []map[string]any{
			{"key": "priority", "value": "HIGH"},
			{"key": "type", "value": "SEARCH"},
		},
		"start_page": 1,
		"pages":      1,
		"limit":      maxResults,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oxylabs search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		// Failures carry a JSON message when the gateway produced them;
		// anything else (proxy HTML, empty body) falls back to the status.
		var fail queryResponse
		if err := json.NewDecoder(resp.Body).Decode(&fail); err == nil {
			if fail.Message != "" {
				return nil, fmt.Errorf("oxylabs search: %s", fail.Message)
			}
			if fail.Error != "" {
				return nil, fmt.Errorf("oxylabs search: %s", fail.Error)
			}
		}
		return nil, fmt.Errorf("oxylabs search: unexpected status %d", resp.StatusCode)
	}
	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("oxylabs search: decode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("oxylabs search: %s", decoded.Error)
	}
	if decoded.Message != "" {
		return nil, fmt.Errorf("oxylabs search: %s", decoded.Message)
	}
	if len(decoded.Results) == 0 {
		return nil, errors.New("oxylabs search: no organic results found")
	}
	organic := decoded.Results[0].Content.Results.Organic
	if len(organic) == 0 {
		return nil, errors.New("oxylabs search: no organic results found")
	}
	if len(organic) > maxResults {
		organic = organic[:maxResults]
	}
	return organic, nil
}
