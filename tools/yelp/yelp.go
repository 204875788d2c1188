// Package yelp implements the business search tool on top of the Yelp Fusion
// businesses search API. Results are normalized server-side into list-item
// components so the continuation stream only has to arrange them.
package yelp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"goa.design/clue/log"

	"github.com/genui/genui/tools"
	"github.com/genui/genui/ui"
)

// ToolName is the identifier advertised to the model.
const ToolName = "get_yelp_businesses"

const (
	defaultBaseURL  = "https://api.yelp.com/v3/businesses/search"
	defaultLocation = "Seattle, WA"
	maxResults      = 6
)

type (
	// Client calls the Yelp Fusion search endpoint.
	Client struct {
		http    *http.Client
		apiKey  string
		baseURL string
		cache   *tools.Cache
	}

	// Options configures the client.
	Options struct {
		// APIKey is the Yelp Fusion bearer token.
		APIKey string
		// BaseURL overrides the search endpoint, for tests.
		BaseURL string
		// HTTPClient overrides the default HTTP client.
		HTTPClient *http.Client
		// Cache holds recent results. Nil disables caching.
		Cache *tools.Cache
	}

	// searchArgs is the model-provided tool input.
	searchArgs struct {
		Query    string `json:"query"`
		Location string `json:"location"`
	}

	searchResponse struct {
		Businesses []business `json:"businesses"`
	}

	business struct {
		Name     string `json:"name"`
		Rating   float64 `json:"rating"`
		ImageURL string `json:"image_url"`
		Location struct {
			Address1 string `json:"address1"`
		} `json:"location"`
	}
)

// New builds a Yelp client.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("yelp api key is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc, apiKey: opts.APIKey, baseURL: baseURL, cache: opts.Cache}, nil
}

// Name implements tools.Tool.
func (c *Client) Name() string { return ToolName }

// Description implements tools.Tool.
func (c *Client) Description() string {
	return "Search for businesses on Yelp by query and location. Use this when users ask for restaurants, bars, shops, services, or any local businesses."
}

// InputSchema implements tools.Tool.
func (c *Client) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search term for businesses (e.g., 'pizza', 'coffee shops', 'hair salon')",
			},
			"location": map[string]any{
				"type":        "string",
				"description": "The location to search in (e.g., 'Seattle, WA', 'New York, NY')",
				"default":     defaultLocation,
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
	if in.Location == "" {
		in.Location = defaultLocation
	}
	items, err := c.Search(ctx, in.Query, in.Location)
	if err != nil {
		return tools.Result{}, err
	}
	payload := map[string]any{"results": items}
	data, err := json.Marshal(items)
	if err != nil {
		return tools.Result{}, fmt.Errorf("encode results: %w", err)
	}
	return tools.Result{
		Payload: payload,
		Prompt:  "Generate UI components with these Yelp businesses: " + string(data),
	}, nil
}

// Search queries Yelp and shapes the businesses into list-item components.
// Results for the same normalized query/location pair are served from the
// cache within its TTL.
func (c *Client) Search(ctx context.Context, query, location string) ([]ui.Component, error) {
	key := tools.CacheKey(query, location)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			log.Debugf(ctx, "yelp cache hit for %q in %q", query, location)
			return v.([]ui.Component), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("term", query)
	q.Set("location", location)
	q.Set("limit", fmt.Sprint(maxResults))
	q.Set("sort_by", "rating")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yelp search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yelp search: unexpected status %d", resp.StatusCode)
	}
	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("yelp search: decode response: %w", err)
	}

	items := make([]ui.Component, 0, len(body.Businesses))
	for i, biz := range body.Businesses {
		if i >= maxResults {
			break
		}
		items = append(items, ui.Component{
			Type: ui.TypeListItem,
			Props: ui.Props{
				ui.PropID:       fmt.Sprint(1000 + i),
				ui.PropContent:  fmt.Sprintf("%s\n%s\nRating: %v", biz.Name, biz.Location.Address1, biz.Rating),
				ui.PropImageSrc: biz.ImageURL,
				ui.PropColumns:  "4",
			},
		})
	}
	if c.cache != nil {
		c.cache.Set(key, items)
	}
	return items, nil
}
