package marketplace

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/etools-app/sandbox/internal/config"
)

// pluginKeyword tags every publishable plugin package on npm.
const pluginKeyword = "keywords:etools-plugin"

// Client queries the npm registry for plugin packages.
type Client struct {
	resty    *resty.Client
	url      string
	pageSize int
}

// NewClient creates a marketplace client backed by a retrying HTTP client.
func NewClient(cfg config.MarketplaceConfig) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	rc := resty.New()
	rc.
		SetTimeout(15*time.Second).
		SetHeader("User-Agent", "etools-marketplace/1.0").
		SetTransport(retryClient.HTTPClient.Transport)

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return &Client{
		resty:    rc,
		url:      cfg.RegistryURL,
		pageSize: pageSize,
	}
}

// List returns one page of all published plugins.
func (c *Client) List(ctx context.Context, page int) (*Page, error) {
	return c.search(ctx, pluginKeyword, page)
}

// Search returns one page of plugins matching query.
func (c *Client) Search(ctx context.Context, query string, page int) (*Page, error) {
	return c.search(ctx, query+" "+pluginKeyword, page)
}

func (c *Client) search(ctx context.Context, text string, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	from := (page - 1) * c.pageSize

	resp, err := c.resty.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"text": text,
			"size": strconv.Itoa(c.pageSize),
			"from": strconv.Itoa(from),
		}).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode())
	}

	var body npmSearchResponse
	if err := sonic.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("failed to parse registry response: %w", err)
	}

	plugins := make([]Plugin, 0, len(body.Objects))
	for _, obj := range body.Objects {
		plugins = append(plugins, Plugin{
			ID:            obj.Package.Name,
			Name:          obj.Package.Name,
			Version:       obj.Package.Version,
			Description:   obj.Package.Description,
			Author:        obj.Package.Author.Name,
			Tags:          obj.Package.Keywords,
			Homepage:      obj.Package.Links.Homepage,
			Score:         obj.Score.Final,
			LatestVersion: obj.Package.Version,
		})
	}

	return &Page{
		Plugins:  plugins,
		Total:    body.Total,
		Page:     page,
		PageSize: c.pageSize,
		HasMore:  from+len(body.Objects) < body.Total,
	}, nil
}
