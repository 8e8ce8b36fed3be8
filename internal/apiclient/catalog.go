package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/CharanSaiVaddi/purrctl/internal/catalog"
)

func (c *Client) GetRepos(ctx context.Context) ([]catalog.Document, error) {
	var out []catalog.Document
	if err := c.do(ctx, http.MethodGet, reposEndpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("get repos: %w", err)
	}
	return out, nil
}

// CreateRepo returns the response body, whose "item" is the stored repo.
func (c *Client) CreateRepo(ctx context.Context, repo catalog.Document) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, reposEndpoint, repo, &out); err != nil {
		return nil, fmt.Errorf("create repo: %w", err)
	}
	return out, nil
}

// CreateRasters uploads a batch and returns how many were stored.
func (c *Client) CreateRasters(ctx context.Context, rasters []catalog.Document) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodPost, rastersEndpoint, rasters, &out); err != nil {
		return 0, fmt.Errorf("create rasters: %w", err)
	}
	return out.Count, nil
}

// SearchRasters fetches one page. req.PaginationToken is sent back exactly as
// the previous page's metadata returned it.
func (c *Client) SearchRasters(ctx context.Context, req catalog.SearchRequest) (*catalog.SearchResponse, error) {
	var out catalog.SearchResponse
	if err := c.do(ctx, http.MethodPost, searchEndpoint, req, &out); err != nil {
		return nil, fmt.Errorf("search rasters: %w", err)
	}
	return &out, nil
}
