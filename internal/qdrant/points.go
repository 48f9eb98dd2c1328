package qdrant

import (
	"context"
	"net/http"
	"sort"

	"github.com/axon-dev/axon/internal/validation"
)

// UpsertPoints writes points into the collection, replacing any points with
// the same IDs.
func (c *Client) UpsertPoints(ctx context.Context, name string, points []Point) error {
	if err := validation.ValidateCollectionName(name); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	body := map[string]any{"points": points}
	return c.do(ctx, http.MethodPut, collectionPath(name, "/points"), body, nil)
}

// deleteByFilter removes points matching the filter. An empty filter is a
// no-op unless allowEmpty is set; this prevents a forgotten condition from
// wiping the collection.
func (c *Client) deleteByFilter(ctx context.Context, name string, filter Filter, allowEmpty bool) error {
	if err := validation.ValidateCollectionName(name); err != nil {
		return err
	}
	if len(filter.Must) == 0 && !allowEmpty {
		return nil
	}
	if filter.Must == nil {
		// Serialize the empty filter as "must": [] rather than null.
		filter.Must = []Condition{}
	}

	body := map[string]any{"filter": filter}
	return c.do(ctx, http.MethodPost, collectionPath(name, "/points/delete"), body, nil)
}

// DeleteByURL removes all points whose payload url equals url.
// An empty url is a no-op.
func (c *Client) DeleteByURL(ctx context.Context, name, url string) error {
	if url == "" {
		return nil
	}
	return c.deleteByFilter(ctx, name, MatchKeyword("url", url), false)
}

// DeleteByDomain removes all points whose payload domain equals domain.
// An empty domain is a no-op.
func (c *Client) DeleteByDomain(ctx context.Context, name, domain string) error {
	if domain == "" {
		return nil
	}
	return c.deleteByFilter(ctx, name, MatchKeyword("domain", domain), false)
}

// DeleteAll removes every point in the collection using an explicit
// empty-must filter.
func (c *Client) DeleteAll(ctx context.Context, name string) error {
	return c.deleteByFilter(ctx, name, Filter{Must: []Condition{}}, true)
}

type queryResult struct {
	Points []ScoredPoint `json:"points"`
}

// QueryPoints runs a vector similarity query, optionally restricted by a
// payload filter.
func (c *Client) QueryPoints(ctx context.Context, name string, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error) {
	if err := validation.ValidateCollectionName(name); err != nil {
		return nil, err
	}

	body := map[string]any{
		"query":        vector,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil && len(filter.Must) > 0 {
		body["filter"] = filter
	}

	var result queryResult
	if err := c.do(ctx, http.MethodPost, collectionPath(name, "/points/query"), body, &result); err != nil {
		return nil, err
	}
	return result.Points, nil
}

type scrollResult struct {
	Points         []Point `json:"points"`
	NextPageOffset any     `json:"next_page_offset"`
}

// ScrollAll returns every point matching the filter, without vectors,
// paginating with next_page_offset until exhausted.
func (c *Client) ScrollAll(ctx context.Context, name string, filter *Filter) ([]Point, error) {
	if err := validation.ValidateCollectionName(name); err != nil {
		return nil, err
	}

	var all []Point
	var offset any

	for {
		body := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if filter != nil && len(filter.Must) > 0 {
			body["filter"] = filter
		}
		if offset != nil {
			body["offset"] = offset
		}

		var page scrollResult
		if err := c.do(ctx, http.MethodPost, collectionPath(name, "/points/scroll"), body, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Points...)
		if page.NextPageOffset == nil {
			return all, nil
		}
		offset = page.NextPageOffset
	}
}

// ScrollByURL returns all points for a URL ordered by chunk_index.
func (c *Client) ScrollByURL(ctx context.Context, name, url string) ([]Point, error) {
	filter := MatchKeyword("url", url)
	points, err := c.ScrollAll(ctx, name, &filter)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(points, func(i, j int) bool {
		return chunkIndexOf(points[i]) < chunkIndexOf(points[j])
	})
	return points, nil
}

// chunkIndexOf reads the chunk_index payload field; JSON numbers decode as
// float64.
func chunkIndexOf(p Point) float64 {
	if v, ok := p.Payload["chunk_index"].(float64); ok {
		return v
	}
	return 0
}

type countResult struct {
	Count int64 `json:"count"`
}

// countByFilter counts points, optionally restricted by filter.
func (c *Client) countByFilter(ctx context.Context, name string, filter *Filter) (int64, error) {
	if err := validation.ValidateCollectionName(name); err != nil {
		return 0, err
	}

	body := map[string]any{"exact": true}
	if filter != nil && len(filter.Must) > 0 {
		body["filter"] = filter
	}

	var result countResult
	if err := c.do(ctx, http.MethodPost, collectionPath(name, "/points/count"), body, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// CountPoints returns the total number of points in the collection.
func (c *Client) CountPoints(ctx context.Context, name string) (int64, error) {
	return c.countByFilter(ctx, name, nil)
}

// CountByURL returns the number of points stored for a URL.
func (c *Client) CountByURL(ctx context.Context, name, url string) (int64, error) {
	filter := MatchKeyword("url", url)
	return c.countByFilter(ctx, name, &filter)
}

// CountByDomain returns the number of points stored for a domain.
func (c *Client) CountByDomain(ctx context.Context, name, domain string) (int64, error) {
	filter := MatchKeyword("domain", domain)
	return c.countByFilter(ctx, name, &filter)
}
