package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/raysh454/sitegen/internal/model"
)

// ListUsers lists accounts; requires an admin-scoped token.
func (c *Client) ListUsers(ctx context.Context, limit, offset int) (*model.UserList, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out model.UserList
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, "/api/admin/users", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAllJobs lists jobs across every user.
func (c *Client) ListAllJobs(ctx context.Context, f model.JobListFilter) (*model.JobList, error) {
	return c.listJobs(ctx, "/api/admin/jobs", f)
}

// GetStats returns platform-wide counters.
func (c *Client) GetStats(ctx context.Context) (*model.AdminStats, error) {
	var out model.AdminStats
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, "/api/admin/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
