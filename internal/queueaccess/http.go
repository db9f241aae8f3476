package queueaccess

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"conveyor/internal/api"
)

// NewHTTPAccess returns an Access that talks to a running daemon's HTTP API.
func NewHTTPAccess(baseURL string) Access {
	return &httpAccess{
		base: "http://" + strings.TrimPrefix(strings.TrimRight(baseURL, "/"), "http://"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Ping reports whether a daemon answers on the given API address.
func Ping(ctx context.Context, baseURL string) bool {
	access := &httpAccess{
		base: "http://" + strings.TrimPrefix(strings.TrimRight(baseURL, "/"), "http://"),
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
	var health api.HealthStatus
	return access.get(ctx, "/healthz", &health) == nil
}

type httpAccess struct {
	base   string
	client *http.Client
}

func (a *httpAccess) Stats(ctx context.Context) (map[string]int, error) {
	var status api.DaemonStatus
	if err := a.get(ctx, "/api/status", &status); err != nil {
		return nil, err
	}
	views, err := a.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int, len(views))
	for _, view := range views {
		stats[view.Status]++
	}
	return stats, nil
}

func (a *httpAccess) List(ctx context.Context, statuses []string) ([]api.JobView, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var resp api.JobListResponse
	if err := a.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (a *httpAccess) Describe(ctx context.Context, jobUUID string) (*api.JobDetailResponse, error) {
	var detail api.JobDetailResponse
	err := a.get(ctx, "/api/jobs/"+url.PathEscape(jobUUID), &detail)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &detail, nil
}

func (a *httpAccess) Retry(ctx context.Context, jobUUID string) (api.JobView, error) {
	var view api.JobView
	err := a.post(ctx, "/api/jobs/"+url.PathEscape(jobUUID)+"/retry", &view)
	return view, err
}

func (a *httpAccess) Kill(ctx context.Context, jobUUID string) (api.JobView, error) {
	var view api.JobView
	err := a.post(ctx, "/api/jobs/"+url.PathEscape(jobUUID)+"/kill", &view)
	return view, err
}

func (a *httpAccess) get(ctx context.Context, path string, out any) error {
	return a.do(ctx, http.MethodGet, path, out)
}

func (a *httpAccess) post(ctx context.Context, path string, out any) error {
	return a.do(ctx, http.MethodPost, path, out)
}

func (a *httpAccess) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return &statusError{code: resp.StatusCode, message: apiErr.Error}
		}
		return &statusError{code: resp.StatusCode, message: resp.Status}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string { return e.message }

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}
