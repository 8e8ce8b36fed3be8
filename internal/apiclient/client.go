package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CharanSaiVaddi/purrctl/internal/job"
)

const (
	jobsEndpoint    = "/jobs"
	reposEndpoint   = "/repos"
	rastersEndpoint = "/rasters"
	searchEndpoint  = "/search"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("jobs api: status %d", e.Code)
	}
	return fmt.Sprintf("jobs api: status %d: %s", e.Code, e.Message)
}

// Client talks to the jobs API. It satisfies asyncjob.JobAPI.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	log     *logrus.Entry
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTP = h }
}

func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateJob posts a new job. The response carries the id the backend assigned.
func (c *Client) CreateJob(ctx context.Context, req job.Request) (job.Snapshot, error) {
	var out job.Snapshot
	if err := c.do(ctx, http.MethodPost, jobsEndpoint, req, &out); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return out, nil
}

func (c *Client) GetJobByID(ctx context.Context, id string) (job.Snapshot, error) {
	var out job.Snapshot
	if err := c.do(ctx, http.MethodGet, jobsEndpoint+"/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return out, nil
}

// ListJobs returns the jobs currently in status.
func (c *Client) ListJobs(ctx context.Context, status job.Status) ([]job.Snapshot, error) {
	var out []job.Snapshot
	q := url.Values{"status": {string(status)}}
	if err := c.do(ctx, http.MethodGet, jobsEndpoint+"?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", status, err)
	}
	return out, nil
}

// UpdateJob merges fields into an existing job. The backend requires a ttl on
// every write, so ttl is always sent.
func (c *Client) UpdateJob(ctx context.Context, id string, ttl int64, fields map[string]any) (job.Snapshot, error) {
	body := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		body[k] = v
	}
	body["id"] = id
	body["ttl"] = ttl

	var out job.Snapshot
	if err := c.do(ctx, http.MethodPost, jobsEndpoint, body, &out); err != nil {
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	return out, nil
}

func (c *Client) authorization() string {
	if c.Token == "" || strings.Contains(c.Token, " ") {
		return c.Token
	}
	return "Bearer " + c.Token
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth := c.authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"method": method,
		"path":   endpoint,
		"status": resp.StatusCode,
	}).Debug("jobs api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}
