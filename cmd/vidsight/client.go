package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"vidsight/internal/api"
)

// apiClient is a thin wrapper over the daemon's HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) Submit(ctx context.Context, sourceURL string, options map[string]string) (api.Job, error) {
	var job api.Job
	payload := api.SubmitRequest{SourceURL: sourceURL, Options: options}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/jobs", payload, &job)
	return job, err
}

func (c *apiClient) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	path := "/api/v1/jobs"
	if len(statuses) > 0 {
		query := url.Values{}
		for _, status := range statuses {
			query.Add("status", status)
		}
		path += "?" + query.Encode()
	}
	var resp api.JobListResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (c *apiClient) Get(ctx context.Context, id string) (api.Job, error) {
	var job api.Job
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, &job)
	return job, err
}

func (c *apiClient) Cancel(ctx context.Context, id string) (api.Job, error) {
	var job api.Job
	err := c.doJSON(ctx, http.MethodDelete, "/api/v1/jobs/"+url.PathEscape(id), nil, &job)
	return job, err
}

func (c *apiClient) Result(ctx context.Context, id string) (json.RawMessage, error) {
	body, _, err := c.doRaw(ctx, "/api/v1/jobs/"+url.PathEscape(id)+"/result")
	return body, err
}

// Export fetches the rendered report; format is "json" or "markdown".
func (c *apiClient) Export(ctx context.Context, id, format string) ([]byte, string, error) {
	path := "/api/v1/jobs/" + url.PathEscape(id) + "/export?format=" + url.QueryEscape(format)
	return c.doRaw(ctx, path)
}

func (c *apiClient) Status(ctx context.Context) (api.StatusResponse, error) {
	var status api.StatusResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/status", nil, &status)
	return status, err
}

// Events streams the job's server-sent events, invoking fn for each one until
// the daemon closes the stream or fn returns an error.
func (c *apiClient) Events(ctx context.Context, id string, fn func(event string, data []byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/jobs/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		return err
	}
	// No client timeout here: the stream stays open for the life of the job.
	stream := &http.Client{}
	resp, err := stream.Do(req)
	if err != nil {
		return wrapConnError(err, c.base)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	event := ""
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = []byte(strings.TrimPrefix(line, "data: "))
		case line == "":
			if event != "" || len(data) > 0 {
				if err := fn(event, data); err != nil {
					return err
				}
			}
			event = ""
			data = nil
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *apiClient) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapConnError(err, c.base)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) doRaw(ctx context.Context, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", wrapConnError(err, c.base)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", decodeError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode), payload.Error)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}

func wrapConnError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; verify vidsightd is running", base)
	}
	return fmt.Errorf("connect to daemon at %s: %w", base, err)
}
