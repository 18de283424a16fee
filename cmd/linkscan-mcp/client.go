package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/use-agent/linkscan/models"
)

// apiClient talks to a linkscan serve instance.
type apiClient struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	pollEvery time.Duration
}

// apiError is the error body of the job API.
type apiError struct {
	Error *models.ErrorDetail `json:"error"`
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Error != nil {
			return fmt.Errorf("[%s] %s", e.Error.Code, e.Error.Message)
		}
		return fmt.Errorf("API returned %s", resp.Status)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *apiClient) submit(ctx context.Context, req *models.ScanRequest) (models.ScanResponse, error) {
	var resp models.ScanResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/scans", req, &resp)
	return resp, err
}

func (c *apiClient) status(ctx context.Context, id string) (models.ScanStatusResponse, error) {
	var resp models.ScanStatusResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/scans/"+id, nil, &resp)
	return resp, err
}

func (c *apiClient) cancel(ctx context.Context, id string) (models.ScanResponse, error) {
	var resp models.ScanResponse
	err := c.do(ctx, http.MethodDelete, "/api/v1/scans/"+id, nil, &resp)
	return resp, err
}

// wait polls a job until it leaves the queued and running states.
func (c *apiClient) wait(ctx context.Context, id string) (models.ScanStatusResponse, error) {
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.ScanStatusResponse{}, ctx.Err()
		case <-ticker.C:
			st, err := c.status(ctx, id)
			if err != nil {
				return st, err
			}
			if st.Status != models.JobQueued && st.Status != models.JobRunning {
				return st, nil
			}
		}
	}
}
