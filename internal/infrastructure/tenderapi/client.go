package tenderapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"auction-worker/internal/domain"
)

const requestIDHeader = "X-Client-Request-ID"

// Client reads a tender and its auction sub-resource from the resource API.
// It never retries; callers own the retry policy.
type Client struct {
	httpClient *http.Client
	tenderURL  string
}

// NewClient builds {server}/api/{version}/{resource}/{tenderID}.
func NewClient(server, version, resource, tenderID string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parse resource api server: %w", err)
	}
	tenderURL := base.JoinPath("api", version, resource, tenderID)

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		tenderURL:  tenderURL.String(),
	}, nil
}

func (c *Client) TenderURL() string {
	return c.tenderURL
}

func (c *Client) FetchTender(ctx context.Context, requestID string) (*domain.TenderData, error) {
	return c.get(ctx, c.tenderURL, "", requestID)
}

func (c *Client) FetchAuction(ctx context.Context, token, requestID string) (*domain.TenderData, error) {
	return c.get(ctx, c.tenderURL+"/auction", token, requestID)
}

func (c *Client) get(ctx context.Context, target, token, requestID string) (*domain.TenderData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if requestID != "" {
		req.Header.Set(requestIDHeader, requestID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", domain.ErrExternalCall, target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: GET %s", domain.ErrNotFound, target)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: GET %s: status %d", domain.ErrExternalCall, target, resp.StatusCode)
	}

	var envelope domain.TenderEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrExternalCall, target, err)
	}
	return &envelope.Data, nil
}
