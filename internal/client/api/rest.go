package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/common"
)

// RESTClient implements Client over net/http.
type RESTClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewRESTClient builds a client for the API rooted at baseURL (no trailing
// slash). httpClient may carry the interception transport for read paths; the
// sync engine passes a plain client so replays fail honestly.
func NewRESTClient(baseURL string, httpClient *http.Client, tokens TokenSource) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RESTClient{baseURL: baseURL, http: httpClient, tokens: tokens}
}

// CollectionPath maps a record collection to its REST base path.
func CollectionPath(col models.Collection) string {
	return "/api/" + string(col)
}

// Ping checks server liveness via the health endpoint.
func (c *RESTClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/ping", nil)
	return err
}

// Login exchanges credentials for a bearer token.
func (c *RESTClient) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/login", body)
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("malformed login response: %w", err)
	}
	if out.Token == "" {
		return "", common.ErrUnauthorized
	}
	return out.Token, nil
}

// Create posts a new record and returns the canonical server copy, including
// the server-assigned id.
func (c *RESTClient) Create(ctx context.Context, col models.Collection, payload json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, CollectionPath(col), payload)
}

// Update replaces the record stored under id.
func (c *RESTClient) Update(ctx context.Context, col models.Collection, id string, payload json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPut, CollectionPath(col)+"/"+id, payload)
	return err
}

// Delete removes the record stored under id.
func (c *RESTClient) Delete(ctx context.Context, col models.Collection, id string) error {
	_, err := c.do(ctx, http.MethodDelete, CollectionPath(col)+"/"+id, nil)
	return err
}

// Get fetches an arbitrary API path (list endpoints, analytics summary).
func (c *RESTClient) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// do runs one request with a short fibonacci-backoff retry around transport
// errors. HTTP error statuses are never retried here; retry policy for whole
// operations lives in the sync engine.
func (c *RESTClient) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	var result json.RawMessage

	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.tokens != nil {
			token, err := c.tokens(ctx)
			if err != nil {
				return err
			}
			if token != "" {
				req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// transport failure: the server may just be waking up
			return retry.RetryableError(fmt.Errorf("%w: %v", common.ErrServerUnavailable, err))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			result = data
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", common.ErrUnauthorized, string(data))
		default:
			return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, string(data))
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
