package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"civicstream/internal/core/domain"
)

// RESTClient talks to the gateway's notification endpoints with the
// session's bearer token.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewRESTClient(baseURL, authToken string) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   authToken,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *RESTClient) List(ctx context.Context) ([]domain.Notification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/notifications", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var body struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return body.Notifications, nil
}

func (c *RESTClient) MarkRead(ctx context.Context, id string) error {
	return c.mutate(ctx, http.MethodPatch, "/api/notifications/"+url.PathEscape(id)+"/read")
}

func (c *RESTClient) MarkAllRead(ctx context.Context) error {
	return c.mutate(ctx, http.MethodPatch, "/api/notifications/read-all")
}

func (c *RESTClient) Delete(ctx context.Context, id string) error {
	return c.mutate(ctx, http.MethodDelete, "/api/notifications/"+url.PathEscape(id))
}

func (c *RESTClient) mutate(ctx context.Context, method, path string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *RESTClient) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: HTTP %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return resp, nil
}
