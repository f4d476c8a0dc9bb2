// Package inference wraps the disease classifier and milk-yield regressor,
// both served over HTTP by a model server.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultModelTimeout = 30 * time.Second

// modelClient posts JSON payloads to one model-serving endpoint.
type modelClient struct {
	endpoint   string
	httpClient *http.Client
}

func newModelClient(endpoint string, httpClient *http.Client) (*modelClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("model endpoint required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultModelTimeout}
	}
	return &modelClient{endpoint: endpoint, httpClient: httpClient}, nil
}

func (c *modelClient) doJSON(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp modelErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("model server error: %s", errResp.Error)
		}
		return fmt.Errorf("model server error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

type modelErrorResponse struct {
	Error string `json:"error"`
}
