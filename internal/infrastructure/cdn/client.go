// Package cdn implements the ports.CachePurger adapter against the
// Cloudflare bulk URL purge API.
package cdn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"gatekeeper/internal/core/ports"
	apperrors "gatekeeper/pkg/errors"
)

// Client issues cache purge requests.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient creates a purge client for the given API base URL, e.g.
// "https://api.cloudflare.com/client/v4".
func NewClient(baseURL string, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
}

var _ ports.CachePurger = (*Client)(nil)

type purgeResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// PurgeURLs invalidates the given absolute URLs in the zone.
func (c *Client) PurgeURLs(ctx context.Context, zoneID, token string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string][]string{"files": urls})
	if err != nil {
		return fmt.Errorf("marshal purge request: %w", err)
	}

	path := fmt.Sprintf("/zones/%s/purge_cache", zoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build purge request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return apperrors.NewRemoteAPIError(path, resp.StatusCode, string(data))
	}

	var parsed purgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode purge response: %w", err)
	}
	if !parsed.Success {
		msg := "purge rejected"
		if len(parsed.Errors) > 0 {
			msg = parsed.Errors[0].Message
		}
		return apperrors.NewRemoteAPIError(path, resp.StatusCode, msg)
	}

	c.logger.Debugw("purged CDN cache", "zone", zoneID, "urls", len(urls))
	return nil
}
