// Package identity implements the ports.IdentityProvider adapter against
// the chat platform's REST API. The provider rate-limits aggressively, so
// calls go through a local limiter and a circuit breaker.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gatekeeper/internal/core/domain"
	"gatekeeper/internal/core/ports"
	"gatekeeper/pkg/circuitbreaker"
	apperrors "gatekeeper/pkg/errors"
)

// Client resolves external identities.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.SugaredLogger
}

// NewClient creates a provider client. requestsPerSecond <= 0 disables
// local rate limiting.
func NewClient(baseURL, token string, requestsPerSecond float64, burst int, logger *zap.SugaredLogger) *Client {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: http.DefaultClient,
		limiter:    limiter,
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:     logger,
	}
}

var _ ports.IdentityProvider = (*Client)(nil)

type userResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
}

// GetUserByID resolves one external identity. A 404 from the provider is
// reported as (nil, nil).
func (c *Client) GetUserByID(ctx context.Context, externalID string) (*domain.IdentityProfile, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("identity rate limit wait: %w", err)
		}
	}

	var profile *domain.IdentityProfile
	err := c.breaker.Execute(func() error {
		var fetchErr error
		profile, fetchErr = c.fetch(ctx, externalID)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (c *Client) fetch(ctx context.Context, externalID string) (*domain.IdentityProfile, error) {
	path := fmt.Sprintf("/users/%s", externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bot "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch identity %s: %w", externalID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return nil, apperrors.NewRemoteAPIError(path, resp.StatusCode, string(data))
	}

	var parsed userResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}

	return &domain.IdentityProfile{
		ExternalID:  parsed.ID,
		Username:    parsed.Username,
		DisplayName: parsed.GlobalName,
	}, nil
}
