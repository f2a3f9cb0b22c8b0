package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultRefreshTimeout = 30 * time.Second

// HTTPRefreshClient calls the server's token refresh endpoint. The request
// carries the caller's current bearer token; the server authenticates the
// subject from its signature without requiring freshness.
type HTTPRefreshClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ RefreshClient = (*HTTPRefreshClient)(nil)

// NewHTTPRefreshClient constructs a client for the given server base URL.
func NewHTTPRefreshClient(baseURL string, httpClient *http.Client) (*HTTPRefreshClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("refresh_client.new: base URL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRefreshTimeout}
	}
	return &HTTPRefreshClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// Refresh posts to /auth/token/refresh and returns the new token. A 401
// means the server has no usable provider refresh credential for the
// subject; that is ErrRefreshUnavailable and never retried here.
func (client *HTTPRefreshClient) Refresh(ctx context.Context, currentToken string) (string, error) {
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/auth/token/refresh", nil)
	if requestErr != nil {
		return "", fmt.Errorf("refresh_client.request: %w", requestErr)
	}
	request.Header.Set("Authorization", "Bearer "+currentToken)

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return "", fmt.Errorf("refresh_client.transport: %w", doErr)
	}
	defer func() { _ = response.Body.Close() }()

	switch response.StatusCode {
	case http.StatusOK:
		var payload struct {
			Token     string `json:"token"`
			ExpiresAt int64  `json:"expires_at"`
		}
		if decodeErr := json.NewDecoder(response.Body).Decode(&payload); decodeErr != nil {
			return "", fmt.Errorf("refresh_client.decode: %w", decodeErr)
		}
		if payload.Token == "" {
			return "", fmt.Errorf("refresh_client.decode: empty token in response")
		}
		return payload.Token, nil
	case http.StatusUnauthorized:
		return "", fmt.Errorf("refresh_client.denied: %w", ErrRefreshUnavailable)
	default:
		return "", fmt.Errorf("refresh_client.status: unexpected status %d", response.StatusCode)
	}
}
