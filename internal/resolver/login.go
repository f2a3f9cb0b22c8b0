package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// CodePrompt obtains an authorization code from the user, typically by
// directing them through the provider's consent screen and reading the
// pasted result.
type CodePrompt func(ctx context.Context) (string, error)

// CodeLoginClient implements InteractiveLogin against the server's code
// exchange endpoint: the prompt yields an authorization code, the server
// trades it with the identity provider and answers with the first token and
// the provider refresh credential to cache locally.
type CodeLoginClient struct {
	baseURL    string
	httpClient *http.Client
	prompt     CodePrompt
}

// NewCodeLoginClient constructs a CodeLoginClient.
func NewCodeLoginClient(baseURL string, httpClient *http.Client, prompt CodePrompt) (*CodeLoginClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("login_client.new: base URL is required")
	}
	if prompt == nil {
		return nil, fmt.Errorf("login_client.new: code prompt is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRefreshTimeout}
	}
	return &CodeLoginClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		prompt:     prompt,
	}, nil
}

// Login runs the prompt and exchanges the resulting code.
func (client *CodeLoginClient) Login(ctx context.Context) (LoginResult, error) {
	code, promptErr := client.prompt(ctx)
	if promptErr != nil {
		return LoginResult{}, fmt.Errorf("login_client.prompt: %w", promptErr)
	}
	if strings.TrimSpace(code) == "" {
		return LoginResult{}, fmt.Errorf("login_client.prompt: empty authorization code")
	}

	body, marshalErr := json.Marshal(map[string]string{"code": strings.TrimSpace(code)})
	if marshalErr != nil {
		return LoginResult{}, fmt.Errorf("login_client.encode: %w", marshalErr)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/auth/google/exchange", bytes.NewReader(body))
	if requestErr != nil {
		return LoginResult{}, fmt.Errorf("login_client.request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return LoginResult{}, fmt.Errorf("login_client.transport: %w", doErr)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return LoginResult{}, fmt.Errorf("login_client.status: exchange returned %d", response.StatusCode)
	}

	var payload struct {
		Token                     string `json:"token"`
		SubjectID                 string `json:"subject_id"`
		ProviderRefreshCredential string `json:"provider_refresh_credential"`
	}
	if decodeErr := json.NewDecoder(response.Body).Decode(&payload); decodeErr != nil {
		return LoginResult{}, fmt.Errorf("login_client.decode: %w", decodeErr)
	}
	if payload.Token == "" || payload.SubjectID == "" {
		return LoginResult{}, fmt.Errorf("login_client.decode: incomplete exchange response")
	}
	return LoginResult{
		Token:                     payload.Token,
		ProviderRefreshCredential: payload.ProviderRefreshCredential,
		SubjectID:                 payload.SubjectID,
	}, nil
}
