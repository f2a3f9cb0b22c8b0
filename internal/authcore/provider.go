package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// defaultProviderTimeout bounds every identity-provider round trip.
const defaultProviderTimeout = 30 * time.Second

// ProviderToken is the result of a successful exchange with the identity
// provider.
type ProviderToken struct {
	AccessToken       string
	RefreshCredential string
	Expiry            time.Time
}

// ProviderClient exchanges credentials with the identity provider.
type ProviderClient interface {
	// ExchangeRefresh trades a stored provider refresh credential for a new
	// provider access token. A rejected or revoked credential surfaces as
	// ErrProviderRejected; transport failures surface as ErrProviderUnavailable.
	ExchangeRefresh(ctx context.Context, grant string) (ProviderToken, error)

	// ExchangeAuthCode trades an interactive-login authorization code for the
	// provider token pair plus the raw ID token carried alongside it.
	ExchangeAuthCode(ctx context.Context, code string) (ProviderToken, string, error)
}

// OAuthProviderClient implements ProviderClient against an OAuth 2.0 token
// endpoint.
type OAuthProviderClient struct {
	oauthConfig *oauth2.Config
	httpClient  *http.Client
}

// NewOAuthProviderClient builds a provider client from the server configuration.
func NewOAuthProviderClient(configuration ServerConfig) *OAuthProviderClient {
	return &OAuthProviderClient{
		oauthConfig: &oauth2.Config{
			ClientID:     configuration.GoogleWebClientID,
			ClientSecret: configuration.GoogleClientSecret,
			RedirectURL:  configuration.GoogleRedirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  configuration.ProviderAuthURL,
				TokenURL: configuration.ProviderTokenURL,
			},
		},
		httpClient: &http.Client{Timeout: defaultProviderTimeout},
	}
}

// ExchangeRefresh trades the grant for a fresh provider access token. The
// provider may rotate the refresh credential; the returned value reflects
// whatever the provider handed back.
func (client *OAuthProviderClient) ExchangeRefresh(ctx context.Context, grant string) (ProviderToken, error) {
	tokenSource := client.oauthConfig.TokenSource(client.oauthContext(ctx), &oauth2.Token{RefreshToken: grant})
	exchanged, err := tokenSource.Token()
	if err != nil {
		return ProviderToken{}, classifyProviderError(err)
	}
	return providerTokenFrom(exchanged), nil
}

// ExchangeAuthCode trades an authorization code for the provider token pair.
func (client *OAuthProviderClient) ExchangeAuthCode(ctx context.Context, code string) (ProviderToken, string, error) {
	exchanged, err := client.oauthConfig.Exchange(client.oauthContext(ctx), code, oauth2.AccessTypeOffline)
	if err != nil {
		return ProviderToken{}, "", classifyProviderError(err)
	}
	rawIDToken, _ := exchanged.Extra("id_token").(string)
	return providerTokenFrom(exchanged), rawIDToken, nil
}

func (client *OAuthProviderClient) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client.httpClient)
}

func providerTokenFrom(exchanged *oauth2.Token) ProviderToken {
	return ProviderToken{
		AccessToken:       exchanged.AccessToken,
		RefreshCredential: exchanged.RefreshToken,
		Expiry:            exchanged.Expiry,
	}
}

// classifyProviderError separates a provider denial from transport trouble.
// An HTTP error response from the token endpoint means the credential was
// refused; anything else means the provider could not be consulted.
func classifyProviderError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("provider.exchange: %w", ErrProviderRejected)
	}
	return fmt.Errorf("provider.exchange: %w: %v", ErrProviderUnavailable, err)
}
