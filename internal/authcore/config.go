package authcore

import "time"

// ServerConfig configures token issuance and the identity-provider client.
type ServerConfig struct {
	GoogleWebClientID  string
	GoogleClientSecret string
	GoogleRedirectURI  string
	TokenSigningKey    []byte
	TokenIssuer        string
	TokenTTL           time.Duration
	AllowInsecureHTTP  bool
	ProviderAuthURL    string
	ProviderTokenURL   string
}
