package auth

import (
	"net/http"

	"golang.org/x/oauth2/clientcredentials"
)

// Conf holds the OAuth2 client credentials of a protected endpoint. An empty
// TokenURL disables authentication.
type Conf struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
}

// Enabled reports whether requests must carry a bearer token.
func (c Conf) Enabled() bool { return c.TokenURL != "" }

func (c *Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
}

// HTTPClient returns base unchanged when authentication is disabled, or a
// copy of base whose requests carry a client credentials token.
func (c Conf) HTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if !c.Enabled() {
		return base
	}
	cli := *base
	cli.Transport = &Transport{Cred: NewClientCred(c), Base: base.Transport}
	return &cli
}
