package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

//ClientCredentialsProvider is a concrete auth.Provider backed by an OAuth2
//client-credentials flow (golang.org/x/oauth2/clientcredentials), grounded
//on the pack's OAuth-shaped AuthProvider adapters (e.g. bitop-dev-ai's
//mcp/transport_http.go). It has no redirect step: Auth simply (re)requests a
//token from the token endpoint.
type ClientCredentialsProvider struct {
	cfg clientcredentials.Config

	mu    sync.Mutex
	token *oauth2.Token
}

//NewClientCredentialsProvider builds a provider that fetches tokens from
//tokenURL using clientID/clientSecret, requesting the given scopes.
func NewClientCredentialsProvider(tokenURL, clientID, clientSecret string, scopes []string) *ClientCredentialsProvider {
	return &ClientCredentialsProvider{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		},
	}
}

func (p *ClientCredentialsProvider) Tokens(ctx context.Context) (Tokens, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == nil || !p.token.Valid() {
		return Tokens{}, false
	}
	return Tokens{AccessToken: p.token.AccessToken, RefreshToken: p.token.RefreshToken}, true
}

func (p *ClientCredentialsProvider) Auth(ctx context.Context, _ AuthParams) (Outcome, error) {
	tok, err := p.cfg.Token(ctx)
	if err != nil {
		return Unauthorized, fmt.Errorf("auth: client credentials token request: %w", err)
	}
	p.mu.Lock()
	p.token = tok
	p.mu.Unlock()
	return Authorized, nil
}
