package platform

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/ignite/adinsight/internal/config"
	"github.com/ignite/adinsight/internal/domain"
)

// ErrNeedsReauth means the stored token is unusable and the user has to
// reconnect the integration.
var ErrNeedsReauth = errors.New("platform: integration needs re-authentication")

// TokenStore loads the stored OAuth token for an integration.
type TokenStore interface {
	Token(ctx context.Context, businessID string, p domain.Platform) (*oauth2.Token, error)
}

// TokenSaver persists a refreshed token. Stores that implement it get
// rotated tokens written back.
type TokenSaver interface {
	SaveToken(ctx context.Context, businessID string, p domain.Platform, tok *oauth2.Token) error
}

// CredentialProvider resolves a usable access token, refreshing expired
// tokens when the platform has OAuth app credentials configured.
type CredentialProvider struct {
	store   TokenStore
	configs map[domain.Platform]*oauth2.Config
}

// NewCredentialProvider creates a provider over store.
func NewCredentialProvider(store TokenStore, cfg config.PlatformsConfig) *CredentialProvider {
	c := &CredentialProvider{store: store, configs: map[domain.Platform]*oauth2.Config{}}
	c.addConfig(domain.PlatformMeta, cfg.Meta.OAuth)
	c.addConfig(domain.PlatformGoogleAds, cfg.GoogleAds.OAuth)
	return c
}

func (c *CredentialProvider) addConfig(p domain.Platform, oc config.OAuthConfig) {
	if oc.ClientID == "" {
		return
	}
	c.configs[p] = &oauth2.Config{
		ClientID:     oc.ClientID,
		ClientSecret: oc.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: oc.TokenURL},
	}
}

// Token returns a valid token for the integration, or ErrNeedsReauth.
func (c *CredentialProvider) Token(ctx context.Context, businessID string, p domain.Platform) (*oauth2.Token, error) {
	tok, err := c.store.Token(ctx, businessID, p)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return nil, ErrNeedsReauth
	}
	if tok.Valid() {
		return tok, nil
	}

	oc, ok := c.configs[p]
	if !ok || tok.RefreshToken == "" {
		return nil, ErrNeedsReauth
	}
	fresh, err := oc.TokenSource(ctx, tok).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: %v", ErrNeedsReauth, err)
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if saver, ok := c.store.(TokenSaver); ok && fresh.AccessToken != tok.AccessToken {
		if err := saver.SaveToken(ctx, businessID, p, fresh); err != nil {
			return nil, fmt.Errorf("save refreshed token: %w", err)
		}
	}
	return fresh, nil
}
