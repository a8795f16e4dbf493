package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/oauth2"
)

// Profile is a provider-neutral user profile, the output of normalization.
type Profile struct {
	SubjectID   string // provider's stable user ID
	Email       string // required
	DisplayName string
	AvatarURL   string
}

// Normalizer fetches the provider's raw profile and maps its shape onto
// Profile. One implementation per provider, selected by name.
type Normalizer interface {
	// Normalize retrieves user info with the exchanged token and maps the
	// provider-specific payload to the neutral Profile shape.
	Normalize(ctx context.Context, client *oauth2.Config, tok *oauth2.Token) (*Profile, error)
}

// Provider is one configured upstream OAuth identity source.
type Provider struct {
	name       string
	config     *oauth2.Config
	normalizer Normalizer
}

// ProviderConfig carries the registration values for one upstream provider.
// AuthURL and TokenURL override the provider's default endpoints when set.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
}

func endpointFor(cfg ProviderConfig, def oauth2.Endpoint) oauth2.Endpoint {
	if cfg.AuthURL != "" || cfg.TokenURL != "" {
		return oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	}
	return def
}

// Name returns the provider tag ("google", "github").
func (p *Provider) Name() string {
	return p.name
}

// AuthCodeURL builds the provider authorization URL embedding state, nonce,
// and the S256 PKCE challenge derived from verifier.
func (p *Provider) AuthCodeURL(state, nonce, verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades the authorization code (plus PKCE verifier) for a provider
// token. The context must carry a timeout-bounded HTTP client.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", verifier),
	)
}

// FetchProfile retrieves and normalizes the provider's user profile.
func (p *Provider) FetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	return p.normalizer.Normalize(ctx, p.config, tok)
}
