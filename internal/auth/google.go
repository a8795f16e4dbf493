package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// NewGoogleProvider creates the Google upstream provider.
func NewGoogleProvider(cfg ProviderConfig) *Provider {
	return &Provider{
		name: "google",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpointFor(cfg, google.Endpoint),
		},
		normalizer: googleNormalizer{},
	}
}

// googleUser is the OIDC userinfo payload shape.
type googleUser struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

type googleNormalizer struct{}

func (googleNormalizer) Normalize(
	ctx context.Context,
	config *oauth2.Config,
	tok *oauth2.Token,
) (*Profile, error) {
	client := config.Client(ctx, tok)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, "https://openidconnect.googleapis.com/v1/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google API error: %s - %s", resp.Status, string(body))
	}

	var user googleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	if user.Email == "" {
		return nil, ErrNoEmail
	}

	return &Profile{
		SubjectID:   user.Sub,
		Email:       user.Email,
		DisplayName: user.Name,
		AvatarURL:   user.Picture,
	}, nil
}
