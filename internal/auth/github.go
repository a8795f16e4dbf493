package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// NewGitHubProvider creates the GitHub upstream provider.
func NewGitHubProvider(cfg ProviderConfig) *Provider {
	return &Provider{
		name: "github",
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpointFor(cfg, github.Endpoint),
		},
		normalizer: githubNormalizer{},
	}
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type githubNormalizer struct{}

func (githubNormalizer) Normalize(
	ctx context.Context,
	config *oauth2.Config,
	tok *oauth2.Token,
) (*Profile, error) {
	client := config.Client(ctx, tok)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, "https://api.github.com/user", nil)
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
		return nil, fmt.Errorf("GitHub API error: %s - %s", resp.Status, string(body))
	}

	var user githubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	// Profile email may be private; fall back to the emails endpoint
	if user.Email == "" {
		email, err := githubPrimaryEmail(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to get user email: %w", err)
		}
		user.Email = email
	}
	if user.Email == "" {
		return nil, ErrNoEmail
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &Profile{
		SubjectID:   fmt.Sprintf("%d", user.ID),
		Email:       user.Email,
		DisplayName: name,
		AvatarURL:   user.AvatarURL,
	}, nil
}

// githubPrimaryEmail fetches the primary verified email.
func githubPrimaryEmail(ctx context.Context, client *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, "https://api.github.com/user/emails", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get emails: %s", resp.Status)
	}

	var emails []githubEmail
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", err
	}

	for _, email := range emails {
		if email.Primary && email.Verified {
			return email.Email, nil
		}
	}
	for _, email := range emails {
		if email.Verified {
			return email.Email, nil
		}
	}

	return "", ErrNoEmail
}
