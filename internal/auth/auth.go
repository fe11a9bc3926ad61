// Package auth provides Google OAuth2 authentication for mailpilot.
//
// It reads credentials.json and token.json in the format written by the
// google-auth Python library, so tokens minted by other tooling work without
// re-authentication. The session is obtained once per run and handed to the
// Gmail and Calendar wrappers; there is no hidden re-auth inside calls.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultScopes covers mail triage and calendar scheduling.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/calendar",
}

// googleAuthToken represents the token.json format written by the google-auth
// Python library.
type googleAuthToken struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	Expiry       string   `json:"expiry"`
}

// Session is an authenticated Google API client, obtained once per run.
type Session struct {
	Client *http.Client
}

// NewSession loads OAuth config and token from disk, refreshes the token if
// needed, and returns an authenticated session. Failure here is run-fatal.
func NewSession(ctx context.Context, credentialsPath, tokenPath string) (*Session, error) {
	config, err := loadOAuthConfig(credentialsPath)
	if err != nil {
		return nil, err
	}

	token, err := loadToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load token from %s: %w", tokenPath, err)
	}

	ts := config.TokenSource(ctx, token)
	newToken, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	// If token was refreshed, save it back so other tooling stays in sync.
	if newToken.AccessToken != token.AccessToken {
		if saveErr := saveToken(tokenPath, newToken, config); saveErr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not save refreshed token: %v\n", saveErr)
		}
	}

	return &Session{Client: oauth2.NewClient(ctx, ts)}, nil
}

func loadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials from %s: %w", credentialsPath, err)
	}

	config, err := google.ConfigFromJSON(data, DefaultScopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return config, nil
}

func loadToken(tokenPath string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	var gt googleAuthToken
	if err := json.Unmarshal(data, &gt); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	// google-auth writes ISO 8601 with microseconds.
	var expiry time.Time
	if gt.Expiry != "" {
		for _, layout := range []string{
			"2006-01-02T15:04:05.999999Z",
			"2006-01-02T15:04:05Z",
			time.RFC3339,
			time.RFC3339Nano,
		} {
			if t, err := time.Parse(layout, gt.Expiry); err == nil {
				expiry = t
				break
			}
		}
	}

	return &oauth2.Token{
		AccessToken:  gt.Token,
		RefreshToken: gt.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}, nil
}

func saveToken(tokenPath string, token *oauth2.Token, config *oauth2.Config) error {
	gt := googleAuthToken{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenURI:     config.Endpoint.TokenURL,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       DefaultScopes,
		Expiry:       token.Expiry.UTC().Format("2006-01-02T15:04:05.999999Z"),
	}

	data, err := json.MarshalIndent(gt, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(tokenPath, data, 0o600)
}
