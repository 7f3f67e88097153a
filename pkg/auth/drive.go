package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const driveAboutURL = "https://www.googleapis.com/drive/v3/about?fields=user"

// DriveScope is the only scope the uploader needs: files this app created.
const DriveScope = "https://www.googleapis.com/auth/drive.file"

type TokenConfig struct {
	CredentialsFile string
	TokenFile       string
	Scopes          []string
	AuthPrompt      io.Reader // where the auth code is read from; stdin by default
	AboutURL        string
}

// TokenManager produces and caches the OAuth token used for object-storage
// uploads, so headless runs can reuse a token generated once on a machine
// with a browser.
type TokenManager struct {
	config TokenConfig
	oauth  *oauth2.Config
}

func NewWithConfig(config TokenConfig) (*TokenManager, error) {
	if config.TokenFile == "" {
		config.TokenFile = "token.json"
	}
	if len(config.Scopes) == 0 {
		config.Scopes = []string{DriveScope}
	}
	if config.AuthPrompt == nil {
		config.AuthPrompt = os.Stdin
	}
	if config.AboutURL == "" {
		config.AboutURL = driveAboutURL
	}

	data, err := os.ReadFile(config.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(data, config.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	return &TokenManager{
		config: config,
		oauth:  oauthConfig,
	}, nil
}

// Token returns a usable token: the cached one when still valid, a refreshed
// one when expired with a refresh token, or a brand new one via the
// installed-app flow.
func (tm *TokenManager) Token(ctx context.Context) (*oauth2.Token, error) {
	token, err := tm.cachedToken()
	if err == nil && token.Valid() {
		return token, nil
	}

	if token != nil && token.RefreshToken != "" {
		fmt.Fprintln(os.Stderr, "Refreshing expired token...")
		refreshed, err := tm.oauth.TokenSource(ctx, token).Token()
		if err == nil {
			if err := tm.saveToken(refreshed); err != nil {
				return nil, err
			}
			return refreshed, nil
		}
		fmt.Fprintf(os.Stderr, "Warning: token refresh failed: %v\n", err)
	}

	return tm.newToken(ctx)
}

// Verify calls the storage API's about endpoint and returns the
// authenticated account address.
func (tm *TokenManager) Verify(ctx context.Context, token *oauth2.Token) (string, error) {
	client := tm.oauth.Client(ctx, token)

	resp, err := client.Get(tm.config.AboutURL)
	if err != nil {
		return "", fmt.Errorf("failed to verify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("token verification returned status %d", resp.StatusCode)
	}

	var about struct {
		User struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&about); err != nil {
		return "", fmt.Errorf("failed to decode verification response: %w", err)
	}

	return about.User.EmailAddress, nil
}

func (tm *TokenManager) cachedToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(tm.config.TokenFile)
	if err != nil {
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse cached token: %w", err)
	}
	return &token, nil
}

func (tm *TokenManager) newToken(ctx context.Context) (*oauth2.Token, error) {
	url := tm.oauth.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(os.Stderr, "Open the following link in your browser, then paste the authorization code:\n%s\n> ", url)

	scanner := bufio.NewScanner(tm.config.AuthPrompt)
	if !scanner.Scan() {
		return nil, fmt.Errorf("no authorization code provided")
	}

	token, err := tm.oauth.Exchange(ctx, scanner.Text())
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := tm.saveToken(token); err != nil {
		return nil, err
	}

	return token, nil
}

func (tm *TokenManager) saveToken(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if err := os.WriteFile(tm.config.TokenFile, data, 0600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Token saved to %s\n", tm.config.TokenFile)
	return nil
}
