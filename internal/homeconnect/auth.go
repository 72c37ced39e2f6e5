package homeconnect

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	authorizePath = "/security/oauth/authorize"
	tokenPath     = "/security/oauth/token"

	redirectTarget = "https://apiclient.home-connect.com/o2c.html"
	oauthScopes    = "IdentifyAppliance Monitor Settings"

	// Tokens within this margin of their expiry count as expired so the
	// refresh happens before the API starts rejecting calls.
	tokenExpiryMargin = 5 * time.Minute
)

// Token is the OAuth2 token pair used against the API. ExpiresAt is filled
// in locally from expires_in when the token is obtained.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (t Token) Valid() bool {
	if t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Before(t.ExpiresAt.Add(-tokenExpiryMargin))
}

// checkCredentials makes sure a usable access token is present, obtaining
// or refreshing one first if needed. Safe for concurrent use.
func (c *client) checkCredentials() error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.token.Valid() {
		return nil
	}
	if c.currentRefreshToken() != "" {
		return c.refreshAccessToken()
	}
	if c.config.Simulator {
		return c.authorize()
	}
	return ErrNoToken
}

// currentRefreshToken must be called with authMu held.
func (c *client) currentRefreshToken() string {
	if c.token.RefreshToken != "" {
		return c.token.RefreshToken
	}
	return c.config.RefreshToken
}

// authorize runs the authorization code flow against the simulator, which
// grants the code without user interaction. Must be called with authMu
// held.
func (c *client) authorize() error {
	params := url.Values{}
	params.Set("client_id", c.config.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", redirectTarget)
	params.Set("scope", oauthScopes)
	authorizeURL := fmt.Sprintf("%s%s?%s", c.apiURL, authorizePath, params.Encode())
	noRedirect := &http.Client{
		Transport: c.httpClient.Transport,
		Timeout:   c.httpClient.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := noRedirect.Get(authorizeURL)
	if err != nil {
		return fmt.Errorf("homeconnect: authorize request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusSeeOther {
		log.Printf("Authorization request got status %d, expected a redirect", resp.StatusCode)
		return ErrAuthorization
	}
	location, err := resp.Location()
	if err != nil {
		return fmt.Errorf("homeconnect: authorize response had no location: %w", err)
	}
	code := location.Query().Get("code")
	if code == "" {
		log.Printf("No authorization code in redirect to %s", location)
		return ErrAuthorization
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.config.ClientID)
	form.Set("redirect_uri", redirectTarget)
	form.Set("code", code)
	return c.requestToken(form)
}

// refreshAccessToken trades the refresh token for a fresh access token.
// Must be called with authMu held.
func (c *client) refreshAccessToken() error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.currentRefreshToken())
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}
	return c.requestToken(form)
}

func (c *client) requestToken(form url.Values) error {
	req, err := http.NewRequest(http.MethodPost, c.apiURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("homeconnect: token request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("Token request failed with status %d: %s", resp.StatusCode, string(body))
		return ErrAuthorization
	}
	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("homeconnect: invalid token response: %w", err)
	}
	if token.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = c.currentRefreshToken()
	}
	c.token = token
	if c.store != nil {
		if err := c.store.Save(token); err != nil {
			log.Printf("Failed to persist tokens: %s", err)
		}
	}
	return nil
}

// invalidateToken drops the cached access token so the next request
// refreshes. Used when the API answers 401 despite a seemingly valid
// token.
func (c *client) invalidateToken() {
	c.authMu.Lock()
	c.token.AccessToken = ""
	c.authMu.Unlock()
}

func (c *client) accessToken() string {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.token.AccessToken
}
