package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/constants"
)

const defaultHTTPTimeout = 10 * time.Second

// Client talks to the identity provider. It holds no per-user state and is
// safe for concurrent use.
type Client struct {
	oauth          *oauth2.Config
	endSessionURL  string
	refreshTimeout time.Duration
	httpClient     *http.Client
	logger         *logrus.Logger
}

// providerMetadata is the subset of the discovery document not exposed by oidc.Provider.
type providerMetadata struct {
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// NewClient builds a Client from configuration. Endpoints that are not set
// explicitly are discovered from the issuer. When discovery fails the
// Keycloak path layout under the issuer is assumed so the service can start
// before the provider is reachable.
func NewClient(ctx context.Context, cfg *config.IdentityConfig, logger *logrus.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("identity config is required")
	}

	httpClient := &http.Client{Timeout: defaultHTTPTimeout}
	if cfg.RefreshTimeout > 0 {
		httpClient.Timeout = cfg.RefreshTimeout
	}

	endpoint := oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	endSession := cfg.EndSessionURL

	if endpoint.AuthURL == "" || endpoint.TokenURL == "" || endSession == "" {
		if cfg.IssuerURL == "" {
			if endpoint.TokenURL == "" {
				return nil, errors.New("identity issuer URL or token URL is required")
			}
		} else {
			discovered, err := discover(oidc.ClientContext(ctx, httpClient), cfg.IssuerURL)
			if err != nil {
				logger.WithError(err).WithField("issuer", cfg.IssuerURL).
					Warn("OIDC discovery failed, falling back to conventional endpoint paths")
				discovered = conventionalEndpoints(cfg.IssuerURL)
			}
			if endpoint.AuthURL == "" {
				endpoint.AuthURL = discovered.AuthURL
			}
			if endpoint.TokenURL == "" {
				endpoint.TokenURL = discovered.TokenURL
			}
			if endSession == "" {
				endSession = discovered.EndSessionURL
			}
		}
	}

	// Public clients authenticate with client_id in the form body only.
	if cfg.ClientSecret == "" {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	logger.WithFields(logrus.Fields{
		"client_id":   cfg.ClientID,
		"auth_url":    endpoint.AuthURL,
		"token_url":   endpoint.TokenURL,
		"end_session": endSession,
	}).Info("Identity provider client configured")

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		endSessionURL:  endSession,
		refreshTimeout: cfg.RefreshTimeout,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

type endpoints struct {
	AuthURL       string
	TokenURL      string
	EndSessionURL string
}

func discover(ctx context.Context, issuer string) (endpoints, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return endpoints{}, fmt.Errorf("failed to discover provider %s: %w", issuer, err)
	}

	var meta providerMetadata
	if err := provider.Claims(&meta); err != nil {
		return endpoints{}, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	ep := provider.Endpoint()
	return endpoints{
		AuthURL:       ep.AuthURL,
		TokenURL:      ep.TokenURL,
		EndSessionURL: meta.EndSessionEndpoint,
	}, nil
}

func conventionalEndpoints(issuer string) endpoints {
	base := strings.TrimSuffix(issuer, "/") + "/protocol/openid-connect"
	return endpoints{
		AuthURL:       base + "/auth",
		TokenURL:      base + "/token",
		EndSessionURL: base + "/logout",
	}
}

// withHTTPClient makes the oauth2 package use our client and its timeout.
func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// PasswordLogin performs the resource owner password grant. It is used by the
// terminal client and the JSON login endpoint.
func (c *Client) PasswordLogin(ctx context.Context, username, password string) (*Credential, error) {
	tok, err := c.oauth.PasswordCredentialsToken(c.withHTTPClient(ctx), username, password)
	if err != nil {
		return nil, fmt.Errorf("password login failed: %w", err)
	}

	cred := credentialFromToken(tok)
	c.logger.WithFields(logrus.Fields{
		"username":   cred.Username,
		"expires_at": cred.ExpiresAt,
	}).Info("User logged in with password grant")

	return cred, nil
}

// AuthCodeURL returns the provider's login page URL for the authorization
// code flow, bound to state and to the S256 challenge of verifier.
func (c *Client) AuthCodeURL(state, verifier string) string {
	return c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// NewVerifier returns a fresh PKCE code verifier.
func (c *Client) NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// Exchange trades an authorization code for a credential.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*Credential, error) {
	tok, err := c.oauth.Exchange(c.withHTTPClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange failed: %w", err)
	}
	return credentialFromToken(tok), nil
}

// Refresh performs the refresh_token grant. It is the refresh primitive used
// by Session.UpdateToken and always returns within the configured refresh timeout.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	if refreshToken == "" {
		return nil, ErrRefreshUnavailable
	}

	if c.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.refreshTimeout)
		defer cancel()
	}

	// An empty access token forces the token source to hit the endpoint.
	src := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	return credentialFromToken(tok), nil
}

// EndSession terminates the provider-side session (RP-initiated logout).
// It is best effort: callers drop the local credential regardless.
func (c *Client) EndSession(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.RefreshToken == "" || c.endSessionURL == "" {
		return nil
	}

	form := url.Values{}
	form.Set("client_id", c.oauth.ClientID)
	form.Set("refresh_token", cred.RefreshToken)
	if c.oauth.ClientSecret != "" {
		form.Set("client_secret", c.oauth.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endSessionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	req.Header.Set(constants.HeaderContentType, constants.ContentTypeFormURLEncoded)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to end provider session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("end session failed with status %d", resp.StatusCode)
	}

	c.logger.WithField("username", cred.Username).Info("Provider session ended")
	return nil
}

// LogoutURL returns the browser logout URL that sends the user back to
// redirectTo afterwards.
func (c *Client) LogoutURL(cred *Credential, redirectTo string) string {
	if c.endSessionURL == "" {
		return redirectTo
	}

	q := url.Values{}
	q.Set("client_id", c.oauth.ClientID)
	if redirectTo != "" {
		q.Set("post_logout_redirect_uri", redirectTo)
	}
	if cred != nil && cred.IDToken != "" {
		q.Set("id_token_hint", cred.IDToken)
	}
	return c.endSessionURL + "?" + q.Encode()
}
