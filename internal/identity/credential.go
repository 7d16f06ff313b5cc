// Package identity is the client side of the external identity provider.
//
// A Client is stateless and shared: it knows the provider's endpoints and
// performs the OAuth2 grants (password, authorization code with PKCE, refresh).
// A Session holds exactly one Credential and is the single writer of it;
// every other component only reads the current token.
package identity

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a credential and there is none.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRefreshUnavailable is returned when the credential cannot be refreshed
	// because it has no refresh token or the refresh token itself expired.
	ErrRefreshUnavailable = errors.New("refresh token missing or expired")
)

// Credential is the current authentication state of one user.
// A Credential is never mutated after construction; refreshes replace it.
type Credential struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	IDToken          string    `json:"id_token,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	Subject          string    `json:"sub,omitempty"`
	Username         string    `json:"username,omitempty"`
	Email            string    `json:"email,omitempty"`
	Roles            []string  `json:"roles,omitempty"`
}

// Expired reports whether the access token expires within minValidity.
// A zero ExpiresAt means the provider did not say, and the token is assumed valid.
func (c *Credential) Expired(minValidity time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Add(minValidity).Before(c.ExpiresAt)
}

// CanRefresh reports whether a refresh grant has any chance of succeeding.
func (c *Credential) CanRefresh() bool {
	if c == nil || c.RefreshToken == "" {
		return false
	}
	return c.RefreshExpiresAt.IsZero() || time.Now().Before(c.RefreshExpiresAt)
}

// HasRole reports whether the credential carries the given realm role.
func (c *Credential) HasRole(role string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Roles, role)
}

// accessClaims are the parts of a Keycloak-style access token we read.
type accessClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// parseClaims decodes the token payload without verifying the signature.
// The provider issued it over TLS and the resource server verifies it on every call.
func parseClaims(accessToken string) (*accessClaims, error) {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token claims: %w", err)
	}
	return claims, nil
}

// credentialFromToken builds a Credential from a token endpoint response.
// Opaque (non-JWT) access tokens are accepted; they simply carry no roles.
func credentialFromToken(tok *oauth2.Token) *Credential {
	cred := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}

	if idToken, ok := tok.Extra("id_token").(string); ok {
		cred.IDToken = idToken
	}

	// Keycloak reports the refresh token lifetime separately.
	if secs, ok := tok.Extra("refresh_expires_in").(float64); ok && secs > 0 {
		cred.RefreshExpiresAt = time.Now().Add(time.Duration(secs) * time.Second)
	}

	if claims, err := parseClaims(tok.AccessToken); err == nil {
		cred.Subject = claims.Subject
		cred.Username = claims.PreferredUsername
		cred.Email = claims.Email
		cred.Roles = claims.RealmAccess.Roles
		if cred.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
			cred.ExpiresAt = claims.ExpiresAt.Time
		}
	}

	return cred
}
