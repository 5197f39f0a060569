package oauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// OAuth2Config builds the golang.org/x/oauth2 configuration for the
// provider's authorization-code flow. The refresh path stays on
// VaultTokenSource (which needs the proactive RefreshMargin behavior
// oauth2.TokenSource doesn't expose); the library covers the one-time
// code exchange when a user first connects.
func (e ProviderEndpoint) OAuth2Config(redirectURL string, scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     e.ClientID,
		ClientSecret: e.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  e.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// ExchangeAuthorizationCode trades an authorization code for the
// provider's token pair and persists it to the vault, completing a
// user's connect flow. The stored token is immediately usable by
// VaultTokenSource.
func ExchangeAuthorizationCode(ctx context.Context, vault TokenVault, userID, provider string, cfg *oauth2.Config, code string) (*Token, error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth: exchange authorization code: %w", err)
	}

	scope, _ := tok.Extra("scope").(string)
	stored := StoredToken{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scope:        scope,
	}
	if err := vault.UpsertToken(ctx, userID, stored); err != nil {
		return nil, fmt.Errorf("oauth: persist exchanged token: %w", err)
	}

	return &Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, Expiry: tok.Expiry}, nil
}
