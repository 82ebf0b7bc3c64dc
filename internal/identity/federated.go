package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/matheus3301/chitchat/internal/auth"
)

// FederatedConfig configures the OIDC device sign-in.
type FederatedConfig struct {
	Issuer        string
	ClientID      string
	ClientSecret  string
	DeviceAuthURL string // overrides discovery when set
}

// Federated signs users in with the OAuth 2.0 device authorization grant and
// turns the verified ID token into an identity. It makes no session decisions.
type Federated struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewFederated discovers the issuer's endpoints.
func NewFederated(ctx context.Context, cfg FederatedConfig) (*Federated, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.New("oidc issuer and client id are required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	ep := provider.Endpoint()
	if cfg.DeviceAuthURL != "" {
		ep.DeviceAuthURL = cfg.DeviceAuthURL
	}
	if ep.DeviceAuthURL == "" {
		return nil, errors.New("issuer does not advertise a device authorization endpoint")
	}

	return newFederated(&oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     ep,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}, provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})), nil
}

func newFederated(oauthCfg *oauth2.Config, verifier *oidc.IDTokenVerifier) *Federated {
	return &Federated{oauth: oauthCfg, verifier: verifier}
}

// SignIn starts a device authorization, reports the user code through prompt
// and blocks until the user approves, denies or the code expires.
func (f *Federated) SignIn(ctx context.Context, prompt func(auth.DevicePrompt)) (*auth.Identity, error) {
	da, err := f.oauth.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device authorization: %w", err)
	}

	expires := da.Expiry
	if expires.IsZero() {
		expires = time.Now().Add(10 * time.Minute)
	}
	prompt(auth.DevicePrompt{
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		ExpiresAt:               expires,
	})

	token, err := f.oauth.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("device token: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("issuer did not return an id_token")
	}
	idToken, err := f.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}

	var claims struct {
		Subject string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse id_token claims: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("id_token has no subject")
	}

	return &auth.Identity{
		ID:          "oidc|" + claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		AvatarURL:   claims.Picture,
	}, nil
}
