// Package auth holds the session manager: the single owner of who is signed in.
// It listens to an external identity provider, drives the session state machine
// and keeps a profile record for every identity that signs in.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/chitchat/internal/status"
	"github.com/matheus3301/chitchat/internal/store"
)

var (
	ErrVerificationInit     = errors.New("phone verification could not start")
	ErrChallengeNotReady    = errors.New("challenge widget is not ready")
	ErrInvalidCodeFormat    = errors.New("verification code must be exactly 6 digits")
	ErrVerificationRejected = errors.New("verification code rejected")
	ErrNoActiveChallenge    = errors.New("no verification in progress")
	ErrFederatedSignIn      = errors.New("federated sign-in failed")
	ErrAlreadySubscribed    = errors.New("already subscribed to auth changes")
	ErrNotAuthenticated     = errors.New("not signed in")
)

// Identity is the signed-in principal as reported by the provider.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// DevicePrompt tells the user where to approve a federated sign-in.
type DevicePrompt struct {
	UserCode                string    `json:"user_code"`
	VerificationURI         string    `json:"verification_uri"`
	VerificationURIComplete string    `json:"verification_uri_complete,omitempty"`
	ExpiresAt               time.Time `json:"expires_at"`
}

// Provider is the external authentication service.
type Provider interface {
	// OnAuthChanged registers fn for every change of the signed-in identity.
	// fn receives nil when nobody is signed in. The current state is delivered
	// once right after registration.
	OnAuthChanged(fn func(*Identity)) (unsubscribe func(), err error)
	// SignInFederated runs an interactive sign-in. prompt is called with the
	// instructions the user must follow. Success is reported through OnAuthChanged.
	SignInFederated(ctx context.Context, prompt func(DevicePrompt)) error
	// BeginPhoneVerification sends a code to e164. widget must be ready.
	BeginPhoneVerification(ctx context.Context, e164 string, widget ChallengeWidget) (ConfirmationHandle, error)
	SignOut(ctx context.Context) error
}

// ConfirmationHandle is a pending phone verification.
type ConfirmationHandle interface {
	Confirm(ctx context.Context, code string) (*Identity, error)
}

// ChallengeWidget is the human-verification step required before a code is sent.
type ChallengeWidget interface {
	Render(ctx context.Context) error
	Ready() bool
	// Token produces a proof the provider accepts once.
	Token(ctx context.Context) (string, error)
}

// ProfileStore is the profile collection.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*store.UserProfile, error)
	CreateProfileIfAbsent(ctx context.Context, p store.UserProfile) (bool, error)
	UpdateProfileStatus(ctx context.Context, id, status string) error
}

// Snapshot is a consistent view of the session.
type Snapshot struct {
	State       status.State `json:"state"`
	Identity    *Identity    `json:"identity,omitempty"`
	PhoneNumber string       `json:"phone_number,omitempty"`
}
