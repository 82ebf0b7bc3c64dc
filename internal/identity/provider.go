// Package identity is the authentication backend used by the daemon: OIDC
// device sign-in, phone codes guarded by a proof-of-work challenge, and
// credentials persisted between restarts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/bus"
)

// ErrFederatedUnavailable is returned when no OIDC issuer is configured.
var ErrFederatedUnavailable = errors.New("federated sign-in is not configured")

// Provider implements auth.Provider.
type Provider struct {
	federated *Federated
	phone     *PhoneVerifier
	guard     *Guard
	creds     *CredentialStore
	bus       *bus.Bus
	logger    *zap.Logger

	mu        sync.Mutex
	current   *auth.Identity
	listeners map[int]func(*auth.Identity)
	next      int
}

var _ auth.Provider = (*Provider)(nil)

// NewProvider restores any persisted identity from creds. federated may be nil.
func NewProvider(federated *Federated, phone *PhoneVerifier, guard *Guard, creds *CredentialStore, b *bus.Bus, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		federated: federated,
		phone:     phone,
		guard:     guard,
		creds:     creds,
		bus:       b,
		logger:    logger,
		listeners: make(map[int]func(*auth.Identity)),
	}
	id, err := creds.Load()
	if err != nil {
		return nil, err
	}
	p.current = id
	return p, nil
}

// NewWidget creates a challenge widget bound to this provider.
func (p *Provider) NewWidget() (auth.ChallengeWidget, error) {
	return NewWidget(p.guard), nil
}

// OnAuthChanged implements auth.Provider.
func (p *Provider) OnAuthChanged(fn func(*auth.Identity)) (func(), error) {
	if fn == nil {
		return nil, errors.New("nil auth listener")
	}
	p.mu.Lock()
	id := p.next
	p.next++
	p.listeners[id] = fn
	cur := copyIdentity(p.current)
	p.mu.Unlock()

	fn(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}, nil
}

// SignInFederated implements auth.Provider.
func (p *Provider) SignInFederated(ctx context.Context, prompt func(auth.DevicePrompt)) error {
	if p.federated == nil {
		return ErrFederatedUnavailable
	}
	id, err := p.federated.SignIn(ctx, prompt)
	if err != nil {
		return err
	}
	p.setIdentity(id)
	return nil
}

// BeginPhoneVerification implements auth.Provider.
func (p *Provider) BeginPhoneVerification(ctx context.Context, e164 string, widget auth.ChallengeWidget) (auth.ConfirmationHandle, error) {
	if widget == nil || !widget.Ready() {
		return nil, auth.ErrChallengeNotReady
	}
	token, err := widget.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("challenge token: %w", err)
	}
	if err := p.guard.Verify(token); err != nil {
		return nil, fmt.Errorf("challenge: %w", err)
	}
	if err := p.phone.Begin(ctx, e164); err != nil {
		return nil, err
	}
	return &confirmation{provider: p, e164: e164}, nil
}

// SignOut implements auth.Provider.
func (p *Provider) SignOut(context.Context) error {
	if err := p.creds.Clear(); err != nil {
		return err
	}
	p.setIdentity(nil)
	return nil
}

func (p *Provider) setIdentity(id *auth.Identity) {
	if id != nil {
		if err := p.creds.Save(*id); err != nil {
			p.logger.Warn("persist credentials failed", zap.Error(err))
		}
	}

	p.mu.Lock()
	p.current = copyIdentity(id)
	fns := make([]func(*auth.Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	p.bus.Emit(bus.AuthChanged, copyIdentity(id))
	for _, fn := range fns {
		fn(copyIdentity(id))
	}
}

type confirmation struct {
	provider *Provider
	e164     string
}

func (c *confirmation) Confirm(ctx context.Context, code string) (*auth.Identity, error) {
	id, err := c.provider.phone.Confirm(ctx, c.e164, code)
	if err != nil {
		return nil, err
	}
	c.provider.setIdentity(id)
	return copyIdentity(id), nil
}

func copyIdentity(id *auth.Identity) *auth.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
