package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/status"
	"github.com/matheus3301/chitchat/internal/store"
)

const profileTimeout = 10 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithCountryCode sets the country code for numbers entered without "+".
func WithCountryCode(code string) Option {
	return func(m *Manager) { m.countryCode = code }
}

// WithAdmins lists the emails whose profiles are created with the admin role.
func WithAdmins(emails []string) Option {
	return func(m *Manager) {
		for _, e := range emails {
			if e = normalizeEmail(e); e != "" {
				m.admins[e] = true
			}
		}
	}
}

// WithWidgetFactory sets how the challenge widget is created on first attach.
func WithWidgetFactory(fn func() (ChallengeWidget, error)) Option {
	return func(m *Manager) { m.newWidget = fn }
}

// Manager is the session manager.
type Manager struct {
	provider    Provider
	profiles    ProfileStore
	machine     *status.Machine
	bus         *bus.Bus
	logger      *zap.Logger
	countryCode string
	admins      map[string]bool
	newWidget   func() (ChallengeWidget, error)

	subMu      sync.Mutex
	subscribed bool
	unsub      func()

	mu        sync.Mutex
	identity  *Identity
	phone     string
	challenge ConfirmationHandle
	widget    ChallengeWidget
}

// NewManager creates a session manager in the Loading state.
func NewManager(p Provider, profiles ProfileStore, m *status.Machine, b *bus.Bus, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = status.NewMachine(b)
	}
	mgr := &Manager{
		provider:    p,
		profiles:    profiles,
		machine:     m,
		bus:         b,
		logger:      logger,
		countryCode: DefaultCountryCode,
		admins:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// Subscribe registers with the provider. It may be called once per Manager.
func (m *Manager) Subscribe() error {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.subscribed {
		return ErrAlreadySubscribed
	}
	unsub, err := m.provider.OnAuthChanged(m.handleAuthChange)
	if err != nil {
		return fmt.Errorf("subscribe to auth changes: %w", err)
	}
	m.subscribed = true
	m.unsub = unsub
	return nil
}

// Close unregisters from the provider and marks a signed-in user Offline.
func (m *Manager) Close() {
	m.subMu.Lock()
	unsub := m.unsub
	m.unsub = nil
	m.subMu.Unlock()
	if unsub == nil {
		return
	}
	unsub()

	if id, err := m.Identity(); err == nil {
		m.setPresence(id.ID, store.StatusOffline)
	}
}

// State returns the current session state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Snapshot returns the state together with the data it carries.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{State: m.machine.Current()}
	if m.identity != nil {
		id := *m.identity
		s.Identity = &id
	}
	if s.State == status.PendingVerification {
		s.PhoneNumber = m.phone
	}
	return s
}

// Identity returns the signed-in identity.
func (m *Manager) Identity() (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil || m.machine.Current() != status.Authenticated {
		return Identity{}, ErrNotAuthenticated
	}
	return *m.identity, nil
}

func (m *Manager) handleAuthChange(id *Identity) {
	if id != nil {
		m.authenticate(id)
		return
	}

	m.mu.Lock()
	prev := m.identity
	m.identity = nil
	switch m.machine.Current() {
	case status.PendingVerification, status.Unauthenticated:
		// A verification in flight stays usable.
		m.mu.Unlock()
		return
	}
	err := m.machine.Transition(status.Unauthenticated)
	m.mu.Unlock()
	if err != nil {
		m.logger.Error("auth change rejected", zap.Error(err))
		return
	}
	m.logger.Info("signed out")
	if prev != nil {
		m.setPresence(prev.ID, store.StatusOffline)
	}
}

// authenticate is reached both from provider notifications and from a
// confirmed code; the second arrival for the same identity is a no-op.
func (m *Manager) authenticate(id *Identity) {
	m.mu.Lock()
	same := m.identity != nil && m.identity.ID == id.ID && m.machine.Current() == status.Authenticated
	m.mu.Unlock()
	if same {
		return
	}
	m.ensureProfile(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *id
	m.identity = &cp
	m.challenge = nil
	m.phone = ""
	if err := m.machine.Transition(status.Authenticated); err != nil {
		m.logger.Error("auth change rejected", zap.Error(err))
		return
	}
	m.logger.Info("signed in", zap.String("identity", id.ID))
}

// ensureProfile creates the profile for id unless one exists. Failures are
// logged; they never block the session.
func (m *Manager) ensureProfile(id *Identity) {
	if m.profiles == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), profileTimeout)
	defer cancel()

	existing, err := m.profiles.GetProfile(ctx, id.ID)
	if err != nil {
		m.logger.Warn("profile lookup failed", zap.String("identity", id.ID), zap.Error(err))
		return
	}
	if existing != nil {
		if !existing.IsOnline() {
			m.setPresence(id.ID, store.StatusOnline)
		}
		return
	}

	p := store.UserProfile{
		ID:        id.ID,
		Name:      id.DisplayName,
		AvatarURL: id.AvatarURL,
		Email:     id.Email,
		Status:    store.StatusOnline,
	}
	if m.admins[normalizeEmail(id.Email)] {
		p.Role = store.RoleAdmin
	}
	created, err := m.profiles.CreateProfileIfAbsent(ctx, p)
	if err != nil {
		m.logger.Warn("profile creation failed", zap.String("identity", id.ID), zap.Error(err))
		return
	}
	if created {
		m.logger.Info("profile created", zap.String("identity", id.ID), zap.String("role", p.Role))
	}
}

// setPresence records the roster status of a profile. Failures are logged.
func (m *Manager) setPresence(id, presence string) {
	if m.profiles == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), profileTimeout)
	defer cancel()
	if err := m.profiles.UpdateProfileStatus(ctx, id, presence); err != nil {
		m.logger.Warn("presence update failed", zap.String("identity", id), zap.String("status", presence), zap.Error(err))
		return
	}
	m.logger.Debug("presence updated", zap.String("identity", id), zap.String("status", presence))
}

// SignInFederated runs the provider's interactive sign-in. The state changes
// only through the notification that follows a success.
func (m *Manager) SignInFederated(ctx context.Context, prompt func(DevicePrompt)) error {
	if prompt == nil {
		prompt = func(DevicePrompt) {}
	}
	if err := m.provider.SignInFederated(ctx, func(p DevicePrompt) {
		m.bus.Emit(bus.SessionDevicePrompt, p)
		prompt(p)
	}); err != nil {
		m.logger.Warn("federated sign-in failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrFederatedSignIn, err)
	}
	return nil
}

// AttachChallenge creates the challenge widget if there is none and renders it.
func (m *Manager) AttachChallenge(ctx context.Context) error {
	m.mu.Lock()
	w := m.widget
	if w == nil {
		if m.newWidget == nil {
			m.mu.Unlock()
			return ErrChallengeNotReady
		}
		var err error
		if w, err = m.newWidget(); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("create challenge widget: %w", err)
		}
		m.widget = w
	}
	m.mu.Unlock()

	if w.Ready() {
		return nil
	}
	if err := w.Render(ctx); err != nil {
		return fmt.Errorf("render challenge widget: %w", err)
	}
	return nil
}

// BeginPhoneSignIn sends a verification code to phone and moves to
// PendingVerification. The challenge widget must be attached first.
func (m *Manager) BeginPhoneSignIn(ctx context.Context, phone string) (string, error) {
	e164, err := NormalizePhone(phone, m.countryCode)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVerificationInit, err)
	}
	if !m.machine.CanTransition(status.PendingVerification) {
		return "", fmt.Errorf("%w: session is %s", ErrVerificationInit, m.machine.Current())
	}

	m.mu.Lock()
	w := m.widget
	m.mu.Unlock()
	if w == nil || !w.Ready() {
		return "", fmt.Errorf("%w: %w", ErrVerificationInit, ErrChallengeNotReady)
	}

	handle, err := m.provider.BeginPhoneVerification(ctx, e164, w)
	if err != nil {
		m.logger.Warn("phone verification rejected", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrVerificationInit, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.machine.Transition(status.PendingVerification); err != nil {
		return "", fmt.Errorf("%w: %w", ErrVerificationInit, err)
	}
	m.challenge = handle
	m.phone = e164
	m.logger.Info("verification code sent")
	return e164, nil
}

// ConfirmPhoneCode submits code to the pending verification. A rejected code
// leaves the verification pending so the user may retry.
func (m *Manager) ConfirmPhoneCode(ctx context.Context, code string) (*Identity, error) {
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return nil, ErrInvalidCodeFormat
	}

	m.mu.Lock()
	handle := m.challenge
	m.mu.Unlock()
	if handle == nil {
		return nil, ErrNoActiveChallenge
	}

	id, err := handle.Confirm(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerificationRejected, err)
	}
	if id == nil {
		return nil, ErrVerificationRejected
	}
	m.authenticate(id)
	cp := *id
	return &cp, nil
}

// AbandonVerification drops the pending verification and returns to Unauthenticated.
func (m *Manager) AbandonVerification() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.machine.Current() != status.PendingVerification {
		return ErrNoActiveChallenge
	}
	m.challenge = nil
	m.phone = ""
	return m.machine.Transition(status.Unauthenticated)
}

// SignOut signs out with the provider. The state changes through the
// notification that follows.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
