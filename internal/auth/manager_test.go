package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/status"
	"github.com/matheus3301/chitchat/internal/store"
)

type fakeProvider struct {
	mu        sync.Mutex
	listener  func(*Identity)
	current   *Identity
	unsubbed  bool
	beginErr  error
	signInErr error
	handle    *fakeHandle
	begun     []string
}

func (p *fakeProvider) OnAuthChanged(fn func(*Identity)) (func(), error) {
	p.mu.Lock()
	p.listener = fn
	cur := p.current
	p.mu.Unlock()
	fn(cur)
	return func() {
		p.mu.Lock()
		p.unsubbed = true
		p.listener = nil
		p.mu.Unlock()
	}, nil
}

func (p *fakeProvider) emit(id *Identity) {
	p.mu.Lock()
	p.current = id
	fn := p.listener
	p.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

func (p *fakeProvider) SignInFederated(_ context.Context, prompt func(DevicePrompt)) error {
	if p.signInErr != nil {
		return p.signInErr
	}
	prompt(DevicePrompt{UserCode: "ABCD-EFGH", VerificationURI: "https://idp.example.com/device"})
	p.emit(&Identity{ID: "oidc|1", DisplayName: "Ana", Email: "ana@example.com"})
	return nil
}

func (p *fakeProvider) BeginPhoneVerification(_ context.Context, e164 string, w ChallengeWidget) (ConfirmationHandle, error) {
	p.mu.Lock()
	p.begun = append(p.begun, e164)
	p.mu.Unlock()
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	if _, err := w.Token(context.Background()); err != nil {
		return nil, err
	}
	p.handle = &fakeHandle{code: "123456", id: &Identity{ID: "phone|1", PhoneNumber: e164}, notify: p.emit}
	return p.handle, nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.emit(nil)
	return nil
}

// fakeHandle notifies the provider's listener before returning, as the
// real provider does.
type fakeHandle struct {
	code   string
	id     *Identity
	calls  int
	notify func(*Identity)
}

func (h *fakeHandle) Confirm(_ context.Context, code string) (*Identity, error) {
	h.calls++
	if code != h.code {
		return nil, errors.New("wrong code")
	}
	if h.notify != nil {
		h.notify(h.id)
	}
	return h.id, nil
}

type fakeWidget struct {
	rendered int
}

func (w *fakeWidget) Render(context.Context) error          { w.rendered++; return nil }
func (w *fakeWidget) Ready() bool                           { return w.rendered > 0 }
func (w *fakeWidget) Token(context.Context) (string, error) { return "token", nil }

type fakeProfiles struct {
	mu        sync.Mutex
	profiles  map[string]store.UserProfile
	createErr error
	creates   int
	gets      int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: make(map[string]store.UserProfile)}
}

func (f *fakeProfiles) GetProfile(_ context.Context, id string) (*store.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	p, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeProfiles) CreateProfileIfAbsent(_ context.Context, p store.UserProfile) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return false, f.createErr
	}
	if _, ok := f.profiles[p.ID]; ok {
		return false, nil
	}
	f.profiles[p.ID] = p
	return true, nil
}

func (f *fakeProfiles) UpdateProfileStatus(_ context.Context, id, st string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Status = st
	f.profiles[id] = p
	return nil
}

func (f *fakeProfiles) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[id].Status
}

type fixture struct {
	provider *fakeProvider
	profiles *fakeProfiles
	widget   *fakeWidget
	bus      *bus.Bus
	mgr      *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		provider: &fakeProvider{},
		profiles: newFakeProfiles(),
		widget:   &fakeWidget{},
		bus:      bus.New(),
	}
	opts = append([]Option{WithWidgetFactory(func() (ChallengeWidget, error) { return f.widget, nil })}, opts...)
	f.mgr = NewManager(f.provider, f.profiles, status.NewMachine(f.bus), f.bus, nil, opts...)
	t.Cleanup(f.mgr.Close)
	return f
}

func TestLoadingUntilFirstNotification(t *testing.T) {
	f := newFixture(t)
	if got := f.mgr.State(); got != status.Loading {
		t.Fatalf("state = %s, want LOADING", got)
	}
	if err := f.mgr.Subscribe(); err != nil {
		t.Fatal(err)
	}
	if got := f.mgr.State(); got != status.Unauthenticated {
		t.Errorf("state = %s, want UNAUTHENTICATED", got)
	}
}

func TestSubscribeOnlyOnce(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.Subscribe(); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.Subscribe(); !errors.Is(err, ErrAlreadySubscribed) {
		t.Errorf("err = %v, want ErrAlreadySubscribed", err)
	}
	f.mgr.Close()
	if !f.provider.unsubbed {
		t.Error("Close did not unregister from the provider")
	}
}

func TestFederatedSignInDrivesStateThroughNotification(t *testing.T) {
	f := newFixture(t)
	_ = f.mgr.Subscribe()

	prompts, unsub := f.bus.Subscribe(bus.SessionDevicePrompt, 1)
	defer unsub()

	var got DevicePrompt
	if err := f.mgr.SignInFederated(context.Background(), func(p DevicePrompt) { got = p }); err != nil {
		t.Fatal(err)
	}
	if got.UserCode != "ABCD-EFGH" {
		t.Errorf("prompt = %+v", got)
	}
	select {
	case <-prompts:
	case <-time.After(time.Second):
		t.Error("timeout waiting for device prompt event")
	}

	snap := f.mgr.Snapshot()
	if snap.State != status.Authenticated || snap.Identity == nil || snap.Identity.ID != "oidc|1" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestFederatedSignInFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	_ = f.mgr.Subscribe()
	f.provider.signInErr = errors.New("access_denied")

	err := f.mgr.SignInFederated(context.Background(), nil)
	if !errors.Is(err, ErrFederatedSignIn) {
		t.Errorf("err = %v, want ErrFederatedSignIn", err)
	}
	if got := f.mgr.State(); got != status.Unauthenticated {
		t.Errorf("state = %s, want UNAUTHENTICATED", got)
	}
}

func TestBeginPhoneSignInRequiresChallenge(t *testing.T) {
	f := newFixture(t)
	_ = f.mgr.Subscribe()

	_, err := f.mgr.BeginPhoneSignIn(context.Background(), "08123456789")
	if !errors.Is(err, ErrVerificationInit) || !errors.Is(err, ErrChallengeNotReady) {
		t.Errorf("err = %v, want ErrVerificationInit wrapping ErrChallengeNotReady", err)
	}
	if len(f.provider.begun) != 0 {
		t.Error("provider called without a ready challenge")
	}
	if got := f.mgr.State(); got != status.Unauthenticated {
		t.Errorf("state = %s, want UNAUTHENTICATED", got)
	}
}

func TestAttachChallengeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for range 3 {
		if err := f.mgr.AttachChallenge(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if f.widget.rendered != 1 {
		t.Errorf("widget rendered %d times, want 1", f.widget.rendered)
	}
}

func TestPhoneSignInFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.mgr.Subscribe()
	_ = f.mgr.AttachChallenge(ctx)

	e164, err := f.mgr.BeginPhoneSignIn(ctx, "0812-3456-789")
	if err != nil {
		t.Fatal(err)
	}
	if e164 != "+628123456789" {
		t.Errorf("e164 = %q, want +628123456789", e164)
	}
	snap := f.mgr.Snapshot()
	if snap.State != status.PendingVerification || snap.PhoneNumber != e164 {
		t.Fatalf("snapshot = %+v", snap)
	}

	// Malformed code never reaches the provider.
	if _, err := f.mgr.ConfirmPhoneCode(ctx, "12345"); !errors.Is(err, ErrInvalidCodeFormat) {
		t.Errorf("err = %v, want ErrInvalidCodeFormat", err)
	}
	if f.provider.handle.calls != 0 {
		t.Error("malformed code reached the provider")
	}

	// Wrong code keeps the challenge.
	if _, err := f.mgr.ConfirmPhoneCode(ctx, "000000"); !errors.Is(err, ErrVerificationRejected) {
		t.Errorf("err = %v, want ErrVerificationRejected", err)
	}
	if got := f.mgr.State(); got != status.PendingVerification {
		t.Errorf("state after rejection = %s, want PENDING_VERIFICATION", got)
	}

	id, err := f.mgr.ConfirmPhoneCode(ctx, "123456")
	if err != nil {
		t.Fatal(err)
	}
	if id.PhoneNumber != e164 {
		t.Errorf("identity phone = %q", id.PhoneNumber)
	}
	if got := f.mgr.State(); got != status.Authenticated {
		t.Errorf("state = %s, want AUTHENTICATED", got)
	}
	if _, ok := f.profiles.profiles["phone|1"]; !ok {
		t.Error("profile not created on sign-in")
	}
}

func TestBeginPhoneSignInProviderRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.mgr.Subscribe()
	_ = f.mgr.AttachChallenge(ctx)
	f.provider.beginErr = errors.New("quota exceeded")

	if _, err := f.mgr.BeginPhoneSignIn(ctx, "+14155550100"); !errors.Is(err, ErrVerificationInit) {
		t.Errorf("err = %v, want ErrVerificationInit", err)
	}
	if got := f.mgr.State(); got != status.Unauthenticated {
		t.Errorf("state = %s, want UNAUTHENTICATED", got)
	}
}

func TestConfirmWithoutChallenge(t *testing.T) {
	f := newFixture(t)
	_ = f.mgr.Subscribe()
	if _, err := f.mgr.ConfirmPhoneCode(context.Background(), "123456"); !errors.Is(err, ErrNoActiveChallenge) {
		t.Errorf("err = %v, want ErrNoActiveChallenge", err)
	}
}

func TestSignedOutNotificationKeepsPendingVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.mgr.Subscribe()
	_ = f.mgr.AttachChallenge(ctx)
	if _, err := f.mgr.BeginPhoneSignIn(ctx, "+14155550100"); err != nil {
		t.Fatal(err)
	}

	f.provider.emit(nil)

	if got := f.mgr.State(); got != status.PendingVerification {
		t.Errorf("state = %s, want PENDING_VERIFICATION", got)
	}
	if _, err := f.mgr.ConfirmPhoneCode(ctx, "123456"); err != nil {
		t.Errorf("challenge no longer usable: %v", err)
	}
}

func TestAbandonVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.mgr.Subscribe()

	if err := f.mgr.AbandonVerification(); !errors.Is(err, ErrNoActiveChallenge) {
		t.Errorf("err = %v, want ErrNoActiveChallenge", err)
	}

	_ = f.mgr.AttachChallenge(ctx)
	if _, err := f.mgr.BeginPhoneSignIn(ctx, "+14155550100"); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.AbandonVerification(); err != nil {
		t.Fatal(err)
	}
	if got := f.mgr.State(); got != status.Unauthenticated {
		t.Errorf("state = %s, want UNAUTHENTICATED", got)
	}
	if _, err := f.mgr.ConfirmPhoneCode(ctx, "123456"); !errors.Is(err, ErrNoActiveChallenge) {
		t.Errorf("err = %v, want ErrNoActiveChallenge", err)
	}
}

func TestSignOut(t *testing.T) {
	f := newFixture(t)
	f.provider.current = &Identity{ID: "oidc|1"}
	_ = f.mgr.Subscribe()
	if got := f.mgr.State(); got != status.Authenticated {
		t.Fatalf("state = %s, want AUTHENTICATED", got)
	}

	if err := f.mgr.SignOut(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.mgr.State(); got != status.Unauthenticated {
		t.Errorf("state = %s, want UNAUTHENTICATED", got)
	}
	if _, err := f.mgr.Identity(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("identity not cleared: %v", err)
	}
}

func TestEnsureProfileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := &Identity{ID: "oidc|1", DisplayName: "Ana", Email: "ana@example.com"}
	f.provider.current = id
	_ = f.mgr.Subscribe()

	f.provider.emit(id)
	f.provider.emit(id)

	if n := len(f.profiles.profiles); n != 1 {
		t.Errorf("got %d profiles, want 1", n)
	}
	if f.profiles.creates != 1 {
		t.Errorf("create called %d times, want 1", f.profiles.creates)
	}
	if p := f.profiles.profiles["oidc|1"]; p.Status != store.StatusOnline {
		t.Errorf("status = %q, want Online", p.Status)
	}
}

func TestEnsureProfileFailureDoesNotBlockSignIn(t *testing.T) {
	f := newFixture(t)
	f.profiles.createErr = errors.New("permission denied")
	f.provider.current = &Identity{ID: "oidc|1"}
	_ = f.mgr.Subscribe()

	if got := f.mgr.State(); got != status.Authenticated {
		t.Errorf("state = %s, want AUTHENTICATED", got)
	}
}

func TestEnsureProfileAssignsAdminRole(t *testing.T) {
	f := newFixture(t, WithAdmins([]string{" Admin@Example.com "}))
	f.provider.current = &Identity{ID: "oidc|9", Email: "admin@example.com"}
	_ = f.mgr.Subscribe()

	if p := f.profiles.profiles["oidc|9"]; p.Role != store.RoleAdmin {
		t.Errorf("role = %q, want admin", p.Role)
	}
}

func TestConfirmedCodeAuthenticatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.mgr.Subscribe()
	_ = f.mgr.AttachChallenge(ctx)
	if _, err := f.mgr.BeginPhoneSignIn(ctx, "+14155550100"); err != nil {
		t.Fatal(err)
	}

	ch, unsub := f.bus.Subscribe(bus.SessionStatusChanged, 8)
	defer unsub()
	gets := f.profiles.gets

	if _, err := f.mgr.ConfirmPhoneCode(ctx, "123456"); err != nil {
		t.Fatal(err)
	}

	var changes []status.StatusChange
drain:
	for {
		select {
		case evt := <-ch:
			changes = append(changes, evt.Payload.(status.StatusChange))
		case <-time.After(50 * time.Millisecond):
			break drain
		}
	}
	if len(changes) != 1 || changes[0].To != status.Authenticated {
		t.Errorf("status changes = %+v, want one to AUTHENTICATED", changes)
	}
	if n := f.profiles.gets - gets; n != 1 {
		t.Errorf("profile lookups = %d, want 1", n)
	}
}

func TestPresenceFollowsSession(t *testing.T) {
	f := newFixture(t)
	id := &Identity{ID: "oidc|1", DisplayName: "Ana"}
	f.provider.current = id
	_ = f.mgr.Subscribe()
	if got := f.profiles.status("oidc|1"); got != store.StatusOnline {
		t.Fatalf("status after sign-in = %q, want Online", got)
	}

	if err := f.mgr.SignOut(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.profiles.status("oidc|1"); got != store.StatusOffline {
		t.Errorf("status after sign-out = %q, want Offline", got)
	}

	f.provider.emit(id)
	if got := f.profiles.status("oidc|1"); got != store.StatusOnline {
		t.Errorf("status after signing back in = %q, want Online", got)
	}

	f.mgr.Close()
	if got := f.profiles.status("oidc|1"); got != store.StatusOffline {
		t.Errorf("status after Close = %q, want Offline", got)
	}
}
