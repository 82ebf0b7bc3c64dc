package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/outbox"
	"github.com/matheus3301/chitchat/internal/status"
	"github.com/matheus3301/chitchat/internal/store"
	"github.com/matheus3301/chitchat/internal/summarize"
	intsync "github.com/matheus3301/chitchat/internal/sync"
)

type fakeStream[T any] struct {
	ctx  context.Context
	mu   sync.Mutex
	sent []*T
	ch   chan *T
}

func newFakeStream[T any](ctx context.Context) *fakeStream[T] {
	return &fakeStream[T]{ctx: ctx, ch: make(chan *T, 16)}
}

func (s *fakeStream[T]) Context() context.Context { return s.ctx }

func (s *fakeStream[T]) Send(m *T) error {
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	s.ch <- m
	return nil
}

func (s *fakeStream[T]) next(t *testing.T) *T {
	t.Helper()
	select {
	case m := <-s.ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream message")
		return nil
	}
}

type fakeManager struct {
	snap       auth.Snapshot
	identity   *auth.Identity
	signInErr  error
	beginErr   error
	confirmErr error
	prompts    []auth.DevicePrompt
	phone      string
}

func (m *fakeManager) Snapshot() auth.Snapshot { return m.snap }

func (m *fakeManager) Identity() (auth.Identity, error) {
	if m.identity == nil {
		return auth.Identity{}, auth.ErrNotAuthenticated
	}
	return *m.identity, nil
}

func (m *fakeManager) SignInFederated(_ context.Context, prompt func(auth.DevicePrompt)) error {
	for _, p := range m.prompts {
		prompt(p)
	}
	if m.signInErr != nil {
		return m.signInErr
	}
	m.identity = &auth.Identity{ID: "oidc|1", DisplayName: "Ana"}
	return nil
}

func (m *fakeManager) AttachChallenge(context.Context) error { return nil }

func (m *fakeManager) BeginPhoneSignIn(_ context.Context, phone string) (string, error) {
	if m.beginErr != nil {
		return "", m.beginErr
	}
	m.phone = phone
	return "+62" + phone[1:], nil
}

func (m *fakeManager) ConfirmPhoneCode(_ context.Context, code string) (*auth.Identity, error) {
	if m.confirmErr != nil {
		return nil, m.confirmErr
	}
	return &auth.Identity{ID: "phone|x", PhoneNumber: m.phone}, nil
}

func (m *fakeManager) AbandonVerification() error { return auth.ErrNoActiveChallenge }

func (m *fakeManager) SignOut(context.Context) error { return nil }

func TestSessionServiceStatus(t *testing.T) {
	m := &fakeManager{snap: auth.Snapshot{
		State:    status.Authenticated,
		Identity: &auth.Identity{ID: "oidc|1", DisplayName: "Ana"},
	}}
	svc := NewSessionService("main", m, bus.New())

	st, err := svc.GetStatus(context.Background(), &Empty{})
	if err != nil {
		t.Fatal(err)
	}
	if st.Session != "main" || st.State != "AUTHENTICATED" || st.Identity.DisplayName != "Ana" {
		t.Errorf("status = %+v", st)
	}
}

func TestSessionServiceWatchStatus(t *testing.T) {
	b := bus.New()
	m := &fakeManager{snap: auth.Snapshot{State: status.Loading}}
	svc := NewSessionService("main", m, b)

	ctx, cancel := context.WithCancel(context.Background())
	stream := newFakeStream[Status](ctx)
	done := make(chan error, 1)
	go func() { done <- svc.WatchStatus(&Empty{}, stream) }()

	if got := stream.next(t); got.State != "LOADING" {
		t.Errorf("first status = %q, want LOADING", got.State)
	}

	m.snap = auth.Snapshot{State: status.Unauthenticated}
	b.Emit(bus.SessionStatusChanged, status.StatusChange{From: status.Loading, To: status.Unauthenticated})
	if got := stream.next(t); got.State != "UNAUTHENTICATED" {
		t.Errorf("second status = %q, want UNAUTHENTICATED", got.State)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WatchStatus() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WatchStatus did not return after cancel")
	}
}

func TestSessionServiceSignInFederated(t *testing.T) {
	m := &fakeManager{prompts: []auth.DevicePrompt{{UserCode: "ABCD-EFGH", VerificationURI: "https://idp.example/device"}}}
	svc := NewSessionService("main", m, bus.New())
	stream := newFakeStream[SignInEvent](context.Background())

	if err := svc.SignInFederated(&Empty{}, stream); err != nil {
		t.Fatalf("SignInFederated() error = %v", err)
	}
	if len(stream.sent) != 2 {
		t.Fatalf("sent %d events, want 2", len(stream.sent))
	}
	if stream.sent[0].Prompt == nil || stream.sent[0].Prompt.UserCode != "ABCD-EFGH" {
		t.Errorf("first event = %+v", stream.sent[0])
	}
	if stream.sent[1].Identity == nil || stream.sent[1].Identity.ID != "oidc|1" {
		t.Errorf("second event = %+v", stream.sent[1])
	}
}

func TestSessionServiceSignInFederatedFailure(t *testing.T) {
	m := &fakeManager{signInErr: auth.ErrFederatedSignIn}
	svc := NewSessionService("main", m, bus.New())
	stream := newFakeStream[SignInEvent](context.Background())

	err := svc.SignInFederated(&Empty{}, stream)
	if !errors.Is(err, auth.ErrFederatedSignIn) {
		t.Errorf("SignInFederated() error = %v", err)
	}
	if len(stream.sent) != 0 {
		t.Errorf("sent %d events on failure", len(stream.sent))
	}
}

func TestSessionServicePhoneFlow(t *testing.T) {
	m := &fakeManager{}
	svc := NewSessionService("main", m, bus.New())
	ctx := context.Background()

	resp, err := svc.BeginPhoneSignIn(ctx, &PhoneRequest{Phone: "08123456789"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.PhoneNumber != "+628123456789" {
		t.Errorf("PhoneNumber = %q", resp.PhoneNumber)
	}
	id, err := svc.ConfirmPhoneCode(ctx, &CodeRequest{Code: "123456"})
	if err != nil {
		t.Fatal(err)
	}
	if id.Identity.ID != "phone|x" {
		t.Errorf("identity = %+v", id.Identity)
	}

	m.confirmErr = auth.ErrVerificationRejected
	if _, err := svc.ConfirmPhoneCode(ctx, &CodeRequest{Code: "000000"}); !errors.Is(err, auth.ErrVerificationRejected) {
		t.Errorf("ConfirmPhoneCode() error = %v", err)
	}
	if _, err := svc.AbandonVerification(ctx, &Empty{}); !errors.Is(err, auth.ErrNoActiveChallenge) {
		t.Errorf("AbandonVerification() error = %v", err)
	}
}

type fakeMessages struct {
	msgs []store.Message
	err  error
}

func (f *fakeMessages) Messages() []store.Message { return f.msgs }
func (f *fakeMessages) Ready() bool               { return f.msgs != nil }
func (f *fakeMessages) Err() error                { return f.err }

type fakeRoster struct {
	profiles []store.UserProfile
}

func (f *fakeRoster) View() intsync.RosterView { return intsync.Partition(f.profiles) }
func (f *fakeRoster) Ready() bool              { return true }
func (f *fakeRoster) Err() error               { return nil }
func (f *fakeRoster) IsAdmin(email string) bool {
	for _, p := range f.profiles {
		if p.Email == email && p.IsAdmin() {
			return true
		}
	}
	return false
}

type fakeSender struct {
	got outbox.Request
	err error
}

func (f *fakeSender) Send(_ context.Context, req outbox.Request) (string, error) {
	f.got = req
	if f.err != nil {
		return "", f.err
	}
	if req.Empty() {
		return "", nil
	}
	return "msg-1", nil
}

type echoGenerator struct {
	prompt string
}

func (g *echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return "summary", nil
}

type fakeGate struct {
	signedOut atomic.Bool
}

func (g *fakeGate) Identity() (auth.Identity, error) {
	if g.signedOut.Load() {
		return auth.Identity{}, auth.ErrNotAuthenticated
	}
	return auth.Identity{ID: "1", DisplayName: "Ana", Email: "ana@example.com"}, nil
}

func newChatFixture() (*ChatService, *fakeMessages, *fakeSender, *echoGenerator, *bus.Bus) {
	svc, msgs, sender, gen, b, _ := newGatedChatFixture()
	return svc, msgs, sender, gen, b
}

func newGatedChatFixture() (*ChatService, *fakeMessages, *fakeSender, *echoGenerator, *bus.Bus, *fakeGate) {
	msgs := &fakeMessages{msgs: []store.Message{
		{ID: "a", Author: "Ana", AuthorEmail: "ana@example.com", Body: "hi", Timestamp: 1},
		{ID: "b", Author: "Budi", Body: "", Attachment: &store.Attachment{Name: "cat.png", Size: 3, URL: "file:///cat.png"}, Timestamp: 2},
	}}
	roster := &fakeRoster{profiles: []store.UserProfile{
		{ID: "1", Name: "Ana", Email: "ana@example.com", Status: store.StatusOnline, Role: store.RoleAdmin},
		{ID: "2", Name: "Budi", Status: store.StatusOffline},
	}}
	sender := &fakeSender{}
	gen := &echoGenerator{}
	b := bus.New()
	gate := &fakeGate{}
	svc := NewChatService(gate, msgs, roster, sender, summarize.NewService(gen, nil), b)
	return svc, msgs, sender, gen, b, gate
}

func TestChatServiceListMessages(t *testing.T) {
	svc, _, _, _, _ := newChatFixture()

	view, err := svc.ListMessages(context.Background(), &Empty{})
	if err != nil {
		t.Fatal(err)
	}
	if !view.Ready || len(view.Messages) != 2 {
		t.Fatalf("view = %+v", view)
	}
	if !view.Messages[0].Admin {
		t.Error("message from admin profile should carry the admin flag")
	}
	if view.Messages[1].Attachment == nil || view.Messages[1].Attachment.Name != "cat.png" {
		t.Errorf("attachment = %+v", view.Messages[1].Attachment)
	}
}

func TestChatServiceListMessagesKeepsSnapshotOnError(t *testing.T) {
	svc, msgs, _, _, _ := newChatFixture()
	msgs.err = errors.New("subscription dropped")

	view, _ := svc.ListMessages(context.Background(), &Empty{})
	if len(view.Messages) != 2 || view.Error != "subscription dropped" {
		t.Errorf("view = %+v", view)
	}
}

func TestChatServiceListRoster(t *testing.T) {
	svc, _, _, _, _ := newChatFixture()

	r, err := svc.ListRoster(context.Background(), &Empty{})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Online) != 1 || len(r.Offline) != 1 {
		t.Fatalf("roster = %+v", r)
	}
	if !r.Online[0].Admin || r.Offline[0].Admin {
		t.Errorf("admin flags wrong: %+v", r)
	}
}

func TestChatServiceWatchMessages(t *testing.T) {
	svc, msgs, _, _, b := newChatFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := newFakeStream[Messages](ctx)
	go func() { _ = svc.WatchMessages(&Empty{}, stream) }()

	if got := stream.next(t); len(got.Messages) != 2 {
		t.Fatalf("initial view has %d messages", len(got.Messages))
	}
	msgs.msgs = append(msgs.msgs, store.Message{ID: "c", Author: "Ana", Body: "new", Timestamp: 3})
	b.Emit(bus.MessagesSnapshot, msgs.msgs)
	if got := stream.next(t); len(got.Messages) != 3 {
		t.Errorf("updated view has %d messages, want 3", len(got.Messages))
	}
}

func TestChatServiceSendMessage(t *testing.T) {
	svc, _, sender, _, _ := newChatFixture()
	ctx := context.Background()

	resp, err := svc.SendMessage(ctx, &SendRequest{Body: "hello"})
	if err != nil || resp.ID != "msg-1" {
		t.Fatalf("SendMessage() = %+v, %v", resp, err)
	}

	resp, err = svc.SendMessage(ctx, &SendRequest{Body: "   "})
	if err != nil || resp.ID != "" {
		t.Errorf("empty SendMessage() = %+v, %v", resp, err)
	}

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("abc"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SendMessage(ctx, &SendRequest{FilePath: path}); err != nil {
		t.Fatal(err)
	}
	if sender.got.File == nil || sender.got.File.Name != "notes.txt" || sender.got.File.Size != 3 {
		t.Errorf("file = %+v", sender.got.File)
	}

	_, err = svc.SendMessage(ctx, &SendRequest{FilePath: filepath.Join(t.TempDir(), "missing")})
	if Classify(err) != KindValidation {
		t.Errorf("missing file error = %v, want validation", err)
	}

	sender.err = outbox.ErrSendInFlight
	if _, err := svc.SendMessage(ctx, &SendRequest{Body: "again"}); !errors.Is(err, outbox.ErrSendInFlight) {
		t.Errorf("SendMessage() error = %v", err)
	}
}

func TestChatServiceSummarize(t *testing.T) {
	svc, _, _, gen, _ := newChatFixture()
	ctx := context.Background()

	if _, err := svc.Summarize(ctx, &SummarizeRequest{Discussion: "  "}); !errors.Is(err, summarize.ErrInvalidInput) {
		t.Errorf("Summarize(blank) error = %v", err)
	}

	resp, err := svc.SummarizeDiscussion(ctx, &Empty{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Summary != "summary" {
		t.Errorf("Summary = %q", resp.Summary)
	}
	if gen.prompt == "" {
		t.Error("generator was not called")
	}
}

func TestChatServiceRequiresSignedInSession(t *testing.T) {
	svc, _, _, gen, _, gate := newGatedChatFixture()
	gate.signedOut.Store(true)
	ctx := context.Background()

	if view, err := svc.ListMessages(ctx, &Empty{}); !errors.Is(err, auth.ErrNotAuthenticated) || view != nil {
		t.Errorf("ListMessages() = %+v, %v; want ErrNotAuthenticated", view, err)
	}
	if r, err := svc.ListRoster(ctx, &Empty{}); !errors.Is(err, auth.ErrNotAuthenticated) || r != nil {
		t.Errorf("ListRoster() = %+v, %v; want ErrNotAuthenticated", r, err)
	}
	if _, err := svc.Summarize(ctx, &SummarizeRequest{Discussion: "Ana: hi"}); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Errorf("Summarize() error = %v", err)
	}
	if _, err := svc.SummarizeDiscussion(ctx, &Empty{}); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Errorf("SummarizeDiscussion() error = %v", err)
	}
	if gen.prompt != "" {
		t.Error("generator called without a session")
	}
	if err := svc.WatchRoster(&Empty{}, newFakeStream[Roster](ctx)); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Errorf("WatchRoster() error = %v", err)
	}
}

func TestChatServiceWatchMessagesEndsOnSignOut(t *testing.T) {
	svc, _, _, _, b, gate := newGatedChatFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := newFakeStream[Messages](ctx)
	done := make(chan error, 1)
	go func() { done <- svc.WatchMessages(&Empty{}, stream) }()

	if got := stream.next(t); len(got.Messages) != 2 {
		t.Fatalf("initial view has %d messages", len(got.Messages))
	}

	gate.signedOut.Store(true)
	b.Emit(bus.SessionStatusChanged, status.StatusChange{From: status.Authenticated, To: status.Unauthenticated})

	select {
	case err := <-done:
		if !errors.Is(err, auth.ErrNotAuthenticated) {
			t.Errorf("WatchMessages() error = %v, want ErrNotAuthenticated", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WatchMessages did not end after sign-out")
	}
}
