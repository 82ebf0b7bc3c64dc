package api

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/bus"
)

// SessionManager is the part of auth.Manager the session service drives.
type SessionManager interface {
	Snapshot() auth.Snapshot
	Identity() (auth.Identity, error)
	SignInFederated(ctx context.Context, prompt func(auth.DevicePrompt)) error
	AttachChallenge(ctx context.Context) error
	BeginPhoneSignIn(ctx context.Context, phone string) (string, error)
	ConfirmPhoneCode(ctx context.Context, code string) (*auth.Identity, error)
	AbandonVerification() error
	SignOut(ctx context.Context) error
}

// SessionService implements SessionServer.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	manager     SessionManager
	bus         *bus.Bus
}

var _ SessionServer = (*SessionService)(nil)

// NewSessionService creates a new session service.
func NewSessionService(sessionName string, m SessionManager, b *bus.Bus) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		manager:     m,
		bus:         b,
	}
}

func (s *SessionService) status() *Status {
	snap := s.manager.Snapshot()
	return &Status{
		Session:     s.sessionName,
		State:       string(snap.State),
		Identity:    snap.Identity,
		PhoneNumber: snap.PhoneNumber,
		UptimeMs:    time.Since(s.startedAt).Milliseconds(),
	}
}

func (s *SessionService) GetStatus(context.Context, *Empty) (*Status, error) {
	return s.status(), nil
}

// WatchStatus sends the current status, then one status per transition.
func (s *SessionService) WatchStatus(_ *Empty, stream Stream[Status]) error {
	ch, unsub := s.bus.Subscribe(bus.SessionStatusChanged, 16)
	defer unsub()

	if err := stream.Send(s.status()); err != nil {
		return err
	}
	for {
		select {
		case <-ch:
			if err := stream.Send(s.status()); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *SessionService) AttachChallenge(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.manager.AttachChallenge(ctx); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// SignInFederated streams the device prompt, then the signed-in identity.
func (s *SessionService) SignInFederated(_ *Empty, stream Stream[SignInEvent]) error {
	var (
		mu      sync.Mutex
		sendErr error
	)
	prompt := func(p auth.DevicePrompt) {
		mu.Lock()
		defer mu.Unlock()
		if sendErr == nil {
			sendErr = stream.Send(&SignInEvent{Prompt: &p})
		}
	}
	if err := s.manager.SignInFederated(stream.Context(), prompt); err != nil {
		return err
	}
	mu.Lock()
	err := sendErr
	mu.Unlock()
	if err != nil {
		return err
	}

	id, err := s.manager.Identity()
	if err != nil {
		return err
	}
	return stream.Send(&SignInEvent{Identity: &id})
}

func (s *SessionService) BeginPhoneSignIn(ctx context.Context, req *PhoneRequest) (*PhoneResponse, error) {
	e164, err := s.manager.BeginPhoneSignIn(ctx, req.Phone)
	if err != nil {
		return nil, err
	}
	return &PhoneResponse{PhoneNumber: e164}, nil
}

func (s *SessionService) ConfirmPhoneCode(ctx context.Context, req *CodeRequest) (*IdentityResponse, error) {
	id, err := s.manager.ConfirmPhoneCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	return &IdentityResponse{Identity: id}, nil
}

func (s *SessionService) AbandonVerification(context.Context, *Empty) (*Empty, error) {
	if err := s.manager.AbandonVerification(); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *SessionService) SignOut(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.manager.SignOut(ctx); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}
