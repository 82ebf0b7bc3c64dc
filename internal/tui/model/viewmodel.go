package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/matheus3301/chitchat/internal/api"
	"github.com/matheus3301/chitchat/internal/attachment"
	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/outbox"
)

// Backend is the daemon API the TUI drives. *client.Client implements it.
type Backend interface {
	AttachChallenge(ctx context.Context) error
	SignInFederated(ctx context.Context, onPrompt func(auth.DevicePrompt)) (*auth.Identity, error)
	BeginPhoneSignIn(ctx context.Context, phone string) (string, error)
	ConfirmPhoneCode(ctx context.Context, code string) (*auth.Identity, error)
	AbandonVerification(ctx context.Context) error
	SignOut(ctx context.Context) error
	Send(ctx context.Context, body, filePath string) (string, error)
	SummarizeDiscussion(ctx context.Context) (string, error)
}

// Draft is the composer content.
type Draft struct {
	Body     string
	FilePath string
	FileName string
	FileSize int64
}

// Empty reports whether there is nothing to send.
func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Body) == "" && d.FilePath == ""
}

// ViewModel caches what the daemon streams and holds the composer draft.
type ViewModel struct {
	mu sync.RWMutex

	backend  Backend
	status   *api.Status
	messages *api.Messages
	roster   *api.Roster
	phone    string
	draft    Draft
	sending  bool

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon.
func NewViewModel(b Backend) *ViewModel {
	return &ViewModel{
		backend:   b,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// SetStatus records a status received from the daemon.
func (vm *ViewModel) SetStatus(s *api.Status) {
	vm.mu.Lock()
	vm.status = s
	if s != nil && s.PhoneNumber != "" {
		vm.phone = s.PhoneNumber
	}
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Status returns the last known status, or nil.
func (vm *ViewModel) Status() *api.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// SetMessages records a message view.
func (vm *ViewModel) SetMessages(m *api.Messages) {
	vm.mu.Lock()
	vm.messages = m
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Messages returns the last message view, or nil.
func (vm *ViewModel) Messages() *api.Messages {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// SetRoster records a roster view.
func (vm *ViewModel) SetRoster(r *api.Roster) {
	vm.mu.Lock()
	vm.roster = r
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Roster returns the last roster view, or nil.
func (vm *ViewModel) Roster() *api.Roster {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.roster
}

// PendingPhone returns the number a code was sent to.
func (vm *ViewModel) PendingPhone() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.phone
}

// SignInFederated starts a federated sign-in; onPrompt shows the device code.
func (vm *ViewModel) SignInFederated(ctx context.Context, onPrompt func(auth.DevicePrompt)) error {
	_, err := vm.backend.SignInFederated(ctx, onPrompt)
	return err
}

// BeginPhone prepares the challenge and requests a code for phone. It
// returns the normalized number.
func (vm *ViewModel) BeginPhone(ctx context.Context, phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", auth.ErrInvalidPhone
	}
	if err := vm.backend.AttachChallenge(ctx); err != nil {
		return "", err
	}
	e164, err := vm.backend.BeginPhoneSignIn(ctx, phone)
	if err != nil {
		return "", err
	}
	vm.mu.Lock()
	vm.phone = e164
	vm.mu.Unlock()
	return e164, nil
}

// ConfirmCode submits a verification code. Malformed codes are rejected
// without a round trip.
func (vm *ViewModel) ConfirmCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if !auth.ValidCode(code) {
		return auth.ErrInvalidCodeFormat
	}
	_, err := vm.backend.ConfirmPhoneCode(ctx, code)
	return err
}

// AbandonVerification drops a pending code. Having nothing to abandon is fine.
func (vm *ViewModel) AbandonVerification(ctx context.Context) error {
	vm.mu.Lock()
	vm.phone = ""
	vm.mu.Unlock()
	err := vm.backend.AbandonVerification(ctx)
	if kind, _ := api.Describe(err); kind == api.KindContract {
		return nil
	}
	return err
}

// SignOut signs out and forgets cached chat data.
func (vm *ViewModel) SignOut(ctx context.Context) error {
	if err := vm.backend.SignOut(ctx); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.messages = nil
	vm.roster = nil
	vm.draft = Draft{}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Draft returns the composer content.
func (vm *ViewModel) Draft() Draft {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.draft
}

// SetBody replaces the draft text.
func (vm *ViewModel) SetBody(body string) {
	vm.mu.Lock()
	vm.draft.Body = body
	vm.mu.Unlock()
}

// AttachFile selects a file for the next send. Files over the size limit are
// refused right away. The path is made absolute since the daemon reads it.
func (vm *ViewModel) AttachFile(path string) error {
	path, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("%w: %w", api.ErrBadRequest, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", api.ErrBadRequest, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", api.ErrBadRequest, path)
	}
	if info.Size() > attachment.MaxSize {
		return outbox.ErrFileTooLarge
	}
	vm.mu.Lock()
	vm.draft.FilePath = path
	vm.draft.FileName = info.Name()
	vm.draft.FileSize = info.Size()
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if rest, ok := strings.CutPrefix(path, "~"); ok && (rest == "" || rest[0] == '/') {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, rest)
	}
	return filepath.Abs(path)
}

// DetachFile removes the selected file.
func (vm *ViewModel) DetachFile() {
	vm.mu.Lock()
	vm.draft.FilePath, vm.draft.FileName, vm.draft.FileSize = "", "", 0
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Sending reports whether a send is in flight.
func (vm *ViewModel) Sending() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.sending
}

// Send submits the draft. The draft is cleared only when the daemon accepted
// it; on failure it is kept so the user can retry. An empty draft does nothing.
func (vm *ViewModel) Send(ctx context.Context) (string, error) {
	vm.mu.Lock()
	if vm.sending {
		vm.mu.Unlock()
		return "", outbox.ErrSendInFlight
	}
	d := vm.draft
	if d.Empty() {
		vm.mu.Unlock()
		return "", nil
	}
	vm.sending = true
	vm.mu.Unlock()
	vm.signalRefresh()

	id, err := vm.backend.Send(ctx, d.Body, d.FilePath)

	vm.mu.Lock()
	vm.sending = false
	if err == nil && vm.draft == d {
		vm.draft = Draft{}
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return id, err
}

// Summarize asks the daemon to summarize the current discussion.
func (vm *ViewModel) Summarize(ctx context.Context) (string, error) {
	msgs := vm.Messages()
	if msgs == nil || len(msgs.Messages) == 0 {
		return "", errors.New("nothing to summarize yet")
	}
	return vm.backend.SummarizeDiscussion(ctx)
}
