package api

import (
	"context"
	"fmt"

	"github.com/matheus3301/chitchat/internal/attachment"
	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/outbox"
	"github.com/matheus3301/chitchat/internal/store"
	"github.com/matheus3301/chitchat/internal/summarize"
	intsync "github.com/matheus3301/chitchat/internal/sync"
)

// MessageSource is the message synchronizer.
type MessageSource interface {
	Messages() []store.Message
	Ready() bool
	Err() error
}

// RosterSource is the roster synchronizer.
type RosterSource interface {
	View() intsync.RosterView
	Ready() bool
	Err() error
	IsAdmin(email string) bool
}

// Sender is the outgoing message pipeline.
type Sender interface {
	Send(ctx context.Context, req outbox.Request) (string, error)
}

// Summarizer turns discussion text into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, discussion string) (string, error)
}

// Gate reports the signed-in identity, or auth.ErrNotAuthenticated.
type Gate interface {
	Identity() (auth.Identity, error)
}

// ChatService implements ChatServer. Every call requires a signed-in session.
type ChatService struct {
	gate       Gate
	messages   MessageSource
	roster     RosterSource
	sender     Sender
	summarizer Summarizer
	bus        *bus.Bus
}

var _ ChatServer = (*ChatService)(nil)

// NewChatService creates a chat service over the synchronizers and the pipeline.
func NewChatService(gate Gate, messages MessageSource, roster RosterSource, sender Sender, summarizer Summarizer, b *bus.Bus) *ChatService {
	return &ChatService{
		gate:       gate,
		messages:   messages,
		roster:     roster,
		sender:     sender,
		summarizer: summarizer,
		bus:        b,
	}
}

func (s *ChatService) signedIn() error {
	_, err := s.gate.Identity()
	return err
}

func (s *ChatService) messageView() *Messages {
	msgs := s.messages.Messages()
	out := &Messages{
		Messages: make([]Message, 0, len(msgs)),
		Ready:    s.messages.Ready(),
		Error:    errText(s.messages.Err()),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, messageToWire(m, s.roster.IsAdmin))
	}
	return out
}

func (s *ChatService) rosterView() *Roster {
	out := rosterToWire(s.roster.View())
	out.Ready = s.roster.Ready()
	out.Error = errText(s.roster.Err())
	return &out
}

func (s *ChatService) ListMessages(context.Context, *Empty) (*Messages, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	return s.messageView(), nil
}

// WatchMessages sends the current view, then a fresh view after every
// snapshot or stream error. Roster snapshots also resend it since admin
// badges depend on them. The stream ends with ErrNotAuthenticated once the
// session signs out.
func (s *ChatService) WatchMessages(_ *Empty, stream Stream[Messages]) error {
	msgCh, unsubMsgs := s.bus.Subscribe("messages.", 16)
	defer unsubMsgs()
	rosterCh, unsubRoster := s.bus.Subscribe(bus.RosterSnapshot, 4)
	defer unsubRoster()
	sessCh, unsubSess := s.bus.Subscribe(bus.SessionStatusChanged, 4)
	defer unsubSess()

	for {
		if err := s.signedIn(); err != nil {
			return err
		}
		if err := stream.Send(s.messageView()); err != nil {
			return err
		}
		select {
		case <-msgCh:
		case <-rosterCh:
		case <-sessCh:
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *ChatService) ListRoster(context.Context, *Empty) (*Roster, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	return s.rosterView(), nil
}

// WatchRoster sends the current roster, then a fresh one per roster event.
// Like WatchMessages it ends when the session signs out.
func (s *ChatService) WatchRoster(_ *Empty, stream Stream[Roster]) error {
	ch, unsub := s.bus.Subscribe("roster.", 16)
	defer unsub()
	sessCh, unsubSess := s.bus.Subscribe(bus.SessionStatusChanged, 4)
	defer unsubSess()

	for {
		if err := s.signedIn(); err != nil {
			return err
		}
		if err := stream.Send(s.rosterView()); err != nil {
			return err
		}
		select {
		case <-ch:
		case <-sessCh:
		case <-stream.Context().Done():
			return nil
		}
	}
}

// SendMessage submits text and an optional file read from the daemon's
// filesystem. An empty request is a no-op that returns no id.
func (s *ChatService) SendMessage(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	r := outbox.Request{Body: req.Body}
	if req.FilePath != "" {
		f, err := attachment.FromPath(req.FilePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		r.File = &f
	}
	id, err := s.sender.Send(ctx, r)
	if err != nil {
		return nil, err
	}
	return &SendResponse{ID: id}, nil
}

func (s *ChatService) Summarize(ctx context.Context, req *SummarizeRequest) (*SummarizeResponse, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	summary, err := s.summarizer.Summarize(ctx, req.Discussion)
	if err != nil {
		return nil, err
	}
	return &SummarizeResponse{Summary: summary}, nil
}

// SummarizeDiscussion summarizes the messages currently in view.
func (s *ChatService) SummarizeDiscussion(ctx context.Context, _ *Empty) (*SummarizeResponse, error) {
	if err := s.signedIn(); err != nil {
		return nil, err
	}
	return s.Summarize(ctx, &SummarizeRequest{Discussion: summarize.Discussion(s.messages.Messages())})
}
