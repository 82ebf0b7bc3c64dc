// Package outbox sends new messages: an optional file is uploaded first, then
// the message referencing it is appended to the collection. The local view is
// never touched; it changes when the message stream delivers the new record.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/matheus3301/chitchat/internal/attachment"
	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/store"
)

// MaxFileSize is the largest file that may be attached, in bytes.
const MaxFileSize = attachment.MaxSize

var (
	ErrFileTooLarge = errors.New("file too large: the limit is 10 MiB")
	ErrUploadFailed = errors.New("upload failed")
	ErrSendFailed   = errors.New("send failed")
	ErrSendInFlight = errors.New("a send is already in progress")
)

// Appender writes to the message collection.
type Appender interface {
	AppendMessage(ctx context.Context, in store.NewMessage) (*store.Message, error)
}

// Uploader stores a file and returns its reference.
type Uploader interface {
	Upload(ctx context.Context, f attachment.File) (*store.Attachment, error)
}

// IdentitySource returns the signed-in identity.
type IdentitySource interface {
	Identity() (auth.Identity, error)
}

// Request is one user submission.
type Request struct {
	Body string
	File *attachment.File
}

// Empty reports whether there is nothing to send.
func (r Request) Empty() bool {
	return strings.TrimSpace(r.Body) == "" && r.File == nil
}

// Ack is the payload of outbox.send_ack.
type Ack struct {
	ID string `json:"id"`
}

// Failure is the payload of outbox.send_failed.
type Failure struct {
	Error string `json:"error"`
}

// Pipeline sends one message at a time.
type Pipeline struct {
	appender Appender
	uploader Uploader
	identity IdentitySource
	bus      *bus.Bus
	logger   *zap.Logger

	inFlight atomic.Bool
}

// NewPipeline creates a pipeline. uploader may be nil when attachments are disabled.
func NewPipeline(a Appender, u Uploader, id IdentitySource, b *bus.Bus, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{appender: a, uploader: u, identity: id, bus: b, logger: logger}
}

// InFlight reports whether a send is in progress.
func (p *Pipeline) InFlight() bool { return p.inFlight.Load() }

// Send validates, uploads and appends. It returns the id of the written
// message, or "" when the request was empty. A second call while one is in
// progress fails with ErrSendInFlight.
func (p *Pipeline) Send(ctx context.Context, req Request) (string, error) {
	if req.Empty() {
		return "", nil
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return "", ErrSendInFlight
	}
	defer p.inFlight.Store(false)

	id, err := p.identity.Identity()
	if err != nil {
		return "", err
	}
	if req.File != nil && req.File.Size > MaxFileSize {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, req.File.Name, req.File.Size)
	}

	msg, err := p.send(ctx, id, req)
	if err != nil {
		p.logger.Warn("send failed", zap.Error(err))
		p.bus.Emit(bus.OutboxSendFailed, Failure{Error: err.Error()})
		return "", err
	}
	p.logger.Info("message sent", zap.String("id", msg.ID), zap.Bool("attachment", msg.Attachment != nil))
	p.bus.Emit(bus.OutboxSendAck, Ack{ID: msg.ID})
	return msg.ID, nil
}

func (p *Pipeline) send(ctx context.Context, id auth.Identity, req Request) (*store.Message, error) {
	var att *store.Attachment
	if req.File != nil {
		if p.uploader == nil {
			return nil, fmt.Errorf("%w: %w: attachments are disabled", ErrSendFailed, ErrUploadFailed)
		}
		var err error
		if att, err = p.uploader.Upload(ctx, *req.File); err != nil {
			return nil, fmt.Errorf("%w: %w: %w", ErrSendFailed, ErrUploadFailed, err)
		}
	}

	msg, err := p.appender.AppendMessage(ctx, store.NewMessage{
		Author:      AuthorName(id),
		AuthorEmail: id.Email,
		AvatarURL:   id.AvatarURL,
		Body:        strings.TrimSpace(req.Body),
		Attachment:  att,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return msg, nil
}

// AuthorName is the display name, else the email, else "Anonymous".
func AuthorName(id auth.Identity) string {
	if n := strings.TrimSpace(id.DisplayName); n != "" {
		return n
	}
	if e := strings.TrimSpace(id.Email); e != "" {
		return e
	}
	return "Anonymous"
}
