package outbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chitchat/internal/attachment"
	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/bus"
	"github.com/matheus3301/chitchat/internal/store"
)

type mockAppender struct {
	mu    sync.Mutex
	calls []store.NewMessage
	err   error
}

func (m *mockAppender) AppendMessage(_ context.Context, in store.NewMessage) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, in)
	if m.err != nil {
		return nil, m.err
	}
	return &store.Message{ID: "msg-1", Body: in.Body, Attachment: in.Attachment}, nil
}

func (m *mockAppender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockUploader struct {
	calls   int
	err     error
	release chan struct{} // blocks Upload until closed when set
	started chan struct{}
}

func (m *mockUploader) Upload(_ context.Context, f attachment.File) (*store.Attachment, error) {
	m.calls++
	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	if m.err != nil {
		return nil, m.err
	}
	return &store.Attachment{Name: f.Name, Size: f.Size, URL: "https://files.example.com/" + f.Name}, nil
}

type staticIdentity struct {
	id  auth.Identity
	err error
}

func (s staticIdentity) Identity() (auth.Identity, error) { return s.id, s.err }

var ana = staticIdentity{id: auth.Identity{ID: "u1", DisplayName: "Ana", Email: "ana@example.com"}}

func sizedFile(name string, size int64) *attachment.File {
	return &attachment.File{
		Name: name,
		Size: size,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(nil)), nil },
	}
}

func TestBlankSubmissionIsNoOp(t *testing.T) {
	app := &mockAppender{}
	up := &mockUploader{}
	p := NewPipeline(app, up, ana, nil, nil)

	for _, body := range []string{"", "   ", "\n\t"} {
		id, err := p.Send(context.Background(), Request{Body: body})
		if err != nil || id != "" {
			t.Errorf("Send(%q) = (%q, %v), want no-op", body, id, err)
		}
	}
	if app.count() != 0 || up.calls != 0 {
		t.Errorf("blank submission wrote: appends=%d uploads=%d", app.count(), up.calls)
	}
}

func TestSendTextMessage(t *testing.T) {
	app := &mockAppender{}
	b := bus.New()
	ch, unsub := b.Subscribe(bus.OutboxSendAck, 1)
	defer unsub()

	p := NewPipeline(app, nil, ana, b, nil)
	id, err := p.Send(context.Background(), Request{Body: "  hello  "})
	if err != nil {
		t.Fatal(err)
	}
	if id != "msg-1" {
		t.Errorf("id = %q", id)
	}
	got := app.calls[0]
	if got.Body != "hello" || got.Author != "Ana" || got.AuthorEmail != "ana@example.com" || got.Attachment != nil {
		t.Errorf("appended %+v", got)
	}

	select {
	case evt := <-ch:
		if ack := evt.Payload.(Ack); ack.ID != "msg-1" {
			t.Errorf("ack = %+v", ack)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for send_ack")
	}
}

func TestFileSizeBoundary(t *testing.T) {
	tests := []struct {
		size    int64
		wantErr error
	}{
		{10485760, nil},
		{10485761, ErrFileTooLarge},
	}
	for _, tt := range tests {
		app := &mockAppender{}
		up := &mockUploader{}
		p := NewPipeline(app, up, ana, nil, nil)

		_, err := p.Send(context.Background(), Request{File: sizedFile("big.bin", tt.size)})
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("size %d: err = %v, want %v", tt.size, err, tt.wantErr)
		}
		if tt.wantErr != nil {
			if up.calls != 0 || app.count() != 0 {
				t.Errorf("size %d: oversized file reached the network", tt.size)
			}
			if errors.Is(err, ErrSendFailed) {
				t.Errorf("size %d: oversized file reported as SendFailed", tt.size)
			}
		} else if up.calls != 1 || app.count() != 1 {
			t.Errorf("size %d: uploads=%d appends=%d, want 1 each", tt.size, up.calls, app.count())
		}
	}
}

func TestFileOnlyMessage(t *testing.T) {
	app := &mockAppender{}
	p := NewPipeline(app, &mockUploader{}, ana, nil, nil)
	if _, err := p.Send(context.Background(), Request{File: sizedFile("notes.pdf", 10)}); err != nil {
		t.Fatal(err)
	}
	got := app.calls[0]
	if got.Body != "" || got.Attachment == nil || got.Attachment.URL != "https://files.example.com/notes.pdf" {
		t.Errorf("appended %+v", got)
	}
}

func TestUploadFailureWritesNothing(t *testing.T) {
	app := &mockAppender{}
	b := bus.New()
	ch, unsub := b.Subscribe(bus.OutboxSendFailed, 1)
	defer unsub()

	p := NewPipeline(app, &mockUploader{err: errors.New("network down")}, ana, b, nil)
	_, err := p.Send(context.Background(), Request{Body: "see file", File: sizedFile("a.txt", 1)})
	if !errors.Is(err, ErrSendFailed) || !errors.Is(err, ErrUploadFailed) {
		t.Errorf("err = %v, want SendFailed and UploadFailed", err)
	}
	if app.count() != 0 {
		t.Error("message appended after failed upload")
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for send_failed")
	}
}

func TestAppendFailure(t *testing.T) {
	p := NewPipeline(&mockAppender{err: errors.New("permission denied")}, nil, ana, nil, nil)
	_, err := p.Send(context.Background(), Request{Body: "hi"})
	if !errors.Is(err, ErrSendFailed) {
		t.Errorf("err = %v, want ErrSendFailed", err)
	}
	if p.InFlight() {
		t.Error("guard not released after failure")
	}
}

func TestNotAuthenticated(t *testing.T) {
	app := &mockAppender{}
	p := NewPipeline(app, nil, staticIdentity{err: auth.ErrNotAuthenticated}, nil, nil)
	_, err := p.Send(context.Background(), Request{Body: "hi"})
	if !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
	if app.count() != 0 {
		t.Error("unauthenticated send appended")
	}
}

func TestDuplicateSubmitWhileInFlight(t *testing.T) {
	app := &mockAppender{}
	up := &mockUploader{release: make(chan struct{}), started: make(chan struct{})}
	p := NewPipeline(app, up, ana, nil, nil)
	req := Request{Body: "once", File: sizedFile("a.txt", 1)}

	done := make(chan error, 1)
	go func() {
		_, err := p.Send(context.Background(), req)
		done <- err
	}()
	<-up.started

	if _, err := p.Send(context.Background(), req); !errors.Is(err, ErrSendInFlight) {
		t.Errorf("second submit err = %v, want ErrSendInFlight", err)
	}
	close(up.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if app.count() != 1 {
		t.Errorf("appends = %d, want exactly 1", app.count())
	}
}

func TestAuthorName(t *testing.T) {
	tests := []struct {
		id   auth.Identity
		want string
	}{
		{auth.Identity{DisplayName: "Ana", Email: "ana@example.com"}, "Ana"},
		{auth.Identity{Email: "ana@example.com"}, "ana@example.com"},
		{auth.Identity{DisplayName: "  "}, "Anonymous"},
		{auth.Identity{}, "Anonymous"},
	}
	for _, tt := range tests {
		if got := AuthorName(tt.id); got != tt.want {
			t.Errorf("AuthorName(%+v) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestSentMessagesAppearInStoreOrder(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	p := NewPipeline(db, nil, ana, nil, nil)
	ctx := context.Background()
	var ids []string
	for _, body := range []string{"one", "two", "three"} {
		id, err := p.Send(ctx, Request{Body: body})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	msgs, err := db.ListMessages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != len(ids) {
		t.Fatalf("stored %d messages, want %d", len(msgs), len(ids))
	}
	for i, m := range msgs {
		if m.ID != ids[i] {
			t.Errorf("msgs[%d].ID = %s, want %s", i, m.ID, ids[i])
		}
	}
}
