package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRecord is wrapped by every Validate failure.
var ErrInvalidRecord = errors.New("invalid record")

// Profile statuses. Any other value is a free-text presence and counts as online.
const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"
)

// RoleAdmin marks a profile whose messages carry the admin badge.
const RoleAdmin = "admin"

// Attachment is a file reference resolved by a completed upload.
type Attachment struct {
	Name string
	Size int64
	URL  string
}

// Message is a stored chat message. Seq, ID and Timestamp are assigned by the store.
type Message struct {
	Seq         int64
	ID          string
	Author      string
	AuthorEmail string
	AvatarURL   string
	Body        string
	Attachment  *Attachment
	Timestamp   int64 // unix ms, server clock
}

// HasContent reports whether the message carries text or a file.
func (m Message) HasContent() bool {
	return strings.TrimSpace(m.Body) != "" || m.Attachment != nil
}

// Validate checks a record read from the collection.
func (m Message) Validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: message has no id", ErrInvalidRecord)
	case !m.HasContent():
		return fmt.Errorf("%w: message %s has neither text nor attachment", ErrInvalidRecord, m.ID)
	case m.Timestamp <= 0:
		return fmt.Errorf("%w: message %s has no server timestamp", ErrInvalidRecord, m.ID)
	case m.Attachment != nil && (m.Attachment.URL == "" || m.Attachment.Size < 0):
		return fmt.Errorf("%w: message %s has an unresolved attachment", ErrInvalidRecord, m.ID)
	}
	return nil
}

// NewMessage is the client-supplied part of a message.
type NewMessage struct {
	Author      string
	AuthorEmail string
	AvatarURL   string
	Body        string
	Attachment  *Attachment
}

// UserProfile is a roster entry.
type UserProfile struct {
	ID        string
	Name      string
	AvatarURL string
	Email     string
	Status    string
	Role      string
	CreatedAt int64
	UpdatedAt int64
}

// IsOnline reports whether the profile belongs in the online partition.
func (p UserProfile) IsOnline() bool {
	return p.Status != StatusOffline
}

// IsAdmin reports whether the profile has the admin role.
func (p UserProfile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Validate checks a record read from the collection.
func (p UserProfile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: profile has no id", ErrInvalidRecord)
	}
	return nil
}
