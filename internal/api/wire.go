package api

import (
	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/store"
	intsync "github.com/matheus3301/chitchat/internal/sync"
)

// Empty is the request or response of calls that carry nothing.
type Empty struct{}

// Status describes the session.
type Status struct {
	Session     string         `json:"session"`
	State       string         `json:"state"`
	Identity    *auth.Identity `json:"identity,omitempty"`
	PhoneNumber string         `json:"phone_number,omitempty"`
	UptimeMs    int64          `json:"uptime_ms"`
}

// SignInEvent is one step of a federated sign-in. Exactly one of Prompt and
// Identity is set.
type SignInEvent struct {
	Prompt   *auth.DevicePrompt `json:"prompt,omitempty"`
	Identity *auth.Identity     `json:"identity,omitempty"`
}

type PhoneRequest struct {
	Phone string `json:"phone"`
}

type PhoneResponse struct {
	PhoneNumber string `json:"phone_number"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

type IdentityResponse struct {
	Identity *auth.Identity `json:"identity"`
}

// Attachment is a message file reference.
type Attachment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Message is a chat message as seen by clients.
type Message struct {
	ID          string      `json:"id"`
	Author      string      `json:"author"`
	AuthorEmail string      `json:"author_email,omitempty"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
	Body        string      `json:"body,omitempty"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	Timestamp   int64       `json:"timestamp"`
	Admin       bool        `json:"admin,omitempty"`
}

// Messages is the message view. Error holds the last stream failure while
// the previous snapshot is kept.
type Messages struct {
	Messages []Message `json:"messages"`
	Ready    bool      `json:"ready"`
	Error    string    `json:"error,omitempty"`
}

// Profile is a roster entry as seen by clients.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Email     string `json:"email,omitempty"`
	Status    string `json:"status"`
	Admin     bool   `json:"admin,omitempty"`
}

// Roster is the partitioned roster view.
type Roster struct {
	Online  []Profile `json:"online"`
	Offline []Profile `json:"offline"`
	Ready   bool      `json:"ready"`
	Error   string    `json:"error,omitempty"`
}

// SendRequest submits a message. FilePath is read by the daemon.
type SendRequest struct {
	Body     string `json:"body,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

type SendResponse struct {
	ID string `json:"id,omitempty"`
}

type SummarizeRequest struct {
	Discussion string `json:"discussion"`
}

type SummarizeResponse struct {
	Summary string `json:"summary"`
}

func messageToWire(m store.Message, isAdmin func(string) bool) Message {
	out := Message{
		ID:          m.ID,
		Author:      m.Author,
		AuthorEmail: m.AuthorEmail,
		AvatarURL:   m.AvatarURL,
		Body:        m.Body,
		Timestamp:   m.Timestamp,
	}
	if m.Attachment != nil {
		out.Attachment = &Attachment{Name: m.Attachment.Name, Size: m.Attachment.Size, URL: m.Attachment.URL}
	}
	if isAdmin != nil {
		out.Admin = isAdmin(m.AuthorEmail)
	}
	return out
}

func profileToWire(p store.UserProfile) Profile {
	return Profile{
		ID:        p.ID,
		Name:      p.Name,
		AvatarURL: p.AvatarURL,
		Email:     p.Email,
		Status:    p.Status,
		Admin:     p.IsAdmin(),
	}
}

func rosterToWire(v intsync.RosterView) Roster {
	out := Roster{
		Online:  make([]Profile, 0, len(v.Online)),
		Offline: make([]Profile, 0, len(v.Offline)),
	}
	for _, p := range v.Online {
		out.Online = append(out.Online, profileToWire(p))
	}
	for _, p := range v.Offline {
		out.Offline = append(out.Offline, profileToWire(p))
	}
	return out
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
