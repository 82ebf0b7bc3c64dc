package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/matheus3301/chitchat/internal/fanout"
)

// AppendMessage writes a new message. The id, sequence and timestamp come from
// the store, never from the caller's clock.
func (db *DB) AppendMessage(ctx context.Context, in NewMessage) (*Message, error) {
	m := Message{
		ID:          uuid.NewString(),
		Author:      in.Author,
		AuthorEmail: in.AuthorEmail,
		AvatarURL:   in.AvatarURL,
		Body:        in.Body,
		Attachment:  in.Attachment,
	}
	if !m.HasContent() {
		return nil, fmt.Errorf("%w: message has neither text nor attachment", ErrInvalidRecord)
	}

	var attName, attSize, attURL any
	if a := m.Attachment; a != nil {
		attName, attSize, attURL = a.Name, a.Size, a.URL
	}

	err := db.QueryRowContext(ctx, `
		INSERT INTO messages (id, author, author_email, avatar_url, body, attachment_name, attachment_size, attachment_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq, created_at`,
		m.ID, m.Author, m.AuthorEmail, m.AvatarURL, m.Body, attName, attSize, attURL,
	).Scan(&m.Seq, &m.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	db.notify(fanout.Messages)
	return &m, nil
}

// ListMessages returns the full message collection in server order.
func (db *DB) ListMessages(ctx context.Context) ([]Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seq, id, author, author_email, avatar_url, body,
		       attachment_name, attachment_size, attachment_url, created_at
		FROM messages
		ORDER BY created_at ASC, seq ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var (
			m       Message
			attName sql.NullString
			attSize sql.NullInt64
			attURL  sql.NullString
		)
		if err := rows.Scan(&m.Seq, &m.ID, &m.Author, &m.AuthorEmail, &m.AvatarURL, &m.Body,
			&attName, &attSize, &attURL, &m.Timestamp); err != nil {
			return nil, err
		}
		if attURL.Valid {
			m.Attachment = &Attachment{Name: attName.String, Size: attSize.Int64, URL: attURL.String}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
