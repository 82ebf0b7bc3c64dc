// Package summarize produces a summary of the visible discussion. Generation is
// delegated to a hosted model; this package validates input and classifies
// failures.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/chitchat/internal/store"
)

var (
	ErrInvalidInput        = errors.New("discussion is empty")
	ErrSummarizationFailed = errors.New("failed to generate summary")
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service summarizes discussions with one generator call per request.
type Service struct {
	gen    Generator
	logger *zap.Logger
}

// NewService creates a service over gen.
func NewService(gen Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gen: gen, logger: logger}
}

// Summarize returns a concise summary of discussion.
func (s *Service) Summarize(ctx context.Context, discussion string) (string, error) {
	if strings.TrimSpace(discussion) == "" {
		return "", ErrInvalidInput
	}
	if s.gen == nil {
		return "", fmt.Errorf("%w: no summarizer configured", ErrSummarizationFailed)
	}

	out, err := s.gen.Generate(ctx, Prompt(discussion))
	if err != nil {
		s.logger.Warn("summarization failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrSummarizationFailed, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty response", ErrSummarizationFailed)
	}
	return out, nil
}

// Prompt wraps discussion in the summarization instruction.
func Prompt(discussion string) string {
	return "You are an AI assistant tasked with summarizing long discussions in group chats. " +
		"Please provide a concise and informative summary of the following discussion:\n\n" + discussion
}

// Discussion renders messages as "author: text" lines. Messages with only a
// file render as "[file: name]".
func Discussion(msgs []store.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		text := strings.TrimSpace(m.Body)
		if m.Attachment != nil {
			file := "[file: " + m.Attachment.Name + "]"
			if text == "" {
				text = file
			} else {
				text += " " + file
			}
		}
		if text == "" {
			continue
		}
		author := m.Author
		if author == "" {
			author = "Anonymous"
		}
		b.WriteString(author)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}
