// Package chat answers questions about ingested documents, keeping per-session history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/domain"
	"github.com/kailas-cloud/pdfchat/internal/domain/conversation"
	"github.com/kailas-cloud/pdfchat/internal/domain/retrieval"
)

// Answer is a generated reply and the sources it was grounded on.
type Answer struct {
	Text     string
	Sources  []string          // "Document: X, Page: Y"
	Matches  []retrieval.Match // the shaped sources behind Sources, same order
	Grounded bool
}

// Service wires retrieval, generation and conversation history.
type Service struct {
	retriever Retriever
	generator Generator
	sessions  *conversation.Store
	topK      int
	logger    *zap.Logger
}

// New creates a chat service. topK <= 0 lets the retriever pick its default.
func New(retriever Retriever, generator Generator, sessions *conversation.Store, topK int, logger *zap.Logger) *Service {
	return &Service{
		retriever: retriever,
		generator: generator,
		sessions:  sessions,
		topK:      topK,
		logger:    logger,
	}
}

// Ask answers question within sessionID. Retrieval or generation failures are returned
// as errors and leave the history untouched.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, domain.NewValidationError("query", "must not be empty")
	}

	outcome, err := s.retriever.Retrieve(ctx, question, s.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve: %w", err)
	}

	matches := outcome.Matches()
	chunks := make([]string, len(matches))
	for i, m := range matches {
		chunks[i] = m.Content
	}

	history := s.sessions.Session(sessionID)
	text, err := s.generator.Generate(ctx, question, chunks, history.Turns())
	if err != nil {
		if !errors.Is(err, domain.ErrProvider) {
			err = fmt.Errorf("%w: %w", domain.ErrProvider, err)
		}
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	history.Record(question, text)

	s.logger.Debug("Question answered",
		zap.String("session", sessionID),
		zap.String("outcome", outcome.Kind().String()),
		zap.Int("sources", len(chunks)),
	)

	return Answer{
		Text:     text,
		Sources:  outcome.Citations(),
		Matches:  matches,
		Grounded: outcome.Kind() == retrieval.KindGrounded,
	}, nil
}

// Reset clears a session's history.
func (s *Service) Reset(sessionID string) {
	s.sessions.Reset(sessionID)
}
