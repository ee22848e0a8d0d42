// Package langchain answers questions through a langchaingo chat model.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/domain"
	"github.com/kailas-cloud/pdfchat/internal/domain/conversation"
)

// DefaultSystemPrompt frames every conversation.
const DefaultSystemPrompt = "You are a helpful assistant for questions about the user's PDF documents. " +
	"When context excerpts are provided, answer from them and say so if they do not contain the answer. " +
	"Otherwise answer conversationally and briefly."

// Config holds the language model settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float64
	SystemPrompt string
}

// Generator builds the chat prompt and calls the model.
type Generator struct {
	model        llms.Model
	temperature  float64
	systemPrompt string
	logger       *zap.Logger
}

// NewGenerator creates a Generator backed by an OpenAI-compatible chat endpoint.
func NewGenerator(cfg Config, logger *zap.Logger) (*Generator, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return NewGeneratorWithModel(llm, cfg.Temperature, cfg.SystemPrompt, logger), nil
}

// NewGeneratorWithModel wraps any langchaingo model.
func NewGeneratorWithModel(model llms.Model, temperature float64, systemPrompt string, logger *zap.Logger) *Generator {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Generator{model: model, temperature: temperature, systemPrompt: systemPrompt, logger: logger}
}

// Generate answers question. Empty contextChunks means the general-conversation path.
func (g *Generator) Generate(
	ctx context.Context, question string, contextChunks []string, history []conversation.Turn,
) (string, error) {
	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, g.messages(question, contextChunks, history),
		llms.WithTemperature(g.temperature))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("generate answer: %w: %w", domain.ErrProvider, err)
		}
		return "", fmt.Errorf("generate answer: %w: %v", domain.ErrProvider, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fmt.Errorf("generate answer: empty completion: %w", domain.ErrProvider)
	}

	g.logger.Debug("Answer generated",
		zap.Int("context_chunks", len(contextChunks)),
		zap.Int("history_turns", len(history)),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.Choices[0].Content, nil
}

// messages lays out system prompt, prior turns, then the question with numbered context.
func (g *Generator) messages(question string, contextChunks []string, history []conversation.Turn) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, 2+2*len(history))
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, g.systemPrompt))
	for _, t := range history {
		msgs = append(msgs,
			llms.TextParts(llms.ChatMessageTypeHuman, t.Question),
			llms.TextParts(llms.ChatMessageTypeAI, t.Answer),
		)
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, userMessage(question, contextChunks)))
}

func userMessage(question string, contextChunks []string) string {
	if len(contextChunks) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nContext:\n")
	for i, c := range contextChunks {
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	return b.String()
}
