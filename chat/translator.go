package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const translationInstruction = "You are an expert translator. Translate the following user query into " +
	"formal Nepali language suitable for searching a political party manifesto document. " +
	"If the query is already in Nepali, just clean it up. Only output the translated text, nothing else."

type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Translator rewrites a query into formal Nepali so it lands closer to the
// manifesto text in embedding space.
type Translator struct {
	log    *slog.Logger
	client completionClient
	model  string
}

func NewTranslator(log *slog.Logger, client completionClient, model string) *Translator {
	return &Translator{log: log, client: client, model: model}
}

// Translate never fails: on any error or empty answer it returns the query
// unchanged.
func (t *Translator) Translate(ctx context.Context, query string) string {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: translationInstruction},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	})
	if err != nil {
		t.log.Warn("query translation failed, using original query", "error", err)
		return query
	}
	if len(resp.Choices) == 0 {
		return query
	}

	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translated == "" {
		return query
	}

	return translated
}
