package chat

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

type deltaStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

type streamOpener func(ctx context.Context, req openai.ChatCompletionRequest) (deltaStream, error)

// Streamer relays a streamed chat completion fragment by fragment.
type Streamer struct {
	open        streamOpener
	model       string
	temperature float32
}

func NewStreamer(client *openai.Client, model string, temperature float32) *Streamer {
	return &Streamer{
		open: func(ctx context.Context, req openai.ChatCompletionRequest) (deltaStream, error) {
			return client.CreateChatCompletionStream(ctx, req)
		},
		model:       model,
		temperature: temperature,
	}
}

// Stream sends the system prompt and the last HistoryTurns messages to the
// model. Fragments arrive on the returned channel in upstream order; the
// channel is unbuffered, so the next upstream read waits until the consumer
// took the previous fragment. The channel is closed when the upstream stream
// ends, fails, or ctx is done.
func (s *Streamer) Stream(ctx context.Context, system string, history []Message) (<-chan Fragment, error) {
	turns := lastTurns(history, HistoryTurns)

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, m := range turns {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	stream, err := s.open(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: s.temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start completion stream: %w", err)
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer func() { _ = stream.Close() }()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case out <- Fragment{Err: fmt.Errorf("completion stream failed: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case out <- Fragment{Text: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
