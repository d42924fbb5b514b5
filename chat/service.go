package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gamma-omg/manifesto-gpt/docstore"
	"github.com/oklog/ulid/v2"
)

// CompareName is the display name used for the context block in compare mode.
const CompareName = "सबै दलहरू (All parties)"

type translator interface {
	Translate(ctx context.Context, query string) string
}

type retriever interface {
	Retrieve(ctx context.Context, original string, translated string, filter docstore.Filter) ([]docstore.Match, error)
	RetrieveSingle(ctx context.Context, text string, topK int, filter docstore.Filter) ([]docstore.Match, error)
}

type streamer interface {
	Stream(ctx context.Context, system string, history []Message) (<-chan Fragment, error)
}

// Service answers manifesto questions: translate, retrieve, assemble the
// prompt and stream the model's answer.
type Service struct {
	log        *slog.Logger
	translator translator
	retriever  retriever
	streamer   streamer
	parties    map[string]string
}

// NewService wires the pipeline. parties maps party id to display name.
func NewService(log *slog.Logger, t translator, r retriever, s streamer, parties map[string]string) *Service {
	return &Service{
		log:        log,
		translator: t,
		retriever:  r,
		streamer:   s,
		parties:    parties,
	}
}

// Answer validates the request before any upstream call is made and then
// returns the stream of answer fragments.
func (s *Service) Answer(ctx context.Context, req Request) (<-chan Fragment, error) {
	log := s.log.With("request_id", ulid.Make().String(), "party", req.PartyID)
	log.Debug("request", "stage", "received")

	partyName, err := s.validate(req)
	if err != nil {
		log.Debug("request", "stage", "failed", "error", err)
		return nil, err
	}

	question := req.Messages[len(req.Messages)-1].Content
	compare := req.PartyID == CompareMode

	log.Debug("request", "stage", "translating")
	translated := s.translator.Translate(ctx, question)
	log.Debug("query translated", "original", question, "translated", translated)

	filter := docstore.Filter{PartyID: req.PartyID}
	if compare {
		filter = docstore.Filter{}
	}

	log.Debug("request", "stage", "retrieving")
	matches, err := s.retriever.Retrieve(ctx, question, translated, filter)
	if err != nil {
		log.Error("request", "stage", "failed", "error", err)
		return nil, err
	}
	log.Debug("retrieved", "matches", len(matches))
	for i, m := range matches {
		log.Debug("match", "rank", i+1, "id", m.ID, "score", m.Score, "match_party", m.PartyID, "text_len", len(m.Text))
	}

	log.Debug("request", "stage", "assembling")
	prompt, err := BuildSystemPrompt(PromptInput{
		Matches:   matches,
		Compare:   compare,
		PartyName: partyName,
		Question:  question,
	})
	if err != nil {
		log.Error("request", "stage", "failed", "error", err)
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	log.Debug("request", "stage", "generating", "prompt_len", len(prompt))
	frags, err := s.streamer.Stream(ctx, prompt, req.Messages)
	if err != nil {
		log.Error("request", "stage", "failed", "error", err)
		return nil, err
	}

	log.Debug("request", "stage", "streaming")

	out := make(chan Fragment)
	go func() {
		defer close(out)

		n := 0
		for f := range frags {
			select {
			case out <- f:
			case <-ctx.Done():
				log.Debug("request", "stage", "failed", "error", ctx.Err())
				return
			}

			if f.Err != nil {
				log.Error("request", "stage", "failed", "fragments", n, "error", f.Err)
				return
			}
			n++
		}

		if err := ctx.Err(); err != nil {
			log.Debug("request", "stage", "failed", "fragments", n, "error", err)
			return
		}
		log.Debug("request", "stage", "done", "fragments", n)
	}()

	return out, nil
}

// Search translates the query and runs a single-vector search. It backs the
// retrieval debugging tools.
func (s *Service) Search(ctx context.Context, query string, partyID string, topK int) ([]docstore.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidRequest)
	}

	filter := docstore.Filter{}
	if partyID != "" && partyID != CompareMode {
		if _, ok := s.parties[partyID]; !ok {
			return nil, fmt.Errorf("%w: unknown party %q", ErrInvalidRequest, partyID)
		}
		filter.PartyID = partyID
	}

	translated := s.translator.Translate(ctx, query)
	s.log.Debug("search", "query", query, "translated", translated, "party", partyID)

	return s.retriever.RetrieveSingle(ctx, translated, topK, filter)
}

func (s *Service) validate(req Request) (string, error) {
	if req.PartyID == "" {
		return "", fmt.Errorf("%w: missing partyId", ErrInvalidRequest)
	}
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("%w: no messages", ErrInvalidRequest)
	}
	for _, m := range req.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return "", fmt.Errorf("%w: unsupported role %q", ErrInvalidRequest, m.Role)
		}
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role != RoleUser || strings.TrimSpace(last.Content) == "" {
		return "", fmt.Errorf("%w: last message must be a non-empty user message", ErrInvalidRequest)
	}

	if req.PartyID == CompareMode {
		return CompareName, nil
	}

	name, ok := s.parties[req.PartyID]
	if !ok {
		return "", fmt.Errorf("%w: unknown party %q", ErrInvalidRequest, req.PartyID)
	}

	return name, nil
}
