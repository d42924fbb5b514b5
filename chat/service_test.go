package chat

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gamma-omg/manifesto-gpt/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTranslator struct {
	mock.Mock
}

func (m *mockTranslator) Translate(ctx context.Context, query string) string {
	return m.Called(ctx, query).String(0)
}

type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) Retrieve(ctx context.Context, original string, translated string, filter docstore.Filter) ([]docstore.Match, error) {
	args := m.Called(ctx, original, translated, filter)
	res, _ := args.Get(0).([]docstore.Match)
	return res, args.Error(1)
}

func (m *mockRetriever) RetrieveSingle(ctx context.Context, text string, topK int, filter docstore.Filter) ([]docstore.Match, error) {
	args := m.Called(ctx, text, topK, filter)
	res, _ := args.Get(0).([]docstore.Match)
	return res, args.Error(1)
}

type mockStreamer struct {
	mock.Mock
}

func (m *mockStreamer) Stream(ctx context.Context, system string, history []Message) (<-chan Fragment, error) {
	args := m.Called(ctx, system, history)
	ch, _ := args.Get(0).(<-chan Fragment)
	return ch, args.Error(1)
}

var testParties = map[string]string{
	"nc":  "नेपाली कांग्रेस (Nepali Congress)",
	"rsp": "राष्ट्रिय स्वतन्त्र पार्टी (Rastriya Swatantra Party)",
}

func fragments(texts ...string) <-chan Fragment {
	ch := make(chan Fragment, len(texts))
	for _, t := range texts {
		ch <- Fragment{Text: t}
	}
	close(ch)

	return ch
}

func newTestService() (*Service, *mockTranslator, *mockRetriever, *mockStreamer) {
	tr := new(mockTranslator)
	r := new(mockRetriever)
	s := new(mockStreamer)

	return NewService(discardLogger(), tr, r, s, testParties), tr, r, s
}

func Test_Answer_SingleParty(t *testing.T) {
	svc, tr, r, s := newTestService()

	req := Request{
		PartyID:  "nc",
		Messages: []Message{{Role: RoleUser, Content: "What is the education policy?"}},
	}

	tr.On("Translate", mock.Anything, "What is the education policy?").Return("शिक्षा नीति के हो?")
	r.On("Retrieve", mock.Anything, "What is the education policy?", "शिक्षा नीति के हो?", docstore.Filter{PartyID: "nc"}).
		Return([]docstore.Match{{ID: "nc-a-3", Text: "निःशुल्क माध्यमिक शिक्षा", PartyID: "nc"}}, nil)
	s.On("Stream", mock.Anything, mock.MatchedBy(func(system string) bool {
		return containsAll(system,
			"You are an expert on नेपाली कांग्रेस (Nepali Congress).",
			"निःशुल्क माध्यमिक शिक्षा",
			"What is the education policy?")
	}), req.Messages).Return(fragments("शिक्षा ", "निःशुल्क"), nil)

	frags, err := svc.Answer(context.Background(), req)
	require.NoError(t, err)

	var text string
	for f := range frags {
		require.NoError(t, f.Err)
		text += f.Text
	}
	assert.Equal(t, "शिक्षा निःशुल्क", text)

	tr.AssertExpectations(t)
	r.AssertExpectations(t)
	s.AssertExpectations(t)
}

func Test_Answer_Compare(t *testing.T) {
	svc, tr, r, s := newTestService()

	req := Request{
		PartyID:  CompareMode,
		Messages: []Message{{Role: RoleUser, Content: "कृषि नीति तुलना"}},
	}

	tr.On("Translate", mock.Anything, mock.Anything).Return("कृषि नीति तुलना")
	r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, docstore.Filter{}).
		Return([]docstore.Match{
			{ID: "nc-a-0", Text: "कांग्रेस कृषि"},
			{ID: "uml-b-0", Text: "एमाले कृषि"},
		}, nil)
	s.On("Stream", mock.Anything, mock.MatchedBy(func(system string) bool {
		return containsAll(system, "Comparison Mode", CompareName, "कांग्रेस कृषि", "एमाले कृषि")
	}), mock.Anything).Return(fragments("ok"), nil)

	_, err := svc.Answer(context.Background(), req)
	require.NoError(t, err)
	r.AssertExpectations(t)
	s.AssertExpectations(t)
}

func Test_Answer_InvalidRequest(t *testing.T) {
	var cases = []struct {
		name string
		req  Request
	}{
		{name: "missing_party", req: Request{Messages: []Message{{Role: RoleUser, Content: "q"}}}},
		{name: "unknown_party", req: Request{PartyID: "xyz", Messages: []Message{{Role: RoleUser, Content: "q"}}}},
		{name: "no_messages", req: Request{PartyID: "nc"}},
		{name: "bad_role", req: Request{PartyID: "nc", Messages: []Message{{Role: "system", Content: "q"}}}},
		{name: "last_not_user", req: Request{PartyID: "nc", Messages: []Message{
			{Role: RoleUser, Content: "q"},
			{Role: RoleAssistant, Content: "a"},
		}}},
		{name: "blank_question", req: Request{PartyID: "nc", Messages: []Message{{Role: RoleUser, Content: "  "}}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc, tr, r, s := newTestService()

			_, err := svc.Answer(context.Background(), c.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)

			tr.AssertNotCalled(t, "Translate", mock.Anything, mock.Anything)
			r.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			s.AssertNotCalled(t, "Stream", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func Test_Answer_RetrieveError(t *testing.T) {
	svc, tr, r, s := newTestService()

	tr.On("Translate", mock.Anything, mock.Anything).Return("q")
	r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("store down"))

	_, err := svc.Answer(context.Background(), Request{
		PartyID:  "rsp",
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	assert.ErrorContains(t, err, "store down")
	assert.NotErrorIs(t, err, ErrInvalidRequest)
	s.AssertNotCalled(t, "Stream", mock.Anything, mock.Anything, mock.Anything)
}

func Test_Answer_StreamError(t *testing.T) {
	svc, tr, r, s := newTestService()

	tr.On("Translate", mock.Anything, mock.Anything).Return("q")
	r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]docstore.Match{}, nil)
	s.On("Stream", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

	_, err := svc.Answer(context.Background(), Request{
		PartyID:  "rsp",
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	assert.ErrorContains(t, err, "quota exceeded")
}

func Test_Search(t *testing.T) {
	svc, tr, r, _ := newTestService()

	tr.On("Translate", mock.Anything, "health").Return("स्वास्थ्य")
	r.On("RetrieveSingle", mock.Anything, "स्वास्थ्य", 3, docstore.Filter{PartyID: "rsp"}).
		Return([]docstore.Match{{ID: "rsp-ocr-1"}}, nil)

	res, err := svc.Search(context.Background(), "health", "rsp", 3)
	require.NoError(t, err)
	assert.Len(t, res, 1)
	r.AssertExpectations(t)
}

func Test_Search_AllParties(t *testing.T) {
	svc, tr, r, _ := newTestService()

	tr.On("Translate", mock.Anything, mock.Anything).Return("x")
	r.On("RetrieveSingle", mock.Anything, "x", 5, docstore.Filter{}).Return([]docstore.Match{}, nil)

	_, err := svc.Search(context.Background(), "x", "", 5)
	require.NoError(t, err)
	r.AssertExpectations(t)
}

func Test_Search_Invalid(t *testing.T) {
	svc, tr, _, _ := newTestService()

	_, err := svc.Search(context.Background(), " ", "nc", 5)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Search(context.Background(), "q", "maoist", 5)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	tr.AssertNotCalled(t, "Translate", mock.Anything, mock.Anything)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}

	return true
}

func Test_Answer_RelaysStreamError(t *testing.T) {
	svc, tr, r, s := newTestService()

	ch := make(chan Fragment, 2)
	ch <- Fragment{Text: "आंशिक"}
	ch <- Fragment{Err: errors.New("connection reset")}
	close(ch)

	tr.On("Translate", mock.Anything, mock.Anything).Return("q")
	r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]docstore.Match{}, nil)
	s.On("Stream", mock.Anything, mock.Anything, mock.Anything).Return((<-chan Fragment)(ch), nil)

	frags, err := svc.Answer(context.Background(), Request{
		PartyID:  "nc",
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	require.NoError(t, err)

	var got []Fragment
	for f := range frags {
		got = append(got, f)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "आंशिक", got[0].Text)
	assert.ErrorContains(t, got[1].Err, "connection reset")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func Test_Answer_StageLogs(t *testing.T) {
	logs := &syncBuffer{}
	tr, r, s := new(mockTranslator), new(mockRetriever), new(mockStreamer)
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := NewService(logger, tr, r, s, testParties)

	tr.On("Translate", mock.Anything, mock.Anything).Return("q")
	r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			assert.Contains(t, logs.String(), `"stage":"retrieving"`)
		}).
		Return([]docstore.Match{}, nil)
	s.On("Stream", mock.Anything, mock.Anything, mock.Anything).Return(fragments("a", "b"), nil)

	frags, err := svc.Answer(context.Background(), Request{
		PartyID:  "nc",
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	require.NoError(t, err)
	for range frags {
	}

	out := logs.String()
	assert.Contains(t, out, `"stage":"done"`)
	assert.NotContains(t, out, `"stage":"failed"`)
	r.AssertExpectations(t)
}

func Test_Answer_CancelledStreamLogsFailure(t *testing.T) {
	logs := &syncBuffer{}
	tr, r, s := new(mockTranslator), new(mockRetriever), new(mockStreamer)
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := NewService(logger, tr, r, s, testParties)

	upstream := make(chan Fragment)
	tr.On("Translate", mock.Anything, mock.Anything).Return("q")
	r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]docstore.Match{}, nil)
	s.On("Stream", mock.Anything, mock.Anything, mock.Anything).Return((<-chan Fragment)(upstream), nil)

	ctx, cancel := context.WithCancel(context.Background())
	frags, err := svc.Answer(ctx, Request{
		PartyID:  "nc",
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	require.NoError(t, err)

	cancel()
	close(upstream)

	for range frags {
	}

	out := logs.String()
	assert.Contains(t, out, `"stage":"failed"`)
	assert.NotContains(t, out, `"stage":"done"`)
}
