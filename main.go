package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gamma-omg/manifesto-gpt/chat"
	"github.com/gamma-omg/manifesto-gpt/docstore"
	"github.com/gamma-omg/manifesto-gpt/embedder"
	"github.com/gamma-omg/manifesto-gpt/readers"
	"github.com/joho/godotenv"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

type app struct {
	cfg *Config
	log *slog.Logger
	out io.Writer
}

func newLogger(cfg *Config) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
		}
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func loadApp(cfgPath string, out io.Writer) (*app, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := readConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: newLogger(cfg), out: out}, nil
}

func (a *app) newEmbedder() (*embedder.Client, error) {
	if a.cfg.EmbeddingProv == providerGemini {
		if a.cfg.GeminiKey == "" {
			return nil, fmt.Errorf("%s is not set", geminiKeyEnv)
		}

		return embedder.NewGemini(a.cfg.GeminiKey, a.cfg.EmbeddingModel, a.cfg.EmbeddingDim)
	}

	if err := a.cfg.requireOpenAIKey(); err != nil {
		return nil, err
	}

	return embedder.NewOpenAI(a.cfg.OpenAIKey, a.cfg.EmbeddingModel, a.cfg.EmbeddingDim)
}

func (a *app) newStore(ef *embedder.Client) (*docstore.ChromaStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := docstore.NewChromaStore(ctx, docstore.ChromaStoreConfig{
		BaseURL:       a.cfg.ChromaAddr,
		Token:         a.cfg.ChromaToken,
		Collection:    a.cfg.Collection,
		EmbeddingFunc: ef.EmbeddingFunction(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Chroma doc store: %w", err)
	}

	return store, nil
}

func (a *app) newService() (*chat.Service, *docstore.ChromaStore, error) {
	if err := a.cfg.requireOpenAIKey(); err != nil {
		return nil, nil, err
	}

	emb, err := a.newEmbedder()
	if err != nil {
		return nil, nil, err
	}

	store, err := a.newStore(emb)
	if err != nil {
		return nil, nil, err
	}

	client := openai.NewClient(a.cfg.OpenAIKey)
	routes := NewRoutes(a.cfg.Parties, a.cfg.OCRFiles)

	svc := chat.NewService(a.log,
		chat.NewTranslator(a.log, client, a.cfg.ChatModel),
		chat.NewRetriever(emb, store),
		chat.NewStreamer(client, a.cfg.ChatModel, a.cfg.Temperature),
		routes.DisplayNames(),
	)

	return svc, store, nil
}

func (a *app) newRegistry(emb *embedder.Client, store *docstore.ChromaStore) (*DocRegistry, error) {
	chunkifier, err := NewChunkifier(a.cfg.ChunkSize, a.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if a.cfg.EmbedRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(a.cfg.EmbedRate), 1)
	}

	renderer := &readers.PdftoppmRenderer{DPI: a.cfg.RenderDPI}

	return &DocRegistry{
		log:              a.log,
		root:             a.cfg.DocRoot,
		store:            store,
		embedder:         emb,
		chunkifier:       chunkifier,
		textReader:       &readers.PdfFileReader{},
		scanReader:       readers.NewScanReader(a.log, renderer, a.cfg.OCRLanguage),
		routes:           NewRoutes(a.cfg.Parties, a.cfg.OCRFiles),
		batchSize:        a.cfg.BatchSize,
		limiter:          limiter,
		mergeEventsDelay: time.Duration(a.cfg.MergeEventsMs) * time.Millisecond,
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
