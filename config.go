package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gamma-omg/manifesto-gpt/chat"
	"github.com/gamma-omg/manifesto-gpt/embedder"
	"gopkg.in/yaml.v3"
)

const (
	openAIKeyEnv   = "OPENAI_API_KEY"
	geminiKeyEnv   = "GEMINI_API_KEY"
	chromaTokenEnv = "CHROMA_TOKEN"

	providerOpenAI = "openai"
	providerGemini = "gemini"
)

type Config struct {
	LogFile        string   `yaml:"log"`
	DocRoot        string   `yaml:"doc_root"`
	MergeEventsMs  int      `yaml:"write_debounce_ms"`
	ChunkSize      int      `yaml:"chunk_size"`
	ChunkOverlap   int      `yaml:"chunk_overlap"`
	BatchSize      int      `yaml:"batch_size"`
	EmbedRate      float64  `yaml:"embed_rate"`
	ChromaAddr     string   `yaml:"chroma_addr"`
	Collection     string   `yaml:"collection"`
	EmbeddingProv  string   `yaml:"embedding_provider"`
	EmbeddingModel string   `yaml:"embedding_model"`
	EmbeddingDim   int      `yaml:"embedding_dim"`
	ChatModel      string   `yaml:"chat_model"`
	Temperature    float32  `yaml:"temperature"`
	OCRLanguage    string   `yaml:"ocr_language"`
	RenderDPI      int      `yaml:"render_dpi"`
	ServerAddr     string   `yaml:"server_addr"`
	MCPAddr        string   `yaml:"mcp_addr"`
	Parties        []Party  `yaml:"parties"`
	OCRFiles       []string `yaml:"ocr_files"`

	OpenAIKey   string `yaml:"-"`
	GeminiKey   string `yaml:"-"`
	ChromaToken string `yaml:"-"`
}

func readConfig(cfgPath string) (*Config, error) {
	cfgFile, err := os.Open(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open config file: %w", err)
	}
	defer cfgFile.Close()

	cfg := defaultConfig()
	dec := yaml.NewDecoder(cfgFile)
	err = dec.Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	cfg.OpenAIKey = os.Getenv(openAIKeyEnv)
	cfg.GeminiKey = os.Getenv(geminiKeyEnv)
	cfg.ChromaToken = os.Getenv(chromaTokenEnv)

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultConfig is the base the yaml file is decoded onto, so an explicit
// zero in the file (chunk_overlap: 0, temperature: 0) is kept.
func defaultConfig() *Config {
	return &Config{
		DocRoot:        "data/pdfs",
		MergeEventsMs:  500,
		ChunkSize:      1500,
		ChunkOverlap:   300,
		BatchSize:      embedder.MaxBatchSize,
		ChromaAddr:     "http://localhost:8000",
		Collection:     "manifestos",
		EmbeddingProv:  providerOpenAI,
		EmbeddingModel: "text-embedding-3-small",
		EmbeddingDim:   1536,
		ChatModel:      "gpt-4o-mini",
		Temperature:    0.3,
		OCRLanguage:    "nep",
		RenderDPI:      144,
		ServerAddr:     ":3000",
		MCPAddr:        "localhost:8090",
		Parties:        defaultParties(),
		OCRFiles:       defaultOCRFiles(),
	}
}

// Validate checks the party table and ingestion parameters.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: size %d, overlap %d", ErrInvalidChunking, c.ChunkSize, c.ChunkOverlap)
	}
	if c.BatchSize <= 0 || c.BatchSize > embedder.MaxBatchSize {
		return fmt.Errorf("batch_size must be in [1, %d], got %d", embedder.MaxBatchSize, c.BatchSize)
	}
	if c.EmbeddingProv != providerOpenAI && c.EmbeddingProv != providerGemini {
		return fmt.Errorf("unsupported embedding_provider %q", c.EmbeddingProv)
	}
	if c.EmbeddingDim <= 0 {
		return errors.New("embedding_dim must be positive")
	}
	if c.EmbedRate < 0 {
		return errors.New("embed_rate must not be negative")
	}

	seen := make(map[string]bool, len(c.Parties))
	for _, p := range c.Parties {
		switch {
		case p.ID == "":
			return errors.New("party id must not be empty")
		case p.ID == chat.CompareMode || p.ID == UnknownParty:
			return fmt.Errorf("party id %q is reserved", p.ID)
		case seen[p.ID]:
			return fmt.Errorf("duplicate party id %q", p.ID)
		case len(p.Match) == 0:
			return fmt.Errorf("party %q has no file name fragments", p.ID)
		}

		seen[p.ID] = true
	}

	return nil
}

// requireOpenAIKey fails for commands that talk to the model provider.
func (c *Config) requireOpenAIKey() error {
	if c.OpenAIKey == "" {
		return fmt.Errorf("%s is not set", openAIKeyEnv)
	}

	return nil
}
