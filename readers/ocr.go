package readers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Recognizer turns one page image into text. It holds an OCR worker and must
// be closed when the document is done.
type Recognizer interface {
	Recognize(image []byte) (string, error)
	Close() error
}

type PageRenderer interface {
	Render(ctx context.Context, path string) ([]Page, error)
}

type tesseract struct {
	client *gosseract.Client
}

func NewTesseract(language string) (Recognizer, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(language); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to set ocr language %s: %w", language, err)
	}

	return &tesseract{client: client}, nil
}

func (t *tesseract) Recognize(image []byte) (string, error) {
	if err := t.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to load page image: %w", err)
	}

	return t.client.Text()
}

func (t *tesseract) Close() error {
	return t.client.Close()
}

// ScanReader reads scanned PDFs by rendering each page and running OCR on it.
type ScanReader struct {
	log           *slog.Logger
	renderer      PageRenderer
	newRecognizer func() (Recognizer, error)
}

func NewScanReader(log *slog.Logger, renderer PageRenderer, language string) *ScanReader {
	return &ScanReader{
		log:      log,
		renderer: renderer,
		newRecognizer: func() (Recognizer, error) {
			return NewTesseract(language)
		},
	}
}

// ReadText runs OCR page by page with a single worker. A page that fails
// contributes no text; the rest of the document is still read.
func (r *ScanReader) ReadText(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("failed to open scanned document: %w", err)
	}

	pages, err := r.renderer.Render(ctx, path)
	if err != nil {
		return "", err
	}

	rec, err := r.newRecognizer()
	if err != nil {
		return "", fmt.Errorf("failed to start ocr worker: %w", err)
	}
	defer func() {
		if err := rec.Close(); err != nil {
			r.log.Warn("failed to release ocr worker", "file", path, "error", err)
		}
	}()

	r.log.Info("running ocr", "file", path, "pages", len(pages))

	var sb strings.Builder
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if len(p.Image) == 0 {
			continue
		}

		text, err := rec.Recognize(p.Image)
		if err != nil {
			r.log.Error("ocr failed", "file", path, "page", p.Number, "error", err)
			continue
		}

		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	return sb.String(), nil
}
