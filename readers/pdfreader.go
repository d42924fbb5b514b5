package readers

import (
	"context"
	"fmt"
	"os"

	"code.sajari.com/docconv/v2"
)

// PdfFileReader extracts the embedded text layer of a PDF.
type PdfFileReader struct {
}

func (r *PdfFileReader) ReadText(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf document: %w", err)
	}
	defer f.Close()

	res, err := docconv.Convert(f, "application/pdf", false)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf document: %w", err)
	}

	return res.Body, nil
}
