package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gamma-omg/manifesto-gpt/docstore"
	"github.com/gamma-omg/manifesto-gpt/embedder"
	"golang.org/x/time/rate"
)

type DocStore interface {
	Upsert(ctx context.Context, records []docstore.Record) error
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type FileReader interface {
	ReadText(ctx context.Context, path string) (string, error)
}

type Chunkifier interface {
	Chunkify(text string) []string
}

// DocRegistry ingests the manifesto corpus: every PDF under root is read,
// chunked, embedded in batches and upserted under deterministic ids, so a
// rerun overwrites instead of duplicating.
type DocRegistry struct {
	log              *slog.Logger
	root             string
	store            DocStore
	embedder         Embedder
	chunkifier       Chunkifier
	textReader       FileReader
	scanReader       FileReader
	routes           *Routes
	batchSize        int
	limiter          *rate.Limiter
	mergeEventsDelay time.Duration
}

func (dr *DocRegistry) Sync(ctx context.Context) error {
	files, err := dr.collectDocs()
	if err != nil {
		return err
	}

	dr.reportMissingScans(files)

	for _, f := range files {
		n, err := dr.IngestFile(ctx, f)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, embedder.ErrDimensionMismatch) {
			return fmt.Errorf("failed to ingest %s: %w", f, err)
		}
		if err != nil {
			dr.log.Error("skipping document", "file", f, "error", err)
			continue
		}

		dr.log.Info("document ingested", "file", filepath.Base(f), "chunks", n)
	}

	dr.log.Info("ingestion complete", "documents", len(files))
	return nil
}

func (dr *DocRegistry) collectDocs() (docs []string, err error) {
	err = filepath.WalkDir(dr.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// ids are built from the base name, so only the top level is read
			if path != dr.root {
				return fs.SkipDir
			}
			return nil
		}
		if !isPDF(path) {
			dr.log.Warn(fmt.Sprintf("unsupported file: %s", path))
			return nil
		}

		docs = append(docs, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents in %s: %w", dr.root, err)
	}

	slices.Sort(docs)
	return docs, nil
}

func (dr *DocRegistry) reportMissingScans(files []string) {
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[strings.ToLower(filepath.Base(f))] = true
	}

	for _, f := range dr.routes.OCRFiles() {
		if !present[f] {
			dr.log.Warn("scanned document not found", "file", f)
		}
	}
}

// IngestFile extracts, chunks, embeds and stores one document and returns the
// number of chunks written. A failed batch is logged with its start offset and
// skipped; only a dimension mismatch aborts the document.
func (dr *DocRegistry) IngestFile(ctx context.Context, path string) (int, error) {
	file := filepath.Base(path)
	party := dr.routes.PartyFor(file)

	reader := dr.textReader
	idPrefix := fmt.Sprintf("%s-%s", party, file)
	if dr.routes.IsScanned(file) {
		reader = dr.scanReader
		idPrefix = fmt.Sprintf("%s-ocr", party)
	}

	log := dr.log.With("file", file, "party", party)
	log.Info("reading document", "ocr", reader == dr.scanReader)

	text, err := reader.ReadText(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("failed to read document %s: %w", file, err)
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("document has no extractable text")
		return 0, nil
	}

	chunks := dr.chunkifier.Chunkify(text)
	log.Info("uploading chunks", "chunks", len(chunks))

	stored := 0
	for start := 0; start < len(chunks); start += dr.batchSize {
		end := min(start+dr.batchSize, len(chunks))

		n, err := dr.ingestBatch(ctx, chunks[start:end], start, idPrefix, party, file)
		if errors.Is(err, embedder.ErrDimensionMismatch) || ctx.Err() != nil {
			return stored, errors.Join(err, ctx.Err())
		}
		if err != nil {
			log.Error("skipping batch", "batch_start", start, "error", err)
			continue
		}

		stored += n
	}

	return stored, nil
}

func (dr *DocRegistry) ingestBatch(ctx context.Context, window []string, start int, idPrefix, party, file string) (int, error) {
	texts := make([]string, 0, len(window))
	seqs := make([]int, 0, len(window))
	for i, c := range window {
		if strings.TrimSpace(c) == "" {
			continue
		}

		texts = append(texts, c)
		seqs = append(seqs, start+i)
	}
	if len(texts) == 0 {
		return 0, nil
	}

	if dr.limiter != nil {
		if err := dr.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	vectors, err := dr.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	records := make([]docstore.Record, 0, len(texts))
	for i, v := range vectors {
		records = append(records, docstore.Record{
			ID:      fmt.Sprintf("%s-%d", idPrefix, seqs[i]),
			Vector:  v,
			Text:    texts[i],
			PartyID: party,
			Source:  file,
		})
	}

	if err := dr.store.Upsert(ctx, records); err != nil {
		return 0, err
	}

	return len(records), nil
}

// Watch re-ingests PDFs created or written under root. Events are merged for
// mergeEventsDelay and processed one document at a time. Watch returns once
// the watcher is running.
func (dr *DocRegistry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err = w.Add(dr.root); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", dr.root, err)
	}

	go dr.watchLoop(ctx, w)
	return nil
}

func (dr *DocRegistry) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(dr.mergeEventsDelay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isPDF(ev.Name) {
				continue
			}

			pending[ev.Name] = struct{}{}
			timer.Reset(dr.mergeEventsDelay)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			dr.log.Error("watcher error", "error", err)

		case <-timer.C:
			files := make([]string, 0, len(pending))
			for f := range pending {
				files = append(files, f)
			}
			clear(pending)
			slices.Sort(files)

			for _, f := range files {
				n, err := dr.IngestFile(ctx, f)
				if err != nil {
					dr.log.Error("failed to re-ingest document", "file", f, "error", err)
					continue
				}

				dr.log.Info("document re-ingested", "file", filepath.Base(f), "chunks", n)
			}
		}
	}
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
