package readers

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const defaultDPI = 144

// Page is one rendered page image (PNG).
type Page struct {
	Number int
	Image  []byte
}

// PdftoppmRenderer rasterizes every page of a PDF with poppler's pdftoppm.
type PdftoppmRenderer struct {
	DPI    int
	Binary string
}

func (r *PdftoppmRenderer) Render(ctx context.Context, path string) ([]Page, error) {
	dir, err := os.MkdirTemp("", "manifesto-pages-")
	if err != nil {
		return nil, fmt.Errorf("failed to create page directory: %w", err)
	}
	defer os.RemoveAll(dir)

	bin := r.Binary
	if bin == "" {
		bin = "pdftoppm"
	}
	dpi := r.DPI
	if dpi <= 0 {
		dpi = defaultDPI
	}

	cmd := exec.CommandContext(ctx, bin, "-r", strconv.Itoa(dpi), "-png", path, filepath.Join(dir, "page"))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to render pages of %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}

	return collectPages(dir)
}

// collectPages reads page-N.png files (N may be zero padded) in page order.
func collectPages(dir string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rendered pages: %w", err)
	}

	var pages []Page
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "page-") || filepath.Ext(name) != ".png" {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png"))
		if err != nil {
			continue
		}

		img, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", n, err)
		}

		pages = append(pages, Page{Number: n, Image: img})
	}

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Number < pages[j].Number
	})

	return pages, nil
}
