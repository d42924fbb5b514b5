package readers

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_collectPages(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	write("page-10.png", "ten")
	write("page-02.png", "two")
	write("page-1.png", "one")
	write("page-x.png", "junk")
	write("notes.txt", "junk")

	pages, err := collectPages(dir)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, []byte("one"), pages[0].Image)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, 10, pages[2].Number)
}

func Test_PdftoppmRenderer_Render(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm is not installed")
	}

	r := PdftoppmRenderer{DPI: 72}
	pages, err := r.Render(context.Background(), writeTestPDF(t, "hello world"))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
	assert.NotEmpty(t, pages[0].Image)
}

func Test_PdftoppmRenderer_MissingBinary(t *testing.T) {
	r := PdftoppmRenderer{Binary: "definitely-not-pdftoppm"}
	_, err := r.Render(context.Background(), "any.pdf")
	assert.Error(t, err)
}
