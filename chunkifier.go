package main

import (
	"errors"
	"fmt"
)

var ErrInvalidChunking = errors.New("invalid chunking parameters")

// DefaultChunkifier cuts text into fixed-size overlapping windows measured in
// runes, so multi-byte Devanagari text is never split inside a character.
type DefaultChunkifier struct {
	chunkSize    int
	chunkOverlap int
}

func NewChunkifier(size int, overlap int) (*DefaultChunkifier, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, size, overlap)
	}

	return &DefaultChunkifier{
		chunkSize:    size,
		chunkOverlap: overlap,
	}, nil
}

func (c *DefaultChunkifier) Chunkify(text string) []string {
	return chunkify([]rune(text), c.chunkSize, c.chunkOverlap)
}

// chunkify starts a window at every multiple of size-overlap below the text
// length. The tail windows may be shorter than size.
func chunkify(text []rune, size int, overlap int) []string {
	l := len(text)
	if l == 0 {
		return []string{}
	}

	step := size - overlap
	res := make([]string, 0, l/step+1)

	for pos := 0; pos < l; pos += step {
		end := min(pos+size, l)
		res = append(res, string(text[pos:end]))
	}

	return res
}
