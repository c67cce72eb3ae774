package chunking

import "strings"

// Splitter cuts source text into overlapping windows, preferring to end a
// chunk on a sentence boundary when one falls close enough to the target
// size.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

// boundarySlack is how far before the window end a sentence boundary may
// sit and still be taken as the cut point.
const boundarySlack = 200

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = snapToSentenceEnd(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

func snapToSentenceEnd(runes []rune, start, end int) int {
	slack := boundarySlack
	if slack > end-start-1 {
		slack = end - start - 1
	}
	for i := end - 1; i >= end-slack; i-- {
		if isSentenceEnd(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}
