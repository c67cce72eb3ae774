package qdrant

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// Term-frequency saturation constants. Dickens repeats character names
// relentlessly, so raw counts would let one name drown out the rest of a
// chunk; the BM25-style curve caps that.
const (
	chunkSaturationK = 1.2
	querySaturationK = 1.2
	maxSparseTerms   = 256
)

// Title terms weigh differently per source. An encyclopedia title names
// the chunk's topic outright; a novel's title repeats identically on every
// chunk of the work and barely discriminates between them.
const (
	wikiTitleWeight = 2.0
	bookTitleWeight = 1.25
)

// stopwords is the function-word vocabulary of 19th-century English prose
// that carries no lexical signal. Filtering it keeps the sparse vectors
// focused on names, places and plot terms.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"a an and are as at be but by for from had has have he her him his " +
			"i if in is it its me my not of on or she so that the their them " +
			"then there they this to upon was we were what when which who will " +
			"with would you your") {
		stopwords[w] = struct{}{}
	}
}

// encodeSparseChunk builds the lexical vector for one indexed chunk, with
// title terms weighted by where the chunk came from.
func encodeSparseChunk(chunk domain.Chunk) sparseVector {
	titleWeight := bookTitleWeight
	if chunk.Source == domain.SourceWikipedia {
		titleWeight = wikiTitleWeight
	}

	tf := make(map[uint32]float64, 64)
	accumulate(tf, chunk.Text, 1.0)
	accumulate(tf, chunk.Title, titleWeight)
	return saturate(tf, chunkSaturationK)
}

// encodeSparseQuery applies the same tokenization to the question side so
// query terms hash to the indexed term space. A question made entirely of
// stopwords yields an empty vector and the caller skips the search.
func encodeSparseQuery(query string) sparseVector {
	tf := make(map[uint32]float64, 32)
	accumulate(tf, query, 1.0)
	return saturate(tf, querySaturationK)
}

func accumulate(tf map[uint32]float64, text string, weight float64) {
	for _, term := range lexicalTerms(text) {
		tf[hashTerm(term)] += weight
	}
}

func saturate(tf map[uint32]float64, k float64) sparseVector {
	if len(tf) == 0 {
		return sparseVector{}
	}

	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	if len(indices) > maxSparseTerms {
		indices = indices[:maxSparseTerms]
	}

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		count := tf[idx]
		weight := (count * (k + 1.0)) / (count + k)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}
	return sparseVector{Indices: indices, Values: values}
}

func hashTerm(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	sum := h.Sum32()
	// Qdrant sparse indices are plain uint32; zero is valid, but reserving
	// it keeps an all-zero vector unambiguous with "no terms".
	if sum == 0 {
		return 1
	}
	return sum
}

// lexicalTerms lowercases, splits on anything that is not a letter or
// digit, and drops stopwords. Unicode-aware so accented names in the
// Gutenberg texts ("Manette", "Defarge", "Père") survive intact.
func lexicalTerms(text string) []string {
	if text == "" {
		return nil
	}

	terms := make([]string, 0, 32)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		term := b.String()
		b.Reset()
		if _, skip := stopwords[term]; !skip {
			terms = append(terms, term)
		}
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return terms
}
