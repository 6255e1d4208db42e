package chunker

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

var sentenceRe = regexp.MustCompile(`[^.?!]+[.?!]?`)

// splitSemantic splits text on sentence boundaries, embeds overlapping
// sentence windows, and breaks where the cosine distance between consecutive
// window embeddings exceeds the configured percentile. Deterministic for
// fixed embeddings and a fixed threshold.
func splitSemantic(ctx context.Context, cfg models.ChunkingConfig, doc models.Document, embed core.EmbedFunc) ([]models.Chunk, error) {
	sentences, offsets := splitSentences(doc.Text)
	if len(sentences) == 0 {
		return nil, nil
	}
	if len(sentences) == 1 {
		return []models.Chunk{{
			Document: models.Document{Text: sentences[0], Metadata: inherit(doc.Metadata, 0, offsets[0])},
			Index:    0,
		}}, nil
	}

	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	windows := make([]string, len(sentences))
	for i := range sentences {
		lo := i - buffer
		if lo < 0 {
			lo = 0
		}
		hi := i + buffer + 1
		if hi > len(sentences) {
			hi = len(sentences)
		}
		windows[i] = strings.Join(sentences[lo:hi], " ")
	}

	vecs, err := embed(ctx, windows)
	if err != nil {
		return nil, fmt.Errorf("embed sentence windows: %w", err)
	}
	if len(vecs) != len(windows) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d windows", len(vecs), len(windows))
	}

	distances := make([]float64, len(vecs)-1)
	for i := 0; i < len(vecs)-1; i++ {
		distances[i] = cosineDistance(vecs[i], vecs[i+1])
	}

	pct := defaultPercentile
	if cfg.SimilarityThreshold > 0 && cfg.SimilarityThreshold <= 1 {
		pct = cfg.SimilarityThreshold * 100
	}
	threshold := percentile(distances, pct)

	var chunks []models.Chunk
	start := 0
	emit := func(end int) {
		text := strings.TrimSpace(strings.Join(sentences[start:end], " "))
		if text == "" {
			start = end
			return
		}
		idx := len(chunks)
		chunks = append(chunks, models.Chunk{
			Document: models.Document{Text: text, Metadata: inherit(doc.Metadata, idx, offsets[start])},
			Index:    idx,
		})
		start = end
	}

	for i, d := range distances {
		if d > threshold {
			emit(i + 1)
		}
	}
	// Final tail always emitted.
	emit(len(sentences))

	return chunks, nil
}

// splitSentences cuts text on [.?!], keeping the terminator with the
// sentence, and returns each sentence's rune offset in the source.
func splitSentences(text string) ([]string, []int) {
	var sentences []string
	var offsets []int
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		s := strings.TrimSpace(text[loc[0]:loc[1]])
		if s == "" {
			continue
		}
		sentences = append(sentences, s)
		offsets = append(offsets, len([]rune(text[:loc[0]])))
	}
	return sentences, offsets
}

// percentile returns the p-th percentile (nearest-rank) of values.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// cosineDistance is 1 - cosine similarity; zero vectors are maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
