package chunker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedhq/vectorproxy/internal/models"
)

// topicEmbed is a stub embedder that separates windows mentioning "bbb" from
// the rest, giving the distance sequence one sharp breakpoint.
func topicEmbed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "bbb") {
			out[i] = []float32{1, 0}
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func TestSemanticSplitBreaksOnTopicShift(t *testing.T) {
	cfg := models.ChunkingConfig{Strategy: models.StrategySemantic, SimilarityThreshold: 0.5}
	doc := models.Document{Text: "aaa one. aaa two. bbb one. bbb two."}

	chunks, err := Split(context.Background(), cfg, doc, topicEmbed)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	// Windows of buffer size 1 shift the detected boundary one sentence
	// early; what matters is a single break and full coverage in order.
	joined := chunks[0].Text + " " + chunks[1].Text
	require.Equal(t, doc.Text, joined)
	require.True(t, strings.HasPrefix(chunks[0].Text, "aaa one."))
	require.True(t, strings.HasSuffix(chunks[1].Text, "bbb two."))
}

func TestSemanticSplitDeterministic(t *testing.T) {
	cfg := models.ChunkingConfig{Strategy: models.StrategySemantic, SimilarityThreshold: 0.5}
	doc := models.Document{Text: "aaa one. aaa two. bbb one. bbb two. aaa three."}

	first, err := Split(context.Background(), cfg, doc, topicEmbed)
	require.NoError(t, err)
	second, err := Split(context.Background(), cfg, doc, topicEmbed)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSemanticSplitSingleSentence(t *testing.T) {
	cfg := models.ChunkingConfig{Strategy: models.StrategySemantic}
	doc := models.Document{Text: "just one sentence."}

	chunks, err := Split(context.Background(), cfg, doc, topicEmbed)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "just one sentence.", chunks[0].Text)
}

func TestSemanticSplitTailAlwaysEmitted(t *testing.T) {
	// Uniform embeddings: no breakpoint, everything lands in the tail chunk.
	uniform := func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 1}
		}
		return out, nil
	}

	cfg := models.ChunkingConfig{Strategy: models.StrategySemantic}
	doc := models.Document{Text: "one. two. three."}

	chunks, err := Split(context.Background(), cfg, doc, uniform)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "one. two. three.", chunks[0].Text)
}

func TestSemanticSplitRequiresEmbedder(t *testing.T) {
	cfg := models.ChunkingConfig{Strategy: models.StrategySemantic}
	_, err := Split(context.Background(), cfg, models.Document{Text: "a. b."}, nil)
	require.Error(t, err)
}

func TestPercentileNearestRank(t *testing.T) {
	vals := []float64{0.1, 0.2, 0.3, 0.4}
	require.Equal(t, 0.4, percentile(vals, 95))
	require.Equal(t, 0.2, percentile(vals, 50))
	require.Equal(t, 0.1, percentile(vals, 1))
}

func TestCosineDistance(t *testing.T) {
	require.InDelta(t, 0, cosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	require.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, 1, cosineDistance([]float32{0, 0}, []float32{1, 0}), 1e-9)
}
