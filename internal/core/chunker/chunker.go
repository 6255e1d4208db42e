// Package chunker splits extracted text into the chunks that become points.
package chunker

import (
	"context"
	"fmt"
	"strings"

	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

const (
	defaultMaxCharacters = 1000
	defaultSeparator     = "\n"
	defaultBufferSize    = 1
	defaultPercentile    = 95.0
)

// Split applies the datasource's configured strategy to one document. The
// semantic strategies need the embed capability; the character family ignores
// it. Empty text after trimming yields zero chunks and no error.
func Split(ctx context.Context, cfg models.ChunkingConfig, doc models.Document, embed core.EmbedFunc) ([]models.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}
	if cfg.MaxCharacters > 0 && cfg.Overlap >= cfg.MaxCharacters {
		return nil, fmt.Errorf("chunking config: overlap %d must be smaller than max_characters %d", cfg.Overlap, cfg.MaxCharacters)
	}

	switch cfg.Strategy {
	case models.StrategySemantic, models.StrategyBySimilarity:
		if embed == nil {
			return nil, fmt.Errorf("semantic chunking requires an embedder")
		}
		return splitSemantic(ctx, cfg, doc, embed)
	case models.StrategyCharacter, models.StrategyCode, models.StrategyBasic,
		models.StrategyByTitle, models.StrategyByPage, "":
		return splitCharacter(cfg, doc), nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", cfg.Strategy)
	}
}

// inherit copies the parent document metadata into a fresh map for one chunk.
func inherit(parent map[string]string, index, start int) map[string]string {
	md := make(map[string]string, len(parent)+2)
	for k, v := range parent {
		md[k] = v
	}
	md["chunk_index"] = fmt.Sprintf("%d", index)
	md["start_index"] = fmt.Sprintf("%d", start)
	return md
}
