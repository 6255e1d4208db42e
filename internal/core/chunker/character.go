package chunker

import (
	"strings"

	"github.com/embedhq/vectorproxy/internal/models"
)

// unit is a separator-delimited piece of the source text with its rune offset.
type unit struct {
	text  string
	start int
}

// splitCharacter packs separator-delimited units greedily up to MaxCharacters,
// optionally seeding each chunk with a tail of the previous one (Overlap).
// Deterministic and language-agnostic; also serves the code strategy.
func splitCharacter(cfg models.ChunkingConfig, doc models.Document) []models.Chunk {
	maxChars := cfg.MaxCharacters
	if maxChars <= 0 {
		maxChars = defaultMaxCharacters
	}
	sep := cfg.Separator
	if sep == "" {
		sep = defaultSeparator
	}

	units := splitUnits(doc.Text, sep, maxChars)

	var (
		chunks []models.Chunk
		buf    []unit
		bufLen int
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		parts := make([]string, len(buf))
		for i, u := range buf {
			parts[i] = u.text
		}
		text := strings.Join(parts, sep)
		idx := len(chunks)
		chunks = append(chunks, models.Chunk{
			Document: models.Document{
				Text:     text,
				Metadata: inherit(doc.Metadata, idx, buf[0].start),
			},
			Index: idx,
		})

		if cfg.Overlap > 0 {
			// Keep a tail of units whose combined length stays within Overlap.
			var keep []unit
			kept := 0
			for j := len(buf) - 1; j >= 0; j-- {
				l := len([]rune(buf[j].text))
				if kept+l > cfg.Overlap {
					break
				}
				keep = append([]unit{buf[j]}, keep...)
				kept += l
			}
			buf = keep
			bufLen = kept
		} else {
			buf = buf[:0]
			bufLen = 0
		}
	}

	for _, u := range units {
		l := len([]rune(u.text))
		if bufLen > 0 && bufLen+l > maxChars {
			flush()
			// the overlap seed may leave no room for this unit; drop the
			// seed rather than exceed the budget
			if bufLen > 0 && bufLen+l > maxChars {
				buf = buf[:0]
				bufLen = 0
			}
		}
		buf = append(buf, u)
		bufLen += l
	}
	flush()

	return chunks
}

// splitUnits divides text on sep and hard-splits any unit longer than
// maxChars so a single oversized line cannot blow the chunk budget.
func splitUnits(text, sep string, maxChars int) []unit {
	var units []unit
	offset := 0
	for _, part := range strings.Split(text, sep) {
		runes := []rune(part)
		for len(runes) > maxChars {
			units = append(units, unit{text: string(runes[:maxChars]), start: offset})
			offset += maxChars
			runes = runes[maxChars:]
		}
		units = append(units, unit{text: string(runes), start: offset})
		offset += len(runes) + len([]rune(sep))
	}
	return units
}
