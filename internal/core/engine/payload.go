package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/embedhq/vectorproxy/internal/core"
)

// parseRows accepts a single JSON object or an array of objects and
// normalizes to a list of payload maps.
func parseRows(body []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var rows []map[string]any
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("%w: decode row array: %v", core.ErrMalformedStream, err)
		}
		return rows, nil
	}
	var row map[string]any
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, fmt.Errorf("%w: decode row: %v", core.ErrMalformedStream, err)
	}
	return []map[string]any{row}, nil
}

// rowText renders a row as chunkable text: field values in key order,
// joined with ", ".
func rowText(row map[string]any) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprint(row[k]))
	}
	return strings.Join(parts, ", ")
}

// shapePayload applies the n8n convention: chunk text at the top level,
// everything else nested under "metadata".
func shapePayload(content string, fields map[string]any) map[string]any {
	meta := make(map[string]any, len(fields))
	for k, v := range fields {
		meta[k] = v
	}
	return map[string]any{
		"content":  content,
		"metadata": meta,
	}
}

// pointID derives a stable id for a chunk. An explicit "index" field wins;
// otherwise, with a salt configured, the id is content-derived so redelivered
// messages upsert rather than duplicate. Without a salt the id is random.
func pointID(fields map[string]any, salt, text string) string {
	if idx, ok := fields["index"]; ok {
		return fmt.Sprint(idx)
	}
	if salt != "" {
		ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte(salt))
		return uuid.NewSHA1(ns, []byte(normalizeText(text))).String()
	}
	return uuid.NewString()
}

// normalizeText collapses whitespace and lowercases so trivially different
// renderings of the same content hash to the same id.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
