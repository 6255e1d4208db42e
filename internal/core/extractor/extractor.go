// Package extractor turns fetched document bytes into (text, metadata).
package extractor

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/embedhq/vectorproxy/internal/core"
)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv for
// binary formats, with direct paths for plain text and CSV.
type DocconvExtractor struct {
	useReadability bool
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// ExtractText dispatches on the file extension. The returned metadata always
// carries file_name; docconv metadata (page counts etc.) is merged in when the
// converter provides it.
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, filename string) (*core.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta := map[string]string{"file_name": filepath.Base(filename)}
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".txt", ".md", ".log":
		return &core.ExtractedText{Text: string(data), Metadata: meta}, nil
	case ".csv":
		text, err := csvToText(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse csv %s: %w", filename, err)
		}
		return &core.ExtractedText{Text: text, Metadata: meta}, nil
	}

	mime := docconv.MimeTypeByExtension(filename)
	res, err := docconv.Convert(bytes.NewReader(data), mime, e.useReadability)
	if err != nil {
		return nil, fmt.Errorf("docconv %s (%s): %w", filename, mime, err)
	}
	if strings.TrimSpace(res.Body) == "" {
		return nil, fmt.Errorf("extracted empty text from %s", filename)
	}
	for k, v := range res.Meta {
		meta[k] = v
	}
	return &core.ExtractedText{Text: res.Body, Metadata: meta}, nil
}

// csvToText renders each record as its fields joined with ", ", one record
// per line, so tabular rows chunk the same way bus-delivered rows do.
func csvToText(r io.Reader) (string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var b strings.Builder
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(rec, ", "))
	}
	return b.String(), nil
}
