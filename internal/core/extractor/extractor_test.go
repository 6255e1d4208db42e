package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	e := NewDocconvExtractor(false)

	out, err := e.ExtractText(context.Background(), []byte("hello\nworld"), "notes.txt")
	require.NoError(t, err)
	require.Equal(t, "hello\nworld", out.Text)
	require.Equal(t, "notes.txt", out.Metadata["file_name"])
}

func TestExtractCSVJoinsFields(t *testing.T) {
	e := NewDocconvExtractor(false)

	data := []byte("a,b\nx,y\n")
	out, err := e.ExtractText(context.Background(), data, "table.csv")
	require.NoError(t, err)
	require.Equal(t, "a, b\nx, y", out.Text)
}

func TestExtractCSVRaggedRows(t *testing.T) {
	e := NewDocconvExtractor(false)

	data := []byte("a,b,c\nx\n")
	out, err := e.ExtractText(context.Background(), data, "ragged.csv")
	require.NoError(t, err)
	require.Equal(t, "a, b, c\nx", out.Text)
}

func TestExtractCancelledContext(t *testing.T) {
	e := NewDocconvExtractor(false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.ExtractText(ctx, []byte("x"), "a.txt")
	require.Error(t, err)
}
