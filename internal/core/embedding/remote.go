package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/embedhq/vectorproxy/internal/core"
)

// maxRemoteBatch is the per-request input cap of OpenAI-compatible APIs.
const maxRemoteBatch = 100

// remoteEmbedder speaks the OpenAI-compatible embeddings wire format:
// request {model, input: [string]}, response data[i].embedding by index.
type remoteEmbedder struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *remoteEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var all [][]float32
	for i := 0; i < len(texts); i += maxRemoteBatch {
		end := i + maxRemoteBatch
		if end > len(texts) {
			end = len(texts)
		}

		var vecs [][]float32
		op := func() error {
			var err error
			vecs, err = e.embedBatch(ctx, texts[i:end])
			return err
		}
		if err := backoff.Retry(op, core.NewBackoff(ctx)); err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (e *remoteEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", core.ErrProviderError, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", core.ErrMissingCredentials, resp.StatusCode))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d: %s", core.ErrProviderError, resp.StatusCode, truncate(raw, 200))
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d: %s", core.ErrProviderError, resp.StatusCode, truncate(raw, 200)))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: parse response: %v", core.ErrProviderError, err))
	}
	if parsed.Error != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", core.ErrProviderError, parsed.Error.Message))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(vecs) {
			vecs[d.Index] = d.Embedding
		}
	}
	return vecs, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
