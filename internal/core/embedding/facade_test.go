package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/embedhq/vectorproxy/internal/config"
	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

func remoteModel(baseURL string, dims int) *models.EmbeddingModel {
	return &models.EmbeddingModel{
		ID:              "m1",
		Provider:        ProviderRemote,
		Name:            "test-small",
		EmbeddingLength: dims,
		Config:          map[string]string{"apiKey": "k", "baseUrl": baseURL},
	}
}

func openAIServer(t *testing.T, dims int, status *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != nil {
			if s := atomic.LoadInt32(status); s != 0 {
				w.WriteHeader(int(s))
				return
			}
		}
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingResponse{}
		// Return data out of order to verify index-based reassembly.
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dims)
			vec[0] = float32(i)
			resp.Data = append(resp.Data, embeddingData{Embedding: vec, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedRemotePreservesOrder(t *testing.T) {
	srv := openAIServer(t, 4, nil)
	defer srv.Close()

	f := NewFacade(&config.Config{})
	vecs, err := f.EmbedTexts(context.Background(), remoteModel(srv.URL, 4), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		require.Len(t, v, 4)
		require.Equal(t, float32(i), v[0])
	}
}

func TestEmbedRemoteDimensionMismatch(t *testing.T) {
	srv := openAIServer(t, 4, nil)
	defer srv.Close()

	// Model declares 3 dims, server returns 4.
	_, err := NewFacade(&config.Config{}).EmbedTexts(context.Background(), remoteModel(srv.URL, 3), []string{"a"})
	require.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestEmbedRemoteMissingCredentials(t *testing.T) {
	m := remoteModel("http://unused", 4)
	m.Config["apiKey"] = ""
	_, err := NewFacade(&config.Config{}).EmbedTexts(context.Background(), m, []string{"a"})
	require.ErrorIs(t, err, core.ErrMissingCredentials)
}

func TestEmbedRemoteRetriesServerErrors(t *testing.T) {
	var status int32 = http.StatusInternalServerError
	srv := openAIServer(t, 4, &status)
	defer srv.Close()

	// Flip to healthy shortly after the first failures.
	go func() {
		time.Sleep(200 * time.Millisecond)
		atomic.StoreInt32(&status, 0)
	}()

	vecs, err := NewFacade(&config.Config{}).EmbedTexts(context.Background(), remoteModel(srv.URL, 4), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
}

func TestEmbedRemoteUnauthorizedIsPermanent(t *testing.T) {
	var status int32 = http.StatusUnauthorized
	srv := openAIServer(t, 4, &status)
	defer srv.Close()

	start := time.Now()
	_, err := NewFacade(&config.Config{}).EmbedTexts(context.Background(), remoteModel(srv.URL, 4), []string{"a"})
	require.ErrorIs(t, err, core.ErrMissingCredentials)
	require.Less(t, time.Since(start), 5*time.Second, "permanent errors must not be retried to exhaustion")
}

func TestEmbedUnknownProviderFamily(t *testing.T) {
	m := &models.EmbeddingModel{ID: "x", Provider: "quantum"}
	_, err := NewFacade(&config.Config{}).EmbedTexts(context.Background(), m, []string{"a"})
	require.ErrorIs(t, err, core.ErrModelUnknown)
}

func TestEmbedNilModel(t *testing.T) {
	_, err := NewFacade(&config.Config{}).EmbedTexts(context.Background(), nil, []string{"a"})
	require.True(t, errors.Is(err, core.ErrModelUnknown))
}

func TestEmbedLocalForcesCPUWhenGPUDisabled(t *testing.T) {
	var sawNumGPU atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req localEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if v, ok := req.Options["num_gpu"]; ok && v == float64(0) {
			sawNumGPU.Store(true)
		}
		out := localEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range out.Embeddings {
			out.Embeddings[i] = []float32{1, 2}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	cfg := &config.Config{UseGPU: false, LocalEmbedURL: srv.URL}
	m := &models.EmbeddingModel{ID: "loc", Provider: ProviderLocal, Name: "nomic-embed-text", EmbeddingLength: 2}

	vecs, err := NewFacade(cfg).EmbedTexts(context.Background(), m, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.True(t, sawNumGPU.Load(), "USE_GPU=false must pin the runtime to CPU")
}

func TestDetectAcceleratorCPUWhenGPUDisabled(t *testing.T) {
	require.Equal(t, AccelCPU, DetectAccelerator(false))
}
