package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"

	"github.com/cenkalti/backoff/v4"

	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

// Accelerator is the execution backend for the local embedding runtime.
type Accelerator string

const (
	AccelCoreML Accelerator = "coreml"
	AccelCUDA   Accelerator = "cuda"
	AccelROCm   Accelerator = "rocm"
	AccelCPU    Accelerator = "cpu"
)

// DetectAccelerator probes the host in preference order CoreML, CUDA, ROCm,
// CPU. The probe runs per call so USE_GPU=false takes effect immediately.
func DetectAccelerator(useGPU bool) Accelerator {
	if !useGPU {
		return AccelCPU
	}
	if runtime.GOOS == "darwin" {
		return AccelCoreML
	}
	if _, err := os.Stat("/proc/driver/nvidia"); err == nil {
		return AccelCUDA
	}
	if _, err := os.Stat("/opt/rocm"); err == nil {
		return AccelROCm
	}
	return AccelCPU
}

// localEmbedRequest targets an Ollama-compatible runtime. num_gpu 0 forces
// the runtime onto the CPU when no accelerator is usable.
type localEmbedRequest struct {
	Model   string         `json:"model"`
	Input   []string       `json:"input"`
	Options map[string]any `json:"options,omitempty"`
}

type localEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (f *Facade) embedLocal(ctx context.Context, model *models.EmbeddingModel, texts []string) ([][]float32, error) {
	accel := DetectAccelerator(f.cfg.UseGPU)

	reqBody := localEmbedRequest{Model: model.Name, Input: texts}
	if accel == AccelCPU {
		reqBody.Options = map[string]any{"num_gpu": 0}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal local embed request: %w", err)
	}

	var vecs [][]float32
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.LocalEmbedURL+"/api/embed", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: local runtime (%s): %v", core.ErrProviderError, accel, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read local response: %v", core.ErrProviderError, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: local runtime status %d: %s", core.ErrProviderError, resp.StatusCode, truncate(raw, 200))
		}

		var parsed localEmbedResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: parse local response: %v", core.ErrProviderError, err))
		}
		if parsed.Error != "" {
			return backoff.Permanent(fmt.Errorf("%w: %s", core.ErrProviderError, parsed.Error))
		}
		vecs = parsed.Embeddings
		return nil
	}
	if err := backoff.Retry(op, core.NewBackoff(ctx)); err != nil {
		return nil, err
	}
	return vecs, nil
}
