// Package embedding dispatches embedding requests to the provider family an
// embedding model belongs to: a local accelerated runtime or a remote API.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/embedhq/vectorproxy/internal/config"
	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

const (
	ProviderLocal  = "local"
	ProviderRemote = "remote"

	// remoteKind values read from EmbeddingModel.Config["provider"].
	kindOpenAI = "openai"
	kindGemini = "gemini"
)

// Facade implements core.EmbeddingProvider. Safe for concurrent use; the
// provider decision is made per call so config flags apply immediately.
type Facade struct {
	cfg    *config.Config
	client *http.Client

	mu     sync.Mutex
	gemini map[string]*GeminiEmbedder // keyed by model id
}

var _ core.EmbeddingProvider = (*Facade)(nil)

func NewFacade(cfg *config.Config) *Facade {
	return &Facade{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		gemini: make(map[string]*GeminiEmbedder),
	}
}

// EmbedTexts returns one vector per input, order preserved. Transient
// provider failures are retried under the standard backoff policy.
func (f *Facade) EmbedTexts(ctx context.Context, model *models.EmbeddingModel, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == nil {
		return nil, core.ErrModelUnknown
	}

	var (
		vecs [][]float32
		err  error
	)
	switch model.Provider {
	case ProviderLocal:
		vecs, err = f.embedLocal(ctx, model, texts)
	case ProviderRemote:
		vecs, err = f.embedRemote(ctx, model, texts)
	default:
		return nil, fmt.Errorf("%w: provider family %q", core.ErrModelUnknown, model.Provider)
	}
	if err != nil {
		return nil, err
	}

	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", core.ErrProviderError, len(vecs), len(texts))
	}
	if model.EmbeddingLength > 0 {
		for i, v := range vecs {
			if len(v) != model.EmbeddingLength {
				return nil, fmt.Errorf("%w: vector %d has %d dims, model %s declares %d",
					core.ErrDimensionMismatch, i, len(v), model.ID, model.EmbeddingLength)
			}
		}
	}
	return vecs, nil
}

func (f *Facade) embedRemote(ctx context.Context, model *models.EmbeddingModel, texts []string) ([][]float32, error) {
	switch model.Config["provider"] {
	case kindGemini:
		g, err := f.geminiFor(ctx, model)
		if err != nil {
			return nil, err
		}
		return g.EmbedTexts(ctx, texts)
	case kindOpenAI, "":
		apiKey := model.Config["apiKey"]
		if apiKey == "" {
			return nil, fmt.Errorf("%w: model %s", core.ErrMissingCredentials, model.ID)
		}
		baseURL := model.Config["baseUrl"]
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		r := &remoteEmbedder{client: f.client, apiKey: apiKey, baseURL: baseURL, model: model.Name}
		return r.Embed(ctx, texts)
	default:
		return nil, fmt.Errorf("%w: remote provider %q", core.ErrModelUnknown, model.Config["provider"])
	}
}

// geminiFor lazily builds (and caches) one Gemini client per model.
func (f *Facade) geminiFor(ctx context.Context, model *models.EmbeddingModel) (*GeminiEmbedder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if g, ok := f.gemini[model.ID]; ok {
		return g, nil
	}
	apiKey := model.Config["apiKey"]
	if apiKey == "" {
		return nil, fmt.Errorf("%w: model %s", core.ErrMissingCredentials, model.ID)
	}
	g, err := NewGeminiEmbedder(ctx, apiKey, model.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: init gemini: %v", core.ErrProviderError, err)
	}
	f.gemini[model.ID] = g
	return g, nil
}
