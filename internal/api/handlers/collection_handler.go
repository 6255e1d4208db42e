package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

const requestTimeout = 2 * time.Minute

// CollectionHandler exposes the vector-store control surface.
type CollectionHandler struct {
	store core.VectorStore
}

func NewCollectionHandler(store core.VectorStore) *CollectionHandler {
	return &CollectionHandler{store: store}
}

func (h *CollectionHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	names, err := h.store.ListCollections(ctx)
	if err != nil {
		respondError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	respondSuccess(w, map[string]any{"list_of_collection": names})
}

func (h *CollectionHandler) CheckCollectionExists(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	name := chi.URLParam(r, "name")
	info, err := h.store.CheckCollectionExists(ctx, core.CollectionRequest{
		Collection: name,
		Namespace:  r.URL.Query().Get("namespace"),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, info)
}

// createCollectionOptions is the optional body of create-collection; name
// and size come from the path.
type createCollectionOptions struct {
	Distance       models.Distance `json:"distance"`
	NamedVectorKey string          `json:"named_vector_key"`
	OnDisk         bool            `json:"on_disk"`
	Namespace      string          `json:"namespace"`
	Region         string          `json:"region"`
	Cloud          string          `json:"cloud"`
}

func (h *CollectionHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	name := chi.URLParam(r, "name")
	size, err := strconv.Atoi(chi.URLParam(r, "size"))
	if err != nil || size < 1 {
		respondBadRequest(w, fmt.Errorf("size must be a positive integer"))
		return
	}

	var opts createCollectionOptions
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			respondBadRequest(w, fmt.Errorf("decode options: %w", err))
			return
		}
	}
	if opts.Distance == "" {
		opts.Distance = models.DistanceCosine
	}

	err = h.store.CreateCollection(ctx, models.Collection{
		Name:           name,
		Dimensions:     size,
		Distance:       opts.Distance,
		NamedVectorKey: opts.NamedVectorKey,
		OnDisk:         opts.OnDisk,
		Namespace:      opts.Namespace,
	}, opts.Region, opts.Cloud)
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"collection": name})
}

func (h *CollectionHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	err := h.store.DeleteCollection(ctx, core.CollectionRequest{
		Collection: id,
		Namespace:  r.URL.Query().Get("namespace"),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"deleted": id})
}

func (h *CollectionHandler) UpsertDataPoint(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var p models.Point
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondBadRequest(w, fmt.Errorf("decode point: %w", err))
		return
	}
	if len(p.Vector) == 0 {
		respondBadRequest(w, fmt.Errorf("point vector is empty"))
		return
	}

	req := h.writeRequest(r, len(p.Vector))
	if err := h.store.InsertPoint(ctx, req, p); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"id": p.ID})
}

func (h *CollectionHandler) BulkUpsertData(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var pts []models.Point
	if err := json.NewDecoder(r.Body).Decode(&pts); err != nil {
		respondBadRequest(w, fmt.Errorf("decode points: %w", err))
		return
	}
	if len(pts) == 0 {
		respondBadRequest(w, fmt.Errorf("no points in request"))
		return
	}

	req := h.writeRequest(r, len(pts[0].Vector))
	if err := h.store.BulkInsertPoints(ctx, req, pts); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, map[string]int{"upserted": len(pts)})
}

// writeRequest assembles a write addressed by the path collection. The HTTP
// surface never auto-creates unless the caller opts in with ?create=true.
func (h *CollectionHandler) writeRequest(r *http.Request, dims int) core.WriteRequest {
	q := r.URL.Query()
	disposition := core.CreateNever
	if q.Get("create") == "true" {
		disposition = core.CreateIfNeeded
	}
	return core.WriteRequest{
		Collection:  chi.URLParam(r, "name"),
		Namespace:   q.Get("namespace"),
		VectorName:  q.Get("vector_name"),
		Disposition: disposition,
		Dimensions:  dims,
		Distance:    models.DistanceCosine,
	}
}

func (h *CollectionHandler) ScrollPoints(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondBadRequest(w, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = n
	}

	// filter is a JSON-encoded FilterConditions object
	var filter *core.FilterConditions
	if raw := q.Get("filter"); raw != "" {
		filter = &core.FilterConditions{}
		if err := json.Unmarshal([]byte(raw), filter); err != nil {
			respondBadRequest(w, fmt.Errorf("decode filter: %w", err))
			return
		}
	}

	pts, err := h.store.ScrollPoints(ctx, core.ScrollRequest{
		Collection:  chi.URLParam(r, "id"),
		Namespace:   q.Get("namespace"),
		Filter:      filter,
		Limit:       limit,
		Offset:      q.Get("offset"),
		GetAllPages: q.Get("get_all_pages") == "true",
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if pts == nil {
		pts = []core.ScrollResult{}
	}
	respondSuccess(w, map[string]any{"points": pts})
}

func (h *CollectionHandler) GetCollectionInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	info, err := h.store.GetCollectionInfo(ctx, core.CollectionRequest{
		Collection: chi.URLParam(r, "id"),
		Namespace:  r.URL.Query().Get("namespace"),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, info)
}

// GetStorageSize reports the estimated footprint of every collection plus
// the aggregate, attributed to the team in the path.
func (h *CollectionHandler) GetStorageSize(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	teamID := chi.URLParam(r, "teamId")
	names, err := h.store.ListCollections(ctx)
	if err != nil {
		respondError(w, err)
		return
	}

	sizes := make([]core.StorageSize, 0, len(names))
	var totalBytes, totalPoints uint64
	for _, name := range names {
		info, err := h.store.GetCollectionInfo(ctx, core.CollectionRequest{Collection: name})
		if err != nil {
			log.Printf("WARN storage-size: info for %s: %v", name, err)
			continue
		}
		size, err := h.store.GetStorageSize(ctx, core.CollectionRequest{Collection: name}, info.Dimensions)
		if err != nil {
			log.Printf("WARN storage-size: size for %s: %v", name, err)
			continue
		}
		sizes = append(sizes, *size)
		totalBytes += size.SizeBytes
		totalPoints += size.PointsCount
	}

	respondSuccess(w, map[string]any{
		"team_id":          teamID,
		"collections":      sizes,
		"total_points":     totalPoints,
		"total_size_bytes": totalBytes,
	})
}

// similaritySearchBody is the POST body of similarity-search.
type similaritySearchBody struct {
	Vector         []float32              `json:"vector"`
	TopK           int                    `json:"top_k"`
	IncludePayload *bool                  `json:"include_payload"`
	VectorName     string                 `json:"vector_name"`
	Namespace      string                 `json:"namespace"`
	Filter         *core.FilterConditions `json:"filter"`
}

func (h *CollectionHandler) SimilaritySearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var body similaritySearchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondBadRequest(w, fmt.Errorf("decode search request: %w", err))
		return
	}
	if len(body.Vector) == 0 {
		respondBadRequest(w, fmt.Errorf("search vector is empty"))
		return
	}

	hits, err := h.store.SimilaritySearch(ctx, core.SearchRequest{
		Collection:     chi.URLParam(r, "name"),
		Namespace:      body.Namespace,
		VectorName:     body.VectorName,
		Vector:         body.Vector,
		TopK:           body.TopK,
		IncludePayload: body.IncludePayload,
		Filter:         body.Filter,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if hits == nil {
		hits = []core.SearchResult{}
	}
	respondSuccess(w, map[string]any{"results": hits})
}
