package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the control surface under its /api/v1 prefix.
func (h *CollectionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		respondSuccess(w, map[string]string{"service": "vectorproxy"})
	})
	r.Get("/list-collections", h.ListCollections)
	r.Post("/check-collection-exists/{name}", h.CheckCollectionExists)
	r.Post("/create-collection/{name}/{size}", h.CreateCollection)
	r.Post("/upsert-data-point/{name}", h.UpsertDataPoint)
	r.Post("/bulk-upsert-data/{name}", h.BulkUpsertData)
	r.Get("/scroll/{id}", h.ScrollPoints)
	r.Delete("/collection/{id}", h.DeleteCollection)
	r.Get("/collection-info/{id}", h.GetCollectionInfo)
	r.Get("/storage-size/{teamId}", h.GetStorageSize)
	r.Post("/similarity-search/{name}", h.SimilaritySearch)

	return r
}
