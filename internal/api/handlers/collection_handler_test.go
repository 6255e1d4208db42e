package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/core/vectorstore"
	"github.com/embedhq/vectorproxy/internal/models"
)

func newTestServer(t *testing.T) (*httptest.Server, *vectorstore.NullStore) {
	t.Helper()
	store := vectorstore.NewNullStore()
	srv := httptest.NewServer(NewCollectionHandler(store).Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, Envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestRootEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, env := doJSON(t, http.MethodGet, srv.URL+"/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, StatusSuccess, env.Status)
}

func TestCreateAndListCollections(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/create-collection/docs/4", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, StatusSuccess, env.Status)

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/list-collections", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := env.Data.(map[string]any)
	assert.Equal(t, []any{"docs"}, data["list_of_collection"])
}

func TestCreateCollectionBadSize(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/create-collection/docs/zero", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, StatusFailure, env.Status)
	assert.NotEmpty(t, env.ErrorMessage)
}

func TestCheckCollectionExists(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/check-collection-exists/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, StatusNotFound, env.Status)

	doJSON(t, http.MethodPost, srv.URL+"/create-collection/docs/3", nil)
	resp, env = doJSON(t, http.MethodPost, srv.URL+"/check-collection-exists/docs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(3), data["dimensions"])
}

func TestUpsertAndScroll(t *testing.T) {
	srv, _ := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/create-collection/docs/2", nil)

	p := models.Point{ID: "p1", Vector: []float32{1, 0}, Payload: map[string]any{"content": "hello"}}
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/upsert-data-point/docs", p)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, StatusSuccess, env.Status)

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/scroll/docs?get_all_pages=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := env.Data.(map[string]any)
	points := data["points"].([]any)
	require.Len(t, points, 1)
	point := points[0].(map[string]any)
	assert.Equal(t, "p1", point["id"])
}

func TestScrollWithFilterParam(t *testing.T) {
	srv, store := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/create-collection/docs/1", nil)
	pts := []models.Point{
		{ID: "p1", Vector: []float32{1}, Payload: map[string]any{"kind": "row"}},
		{ID: "p2", Vector: []float32{2}, Payload: map[string]any{"kind": "file"}},
		{ID: "p3", Vector: []float32{3}, Payload: map[string]any{"kind": "row"}},
	}
	require.NoError(t, store.BulkInsertPoints(context.Background(), core.WriteRequest{Collection: "docs"}, pts))

	filter := url.QueryEscape(`{"must":[{"field":"kind","value":"row"}]}`)
	resp, env := doJSON(t, http.MethodGet, srv.URL+"/scroll/docs?get_all_pages=true&filter="+filter, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := env.Data.(map[string]any)
	points := data["points"].([]any)
	require.Len(t, points, 2)
	assert.Equal(t, "p1", points[0].(map[string]any)["id"])
	assert.Equal(t, "p3", points[1].(map[string]any)["id"])
}

func TestScrollBadFilterParam(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, env := doJSON(t, http.MethodGet, srv.URL+"/scroll/docs?filter=not-json", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, StatusFailure, env.Status)
}

func TestUpsertIntoMissingCollection(t *testing.T) {
	srv, _ := newTestServer(t)
	p := models.Point{ID: "p1", Vector: []float32{1, 0}}

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/upsert-data-point/ghost", p)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, StatusNotFound, env.Status)

	// opting in to creation makes the same request succeed
	resp, env = doJSON(t, http.MethodPost, srv.URL+"/upsert-data-point/ghost?create=true", p)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, StatusSuccess, env.Status)
}

func TestBulkUpsert(t *testing.T) {
	srv, store := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/create-collection/docs/1", nil)

	var pts []models.Point
	for i := 0; i < 12; i++ {
		pts = append(pts, models.Point{ID: fmt.Sprintf("p%02d", i), Vector: []float32{float32(i)}})
	}
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/bulk-upsert-data/docs", pts)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, StatusSuccess, env.Status)

	info, err := store.GetCollectionInfo(context.Background(), core.CollectionRequest{Collection: "docs"})
	require.NoError(t, err)
	assert.Equal(t, uint64(12), *info.VectorCount)
}

func TestBulkUpsertEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/bulk-upsert-data/docs", []models.Point{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, StatusFailure, env.Status)
}

func TestDeleteCollection(t *testing.T) {
	srv, _ := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/create-collection/docs/2", nil)

	resp, env := doJSON(t, http.MethodDelete, srv.URL+"/collection/docs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, StatusSuccess, env.Status)

	resp, env = doJSON(t, http.MethodDelete, srv.URL+"/collection/docs", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, StatusNotFound, env.Status)
}

func TestCollectionInfo(t *testing.T) {
	srv, store := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/create-collection/docs/2", nil)
	require.NoError(t, store.InsertPoint(context.Background(), core.WriteRequest{Collection: "docs"},
		models.Point{ID: "p1", Vector: []float32{1, 0}}))

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/collection-info/docs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(1), data["vector_count"])
	assert.Equal(t, float64(2), data["dimensions"])
}

func TestStorageSizeAggregates(t *testing.T) {
	srv, store := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/create-collection/a/4", nil)
	doJSON(t, http.MethodPost, srv.URL+"/create-collection/b/4", nil)
	for _, name := range []string{"a", "b"} {
		require.NoError(t, store.InsertPoint(context.Background(), core.WriteRequest{Collection: name},
			models.Point{ID: "p1", Vector: []float32{1, 2, 3, 4}}))
	}

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/storage-size/team1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := env.Data.(map[string]any)
	assert.Equal(t, "team1", data["team_id"])
	assert.Equal(t, float64(2), data["total_points"])
	// 2 collections x ceil(1*4*4*1.15) = 2 x 19
	assert.Equal(t, float64(38), data["total_size_bytes"])
}

func TestSimilaritySearch(t *testing.T) {
	srv, store := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/create-collection/docs/2", nil)
	pts := []models.Point{
		{ID: "east", Vector: []float32{1, 0}, Payload: map[string]any{"content": "east"}},
		{ID: "north", Vector: []float32{0, 1}, Payload: map[string]any{"content": "north"}},
	}
	require.NoError(t, store.BulkInsertPoints(context.Background(), core.WriteRequest{Collection: "docs"}, pts))

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/similarity-search/docs", map[string]any{
		"vector": []float32{1, 0},
		"top_k":  1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := env.Data.(map[string]any)
	results := data["results"].([]any)
	require.Len(t, results, 1)
	hit := results[0].(map[string]any)
	assert.Equal(t, "east", hit["id"])
}

func TestSimilaritySearchEmptyVector(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/similarity-search/docs", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, StatusFailure, env.Status)
}
