package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

func newTestCollection(t *testing.T, s *NullStore, name string, dims int) {
	t.Helper()
	err := s.CreateCollection(context.Background(), models.Collection{
		Name:       name,
		Dimensions: dims,
		Distance:   models.DistanceCosine,
	}, "", "")
	require.NoError(t, err)
}

func TestNullStoreCreateAndList(t *testing.T) {
	s := NewNullStore()
	ctx := context.Background()

	newTestCollection(t, s, "beta", 3)
	newTestCollection(t, s, "alpha", 3)

	names, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	info, err := s.CheckCollectionExists(ctx, core.CollectionRequest{Collection: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, 3, info.Dimensions)

	_, err = s.CheckCollectionExists(ctx, core.CollectionRequest{Collection: "missing"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestNullStoreCreateRejectsBadDimensions(t *testing.T) {
	s := NewNullStore()
	err := s.CreateCollection(context.Background(), models.Collection{Name: "bad", Dimensions: 0}, "", "")
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestNullStoreUpsertIsIdempotent(t *testing.T) {
	s := NewNullStore()
	ctx := context.Background()
	newTestCollection(t, s, "docs", 2)

	req := core.WriteRequest{Collection: "docs"}
	p := models.Point{ID: "p1", Vector: []float32{1, 0}, Payload: map[string]any{"content": "v1"}}
	require.NoError(t, s.InsertPoint(ctx, req, p))

	p.Payload = map[string]any{"content": "v2"}
	require.NoError(t, s.InsertPoint(ctx, req, p))

	info, err := s.GetCollectionInfo(ctx, core.CollectionRequest{Collection: "docs"})
	require.NoError(t, err)
	require.NotNil(t, info.VectorCount)
	assert.Equal(t, uint64(1), *info.VectorCount)

	pts, err := s.ScrollPoints(ctx, core.ScrollRequest{Collection: "docs", Limit: 10})
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, "v2", pts[0].Payload["content"])
}

func TestNullStoreCreateDisposition(t *testing.T) {
	s := NewNullStore()
	ctx := context.Background()
	p := models.Point{ID: "p1", Vector: []float32{1, 0}}

	err := s.InsertPoint(ctx, core.WriteRequest{Collection: "absent", Disposition: core.CreateNever}, p)
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = s.InsertPoint(ctx, core.WriteRequest{
		Collection:  "ondemand",
		Disposition: core.CreateIfNeeded,
		Dimensions:  2,
		Distance:    models.DistanceCosine,
	}, p)
	require.NoError(t, err)

	info, err := s.GetCollectionInfo(ctx, core.CollectionRequest{Collection: "ondemand"})
	require.NoError(t, err)
	assert.Equal(t, 2, info.Dimensions)
}

func TestNullStoreBulkInsertRejectsMismatchedDimensions(t *testing.T) {
	s := NewNullStore()
	ctx := context.Background()
	newTestCollection(t, s, "docs", 3)

	pts := []models.Point{
		{ID: "ok", Vector: []float32{1, 2, 3}},
		{ID: "short", Vector: []float32{1, 2}},
	}
	err := s.BulkInsertPoints(ctx, core.WriteRequest{Collection: "docs"}, pts)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	// nothing was written, not even the valid point
	info, err := s.GetCollectionInfo(ctx, core.CollectionRequest{Collection: "docs"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), *info.VectorCount)
}

func TestNullStoreScrollPagination(t *testing.T) {
	s := NewNullStore()
	ctx := context.Background()
	newTestCollection(t, s, "docs", 1)

	var pts []models.Point
	for i := 0; i < 25; i++ {
		pts = append(pts, models.Point{
			ID:      fmt.Sprintf("id-%02d", i),
			Vector:  []float32{float32(i)},
			Payload: map[string]any{"i": i},
		})
	}
	require.NoError(t, s.BulkInsertPoints(ctx, core.WriteRequest{Collection: "docs"}, pts))

	// walk pages of 10 and concatenate
	var paged []string
	offset := ""
	for {
		page, err := s.ScrollPoints(ctx, core.ScrollRequest{Collection: "docs", Limit: 10, Offset: offset})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			paged = append(paged, r.ID)
		}
		offset = page[len(page)-1].ID
	}

	all, err := s.ScrollPoints(ctx, core.ScrollRequest{Collection: "docs", GetAllPages: true})
	require.NoError(t, err)

	var full []string
	for _, r := range all {
		full = append(full, r.ID)
	}
	assert.Equal(t, full, paged)
	assert.Len(t, full, 25)
}

func TestNullStoreScrollFilter(t *testing.T) {
	s := NewNullStore()
	ctx := context.Background()
	newTestCollection(t, s, "docs", 1)

	pts := []models.Point{
		{ID: "a", Vector: []float32{1}, Payload: map[string]any{"kind": "row"}},
		{ID: "b", Vector: []float32{2}, Payload: map[string]any{"kind": "file"}},
		{ID: "c", Vector: []float32{3}, Payload: map[string]any{"kind": "row"}},
	}
	require.NoError(t, s.BulkInsertPoints(ctx, core.WriteRequest{Collection: "docs"}, pts))

	got, err := s.ScrollPoints(ctx, core.ScrollRequest{
		Collection:  "docs",
		GetAllPages: true,
		Filter: &core.FilterConditions{
			Must: []core.FieldCondition{{Field: "kind", Value: "row"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestNullStoreSimilaritySearch(t *testing.T) {
	s := NewNullStore()
	ctx := context.Background()
	newTestCollection(t, s, "docs", 2)

	pts := []models.Point{
		{ID: "east", Vector: []float32{1, 0}, Payload: map[string]any{"content": "east"}},
		{ID: "north", Vector: []float32{0, 1}, Payload: map[string]any{"content": "north"}},
		{ID: "northeast", Vector: []float32{1, 1}, Payload: map[string]any{"content": "northeast"}},
	}
	require.NoError(t, s.BulkInsertPoints(ctx, core.WriteRequest{Collection: "docs"}, pts))

	hits, err := s.SimilaritySearch(ctx, core.SearchRequest{
		Collection: "docs",
		Vector:     []float32{1, 0},
		TopK:       2,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "east", hits[0].ID)
	assert.Equal(t, "northeast", hits[1].ID)
	assert.Equal(t, "east", hits[0].Payload["content"])

	noPayload := false
	hits, err = s.SimilaritySearch(ctx, core.SearchRequest{
		Collection:     "docs",
		Vector:         []float32{0, 1},
		TopK:           1,
		IncludePayload: &noPayload,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "north", hits[0].ID)
	assert.Nil(t, hits[0].Payload)
}

func TestNullStoreDeleteCollection(t *testing.T) {
	s := NewNullStore()
	ctx := context.Background()
	newTestCollection(t, s, "docs", 2)

	require.NoError(t, s.DeleteCollection(ctx, core.CollectionRequest{Collection: "docs"}))
	_, err := s.GetCollectionInfo(ctx, core.CollectionRequest{Collection: "docs"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = s.DeleteCollection(ctx, core.CollectionRequest{Collection: "docs"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStorageSizeBytes(t *testing.T) {
	// ceil(points * dims * 4 * 1.15)
	assert.Equal(t, uint64(0), core.StorageSizeBytes(0, 1536))
	assert.Equal(t, uint64(5), core.StorageSizeBytes(1, 1))        // ceil(4.6)
	assert.Equal(t, uint64(7066), core.StorageSizeBytes(1, 1536))  // ceil(7065.6)
	assert.Equal(t, uint64(70656), core.StorageSizeBytes(10, 1536))

	s := NewNullStore()
	ctx := context.Background()
	newTestCollection(t, s, "docs", 4)
	require.NoError(t, s.BulkInsertPoints(ctx, core.WriteRequest{Collection: "docs"}, []models.Point{
		{ID: "a", Vector: []float32{1, 2, 3, 4}},
		{ID: "b", Vector: []float32{5, 6, 7, 8}},
	}))

	size, err := s.GetStorageSize(ctx, core.CollectionRequest{Collection: "docs"}, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), size.PointsCount)
	// 2 * 4 * 4 * 1.15 = 36.8 -> 37
	assert.Equal(t, uint64(37), size.SizeBytes)
	assert.Equal(t, "docs", size.CollectionName)
}
