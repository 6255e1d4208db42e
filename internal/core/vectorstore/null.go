// Package vectorstore holds the per-backend implementations of the
// core.VectorStore capability interface.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

// NullStore is the in-memory backend. It backs tests and lets the service run
// without external infrastructure while behaving like a real backend:
// create-dispositions, filters, pagination and dimension checks all apply.
type NullStore struct {
	mu          sync.RWMutex
	collections map[string]*nullCollection
}

type nullCollection struct {
	meta   models.Collection
	points map[string]models.Point
}

var _ core.VectorStore = (*NullStore)(nil)

func NewNullStore() *NullStore {
	return &NullStore{collections: make(map[string]*nullCollection)}
}

func (s *NullStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *NullStore) CheckCollectionExists(ctx context.Context, req core.CollectionRequest) (*core.CollectionInfo, error) {
	return s.GetCollectionInfo(ctx, req)
}

func (s *NullStore) CreateCollection(ctx context.Context, c models.Collection, region, cloud string) error {
	if c.Dimensions < 1 {
		return fmt.Errorf("%w: dimensions must be >= 1", core.ErrConflict)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.collections[c.Name]; ok {
		if existing.meta.Dimensions != c.Dimensions || existing.meta.Distance != c.Distance {
			return fmt.Errorf("%w: collection %s exists with different parameters", core.ErrConflict, c.Name)
		}
		return nil
	}
	if c.Distance == "" {
		c.Distance = models.DistanceCosine
	}
	s.collections[c.Name] = &nullCollection{meta: c, points: make(map[string]models.Point)}
	return nil
}

func (s *NullStore) DeleteCollection(ctx context.Context, req core.CollectionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[req.Collection]; !ok {
		return fmt.Errorf("%w: collection %s", core.ErrNotFound, req.Collection)
	}
	delete(s.collections, req.Collection)
	return nil
}

func (s *NullStore) InsertPoint(ctx context.Context, req core.WriteRequest, p models.Point) error {
	return s.BulkInsertPoints(ctx, req, []models.Point{p})
}

func (s *NullStore) BulkInsertPoints(ctx context.Context, req core.WriteRequest, pts []models.Point) error {
	if len(pts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.ensureLocked(req)
	if err != nil {
		return err
	}
	for _, p := range pts {
		if len(p.Vector) != coll.meta.Dimensions {
			return fmt.Errorf("%w: point %s has %d dims, collection %s has %d",
				core.ErrDimensionMismatch, p.ID, len(p.Vector), req.Collection, coll.meta.Dimensions)
		}
	}
	for _, p := range pts {
		coll.points[p.ID] = p
	}
	return nil
}

// ensureLocked resolves the collection under the write disposition. Caller
// holds the write lock.
func (s *NullStore) ensureLocked(req core.WriteRequest) (*nullCollection, error) {
	if coll, ok := s.collections[req.Collection]; ok {
		return coll, nil
	}
	if req.Disposition != core.CreateIfNeeded {
		return nil, fmt.Errorf("%w: collection %s", core.ErrNotFound, req.Collection)
	}
	dist := req.Distance
	if dist == "" {
		dist = models.DistanceCosine
	}
	coll := &nullCollection{
		meta: models.Collection{
			Name:           req.Collection,
			Dimensions:     req.Dimensions,
			Distance:       dist,
			NamedVectorKey: req.VectorName,
			OnDisk:         req.OnDisk,
			Namespace:      req.Namespace,
		},
		points: make(map[string]models.Point),
	}
	s.collections[req.Collection] = coll
	return coll, nil
}

func (s *NullStore) GetCollectionInfo(ctx context.Context, req core.CollectionRequest) (*core.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[req.Collection]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", core.ErrNotFound, req.Collection)
	}
	count := uint64(len(coll.points))
	return &core.CollectionInfo{
		Status:      "green",
		VectorCount: &count,
		Metric:      coll.meta.Distance,
		Dimensions:  coll.meta.Dimensions,
	}, nil
}

func (s *NullStore) GetStorageSize(ctx context.Context, req core.CollectionRequest, dims int) (*core.StorageSize, error) {
	info, err := s.GetCollectionInfo(ctx, req)
	if err != nil {
		return nil, err
	}
	points := *info.VectorCount
	return &core.StorageSize{
		PointsCount:    points,
		SizeBytes:      core.StorageSizeBytes(points, dims),
		CollectionName: req.Collection,
	}, nil
}

func (s *NullStore) ScrollPoints(ctx context.Context, req core.ScrollRequest) ([]core.ScrollResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[req.Collection]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", core.ErrNotFound, req.Collection)
	}

	ids := make([]string, 0, len(coll.points))
	for id := range coll.points {
		if matchesFilter(coll.points[id].Payload, req.Filter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	// The cursor is the last id of the previous page.
	start := 0
	if req.Offset != "" {
		start = sort.SearchStrings(ids, req.Offset)
		if start < len(ids) && ids[start] == req.Offset {
			start++
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultScrollPage
	}

	end := len(ids)
	if !req.GetAllPages && start+limit < end {
		end = start + limit
	}

	out := make([]core.ScrollResult, 0, end-start)
	for _, id := range ids[start:end] {
		p := coll.points[id]
		out = append(out, core.ScrollResult{ID: p.ID, Payload: p.Payload, Vector: p.Vector})
	}
	return out, nil
}

func (s *NullStore) SimilaritySearch(ctx context.Context, req core.SearchRequest) ([]core.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[req.Collection]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", core.ErrNotFound, req.Collection)
	}
	if len(req.Vector) != coll.meta.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dims, collection %s has %d",
			core.ErrDimensionMismatch, len(req.Vector), req.Collection, coll.meta.Dimensions)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	includePayload := req.IncludePayload == nil || *req.IncludePayload

	results := make([]core.SearchResult, 0, len(coll.points))
	for _, p := range coll.points {
		if !matchesFilter(p.Payload, req.Filter) {
			continue
		}
		r := core.SearchResult{ID: p.ID, Score: score(coll.meta.Distance, req.Vector, p.Vector)}
		if includePayload {
			r.Payload = p.Payload
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// score converts a distance metric into a higher-is-better similarity.
func score(metric models.Distance, a, b []float32) float32 {
	switch metric {
	case models.DistanceDot:
		return dot(a, b)
	case models.DistanceEuclid:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(-math.Sqrt(sum))
	case models.DistanceManhattan:
		var sum float64
		for i := range a {
			sum += math.Abs(float64(a[i]) - float64(b[i]))
		}
		return float32(-sum)
	default: // Cosine
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float32) float32 {
	return float32(math.Sqrt(float64(dot(v, v))))
}
