package vectorstore

import (
	"context"
	"fmt"
	"log"

	"github.com/qdrant/go-client/qdrant"

	"github.com/embedhq/vectorproxy/internal/config"
	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

// QdrantStore is the HNSW-local backend. The underlying gRPC client is safe
// for concurrent use, so no handle locking is needed here.
type QdrantStore struct {
	client *qdrant.Client
}

var _ core.VectorStore = (*QdrantStore)(nil)

func NewQdrantStore(cfg *config.Config) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.VectorDatabaseAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	log.Printf("Connected to Qdrant at %s:%d", cfg.QdrantHost, cfg.QdrantPort)
	return &QdrantStore{client: client}, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %v", core.ErrBackend, err)
	}
	return names, nil
}

func (s *QdrantStore) CheckCollectionExists(ctx context.Context, req core.CollectionRequest) (*core.CollectionInfo, error) {
	exists, err := s.client.CollectionExists(ctx, req.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: collection exists %s: %v", core.ErrBackend, req.Collection, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: collection %s", core.ErrNotFound, req.Collection)
	}
	return s.GetCollectionInfo(ctx, req)
}

func (s *QdrantStore) CreateCollection(ctx context.Context, c models.Collection, region, cloud string) error {
	if c.Dimensions < 1 {
		return fmt.Errorf("%w: dimensions must be >= 1", core.ErrConflict)
	}
	params := &qdrant.VectorParams{
		Size:     uint64(c.Dimensions),
		Distance: toQdrantDistance(c.Distance),
		OnDisk:   ptr(c.OnDisk),
	}

	var vectors *qdrant.VectorsConfig
	if c.NamedVectorKey != "" {
		vectors = qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{c.NamedVectorKey: params})
	} else {
		vectors = qdrant.NewVectorsConfig(params)
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.Name,
		VectorsConfig:  vectors,
	})
	if err != nil {
		return fmt.Errorf("%w: create collection %s: %v", core.ErrBackend, c.Name, err)
	}
	return nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, req core.CollectionRequest) error {
	if err := s.client.DeleteCollection(ctx, req.Collection); err != nil {
		return fmt.Errorf("%w: delete collection %s: %v", core.ErrBackend, req.Collection, err)
	}
	return nil
}

func (s *QdrantStore) InsertPoint(ctx context.Context, req core.WriteRequest, p models.Point) error {
	return s.BulkInsertPoints(ctx, req, []models.Point{p})
}

// BulkInsertPoints upserts in server-friendly batches with retry on
// transient failures.
func (s *QdrantStore) BulkInsertPoints(ctx context.Context, req core.WriteRequest, pts []models.Point) error {
	if len(pts) == 0 {
		return nil
	}
	if err := s.ensure(ctx, req); err != nil {
		return err
	}

	for start := 0; start < len(pts); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(pts) {
			end = len(pts)
		}

		batch := make([]*qdrant.PointStruct, 0, end-start)
		for _, p := range pts[start:end] {
			batch = append(batch, &qdrant.PointStruct{
				Id:      qdrant.NewID(p.ID),
				Vectors: toQdrantVectors(req.VectorName, p.Vector),
				Payload: qdrant.NewValueMap(p.Payload),
			})
		}

		op := func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: req.Collection,
				Points:         batch,
				Wait:           ptr(true),
			})
			if err != nil {
				return fmt.Errorf("%w: upsert %d points into %s: %v", core.ErrBackend, len(batch), req.Collection, err)
			}
			return nil
		}
		if err := core.Retry(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// ensure creates the collection on demand under CreateIfNeeded.
func (s *QdrantStore) ensure(ctx context.Context, req core.WriteRequest) error {
	exists, err := s.client.CollectionExists(ctx, req.Collection)
	if err != nil {
		return fmt.Errorf("%w: collection exists %s: %v", core.ErrBackend, req.Collection, err)
	}
	if exists {
		return nil
	}
	if req.Disposition != core.CreateIfNeeded {
		return fmt.Errorf("%w: collection %s", core.ErrNotFound, req.Collection)
	}
	return s.CreateCollection(ctx, models.Collection{
		Name:           req.Collection,
		Dimensions:     req.Dimensions,
		Distance:       req.Distance,
		NamedVectorKey: req.VectorName,
		OnDisk:         req.OnDisk,
	}, req.Region, req.Cloud)
}

func (s *QdrantStore) GetCollectionInfo(ctx context.Context, req core.CollectionRequest) (*core.CollectionInfo, error) {
	info, err := s.client.GetCollectionInfo(ctx, req.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: collection info %s: %v", core.ErrBackend, req.Collection, err)
	}

	out := &core.CollectionInfo{Status: info.GetStatus().String()}
	if pc := info.GetPointsCount(); pc > 0 {
		count := pc
		out.VectorCount = &count
	} else {
		zero := uint64(0)
		out.VectorCount = &zero
	}

	if vc := info.GetConfig().GetParams().GetVectorsConfig(); vc != nil {
		params := vc.GetParams()
		if params == nil {
			for _, p := range vc.GetParamsMap().GetMap() {
				params = p
				break
			}
		}
		if params != nil {
			out.Dimensions = int(params.GetSize())
			out.Metric = fromQdrantDistance(params.GetDistance())
		}
	}
	return out, nil
}

func (s *QdrantStore) GetStorageSize(ctx context.Context, req core.CollectionRequest, dims int) (*core.StorageSize, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: req.Collection,
		Exact:          ptr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: count %s: %v", core.ErrBackend, req.Collection, err)
	}
	return &core.StorageSize{
		PointsCount:    count,
		SizeBytes:      core.StorageSizeBytes(count, dims),
		CollectionName: req.Collection,
	}, nil
}

// ScrollPoints pages through the collection via the low-level points API so
// the next_page_offset cursor is visible.
func (s *QdrantStore) ScrollPoints(ctx context.Context, req core.ScrollRequest) ([]core.ScrollResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultScrollPage
	}

	var offset *qdrant.PointId
	if req.Offset != "" {
		offset = qdrant.NewID(req.Offset)
	}

	points := s.client.GetPointsClient()
	var out []core.ScrollResult
	for {
		resp, err := points.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: req.Collection,
			Filter:         toQdrantFilter(req.Filter),
			Limit:          ptr(uint32(limit)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scroll %s: %v", core.ErrBackend, req.Collection, err)
		}

		for _, p := range resp.GetResult() {
			out = append(out, core.ScrollResult{
				ID:      pointIDString(p.GetId()),
				Payload: fromQdrantPayload(p.GetPayload()),
			})
		}

		offset = resp.GetNextPageOffset()
		if !req.GetAllPages || offset == nil {
			return out, nil
		}
	}
}

func (s *QdrantStore) SimilaritySearch(ctx context.Context, req core.SearchRequest) ([]core.SearchResult, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	includePayload := req.IncludePayload == nil || *req.IncludePayload

	query := &qdrant.QueryPoints{
		CollectionName: req.Collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Limit:          ptr(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(includePayload),
		Filter:         toQdrantFilter(req.Filter),
	}
	if req.VectorName != "" {
		query.Using = ptr(req.VectorName)
	}

	hits, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", core.ErrBackend, req.Collection, err)
	}

	out := make([]core.SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, core.SearchResult{
			ID:      pointIDString(h.GetId()),
			Score:   h.GetScore(),
			Payload: fromQdrantPayload(h.GetPayload()),
		})
	}
	return out, nil
}
