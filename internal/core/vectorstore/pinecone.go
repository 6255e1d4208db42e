package vectorstore

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/embedhq/vectorproxy/internal/config"
	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

const (
	defaultPineconeRegion = "us-east-1"
	defaultPineconeCloud  = "aws"
)

// PineconeStore is the managed serverless backend. Index hosts are resolved
// once per index and cached for the lifetime of the store.
type PineconeStore struct {
	client *pinecone.Client

	mu    sync.RWMutex
	hosts map[string]string
}

var _ core.VectorStore = (*PineconeStore)(nil)

func NewPineconeStore(cfg *config.Config) (*PineconeStore, error) {
	if cfg.VectorDatabaseAPIKey == "" {
		return nil, fmt.Errorf("%w: pinecone api key", core.ErrMissingCredentials)
	}
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.VectorDatabaseAPIKey})
	if err != nil {
		return nil, fmt.Errorf("connect pinecone: %w", err)
	}
	log.Println("Connected to Pinecone")
	return &PineconeStore{client: client, hosts: make(map[string]string)}, nil
}

func (s *PineconeStore) ListCollections(ctx context.Context) ([]string, error) {
	idxs, err := s.client.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list indexes: %v", core.ErrBackend, err)
	}
	names := make([]string, 0, len(idxs))
	for _, idx := range idxs {
		names = append(names, idx.Name)
	}
	return names, nil
}

func (s *PineconeStore) CheckCollectionExists(ctx context.Context, req core.CollectionRequest) (*core.CollectionInfo, error) {
	return s.GetCollectionInfo(ctx, req)
}

func (s *PineconeStore) CreateCollection(ctx context.Context, c models.Collection, region, cloud string) error {
	if c.Dimensions < 1 {
		return fmt.Errorf("%w: dimensions must be >= 1", core.ErrConflict)
	}
	metric, err := toPineconeMetric(c.Distance)
	if err != nil {
		return err
	}
	if region == "" {
		region = defaultPineconeRegion
	}
	if cloud == "" {
		cloud = defaultPineconeCloud
	}

	dims := int32(c.Dimensions)
	_, err = s.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      c.Name,
		Dimension: &dims,
		Metric:    &metric,
		Cloud:     pinecone.Cloud(cloud),
		Region:    region,
	})
	if err != nil {
		return fmt.Errorf("%w: create index %s: %v", core.ErrBackend, c.Name, err)
	}
	return nil
}

func (s *PineconeStore) DeleteCollection(ctx context.Context, req core.CollectionRequest) error {
	if err := s.client.DeleteIndex(ctx, req.Collection); err != nil {
		return fmt.Errorf("%w: delete index %s: %v", core.ErrBackend, req.Collection, err)
	}
	s.mu.Lock()
	delete(s.hosts, req.Collection)
	s.mu.Unlock()
	return nil
}

func (s *PineconeStore) InsertPoint(ctx context.Context, req core.WriteRequest, p models.Point) error {
	return s.BulkInsertPoints(ctx, req, []models.Point{p})
}

func (s *PineconeStore) BulkInsertPoints(ctx context.Context, req core.WriteRequest, pts []models.Point) error {
	if len(pts) == 0 {
		return nil
	}
	conn, err := s.connection(ctx, req.Collection, req.Namespace, req.Disposition, req)
	if err != nil {
		return err
	}

	for start := 0; start < len(pts); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(pts) {
			end = len(pts)
		}

		batch := make([]*pinecone.Vector, 0, end-start)
		for _, p := range pts[start:end] {
			meta, err := structpb.NewStruct(p.Payload)
			if err != nil {
				return fmt.Errorf("encode payload for point %s: %w", p.ID, err)
			}
			batch = append(batch, &pinecone.Vector{
				Id:       p.ID,
				Values:   &p.Vector,
				Metadata: meta,
			})
		}

		op := func() error {
			if _, err := conn.UpsertVectors(ctx, batch); err != nil {
				return fmt.Errorf("%w: upsert %d vectors into %s: %v", core.ErrBackend, len(batch), req.Collection, err)
			}
			return nil
		}
		if err := core.Retry(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (s *PineconeStore) GetCollectionInfo(ctx context.Context, req core.CollectionRequest) (*core.CollectionInfo, error) {
	idx, err := s.client.DescribeIndex(ctx, req.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: index %s: %v", core.ErrNotFound, req.Collection, err)
	}

	info := &core.CollectionInfo{Metric: fromPineconeMetric(idx.Metric)}
	if idx.Status != nil {
		info.Status = string(idx.Status.State)
	}
	if idx.Dimension != nil {
		info.Dimensions = int(*idx.Dimension)
	}

	if conn, err := s.connection(ctx, req.Collection, req.Namespace, core.CreateNever, core.WriteRequest{}); err == nil {
		if stats, err := conn.DescribeIndexStats(ctx); err == nil {
			count := uint64(stats.TotalVectorCount)
			info.VectorCount = &count
		}
	}
	return info, nil
}

func (s *PineconeStore) GetStorageSize(ctx context.Context, req core.CollectionRequest, dims int) (*core.StorageSize, error) {
	conn, err := s.connection(ctx, req.Collection, req.Namespace, core.CreateNever, core.WriteRequest{})
	if err != nil {
		return nil, err
	}
	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: index stats %s: %v", core.ErrBackend, req.Collection, err)
	}
	count := uint64(stats.TotalVectorCount)
	return &core.StorageSize{
		PointsCount:    count,
		SizeBytes:      core.StorageSizeBytes(count, dims),
		CollectionName: req.Collection,
	}, nil
}

// ScrollPoints is not available on the serverless API, which only exposes
// id-prefix listing without payloads.
func (s *PineconeStore) ScrollPoints(ctx context.Context, req core.ScrollRequest) ([]core.ScrollResult, error) {
	return nil, fmt.Errorf("%w: scroll is not supported by the pinecone backend", core.ErrUnsupported)
}

func (s *PineconeStore) SimilaritySearch(ctx context.Context, req core.SearchRequest) ([]core.SearchResult, error) {
	conn, err := s.connection(ctx, req.Collection, req.Namespace, core.CreateNever, core.WriteRequest{})
	if err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	includePayload := req.IncludePayload == nil || *req.IncludePayload

	filter, err := toPineconeFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          req.Vector,
		TopK:            uint32(topK),
		IncludeMetadata: includePayload,
		MetadataFilter:  filter,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", core.ErrBackend, req.Collection, err)
	}

	out := make([]core.SearchResult, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		r := core.SearchResult{ID: m.Vector.Id, Score: m.Score}
		if m.Vector.Metadata != nil {
			r.Payload = m.Vector.Metadata.AsMap()
		}
		out = append(out, r)
	}
	return out, nil
}

// connection resolves (and caches) the index host, creating the index first
// when the write disposition allows it.
func (s *PineconeStore) connection(ctx context.Context, name, namespace string, disposition core.CreateDisposition, req core.WriteRequest) (*pinecone.IndexConnection, error) {
	s.mu.RLock()
	host, ok := s.hosts[name]
	s.mu.RUnlock()

	if !ok {
		idx, err := s.client.DescribeIndex(ctx, name)
		if err != nil {
			if disposition != core.CreateIfNeeded {
				return nil, fmt.Errorf("%w: index %s", core.ErrNotFound, name)
			}
			createErr := s.CreateCollection(ctx, models.Collection{
				Name:       name,
				Dimensions: req.Dimensions,
				Distance:   req.Distance,
			}, req.Region, req.Cloud)
			if createErr != nil {
				return nil, createErr
			}
			if idx, err = s.client.DescribeIndex(ctx, name); err != nil {
				return nil, fmt.Errorf("%w: describe index %s: %v", core.ErrBackend, name, err)
			}
		}
		host = idx.Host
		s.mu.Lock()
		s.hosts[name] = host
		s.mu.Unlock()
	}

	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("%w: connect index %s: %v", core.ErrBackend, name, err)
	}
	return conn, nil
}

// toPineconeFilter renders the neutral filter as a Pinecone metadata filter:
// must as $eq, must_not as $ne, should as one $or group, all under $and.
func toPineconeFilter(f *core.FilterConditions) (*structpb.Struct, error) {
	if f == nil || (len(f.Must) == 0 && len(f.MustNot) == 0 && len(f.Should) == 0) {
		return nil, nil
	}

	clauses := make([]any, 0, len(f.Must)+len(f.MustNot)+1)
	for _, c := range f.Must {
		clauses = append(clauses, map[string]any{c.Field: map[string]any{"$eq": c.Value}})
	}
	for _, c := range f.MustNot {
		clauses = append(clauses, map[string]any{c.Field: map[string]any{"$ne": c.Value}})
	}
	if len(f.Should) > 0 {
		or := make([]any, 0, len(f.Should))
		for _, c := range f.Should {
			or = append(or, map[string]any{c.Field: map[string]any{"$eq": c.Value}})
		}
		clauses = append(clauses, map[string]any{"$or": or})
	}

	expr := map[string]any{"$and": clauses}
	if len(clauses) == 1 {
		expr = clauses[0].(map[string]any)
	}

	s, err := structpb.NewStruct(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: filter value not expressible as pinecone metadata: %v", core.ErrUnsupported, err)
	}
	return s, nil
}

func toPineconeMetric(d models.Distance) (pinecone.IndexMetric, error) {
	switch d {
	case models.DistanceEuclid:
		return pinecone.Euclidean, nil
	case models.DistanceDot:
		return pinecone.Dotproduct, nil
	case models.DistanceManhattan:
		return "", fmt.Errorf("%w: manhattan distance on pinecone", core.ErrUnsupported)
	default:
		return pinecone.Cosine, nil
	}
}

func fromPineconeMetric(m pinecone.IndexMetric) models.Distance {
	switch m {
	case pinecone.Euclidean:
		return models.DistanceEuclid
	case pinecone.Dotproduct:
		return models.DistanceDot
	default:
		return models.DistanceCosine
	}
}
