package core

import (
	"context"

	"github.com/embedhq/vectorproxy/internal/models"
)

// CatalogClient reads datasource and embedding-model descriptors and writes
// ingestion counters. Every lookup is authoritative; nothing is cached.
type CatalogClient interface {
	// GetDatasource returns nil, nil when the id is unknown.
	GetDatasource(ctx context.Context, id string) (*models.Datasource, error)
	// GetEmbeddingModel returns nil, nil when the id is unknown.
	GetEmbeddingModel(ctx context.Context, id string) (*models.EmbeddingModel, error)

	// IncrementRecordCount adds delta to recordCount.<field> and stamps
	// recordCount.lastUpdated. The datasource document must pre-exist.
	IncrementRecordCount(ctx context.Context, datasourceID, field string, delta int64) error
	// SetTotalAndStatus sets recordCount.total and status in one write.
	SetTotalAndStatus(ctx context.Context, datasourceID string, total int64, status string) error

	Close(ctx context.Context) error
}

// ObjectClient retrieves document bytes from object storage.
type ObjectClient interface {
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}

// ExtractedText is the result of text extraction.
type ExtractedText struct {
	Text     string
	Metadata map[string]string
}

// DocumentExtractor dispatches on file type and yields (text, metadata).
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, filename string) (*ExtractedText, error)
}

// EmbeddingProvider returns one vector per input string, order preserved.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, model *models.EmbeddingModel, texts []string) ([][]float32, error)
}

// EmbedFunc is the embedding capability handed to the semantic chunker so it
// never depends on a concrete provider.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// CreateDisposition controls collection auto-creation on write paths.
type CreateDisposition int

const (
	CreateNever CreateDisposition = iota
	CreateIfNeeded
)

// CollectionRequest addresses a collection on a backend.
type CollectionRequest struct {
	Collection string
	Namespace  string
}

// WriteRequest addresses a collection for point writes and carries everything
// needed to create it on demand under CreateIfNeeded.
type WriteRequest struct {
	Collection  string
	Namespace   string
	VectorName  string // named-vector key; empty means a single unnamed space
	Disposition CreateDisposition
	Dimensions  int
	Distance    models.Distance
	OnDisk      bool
	Region      string
	Cloud       string
}

// FieldCondition is an equality predicate on a payload field.
type FieldCondition struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// FilterConditions is the backend-neutral filter; adapters convert it at the
// boundary so backend-native filter types never leak into the core.
type FilterConditions struct {
	Must    []FieldCondition `json:"must,omitempty"`
	MustNot []FieldCondition `json:"must_not,omitempty"`
	Should  []FieldCondition `json:"should,omitempty"`
}

// ScrollRequest enumerates points matching a filter, one page at a time or,
// with GetAllPages, iterating until the cursor is exhausted.
type ScrollRequest struct {
	Collection  string
	Namespace   string
	Filter      *FilterConditions
	Limit       int
	Offset      string // opaque page cursor; empty starts from the beginning
	GetAllPages bool
}

// ScrollResult is one enumerated point.
type ScrollResult struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload,omitempty"`
	Vector  []float32      `json:"vector,omitempty"`
}

// SearchRequest is a similarity query.
type SearchRequest struct {
	Collection     string
	Namespace      string
	VectorName     string
	Vector         []float32
	TopK           int   // 0 means the default of 5
	IncludePayload *bool // nil means true
	Filter         *FilterConditions
}

// SearchResult is one similarity hit, best first.
type SearchResult struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// CollectionInfo is backend-reported collection metadata.
type CollectionInfo struct {
	Status      string          `json:"status"`
	VectorCount *uint64         `json:"vector_count,omitempty"`
	Metric      models.Distance `json:"metric,omitempty"`
	Dimensions  int             `json:"dimensions,omitempty"`
}

// StorageSize is the accounting result for one collection.
type StorageSize struct {
	PointsCount    uint64 `json:"points_count"`
	SizeBytes      uint64 `json:"size_bytes"`
	CollectionName string `json:"collection_name"`
}

// VectorStore is the capability interface implemented per backend. All
// implementations must be safe for concurrent use.
type VectorStore interface {
	ListCollections(ctx context.Context) ([]string, error)
	CheckCollectionExists(ctx context.Context, req CollectionRequest) (*CollectionInfo, error)
	CreateCollection(ctx context.Context, c models.Collection, region, cloud string) error
	DeleteCollection(ctx context.Context, req CollectionRequest) error
	InsertPoint(ctx context.Context, req WriteRequest, p models.Point) error
	BulkInsertPoints(ctx context.Context, req WriteRequest, pts []models.Point) error
	GetCollectionInfo(ctx context.Context, req CollectionRequest) (*CollectionInfo, error)
	GetStorageSize(ctx context.Context, req CollectionRequest, dims int) (*StorageSize, error)
	ScrollPoints(ctx context.Context, req ScrollRequest) ([]ScrollResult, error)
	SimilaritySearch(ctx context.Context, req SearchRequest) ([]SearchResult, error)
}

// StorageSizeBytes estimates on-disk bytes for a collection:
// ceil(points * dims * 4 * 1.15), four bytes per f32 plus 15% index overhead.
func StorageSizeBytes(points uint64, dims int) uint64 {
	if dims <= 0 {
		return 0
	}
	raw := points * uint64(dims) * 4
	return (raw*115 + 99) / 100
}
