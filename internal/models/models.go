package models

// ChunkStrategy names a chunking algorithm configured on a datasource.
type ChunkStrategy string

const (
	StrategySemantic     ChunkStrategy = "semantic"
	StrategyCharacter    ChunkStrategy = "character"
	StrategyCode         ChunkStrategy = "code"
	StrategyByTitle      ChunkStrategy = "by_title"
	StrategyByPage       ChunkStrategy = "by_page"
	StrategyBySimilarity ChunkStrategy = "by_similarity"
	StrategyBasic        ChunkStrategy = "basic"
)

// Datasource statuses written back to the catalog during ingestion.
const (
	StatusReady     = "ready"
	StatusEmbedding = "embedding"
)

// RecordCount tracks ingestion progress per datasource. Writes are monotonic.
type RecordCount struct {
	Total       int64 `bson:"total" json:"total"`
	Success     int64 `bson:"success" json:"success"`
	Failure     int64 `bson:"failure" json:"failure"`
	LastUpdated int64 `bson:"lastUpdated" json:"lastUpdated"`
}

// ChunkingConfig carries the strategy and its numeric knobs.
// Invariant: Overlap < MaxCharacters.
type ChunkingConfig struct {
	Strategy            ChunkStrategy `bson:"strategy" json:"strategy"`
	MaxCharacters       int           `bson:"maxCharacters" json:"max_characters"`
	Overlap             int           `bson:"overlap" json:"overlap"`
	SimilarityThreshold float64       `bson:"similarityThreshold" json:"similarity_threshold"`
	NewAfterNChars      int           `bson:"newAfterNChars" json:"new_after_n_chars"`
	BufferSize          int           `bson:"bufferSize" json:"buffer_size"`
	Separator           string        `bson:"separator" json:"separator"`
}

// Datasource is the catalog document that routes an ingestion message.
// The control plane owns creation and mutation; this service reads it per
// message and writes only counters and status.
type Datasource struct {
	ID               string         `bson:"_id" json:"id"`
	Name             string         `bson:"name" json:"name"`
	ChunkingConfig   ChunkingConfig `bson:"chunkingConfig" json:"chunking_config"`
	EmbeddingModelID string         `bson:"embeddingModelId" json:"embedding_model_id"`
	CollectionName   string         `bson:"collectionName" json:"collection_name"`
	Namespace        string         `bson:"namespace" json:"namespace"`
	Region           string         `bson:"region" json:"region"`
	Cloud            string         `bson:"cloud" json:"cloud"`
	Status           string         `bson:"status" json:"status"`
	RecordCount      RecordCount    `bson:"recordCount" json:"record_count"`
}

// EmbeddingModel describes a model the embedding facade can dispatch to.
// Immutable for the duration of a message's processing.
type EmbeddingModel struct {
	ID              string            `bson:"_id" json:"id"`
	Provider        string            `bson:"provider" json:"provider"` // "local" or "remote"
	Name            string            `bson:"name" json:"name"`
	EmbeddingLength int               `bson:"embeddingLength" json:"embedding_length"`
	Config          map[string]string `bson:"config" json:"config"` // credentials, base URLs
}

// Document is a transient unit of text moving through the pipeline.
// Equality is by Text only.
type Document struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Vector   []float32         `json:"vector,omitempty"`
}

// Chunk is a Document produced by the chunker; it inherits the parent
// metadata plus chunk_index and, where known, page_number/start_index.
type Chunk struct {
	Document
	Index int `json:"chunk_index"`
}

// Distance is the similarity metric of a collection.
type Distance string

const (
	DistanceCosine    Distance = "Cosine"
	DistanceEuclid    Distance = "Euclid"
	DistanceDot       Distance = "Dot"
	DistanceManhattan Distance = "Manhattan"
)

// Point is an entry in a collection. Invariant: len(Vector) equals the
// collection's dimensionality.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Collection describes a named vector space. Dimensions and Distance are
// immutable after creation.
type Collection struct {
	Name           string   `json:"name"`
	Dimensions     int      `json:"dimensions"`
	Distance       Distance `json:"distance"`
	NamedVectorKey string   `json:"named_vector_key,omitempty"`
	OnDisk         bool     `json:"on_disk"`
	Namespace      string   `json:"namespace,omitempty"`
}
