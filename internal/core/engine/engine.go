// Package engine turns bus messages into vector points: fetch, extract,
// chunk, embed, upsert, count.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/embedhq/vectorproxy/internal/config"
	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/core/bus"
	"github.com/embedhq/vectorproxy/internal/core/chunker"
	"github.com/embedhq/vectorproxy/internal/models"
)

const (
	upsertBatchSize = 100
	embedBatchSize  = 100
	embedFanOut     = 4

	processTimeout = 5 * time.Minute
	// multipart document fetches can be large
	extractTimeout = 500 * time.Second

	// defaultDrainGrace bounds how long shutdown keeps working the acked
	// backlog before the rest is charged to recordCount.failure.
	defaultDrainGrace = 30 * time.Second
)

// Engine is the ingestion pipeline. One instance serves all datasources;
// per-message state never outlives Process.
type Engine struct {
	cfg       *config.Config
	catalog   core.CatalogClient
	store     core.VectorStore
	object    core.ObjectClient
	extractor core.DocumentExtractor
	embedder  core.EmbeddingProvider
	notifier  *Notifier

	jobs       chan bus.Delivery
	wg         sync.WaitGroup
	drainGrace time.Duration
}

func NewEngine(
	cfg *config.Config,
	catalog core.CatalogClient,
	store core.VectorStore,
	object core.ObjectClient,
	extractor core.DocumentExtractor,
	embedder core.EmbeddingProvider,
	notifier *Notifier,
) *Engine {
	return &Engine{
		cfg:        cfg,
		catalog:    catalog,
		store:      store,
		object:     object,
		extractor:  extractor,
		embedder:   embedder,
		notifier:   notifier,
		jobs:       make(chan bus.Delivery, 1024),
		drainGrace: defaultDrainGrace,
	}
}

// WorkerCount sizes the pool for I/O-bound work: embedding calls dominate,
// so the pool runs well past the core count.
func (e *Engine) WorkerCount() int {
	n := int(float64(runtime.NumCPU()) * e.cfg.ThreadUtilisation * 10)
	if n < 1 {
		n = 1
	}
	return n
}

// Start launches the worker pool. On cancellation each worker keeps working
// the acked backlog until the drain grace expires, then charges whatever is
// left to recordCount.failure before exiting; Wait observes the whole pool.
func (e *Engine) Start(ctx context.Context) {
	numWorkers := e.WorkerCount()
	log.Printf("Engine: starting %d workers", numWorkers)

	for w := 1; w <= numWorkers; w++ {
		e.wg.Add(1)
		go func(w int) {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					e.drain(w)
					log.Printf("Engine: worker %d shutting down", w)
					return
				case d := <-e.jobs:
					e.handle(w, d, processTimeout)
				}
			}
		}(w)
	}
}

// Wait blocks until every worker has exited and the backlog is accounted for.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) handle(w int, d bus.Delivery, timeout time.Duration) {
	proctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := e.Process(proctx, d.Body, d.Type, d.DatasourceID, d.ConfigKey); err != nil {
		log.Printf("Engine: worker %d failed on datasource %s: %v", w, d.DatasourceID, err)
	}
}

// drain empties the job queue after cancellation. Messages are already acked
// by the broker, so anything we cannot finish inside the grace window is
// recorded as failure rather than silently dropped.
func (e *Engine) drain(w int) {
	deadline := time.Now().Add(e.drainGrace)
	for {
		select {
		case d := <-e.jobs:
			remaining := time.Until(deadline)
			if remaining > 0 {
				e.handle(w, d, remaining)
				continue
			}
			e.discard(d)
		default:
			return
		}
	}
}

func (e *Engine) discard(d bus.Delivery) {
	log.Printf("WARN shutdown: dropping acked message for datasource %s", d.DatasourceID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.catalog.IncrementRecordCount(ctx, d.DatasourceID, "failure", 1); err != nil {
		log.Printf("WARN failure counter for %s: %v", d.DatasourceID, err)
	}
}

// Sink adapts the engine's job queue to the bus contract. Enqueueing is the
// acknowledgement point; processing outcome never reaches the broker.
func (e *Engine) Sink() bus.Sink {
	return func(ctx context.Context, d bus.Delivery) error {
		select {
		case e.jobs <- d:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Process runs the full pipeline for one message. Unknown datasources and
// models are dropped with a warning; everything else either lands in the
// vector store or shows up in recordCount.failure.
func (e *Engine) Process(ctx context.Context, body []byte, typeTag, datasourceID, configKey string) error {
	ds, err := e.catalog.GetDatasource(ctx, datasourceID)
	if err != nil {
		return fmt.Errorf("resolve datasource %s: %w", datasourceID, err)
	}
	if ds == nil {
		log.Printf("WARN unknown datasource %s (stream config %s); dropping message", datasourceID, configKey)
		return nil
	}

	model, err := e.catalog.GetEmbeddingModel(ctx, ds.EmbeddingModelID)
	if err != nil {
		return fmt.Errorf("resolve embedding model %s: %w", ds.EmbeddingModelID, err)
	}
	if model == nil {
		log.Printf("WARN unknown embedding model %s for datasource %s; dropping message", ds.EmbeddingModelID, datasourceID)
		return nil
	}

	embedFn := core.EmbedFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return e.embedder.EmbedTexts(ctx, model, texts)
	})

	fileDelivery := typeTag != ""

	var (
		chunks []models.Chunk
		fields []map[string]any // per-chunk payload fields, parallel to chunks
	)
	if fileDelivery {
		doc, err := e.materialize(ctx, body)
		if err != nil {
			return err
		}
		cs, err := chunker.Split(ctx, ds.ChunkingConfig, *doc, embedFn)
		if err != nil {
			return fmt.Errorf("chunk document for %s: %w", datasourceID, err)
		}
		for _, c := range cs {
			chunks = append(chunks, c)
			fields = append(fields, metadataFields(c.Metadata))
		}
	} else {
		rows, err := parseRows(body)
		if err != nil {
			return err
		}
		for _, row := range rows {
			doc := models.Document{Text: rowText(row)}
			cs, err := chunker.Split(ctx, ds.ChunkingConfig, doc, embedFn)
			if err != nil {
				return fmt.Errorf("chunk row for %s: %w", datasourceID, err)
			}
			for _, c := range cs {
				f := make(map[string]any, len(row)+len(c.Metadata))
				for k, v := range row {
					f[k] = v
				}
				for k, v := range c.Metadata {
					f[k] = v
				}
				chunks = append(chunks, c)
				fields = append(fields, f)
			}
		}
	}

	total := len(chunks)
	if total == 0 {
		log.Printf("Engine: datasource %s produced no chunks", datasourceID)
		return nil
	}

	if err := e.catalog.SetTotalAndStatus(ctx, ds.ID, int64(total), models.StatusEmbedding); err != nil {
		return fmt.Errorf("record total for %s: %w", datasourceID, err)
	}

	vecs, err := e.embedChunks(ctx, model, chunks)
	if err != nil {
		if cerr := e.catalog.IncrementRecordCount(ctx, ds.ID, "failure", int64(total)); cerr != nil {
			log.Printf("WARN failure counter for %s: %v", datasourceID, cerr)
		}
		return fmt.Errorf("embed chunks for %s: %w", datasourceID, err)
	}

	collection := ds.CollectionName
	if collection == "" {
		collection = ds.ID
	}
	wreq := core.WriteRequest{
		Collection:  collection,
		Namespace:   ds.Namespace,
		VectorName:  model.ID,
		Disposition: core.CreateIfNeeded,
		Dimensions:  model.EmbeddingLength,
		Distance:    models.DistanceCosine,
		Region:      ds.Region,
		Cloud:       ds.Cloud,
	}

	points := make([]models.Point, total)
	for i, c := range chunks {
		points[i] = models.Point{
			ID:      pointID(fields[i], e.cfg.HashingSalt, c.Text),
			Vector:  vecs[i],
			Payload: shapePayload(c.Text, fields[i]),
		}
	}

	failed := 0
	for start := 0; start < total; start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > total {
			end = total
		}
		batch := points[start:end]

		if err := e.store.BulkInsertPoints(ctx, wreq, batch); err != nil {
			log.Printf("WARN upsert batch of %d into %s failed: %v", len(batch), collection, err)
			failed += len(batch)
			if cerr := e.catalog.IncrementRecordCount(ctx, ds.ID, "failure", int64(len(batch))); cerr != nil {
				log.Printf("WARN failure counter for %s: %v", datasourceID, cerr)
			}
			continue
		}
		if cerr := e.catalog.IncrementRecordCount(ctx, ds.ID, "success", int64(len(batch))); cerr != nil {
			log.Printf("WARN success counter for %s: %v", datasourceID, cerr)
		}
	}

	if err := e.catalog.SetTotalAndStatus(ctx, ds.ID, int64(total), models.StatusReady); err != nil {
		log.Printf("WARN status for %s: %v", datasourceID, err)
	}

	if fileDelivery && failed == 0 && e.notifier != nil {
		e.notifier.EmbedSuccessful(ctx, ds.ID)
	}
	return nil
}

// embedChunks fans texts out in index-stable batches, then verifies every
// vector against the model's advertised length before anything is written.
func (e *Engine) embedChunks(ctx context.Context, model *models.EmbeddingModel, chunks []models.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedFanOut)

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			out, err := e.embedder.EmbedTexts(gctx, model, texts[start:end])
			if err != nil {
				return err
			}
			if len(out) != end-start {
				return fmt.Errorf("%w: got %d vectors for %d texts", core.ErrDimensionMismatch, len(out), end-start)
			}
			copy(vecs[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, v := range vecs {
		if len(v) != model.EmbeddingLength {
			return nil, fmt.Errorf("%w: chunk %d has %d dims, model %s expects %d",
				core.ErrDimensionMismatch, i, len(v), model.ID, model.EmbeddingLength)
		}
	}
	return vecs, nil
}

// fileRef is the body of a file-delivery message. Remote files name a
// bucket and key; local files name a path under the working directory.
type fileRef struct {
	Bucket   string `json:"bucket"`
	Filename string `json:"filename"`
	File     string `json:"file"`
}

// materialize fetches the document bytes and extracts text. Local
// materializations are removed on every exit path.
func (e *Engine) materialize(ctx context.Context, body []byte) (*models.Document, error) {
	var ref fileRef
	if err := json.Unmarshal(body, &ref); err != nil {
		return nil, fmt.Errorf("%w: decode file reference: %v", core.ErrMalformedStream, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	var (
		data []byte
		name string
		err  error
	)
	switch {
	case ref.File != "":
		path := ref.File
		if !filepath.IsAbs(path) && e.cfg.WorkDir != "" {
			path = filepath.Join(e.cfg.WorkDir, path)
		}
		defer func() {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Printf("WARN removing %s: %v", path, rmErr)
			}
		}()
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read local file %s: %w", path, err)
		}
		name = filepath.Base(path)
	case ref.Bucket != "" && ref.Filename != "":
		if e.object == nil {
			return nil, fmt.Errorf("object storage not configured, cannot fetch %s/%s", ref.Bucket, ref.Filename)
		}
		data, err = e.object.GetFile(fetchCtx, ref.Bucket, ref.Filename)
		if err != nil {
			return nil, fmt.Errorf("fetch %s/%s: %w", ref.Bucket, ref.Filename, err)
		}
		name = ref.Filename
	default:
		return nil, fmt.Errorf("%w: file message needs bucket/filename or file", core.ErrMalformedStream)
	}

	extracted, err := e.extractor.ExtractText(fetchCtx, data, name)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	return &models.Document{Text: extracted.Text, Metadata: extracted.Metadata}, nil
}

func metadataFields(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
