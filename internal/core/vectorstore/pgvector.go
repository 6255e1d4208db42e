package vectorstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/embedhq/vectorproxy/internal/config"
	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// PgvectorStore keeps vectors in Postgres with the pgvector extension. All
// collections share one points table keyed by (collection, id); collection
// metadata lives in its own registry table.
type PgvectorStore struct {
	db *sql.DB
}

var _ core.VectorStore = (*PgvectorStore)(nil)

func NewPgvectorStore(ctx context.Context, cfg *config.Config) (*PgvectorStore, error) {
	if cfg.VectorDatabaseURL == "" {
		return nil, fmt.Errorf("vector database url is empty")
	}

	db, err := sql.Open("pgx", cfg.VectorDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := ensureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	log.Println("Connected to Postgres (pgvector)")
	return &PgvectorStore{db: db}, nil
}

func ensureBootstrapped(ctx context.Context, db *sql.DB) error {
	bootCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var hasVersion bool
	err := db.QueryRowContext(bootCtx, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'vectorproxy_meta'
		)`).Scan(&hasVersion)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}
	if hasVersion {
		if err := db.QueryRowContext(bootCtx, `SELECT EXISTS (SELECT 1 FROM vectorproxy_meta WHERE version = 1)`).Scan(&hasVersion); err != nil {
			return fmt.Errorf("meta version check failed: %w", err)
		}
	}
	if hasVersion {
		return nil
	}

	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}
	tx, err := db.BeginTx(bootCtx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(bootCtx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	return tx.Commit()
}

func (s *PgvectorStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PgvectorStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM vector_collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %v", core.ErrBackend, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("%w: scan collection name: %v", core.ErrBackend, err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

type pgCollection struct {
	name       string
	dimensions int
	metric     models.Distance
	vectorName string
}

func (s *PgvectorStore) lookup(ctx context.Context, name string) (*pgCollection, error) {
	const q = `SELECT name, dimensions, metric, vector_name FROM vector_collections WHERE name = $1`
	var c pgCollection
	var metric string
	err := s.db.QueryRowContext(ctx, q, name).Scan(&c.name, &c.dimensions, &metric, &c.vectorName)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: collection %s", core.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup collection %s: %v", core.ErrBackend, name, err)
	}
	c.metric = models.Distance(metric)
	return &c, nil
}

func (s *PgvectorStore) CheckCollectionExists(ctx context.Context, req core.CollectionRequest) (*core.CollectionInfo, error) {
	if _, err := s.lookup(ctx, req.Collection); err != nil {
		return nil, err
	}
	return s.GetCollectionInfo(ctx, req)
}

func (s *PgvectorStore) CreateCollection(ctx context.Context, c models.Collection, region, cloud string) error {
	if c.Dimensions < 1 {
		return fmt.Errorf("%w: dimensions must be >= 1", core.ErrConflict)
	}
	metric := c.Distance
	if metric == "" {
		metric = models.DistanceCosine
	}
	const q = `
		INSERT INTO vector_collections (name, dimensions, metric, vector_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, q, c.Name, c.Dimensions, string(metric), c.NamedVectorKey)
	if err != nil {
		return fmt.Errorf("%w: create collection %s: %v", core.ErrBackend, c.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: collection %s already exists", core.ErrConflict, c.Name)
	}
	return nil
}

func (s *PgvectorStore) DeleteCollection(ctx context.Context, req core.CollectionRequest) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vector_collections WHERE name = $1`, req.Collection)
	if err != nil {
		return fmt.Errorf("%w: delete collection %s: %v", core.ErrBackend, req.Collection, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: collection %s", core.ErrNotFound, req.Collection)
	}
	return nil
}

func (s *PgvectorStore) InsertPoint(ctx context.Context, req core.WriteRequest, p models.Point) error {
	return s.BulkInsertPoints(ctx, req, []models.Point{p})
}

func (s *PgvectorStore) BulkInsertPoints(ctx context.Context, req core.WriteRequest, pts []models.Point) error {
	if len(pts) == 0 {
		return nil
	}
	coll, err := s.lookup(ctx, req.Collection)
	if err != nil {
		if req.Disposition != core.CreateIfNeeded {
			return err
		}
		create := models.Collection{
			Name:           req.Collection,
			Dimensions:     req.Dimensions,
			Distance:       req.Distance,
			NamedVectorKey: req.VectorName,
		}
		if err := s.CreateCollection(ctx, create, req.Region, req.Cloud); err != nil {
			return err
		}
		if coll, err = s.lookup(ctx, req.Collection); err != nil {
			return err
		}
	}

	for _, p := range pts {
		if len(p.Vector) != coll.dimensions {
			return fmt.Errorf("%w: point %s has %d dims, collection %s expects %d",
				core.ErrDimensionMismatch, p.ID, len(p.Vector), coll.name, coll.dimensions)
		}
	}

	const q = `
		INSERT INTO vector_points (collection, id, namespace, embedding, payload)
		VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb))
		ON CONFLICT (collection, id) DO UPDATE
		SET namespace = EXCLUDED.namespace,
		    embedding = EXCLUDED.embedding,
		    payload   = EXCLUDED.payload
	`

	op := func() error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return fmt.Errorf("%w: begin tx: %v", core.ErrBackend, err)
		}
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: prepare upsert: %v", core.ErrBackend, err)
		}
		defer stmt.Close()

		for _, p := range pts {
			payload, err := json.Marshal(p.Payload)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("encode payload for point %s: %w", p.ID, err)
			}
			vec := pgvector.NewVector(p.Vector)
			if _, err := stmt.ExecContext(ctx, coll.name, p.ID, req.Namespace, vec, payload); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("%w: upsert point %s: %v", core.ErrBackend, p.ID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit upsert: %v", core.ErrBackend, err)
		}
		return nil
	}
	return core.Retry(ctx, op)
}

func (s *PgvectorStore) GetCollectionInfo(ctx context.Context, req core.CollectionRequest) (*core.CollectionInfo, error) {
	coll, err := s.lookup(ctx, req.Collection)
	if err != nil {
		return nil, err
	}
	count, err := s.countPoints(ctx, req.Collection, req.Namespace)
	if err != nil {
		return nil, err
	}
	return &core.CollectionInfo{
		Status:      "green",
		VectorCount: &count,
		Metric:      coll.metric,
		Dimensions:  coll.dimensions,
	}, nil
}

func (s *PgvectorStore) GetStorageSize(ctx context.Context, req core.CollectionRequest, dims int) (*core.StorageSize, error) {
	if _, err := s.lookup(ctx, req.Collection); err != nil {
		return nil, err
	}
	count, err := s.countPoints(ctx, req.Collection, req.Namespace)
	if err != nil {
		return nil, err
	}
	return &core.StorageSize{
		PointsCount:    count,
		SizeBytes:      core.StorageSizeBytes(count, dims),
		CollectionName: req.Collection,
	}, nil
}

func (s *PgvectorStore) countPoints(ctx context.Context, collection, namespace string) (uint64, error) {
	var count uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM vector_points
		WHERE collection = $1 AND ($2 = '' OR namespace = $2)
	`, collection, namespace).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", core.ErrBackend, collection, err)
	}
	return count, nil
}

// filterSQL renders the neutral filter as jsonb containment predicates on the
// payload column: must as @>, must_not as NOT @>, should as one OR group.
// Placeholder numbering continues after the argc existing arguments.
func filterSQL(f *core.FilterConditions, argc int) ([]string, []any, error) {
	if f == nil {
		return nil, nil, nil
	}

	var (
		conds []string
		args  []any
	)
	contain := func(c core.FieldCondition) (string, error) {
		doc, err := json.Marshal(map[string]any{c.Field: c.Value})
		if err != nil {
			return "", fmt.Errorf("%w: encode filter on %s: %v", core.ErrUnsupported, c.Field, err)
		}
		args = append(args, string(doc))
		argc++
		return fmt.Sprintf("payload @> $%d::jsonb", argc), nil
	}

	for _, c := range f.Must {
		p, err := contain(c)
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, p)
	}
	for _, c := range f.MustNot {
		p, err := contain(c)
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, "NOT "+p)
	}
	if len(f.Should) > 0 {
		ors := make([]string, 0, len(f.Should))
		for _, c := range f.Should {
			p, err := contain(c)
			if err != nil {
				return nil, nil, err
			}
			ors = append(ors, p)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	return conds, args, nil
}

// ScrollPoints keyset-paginates on id; the cursor returned to callers is the
// last id of the previous page. The filter runs inside the query, so every
// page holds up to limit matching points.
func (s *PgvectorStore) ScrollPoints(ctx context.Context, req core.ScrollRequest) ([]core.ScrollResult, error) {
	if _, err := s.lookup(ctx, req.Collection); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultScrollPage
	}

	conds := []string{
		"collection = $1",
		"($2 = '' OR namespace = $2)",
		"($3 = '' OR id > $3)",
	}
	fconds, fargs, err := filterSQL(req.Filter, 3)
	if err != nil {
		return nil, err
	}
	conds = append(conds, fconds...)

	q := fmt.Sprintf(`
		SELECT id, payload FROM vector_points
		WHERE %s
		ORDER BY id ASC
		LIMIT $%d
	`, strings.Join(conds, " AND "), 4+len(fargs))

	var out []core.ScrollResult
	offset := req.Offset
	for {
		args := append([]any{req.Collection, req.Namespace, offset}, fargs...)
		args = append(args, limit)

		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("%w: scroll %s: %v", core.ErrBackend, req.Collection, err)
		}

		fetched := 0
		for rows.Next() {
			var (
				id      string
				payload []byte
			)
			if err := rows.Scan(&id, &payload); err != nil {
				rows.Close()
				return nil, fmt.Errorf("%w: scan point: %v", core.ErrBackend, err)
			}
			fetched++
			offset = id

			var fields map[string]any
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &fields); err != nil {
					rows.Close()
					return nil, fmt.Errorf("decode payload for point %s: %w", id, err)
				}
			}
			out = append(out, core.ScrollResult{ID: id, Payload: fields})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: scroll %s: %v", core.ErrBackend, req.Collection, err)
		}

		if !req.GetAllPages || fetched < limit {
			return out, nil
		}
	}
}

func (s *PgvectorStore) SimilaritySearch(ctx context.Context, req core.SearchRequest) ([]core.SearchResult, error) {
	coll, err := s.lookup(ctx, req.Collection)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != coll.dimensions {
		return nil, fmt.Errorf("%w: query vector has %d dims, collection expects %d",
			core.ErrDimensionMismatch, len(req.Vector), coll.dimensions)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	includePayload := req.IncludePayload == nil || *req.IncludePayload

	var distanceExpr string
	switch coll.metric {
	case models.DistanceEuclid:
		distanceExpr = "embedding <-> $2"
	case models.DistanceDot:
		distanceExpr = "embedding <#> $2"
	case models.DistanceManhattan:
		distanceExpr = "embedding <+> $2"
	default:
		distanceExpr = "embedding <=> $2"
	}

	conds := []string{
		"collection = $1",
		"($3 = '' OR namespace = $3)",
	}
	fconds, fargs, err := filterSQL(req.Filter, 3)
	if err != nil {
		return nil, err
	}
	conds = append(conds, fconds...)

	// filtering in the WHERE keeps top_k meaningful: the limit applies to
	// matching points, not to the unfiltered nearest neighbours
	q := fmt.Sprintf(`
		SELECT id, %s AS distance, payload FROM vector_points
		WHERE %s
		ORDER BY distance ASC
		LIMIT $%d
	`, distanceExpr, strings.Join(conds, " AND "), 4+len(fargs))

	args := append([]any{req.Collection, pgvector.NewVector(req.Vector), req.Namespace}, fargs...)
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", core.ErrBackend, req.Collection, err)
	}
	defer rows.Close()

	var out []core.SearchResult
	for rows.Next() {
		var (
			id       string
			distance float64
			payload  []byte
		)
		if err := rows.Scan(&id, &distance, &payload); err != nil {
			return nil, fmt.Errorf("%w: scan hit: %v", core.ErrBackend, err)
		}

		var fields map[string]any
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &fields); err != nil {
				return nil, fmt.Errorf("decode payload for point %s: %w", id, err)
			}
		}
		hit := core.SearchResult{ID: id, Score: distanceToScore(distance, coll.metric)}
		if includePayload {
			hit.Payload = fields
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

// distanceToScore flips pgvector's smaller-is-closer distances into the
// larger-is-closer scores the other backends report.
func distanceToScore(distance float64, metric models.Distance) float32 {
	switch metric {
	case models.DistanceDot:
		// <#> returns the negated inner product
		return float32(-distance)
	case models.DistanceEuclid, models.DistanceManhattan:
		return float32(-distance)
	default:
		return float32(1.0 - distance)
	}
}
