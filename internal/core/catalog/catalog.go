// Package catalog reads datasource and embedding-model descriptors from the
// metadata store and writes per-datasource ingestion counters.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/embedhq/vectorproxy/internal/config"
	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

const (
	datasourceCollection = "datasources"
	modelCollection      = "embeddingModels"
)

type MongoCatalog struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ core.CatalogClient = (*MongoCatalog)(nil)

func NewMongoCatalog(ctx context.Context, cfg *config.Config) (*MongoCatalog, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	log.Println("Connected to MongoDB catalog")

	return &MongoCatalog{client: client, db: client.Database(cfg.MongoDBName)}, nil
}

func (c *MongoCatalog) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// GetDatasource returns nil, nil when the id is unknown: an absent datasource
// is routine (deleted mid-flight) and the caller only warns.
func (c *MongoCatalog) GetDatasource(ctx context.Context, id string) (*models.Datasource, error) {
	var ds models.Datasource
	err := c.db.Collection(datasourceCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&ds)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get datasource %s: %v", core.ErrBackend, id, err)
	}
	return &ds, nil
}

func (c *MongoCatalog) GetEmbeddingModel(ctx context.Context, id string) (*models.EmbeddingModel, error) {
	var m models.EmbeddingModel
	err := c.db.Collection(modelCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get embedding model %s: %v", core.ErrBackend, id, err)
	}
	return &m, nil
}

// IncrementRecordCount adds delta to recordCount.<field> and stamps
// recordCount.lastUpdated. The document must pre-exist; counters only grow.
func (c *MongoCatalog) IncrementRecordCount(ctx context.Context, datasourceID, field string, delta int64) error {
	if delta < 0 {
		return fmt.Errorf("%w: counter decrement refused (%s by %d)", core.ErrConflict, field, delta)
	}
	res, err := c.db.Collection(datasourceCollection).UpdateOne(ctx,
		bson.M{"_id": datasourceID},
		bson.M{
			"$inc": bson.M{"recordCount." + field: delta},
			"$set": bson.M{"recordCount.lastUpdated": time.Now().UnixMilli()},
		},
	)
	if err != nil {
		return fmt.Errorf("%w: increment %s for %s: %v", core.ErrBackend, field, datasourceID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: datasource %s", core.ErrNotFound, datasourceID)
	}
	return nil
}

// SetTotalAndStatus records the chunk total and moves the datasource into the
// given status in a single write.
func (c *MongoCatalog) SetTotalAndStatus(ctx context.Context, datasourceID string, total int64, status string) error {
	res, err := c.db.Collection(datasourceCollection).UpdateOne(ctx,
		bson.M{"_id": datasourceID},
		bson.M{"$set": bson.M{
			"recordCount.total":       total,
			"recordCount.lastUpdated": time.Now().UnixMilli(),
			"status":                  status,
		}},
	)
	if err != nil {
		return fmt.Errorf("%w: set total/status for %s: %v", core.ErrBackend, datasourceID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: datasource %s", core.ErrNotFound, datasourceID)
	}
	return nil
}
