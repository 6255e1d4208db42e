package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/embedhq/vectorproxy/internal/config"
	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/core/bus"
	"github.com/embedhq/vectorproxy/internal/core/catalog"
	"github.com/embedhq/vectorproxy/internal/core/embedding"
	"github.com/embedhq/vectorproxy/internal/core/engine"
	"github.com/embedhq/vectorproxy/internal/core/extractor"
	objectclient "github.com/embedhq/vectorproxy/internal/core/object-client"
	"github.com/embedhq/vectorproxy/internal/core/vectorstore"
)

// App holds every long-lived component of the service.
type App struct {
	Catalog  core.CatalogClient
	Store    core.VectorStore
	Engine   *engine.Engine
	Consumer bus.Consumer
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	catalogClient, err := catalog.NewMongoCatalog(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	log.Println("Catalog initialized and ready.")

	store, err := newVectorStore(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	log.Printf("Vector store initialized (%s).", cfg.VectorDatabase)

	// object storage is optional; file messages referencing a bucket fail
	// per-message when credentials are absent
	var object core.ObjectClient
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		s3Client, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			return nil, fmt.Errorf("object storage: %w", err)
		}
		object = s3Client
		log.Println("Object client initialized and ready.")
	} else {
		log.Println("AWS credentials not set; remote file delivery disabled.")
	}

	docExtractor := extractor.NewDocconvExtractor(false)
	embedder := embedding.NewFacade(cfg)
	notifier := engine.NewNotifier(cfg.WebappURL())

	eng := engine.NewEngine(cfg, catalogClient, store, object, docExtractor, embedder, notifier)

	consumer, err := newConsumer(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bus consumer: %w", err)
	}

	server := NewServer(cfg, store)

	return &App{
		Catalog:  catalogClient,
		Store:    store,
		Engine:   eng,
		Consumer: consumer,
		Server:   server,
	}, nil
}

func newVectorStore(ctx context.Context, cfg *config.Config) (core.VectorStore, error) {
	switch cfg.VectorDatabase {
	case "pinecone":
		return vectorstore.NewPineconeStore(cfg)
	case "pgvector":
		return vectorstore.NewPgvectorStore(ctx, cfg)
	case "null":
		return vectorstore.NewNullStore(), nil
	default:
		return vectorstore.NewQdrantStore(cfg)
	}
}

func newConsumer(ctx context.Context, cfg *config.Config) (bus.Consumer, error) {
	switch cfg.MessageQueueProvider {
	case "google":
		return bus.NewPubSubConsumer(ctx, cfg)
	default:
		return bus.NewRabbitMQConsumer(cfg), nil
	}
}

// Run starts the worker pool, the bus consumer and the HTTP server, then
// blocks until ctx is cancelled and the engine has drained its backlog.
func (a *App) Run(ctx context.Context) {
	a.Engine.Start(ctx)

	go func() {
		if err := a.Consumer.Consume(ctx, a.Engine.Sink()); err != nil && ctx.Err() == nil {
			log.Printf("bus consumer stopped: %v", err)
		}
	}()

	go a.Server.Start()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	// acked deliveries still queued in the engine must be processed or
	// counted as failure before the process exits
	a.Engine.Wait()
}

func (a *App) Close() {
	if a.Consumer != nil {
		_ = a.Consumer.Close()
	}
	if a.Catalog != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Catalog.Close(ctx)
	}
}
