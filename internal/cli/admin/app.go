package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/kbpipe/internal/config"
	"github.com/cloo-solutions/kbpipe/internal/database"
	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/openai"
	"github.com/cloo-solutions/kbpipe/internal/repository"
	"github.com/cloo-solutions/kbpipe/internal/service"
	"github.com/cloo-solutions/kbpipe/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// app holds the wired pipeline shared by serve and the one-shot commands.
type app struct {
	editRequests *repository.EditRequestRepository

	processing *service.ProcessingService
	knowledge  *service.KnowledgeService
	fileImport *service.FileImportService
	urlImport  *service.URLImportService
	status     *service.ImportStatusService
	broker     *service.EditBroker
	applier    *service.EditApplier
	wizard     *service.WizardService
	feedback   *service.FeedbackClassifier
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// newApp wires repositories, providers and services. Missing providers are
// logged and left nil; the services degrade as documented on their constructors.
func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*app, error) {
	items := repository.NewKnowledgeRepository(pool)
	chunks := repository.NewKnowledgeChunkRepository(pool)
	history := repository.NewHistoryRepository(pool)
	editRequests := repository.NewEditRequestRepository(pool)
	importLogs := repository.NewImportLogRepository(pool)
	products := repository.NewProductRepository(pool)
	variables := repository.NewVariableRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	var embedder service.Embedder
	if cfg.HasEmbeddings() {
		client, err := openai.NewClientWithConfig(openai.Config{
			Provider:            cfg.EmbeddingProvider,
			APIKey:              cfg.EmbeddingAPIKey,
			BaseURL:             cfg.EmbeddingBaseURL,
			EmbeddingModel:      cfg.EmbeddingModel,
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			Timeout:             cfg.EmbeddingTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		embedder = client
		log.Printf("embeddings: provider %s, model %s, %d dimensions", cfg.EmbeddingProvider, client.Model(), client.Dimensions())
	} else {
		log.Println("WARNING: no embedding API key configured, chunks will be stored with zero vectors")
	}

	var llm service.LLM
	if cfg.HasLLM() {
		chat, err := openai.NewChatClient(openai.ChatConfig{
			APIKey:   cfg.LLMAPIKey,
			BaseURL:  cfg.LLMBaseURL,
			Model:    cfg.LLMModel,
			JSONMode: true,
			Timeout:  cfg.LLMTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create language model client: %w", err)
		}
		llm = chat
	} else {
		log.Println("no language model configured: edit requests ask for clarification, wizards use templates")
	}

	var store service.ObjectStore = unconfiguredStore{}
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", s3Client.Bucket())
		store = s3Client
	} else {
		log.Println("no object storage configured: file imports are disabled")
	}

	chunkCfg := service.ChunkConfig{MaxChars: cfg.ChunkMaxChars, Overlap: cfg.ChunkOverlap}
	processing := service.NewProcessingService(items, chunks, embedder, chunkCfg)
	writer := service.NewContentWriter(variables, products)

	return &app{
		editRequests: editRequests,
		processing:   processing,
		knowledge:    service.NewKnowledgeService(items, history, variables, writer, txRunner, processing),
		fileImport:   service.NewFileImportService(items, importLogs, products, writer, processing, store),
		urlImport:    service.NewURLImportService(items, importLogs, writer, processing, nil, cfg.URLFetchTimeout),
		status:       service.NewImportStatusService(importLogs),
		broker:       service.NewEditBroker(items, products, editRequests, llm, cfg.EditRequestTTL),
		applier:      service.NewEditApplier(editRequests, txRunner, writer, processing),
		wizard:       service.NewWizardService(items, importLogs, products, writer, processing, llm),
		feedback:     service.NewFeedbackClassifier(llm),
	}, nil
}

type unconfiguredStore struct{}

func (unconfiguredStore) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	return domain.ErrStorageUnavailable
}
