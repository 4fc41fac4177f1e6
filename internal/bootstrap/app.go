package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"plagiarism-backend/internal/analyses"
	"plagiarism-backend/internal/detect"
	"plagiarism-backend/internal/documents"
	"plagiarism-backend/internal/queue"
	"plagiarism-backend/internal/shared/config"
	"plagiarism-backend/internal/shared/server"
	"plagiarism-backend/internal/shared/storage/db"
	"plagiarism-backend/internal/shared/storage/object"
	localstore "plagiarism-backend/internal/shared/storage/object/local"
	s3store "plagiarism-backend/internal/shared/storage/object/s3"
	"plagiarism-backend/internal/users"
)

// App holds shared dependencies for the API and worker binaries.
type App struct {
	Config            config.Config
	Router            *gin.Engine
	DB                *sql.DB
	Store             object.ObjectStore
	Queue             queue.Client
	UsersRepo         users.Repo
	DocumentsRepo     documents.DocumentsRepo
	AnalysesRepo      analyses.Repo
	UsersService      *users.Service
	DocumentsService  *documents.Service
	AnalysesService   *analyses.Service
	AnalysisProcessor AnalysisProcessor
	UsersHandler      *users.Handler
	DocumentsHandler  *documents.Handler
	AnalysisHandler   *analyses.Handler
}

// AnalysisProcessor allows callers to override analysis processing for tests.
type AnalysisProcessor interface {
	ProcessAnalysis(ctx context.Context, analysisID string) error
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}
	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		UserHandler:     app.UsersHandler,
		DocumentHandler: app.DocumentsHandler,
		AnalysisHandler: app.AnalysisHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("PC_SQS_QUEUE_URL")) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func buildEngine(cfg config.Config) *detect.Engine {
	d := cfg.Detection
	return detect.NewEngine(
		detect.NewDuckDuckGoClient(d.SearchTimeout),
		detect.NewPageFetcher(d.FetchTimeout),
		&detect.EmbeddingScorer{},
		detect.Options{
			SimilarityThreshold: d.SimilarityThreshold,
			MaxSentences:        d.MaxSentences,
			MaxURLsPerSentence:  d.MaxURLsPerSentence,
			MaxMatches:          d.MaxMatches,
			PlagiarismWeight:    d.PlagiarismWeight,
			AIWeight:            d.AIWeight,
		},
	)
}

func buildServices(app *App) {
	var userRepo users.Repo
	var docRepo documents.DocumentsRepo
	var analysisRepo analyses.Repo

	if app.DB != nil {
		userRepo = &users.PGRepo{DB: app.DB}
		docRepo = &documents.PGRepo{DB: app.DB}
		analysisRepo = &analyses.PGRepo{DB: app.DB}
	} else {
		userRepo = users.NewMemoryRepo()
		docRepo = documents.NewMemoryRepo()
		analysisRepo = analyses.NewMemoryRepo()
	}

	userSvc := users.NewService(userRepo)
	docSvc := &documents.Service{Store: app.Store, Repo: docRepo}
	analysisSvc := &analyses.Service{
		Repo:   analysisRepo,
		Docs:   docSvc,
		Engine: buildEngine(app.Config),
		Queue:  app.Queue,
	}

	app.UsersRepo = userRepo
	app.DocumentsRepo = docRepo
	app.AnalysesRepo = analysisRepo
	app.UsersService = userSvc
	app.DocumentsService = docSvc
	app.AnalysesService = analysisSvc
	app.AnalysisProcessor = analysisSvc
	app.UsersHandler = users.NewHandler(userSvc)
	app.DocumentsHandler = documents.NewHandler(docSvc)
	app.AnalysisHandler = analyses.NewHandler(analysisSvc)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
