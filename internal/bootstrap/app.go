package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/analyses"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/provider"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/provider/moonshot"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/provider/simulated"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/services/health"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/config"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/server"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/storage/db"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/storage/mongodb"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/storage/object"
	localstore "github.com/hddy2000/medical-beauty-ai-demo/internal/shared/storage/object/local"
	s3store "github.com/hddy2000/medical-beauty-ai-demo/internal/shared/storage/object/s3"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/telemetry"
)

var runMigrations = db.RunMigrations

// App holds shared dependencies.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Mongo           *mongo.Client
	Archive         object.ObjectStore
	Provider        provider.Provider
	AnalysesRepo    analyses.Repo
	AnalysesService *analyses.Service
	AnalysisHandler *analyses.Handler
	Health          *health.Service
}

// Build prepares every dependency from cfg and wires the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Health: health.NewService(),
	}

	if err := buildStore(ctx, app); err != nil {
		return nil, err
	}

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.Archive = archive

	app.Provider = buildProvider(cfg)
	app.Health.Register("provider", func(context.Context) error {
		return provider.Preflight(app.Provider)
	})

	app.AnalysesService = &analyses.Service{
		Repo:     app.AnalysesRepo,
		Provider: app.Provider,
		Archive:  app.Archive,
	}
	app.AnalysisHandler = analyses.NewHandler(app.AnalysesService)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		AnalysisHandler: app.AnalysisHandler,
		Health:          app.Health,
	})

	info := app.Provider.Info()
	telemetry.Info("bootstrap complete", map[string]any{
		"env":      cfg.Env,
		"store":    cfg.StoreDriver,
		"provider": info.Name,
		"model":    info.Model,
		"archive":  cfg.ArchiveStore,
	})
	return app, nil
}

// Close releases store connections. The Lambda DB singleton is left open.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.DB != nil && !a.Config.IsLambda() {
		errs = append(errs, a.DB.Close())
	}
	if a.Mongo != nil {
		errs = append(errs, a.Mongo.Disconnect(ctx))
	}
	return errors.Join(errs...)
}

func buildStore(ctx context.Context, app *App) error {
	cfg := app.Config
	switch cfg.StoreDriver {
	case config.StorePostgres:
		sqlDB, err := connectPostgres(ctx, cfg)
		if err != nil {
			if cfg.IsDevLike() {
				telemetry.Warn("bootstrap: database connect failed; using in-memory store", map[string]any{"error": err})
				useMemoryStore(app)
				return nil
			}
			return err
		}
		if cfg.RunMigrations {
			if err := migrateOrClose(ctx, sqlDB, cfg.IsLambda()); err != nil {
				return err
			}
		}
		app.DB = sqlDB
		app.AnalysesRepo = &analyses.PGRepo{DB: sqlDB}
		app.Health.Register("store", sqlDB.PingContext)
	case config.StoreMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI, mongodb.DefaultOptions())
		if err != nil {
			if cfg.IsDevLike() {
				telemetry.Warn("bootstrap: mongodb connect failed; using in-memory store", map[string]any{"error": err})
				useMemoryStore(app)
				return nil
			}
			return err
		}
		repo := analyses.NewMongoRepo(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			telemetry.Warn("bootstrap: mongodb index creation failed", map[string]any{"error": err})
		}
		app.Mongo = client
		app.AnalysesRepo = repo
		app.Health.Register("store", func(ctx context.Context) error {
			return mongodb.Ping(ctx, client, 0)
		})
	default:
		telemetry.Info("bootstrap: using in-memory store", nil)
		useMemoryStore(app)
	}
	return nil
}

func useMemoryStore(app *App) {
	app.AnalysesRepo = analyses.NewMemoryRepo()
	app.Health.Register("store", func(context.Context) error { return nil })
}

// migrateOrClose runs migrations on sqlDB. On failure it closes the pool
// unless shared is set; the Lambda singleton outlives this invocation.
func migrateOrClose(ctx context.Context, sqlDB *sql.DB, shared bool) error {
	err := runMigrations(ctx, sqlDB)
	if err == nil {
		return nil
	}
	if !shared {
		err = errors.Join(err, sqlDB.Close())
	}
	return fmt.Errorf("run migrations: %w", err)
}

func connectPostgres(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	overrides := db.Overrides{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		PingTimeout:     cfg.DBPingTimeout,
	}
	if cfg.IsLambda() {
		return db.GetSingleton(ctx, cfg.DatabaseURL, overrides.Apply(db.DefaultLambdaOptions()))
	}
	return db.Connect(ctx, cfg.DatabaseURL, overrides.Apply(db.DefaultServerOptions()))
}

func buildArchive(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ArchiveStore {
	case config.ArchiveLocal:
		return localstore.New(cfg.ArchiveLocalDir), nil
	case config.ArchiveS3:
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.ArchiveS3Bucket, cfg.ArchiveS3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			return nil, fmt.Errorf("build s3 archive: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

func buildProvider(cfg config.Config) provider.Provider {
	if cfg.AIProvider == config.ProviderNetwork {
		if cfg.KimiAPIKey != "" || !cfg.ProviderFallbackSimulated {
			if cfg.KimiAPIKey == "" {
				telemetry.Warn("bootstrap: network provider selected without credential", map[string]any{
					"setting": moonshot.APIKeySetting,
				})
			}
			return moonshot.New(moonshot.Options{
				APIKey:      cfg.KimiAPIKey,
				BaseURL:     cfg.KimiBaseURL,
				Model:       cfg.KimiModel,
				Temperature: cfg.KimiTemperature,
				MaxTokens:   cfg.KimiMaxTokens,
				Timeout:     cfg.ProviderTimeout,
			})
		}
		telemetry.Warn("bootstrap: credential missing; falling back to simulated provider", map[string]any{
			"setting": moonshot.APIKeySetting,
		})
	}
	return simulated.New(simulated.Options{
		Seed:    cfg.SimulatedSeed,
		Latency: cfg.SimulatedLatency,
	})
}
