package entrypoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/audit"
	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/config"
	"github.com/jollyrodger/pika/internal/covers"
	"github.com/jollyrodger/pika/internal/database"
	auditrepo "github.com/jollyrodger/pika/internal/database/audit"
	"github.com/jollyrodger/pika/internal/database/community"
	"github.com/jollyrodger/pika/internal/database/library"
	"github.com/jollyrodger/pika/internal/database/outbox"
	"github.com/jollyrodger/pika/internal/database/users"
	http_controllers "github.com/jollyrodger/pika/internal/http"
	"github.com/jollyrodger/pika/internal/mail"
	"github.com/jollyrodger/pika/internal/metadata"
	"github.com/jollyrodger/pika/internal/scheduler"
	"github.com/jollyrodger/pika/internal/search"
	"github.com/jollyrodger/pika/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Open connects to the database and attaches the search index, so every
// committed library change is indexed.
func Open(cfg *config.Config) (*database.Database, *search.Index, error) {
	db, err := database.NewDatabase(cfg.Database.Path, cfg.Global.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	index, err := search.NewIndex(db.DB, cfg.Search.CacheSize)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create search index: %w", err)
	}
	if err := db.DB.Use(search.NewSyncPlugin(index)); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to register search sync: %w", err)
	}
	return db, index, nil
}

// SeedDefaultRecords creates the first administrator and the default forum
// threads on an empty database. A generated password is logged once.
func SeedDefaultRecords(db *database.Database, cfg *config.Config) error {
	password := cfg.Setup.AdminPassword
	generated := password == ""
	if generated {
		var err error
		if password, err = auth.GeneratePassword(); err != nil {
			return fmt.Errorf("failed to generate admin password: %w", err)
		}
	}

	hash, err := auth.HashPassword(password, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	created, err := db.Seed(database.SeedOptions{
		AdminUsername:     cfg.Setup.AdminUsername,
		AdminEmail:        cfg.Setup.AdminEmail,
		AdminPasswordHash: hash,
	})
	if err != nil {
		return fmt.Errorf("failed to seed default records: %w", err)
	}
	if created && generated {
		log.Printf("Administrator %q created with password %s (set SETUP_ADMIN_PASSWORD to choose one)", cfg.Setup.AdminUsername, password)
	}
	return nil
}

// csrfKey turns the configured secret into the 32 byte key gorilla/csrf expects.
func csrfKey(secret string) []byte {
	if key, err := hex.DecodeString(secret); err == nil && len(key) == 32 {
		return key
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill -9 cannot be caught
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	// Stop background work after the last request has been answered
	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Pika v%s", version)

	db, index, err := Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	if cfg.Setup.CreateDefaultRecords {
		if err := SeedDefaultRecords(db, cfg); err != nil {
			log.Fatalf("%v", err)
		}
	}

	if cfg.Auth.SecretKey == "" {
		secret, err := auth.GenerateSecret()
		if err != nil {
			log.Fatalf("Failed to generate secret key: %v", err)
		}
		cfg.Auth.SecretKey = secret
		log.Printf("Generated secret key (set AUTH_SECRET_KEY to keep sessions and activation links valid across restarts)")
	}

	libraryRepo := library.NewRepository(db.DB)
	communityRepo := community.NewRepository(db.DB)
	usersRepo := users.NewRepository(db.DB)

	auditService := audit.NewService(auditrepo.NewRepository(db.DB))
	auditor := audit.NewAuditor(cfg.Audit.Dir)

	goodreads := metadata.NewClient(cfg.Library.RequestTimeout)
	coverStore, err := covers.NewStore(cfg.Library.CoversDir, goodreads)
	if err != nil {
		log.Fatalf("Failed to initialize cover store: %v", err)
	}
	log.Printf("Cover store initialized at %s", cfg.Library.CoversDir)
	importer := metadata.NewImporter(goodreads, metadata.NewIndexMatcher(index, db.DB))

	// Without the task queue mails are delivered inline
	var taskClient *tasks.Client
	var delivery mail.DeliveryScheduler
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.ConfigFrom(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()
		delivery = taskClient
	}
	mailService := mail.NewService(outbox.NewRepository(db.DB), mail.LogMailer{}, delivery, cfg.Global.BaseURL)

	taskCtx, taskCtxCancel := context.WithCancel(context.Background())
	defer taskCtxCancel()

	var maintenance *scheduler.MaintenanceScheduler
	if taskClient != nil {
		taskClient.Register(
			tasks.NewReindexLibraryQueue(index, auditService),
			tasks.NewSendActivationMailQueue(mailService),
			tasks.NewSweepExpiredTokensQueue(usersRepo, auditService),
			tasks.NewCleanupAuditEventsQueue(auditService, auditService),
		)
		go taskClient.Start(taskCtx)

		if cfg.Scheduler.Enabled {
			maintenance = scheduler.NewMaintenanceScheduler(taskClient, scheduler.SchedulesFrom(cfg))
			if err := maintenance.Start(taskCtx); err != nil {
				log.Fatalf("Failed to start maintenance scheduler: %v", err)
			}
			for _, next := range maintenance.NextRuns() {
				log.Printf("Maintenance scheduler: next %s at %s", next.Job, next.Next.Format(time.RFC3339))
			}
		}
	}

	if n, err := mailService.ResumePending(taskCtx); err != nil {
		log.Printf("WARNING: Failed to resume pending mails: %v", err)
	} else if n > 0 {
		log.Printf("Resumed delivery of %d pending mails", n)
	}

	authService := auth.NewService(usersRepo, cfg.Auth)
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatalf("Failed to get SQL DB for sessions: %v", err)
	}
	sessionManager, err := auth.NewSessionManager(sqlDB, cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}

	if hasUsers, _ := authService.HasUsers(context.Background()); !hasUsers {
		log.Printf("No users found. Run '%s setup' or register at /auth/register.", os.Args[0])
	}

	router, cleanup := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:       db,
		Library:        libraryRepo,
		Community:      communityRepo,
		Users:          usersRepo,
		Index:          index,
		Covers:         coverStore,
		Previewer:      importer,
		Auditor:        auditor,
		AuthService:    authService,
		SessionManager: sessionManager,
		AuthConfig:     cfg.Auth,
		CSRFSecret:     csrfKey(cfg.Auth.SecretKey),
		Mailer:         mailService,
		AuditService:   auditService,
		PerPage:        cfg.Library.PerPageItems,
		ContactEmail:   cfg.Contact.Email,
		Version:        version,
	})

	onShutdown := func(ctx context.Context) {
		cleanup()
		if maintenance != nil {
			maintenance.Stop()
		}
		if taskClient != nil {
			taskClient.Stop(ctx)
		}
		taskCtxCancel()
		auditService.Wait()
	}

	Serve(router, cfg, onShutdown)
}
