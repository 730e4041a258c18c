package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medconsult/medconsult/internal/config"
	"github.com/medconsult/medconsult/internal/domain/consultation"
	"github.com/medconsult/medconsult/internal/domain/identity"
	"github.com/medconsult/medconsult/internal/platform/apperr"
	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/blobstore"
	"github.com/medconsult/medconsult/internal/platform/db"
	"github.com/medconsult/medconsult/internal/platform/middleware"
	"github.com/medconsult/medconsult/internal/platform/mongostore"
	"github.com/medconsult/medconsult/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medconsult-server",
		Short: "Doctor-patient consultation portal API",
	}

	rootCmd.AddCommand(serveCmd(), migrateCmd(), adminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage Postgres schema migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationSource(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to the embedded set)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationSource(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			st, err := openStores(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer st.close()

			svc := identity.NewService(st.doctors, st.patients, st.admins, nil)
			admin, err := svc.CreateAdmin(ctx, name, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Admin %s created (%s).\n", admin.Email, admin.ID)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("password", "", "Login password")

	cmd.AddCommand(createCmd)
	return cmd
}

// migrationSource returns dir as a filesystem, or the migrations compiled
// into the binary when dir is empty.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return nil, fmt.Errorf("migrations apply to the %q driver only, STORE_DRIVER is %q", config.DriverPostgres, cfg.StoreDriver)
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

// stores is the persistence wiring for one driver.
type stores struct {
	name     string
	doctors  identity.DoctorRepository
	patients identity.PatientRepository
	admins   identity.AdminRepository
	messages consultation.MessageRepository
	replies  consultation.ReplyAppender
	tx       consultation.Transactor
	pinger   db.Pinger
	details  func() interface{}
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			store.Close(context.Background())
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		tx, err := mongostore.DetectTransactor(ctx, store, cfg.MongoTransactions)
		if err != nil {
			store.Close(context.Background())
			return nil, fmt.Errorf("detect mongo topology: %w", err)
		}
		if cfg.MongoTransactions && !tx.Enabled() {
			logger.Warn().Msg("MongoDB is a standalone server; reply writes run without a transaction")
		}
		return &stores{
			name:     config.DriverMongo,
			doctors:  identity.NewDoctorRepoMongo(store),
			patients: identity.NewPatientRepoMongo(store),
			admins:   identity.NewAdminRepoMongo(store),
			messages: consultation.NewMessageRepoMongo(store),
			replies:  consultation.NewReplyAppenderMongo(store),
			tx:       tx,
			pinger:   store,
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				store.Close(ctx)
			},
		}, nil
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		return &stores{
			name:     config.DriverPostgres,
			doctors:  identity.NewDoctorRepo(pool),
			patients: identity.NewPatientRepo(pool),
			admins:   identity.NewAdminRepo(pool),
			messages: consultation.NewMessageRepo(pool),
			replies:  consultation.NewReplyAppender(pool),
			tx:       db.NewTransactor(pool),
			pinger:   pool,
			details:  func() interface{} { return db.GetPoolStats(pool) },
			close:    pool.Close,
		}, nil
	}
}

// signingKey returns the configured JWT secret. Without one (development
// only) every restart invalidates outstanding tokens.
func signingKey(cfg *config.Config) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	if !cfg.IsDev() {
		return nil, fmt.Errorf("JWT_SECRET is required outside development")
	}
	return auth.RandomKey()
}

func newRevocationStore(ctx context.Context, cfg *config.Config) (auth.RevocationStore, func(), error) {
	if cfg.RedisURL == "" {
		s := auth.NewMemoryRevocationStore()
		return s, s.Close, nil
	}
	client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRedisRevocationStore(client), func() { client.Close() }, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// serverDeps is everything newServer needs beyond configuration.
type serverDeps struct {
	stores      *stores
	issuer      *auth.Issuer
	revocations auth.RevocationStore
	blobs       blobstore.BlobStore
}

func newServer(cfg *config.Config, logger zerolog.Logger, deps serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"X-Total-Count", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(auth.JWTMiddleware(auth.JWTConfig{
		Issuer:      deps.issuer,
		Revocations: deps.revocations,
	}))
	e.Use(middleware.Audit(logger))

	st := deps.stores
	e.GET("/health", db.HealthHandler(st.name, st.pinger, st.details))
	blobstore.NewBlobHandler(deps.blobs).RegisterRoutes(e)

	api := e.Group("/api")

	identitySvc := identity.NewService(st.doctors, st.patients, st.admins, deps.issuer)
	identity.NewHandler(identitySvc, deps.blobs, cfg.PublicBaseURL).RegisterRoutes(api)

	consultSvc := consultation.NewService(st.messages, st.replies, identitySvc, st.tx,
		consultation.ReplyPolicy(cfg.ReplyPolicy), logger.With().Str("component", "consultation").Logger())
	consultation.NewHandler(consultSvc).RegisterRoutes(api)

	auth.RegisterLogoutRoute(api, deps.revocations)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer st.close()
	logger.Info().Str("driver", st.name).Msg("connected to store")

	key, err := signingKey(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve signing key")
	}

	revocations, closeRevocations, err := newRevocationStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeRevocations()

	blobs, err := blobstore.NewLocalDiskStore(cfg.UploadDir, middleware.ParseLimit(cfg.UploadLimit))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open upload directory")
	}

	e := newServer(cfg, logger, serverDeps{
		stores:      st,
		issuer:      auth.NewIssuer(key, cfg.TokenTTL),
		revocations: revocations,
		blobs:       blobs,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("reply_policy", cfg.ReplyPolicy).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
