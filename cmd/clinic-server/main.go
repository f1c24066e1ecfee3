package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/account"
	"github.com/clinic/clinic/internal/domain/documents"
	"github.com/clinic/clinic/internal/domain/emergency"
	"github.com/clinic/clinic/internal/domain/tenantdata"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/mevo"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/migrations"
)

const requestTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(usersCmd())

	if err := rootCmd.Execute(); err != nil {
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

// withPool loads the config and opens a pool for one-shot commands.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
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
			})
		},
	})

	return cmd
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect user accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Print the number of registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				n, err := account.NewRepo(pool).Count(ctx)
				if err != nil {
					return err
				}
				fmt.Println(n)
				return nil
			})
		},
	})

	return cmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// app holds the wired components the router needs.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	pool        *pgxpool.Pool
	guard       *db.SchemaGuard
	tokens      *auth.TokenManager
	revocations auth.RevocationStore
	accounts    *account.Service
	data        *tenantdata.Service
	emergencies *emergency.Service
	documents   *documents.Service
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	key, generated, err := auth.ResolveSigningKey(cfg.JWTSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve signing key")
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set; using a random signing key, sessions end on restart")
	}

	revocations, closeRevocations, err := newRevocationStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up token revocation")
	}
	defer closeRevocations()

	a := wire(cfg, logger, pool, auth.NewTokenManager(key, cfg.AuthIssuer, cfg.AuthTokenTTL), revocations)
	e := newRouter(a)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newRevocationStore returns nil when revocation is disabled. The returned
// close function is always safe to call.
func newRevocationStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (auth.RevocationStore, func(), error) {
	if !cfg.TokenRevocation {
		return nil, func() {}, nil
	}
	if cfg.RedisURL != "" {
		store, err := auth.NewRedisRevocationStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("token revocation enabled (redis)")
		return store, func() { store.Close() }, nil
	}
	store := auth.NewMemoryRevocationStore()
	logger.Info().Msg("token revocation enabled (memory)")
	return store, store.Close, nil
}

func wire(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, tokens *auth.TokenManager, revocations auth.RevocationStore) *app {
	tx := db.NewTxRunner(pool)

	data := tenantdata.NewService(tenantdata.NewRepo(pool), nil, tx, logger)
	accounts := account.NewService(account.NewRepo(pool), data, tx, tokens, revocations, cfg.AdminEmail, logger)
	data.SetUserDirectory(accounts)

	emergencies := emergency.NewService(emergency.NewRepo(pool), data, tx, emergency.Config{
		PresenceWindow: cfg.PresenceWindow,
		VideoBaseURL:   cfg.VideoBaseURL,
	}, logger)

	issuer := mevo.NewClient(mevo.Config{
		BaseURL:     cfg.MevoBaseURL,
		APIKey:      cfg.MevoAPIKey,
		CallbackURL: cfg.MevoCallbackURL,
	}, logger)
	if !issuer.Configured() {
		logger.Warn().Msg("MEVO_BASE_URL or MEVO_API_KEY not set; documents are issued in mock mode")
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		guard:       db.NewMigrationGuard(db.NewMigrator(pool, migrations.FS), logger),
		tokens:      tokens,
		revocations: revocations,
		accounts:    accounts,
		data:        data,
		emergencies: emergencies,
		documents:   documents.NewService(documents.NewRepo(pool), issuer, logger),
	}
}

func newRouter(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(a.logger)

	e.Pre(middleware.StripPrefix(a.cfg.MountPrefixes...))

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderAuthorization, echo.HeaderContentType,
			middleware.RequestIDHeader, middleware.TargetUserHeader,
		},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(requestTimeout))
	if a.guard != nil {
		e.Use(a.guard.Middleware(a.logger, skipSchemaGuard))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"success": true, "ok": true})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool, a.guard))
	}

	authn := chain(
		auth.Middleware(auth.MiddlewareConfig{
			Tokens:      a.tokens,
			Loader:      a.accounts,
			Revocations: a.revocations,
		}),
		middleware.Audit(a.logger),
	)

	rate := middleware.RateLimitConfig{
		RequestsPerSecond: a.cfg.RateLimitRPS,
		BurstSize:         a.cfg.RateLimitBurst,
	}
	if rate.RequestsPerSecond <= 0 || rate.BurstSize <= 0 {
		rate = middleware.DefaultRateLimitConfig()
	}

	account.NewHandler(a.accounts).RegisterRoutes(e, authn, middleware.RateLimit(rate))
	tenantdata.NewHandler(a.data).RegisterRoutes(e, authn)
	emergency.NewHandler(a.emergencies).RegisterRoutes(e, authn)
	documents.NewHandler(a.documents).RegisterRoutes(e, authn)

	return e
}

// chain composes middleware so that mws[0] runs first.
func chain(mws ...echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

func skipSchemaGuard(c echo.Context) bool {
	return c.Request().Method == http.MethodOptions || strings.HasPrefix(c.Request().URL.Path, "/health")
}
