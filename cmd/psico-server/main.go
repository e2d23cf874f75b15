package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/astrozeta/psicoapp/internal/config"
	"github.com/astrozeta/psicoapp/internal/domain/assessment"
	"github.com/astrozeta/psicoapp/internal/domain/scheduling"
	"github.com/astrozeta/psicoapp/internal/platform/auth"
	"github.com/astrozeta/psicoapp/internal/platform/cache"
	"github.com/astrozeta/psicoapp/internal/platform/db"
	"github.com/astrozeta/psicoapp/internal/platform/middleware"
	"github.com/astrozeta/psicoapp/migrations"
)

const version = "0.1.0"

// routeRegistrar is implemented by every domain handler.
type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "psico-server",
		Short: "Psychology practice API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(availabilityCmd())
	rootCmd.AddCommand(tokenCmd())

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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetInt("to")

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

			migrator := db.NewMigrator(pool, migrations.FS)
			var count int
			if target > 0 {
				count, err = migrator.UpTo(ctx, target)
			} else {
				count, err = migrator.Up(ctx)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this migration version (0 applies all)")
	cmd.AddCommand(upCmd)

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// scoreCmd scores a response file offline. The file holds either a bare
// array of responses or an object with a "responses" array.
func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a questionnaire response file",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("instrument")
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}

			responses, err := readResponses(path)
			if err != nil {
				return err
			}

			svc := assessment.NewService(nil, zerolog.Nop())
			out, err := svc.Evaluate(code, responses)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().String("instrument", assessment.InstrumentMentalHealth, "Instrument code (mental-health or bdi-ii)")
	cmd.Flags().String("file", "", "Path to a JSON response file")
	return cmd
}

func readResponses(path string) ([]assessment.Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read responses: %w", err)
	}

	var responses []assessment.Response
	if err := json.Unmarshal(data, &responses); err == nil {
		return responses, nil
	}
	var wrapped struct {
		Responses []assessment.Response `json:"responses"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse responses %s: %w", path, err)
	}
	return wrapped.Responses, nil
}

func availabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Print a psychologist's free starts for the next two weeks",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("psychologist")
			psychologistID, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("--psychologist must be a UUID: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := scheduling.NewService(scheduling.NewSlotRepoPG(pool), scheduling.NoopCache{}, loc, zerolog.Nop())
			days, err := svc.AvailabilityByDay(ctx, psychologistID)
			if err != nil {
				return err
			}
			printAvailability(cmd.OutOrStdout(), days, loc)
			return nil
		},
	}
	cmd.Flags().String("psychologist", "", "Psychologist UUID")
	return cmd
}

func printAvailability(w io.Writer, days []scheduling.DayAvailability, loc *time.Location) {
	if len(days) == 0 {
		fmt.Fprintln(w, "No free starts in the next two weeks.")
		return
	}
	for _, d := range days {
		hours := make([]string, len(d.Starts))
		for i, s := range d.Starts {
			hours[i] = s.In(loc).Format("15:04")
		}
		fmt.Fprintf(w, "%s  %s\n", d.Date, strings.Join(hours, " "))
	}
}

// tokenCmd signs a bearer token for local testing against the API.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			key, generated, err := resolveSigningKey(os.Getenv("AUTH_SIGNING_KEY"))
			if err != nil {
				return err
			}
			if generated {
				fmt.Fprintf(cmd.ErrOrStderr(), "AUTH_SIGNING_KEY is not set; generated %s\n", hex.EncodeToString(key))
			}

			token, err := auth.IssueToken(auth.JWTConfig{
				Issuer:     os.Getenv("AUTH_ISSUER"),
				Audience:   os.Getenv("AUTH_AUDIENCE"),
				SigningKey: key,
			}, subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject (user UUID)")
	cmd.Flags().StringSlice("role", []string{auth.RolePatient}, "Role claim, repeatable")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

// resolveSigningKey decodes a hex HMAC key or generates a random 32-byte key.
// The second return value is true when a random key was generated.
func resolveSigningKey(envValue string) ([]byte, bool, error) {
	if envValue != "" {
		decoded, err := hex.DecodeString(envValue)
		if err != nil {
			return nil, false, fmt.Errorf("invalid AUTH_SIGNING_KEY hex value: %w", err)
		}
		return decoded, false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newServer builds the echo instance with global middleware, the health
// endpoint and every domain's routes under /api/v1.
func newServer(cfg *config.Config, logger zerolog.Logger, jwtCfg auth.JWTConfig, domains ...routeRegistrar) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	// Auth applies to the API only so probes stay anonymous.
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	} else {
		authMW = auth.JWTMiddleware(jwtCfg)
	}
	apiV1 := e.Group("/api/v1", authMW)
	for _, d := range domains {
		d.RegisterRoutes(apiV1)
	}

	return e
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()
	signingKey, _ := cfg.SigningKey()
	if len(signingKey) == 0 {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set; bearer tokens are not verified in development")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Availability cache (optional)
	var availabilityCache scheduling.AvailabilityCache = scheduling.NoopCache{}
	var cachePinger db.Pinger
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, availability cache disabled")
		} else {
			defer client.Close()
			store := cache.NewStore(client)
			availabilityCache = scheduling.NewRedisCache(store, cfg.AvailabilityCacheTTL)
			cachePinger = store
			logger.Info().Dur("ttl", cfg.AvailabilityCacheTTL).Msg("availability cache enabled")
		}
	}

	// Domains
	assessmentSvc := assessment.NewService(assessment.NewRecordRepoPG(pool), logger)
	schedulingSvc := scheduling.NewService(scheduling.NewSlotRepoPG(pool), availabilityCache, loc, logger)

	e := newServer(cfg, logger, auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: signingKey,
	},
		assessment.NewHandler(assessmentSvc),
		scheduling.NewHandler(schedulingSvc),
	)

	// DB health check endpoint
	e.GET("/health/db", db.HealthHandler(pool, cachePinger))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("time_zone", loc.String()).Msg("starting server")
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
