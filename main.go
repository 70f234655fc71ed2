// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariebrainware/lis-backend/admission"
	"github.com/ariebrainware/lis-backend/config"
	"github.com/ariebrainware/lis-backend/middleware"
	"github.com/ariebrainware/lis-backend/model"
	"github.com/ariebrainware/lis-backend/util"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lis-backend",
		Short:         "Laboratory information system backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := config.LoadConfig()
			util.SetupLogger(util.LoggerOptions{
				AppName: cfg.AppName,
				Level:   cfg.LogLevel,
				Format:  cfg.LogFormat,
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return logFailure(runServer())
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(nextCodeCmd())
	rootCmd.AddCommand(rateLimitResetCmd())
	return rootCmd
}

func logFailure(err error) error {
	if err != nil {
		log.Error().Err(err).Msg("command failed")
	}
	return err
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return logFailure(runServer())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := config.ConnectDatabase()
			if err != nil {
				return logFailure(err)
			}
			if err := model.Migrate(db); err != nil {
				return logFailure(err)
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}

func nextCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next-code",
		Short: "Print the admission code the next patient would receive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			db, err := config.ConnectDatabase()
			if err != nil {
				return logFailure(err)
			}
			rdb, err := config.ConnectRedis()
			if err != nil {
				return logFailure(err)
			}
			gen, err := newGenerator(cfg, rdb)
			if err != nil {
				return logFailure(err)
			}
			code, err := gen.Preview(cmd.Context(), db)
			if err != nil {
				return logFailure(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}

func rateLimitResetCmd() *cobra.Command {
	var ip, route string
	cmd := &cobra.Command{
		Use:   "ratelimit-reset",
		Short: "Clear the rate limit counter of a client on a route",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.ConnectRedis(); err != nil {
				return logFailure(err)
			}
			if err := middleware.ResetRateLimit(cmd.Context(), ip, route); err != nil {
				return logFailure(err)
			}
			log.Info().Str("ip", ip).Str("route", route).Msg("rate limit reset")
			return nil
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "client IP address")
	cmd.Flags().StringVar(&route, "route", "", "route pattern, e.g. /patients")
	_ = cmd.MarkFlagRequired("ip")
	_ = cmd.MarkFlagRequired("route")
	return cmd
}

// newGenerator builds the admission code generator from configuration.
// rdb may be nil unless the redis sequencer is selected.
func newGenerator(cfg *config.Config, rdb *redis.Client) (*admission.Generator, error) {
	var cmdable redis.Cmdable
	if rdb != nil {
		cmdable = rdb
	}
	seq, err := admission.NewSequencer(cfg.AdmissionSequencer, cmdable)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.AdmissionLocation()
	if err != nil {
		return nil, err
	}
	return admission.NewGenerator(seq, admission.WithLocation(loc)), nil
}

func runServer() error {
	cfg := config.LoadConfig()

	db, err := config.ConnectDatabase()
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	if err := model.Migrate(db); err != nil {
		return err
	}
	util.SetAuditLoggerDB(db)

	rdb, err := config.ConnectRedis()
	if err != nil {
		// Redis is optional unless it backs the sequencer.
		if cfg.AdmissionSequencer == admission.KindRedis {
			return err
		}
		log.Warn().Err(err).Msg("redis unavailable, rate limiting disabled")
	}

	gen, err := newGenerator(cfg, rdb)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	router := newRouter(cfg, db, gen)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db_driver", cfg.DBDriver).
			Str("sequencer", gen.SequencerName()).
			Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("error starting server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// pingDB is used by the health check.
func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
