/*
main.go - Application entry point

PURPOSE:
  Command line for the scheduling engine: runs the HTTP server and a few
  maintenance commands against the same SQLite database.

COMMANDS:
  serve       Run the HTTP API (default when no command is given)
  migrate     Create or upgrade the database schema and exit
  reconcile   Run one over-allocation sweep and exit
  scenarios   List the built-in demo scenarios

GLOBAL FLAGS:
  --port       HTTP server port (default: 8080)
  --db         SQLite database path (default: scheduler.db)
               Use ":memory:" for an in-memory database
  --env-file   dotenv file read before the environment (default: .env)
  --fixtures   Scenario id or YAML file loaded into an empty database

  Every other setting comes from SCHEDULER_* environment variables; see
  config/config.go.

STARTUP SEQUENCE (serve):
  1. Load configuration
  2. Open (and migrate) the SQLite store
  3. Build the mailer: sender, retrying dispatcher, background queue
  4. Create the engine, seed fixtures into an empty database
  5. Start the reconciliation scheduler
  6. Start the HTTP server

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, drain the mail queue
  4. Close database connection

EXAMPLES:
  ./server --db="./data/school.db" --fixtures=school-week
  SCHEDULER_MAIL_PROVIDER=sendgrid SCHEDULER_MAIL_SENDGRID_KEY=... ./server serve
  ./server reconcile --db="./data/school.db"

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/scheduling-engine/api"
	"github.com/warp/scheduling-engine/config"
	"github.com/warp/scheduling-engine/factory"
	"github.com/warp/scheduling-engine/generic"
	"github.com/warp/scheduling-engine/mailer"
	"github.com/warp/scheduling-engine/store/sqlite"
)

// mailQueueSize bounds notifications waiting for delivery.
const mailQueueSize = 256

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every command shares.
type app struct {
	v       *viper.Viper
	envFile string
	cfg     config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "School timetabling commitment engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(a.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.Int("port", 8080, "HTTP server port")
	flags.String("db", "scheduler.db", "SQLite database path")
	flags.String("fixtures", "", "scenario id or YAML file loaded into an empty database")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file read before the environment")
	for _, key := range []string{"port", "db", "fixtures"} {
		if err := a.v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.serve(cmd.Context())
			},
		},
		newMigrateCommand(a),
		newReconcileCommand(a),
		newScenariosCommand(),
	)
	return cmd
}

// =============================================================================
// SERVE
// =============================================================================

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	queue := mailer.NewQueue(newDispatcher(cfg.Mail), mailQueueSize)
	queue.Start()
	defer queue.Close()

	engine := generic.NewEngine(store, queue, cfg.Settings)
	if cfg.Fixtures != "" {
		if err := seedIfEmpty(ctx, engine, cfg.Fixtures); err != nil {
			return err
		}
	}

	handler := api.NewHandler(engine)
	router := api.NewRouter(handler)

	scheduler := api.NewReconciliationScheduler(engine, cfg.ReconcileInterval)
	scheduler.Enabled = cfg.ReconcileInterval > 0
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	quit, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-quit.Done():
	}

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// newDispatcher picks the mail sender for the configured provider.
func newDispatcher(cfg config.Mail) *mailer.Dispatcher {
	var sender mailer.Sender = mailer.ConsoleSender{SubjectPrefix: "[" + cfg.AppName + "] "}
	if cfg.Provider == "sendgrid" {
		sender = mailer.NewSendGridSender(cfg.SendGridKey, mailer.DefaultSendGridHost, cfg.AppName, cfg.From)
	}
	d := mailer.NewDispatcher(sender)
	if cfg.MaxTries > 0 {
		d.MaxTries = cfg.MaxTries
	}
	return d
}

// seedIfEmpty applies the fixture when the database has no users yet.
// source is a YAML file path or a built-in scenario id.
func seedIfEmpty(ctx context.Context, engine *generic.Engine, source string) error {
	users, err := engine.Store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		log.Printf("[Fixtures] database not empty, skipping %s", source)
		return nil
	}
	fx, err := loadFixture(source)
	if err != nil {
		return err
	}
	applied, err := factory.Apply(ctx, engine, fx)
	if err != nil {
		return fmt.Errorf("failed to apply fixtures %s: %w", source, err)
	}
	log.Printf("[Fixtures] loaded %q: %d events", fx.Name, len(applied.Events))
	return nil
}

func loadFixture(source string) (*factory.Fixture, error) {
	data, err := os.ReadFile(source)
	switch {
	case err == nil:
		return factory.ParseFixture(data)
	case errors.Is(err, os.ErrNotExist):
		return factory.LoadScenario(source)
	default:
		return nil, err
	}
}
