package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/FeedbackPipe/internal/api"
	"github.com/BTreeMap/FeedbackPipe/internal/feedback"
	"github.com/BTreeMap/FeedbackPipe/internal/flowapi"
	"github.com/BTreeMap/FeedbackPipe/internal/lockfile"
	"github.com/BTreeMap/FeedbackPipe/internal/registration"
	"github.com/BTreeMap/FeedbackPipe/internal/scheduler"
	"github.com/BTreeMap/FeedbackPipe/internal/store"
	"github.com/BTreeMap/FeedbackPipe/internal/survey"
	"github.com/BTreeMap/FeedbackPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FeedbackPipe state data
	DefaultStateDir = "/var/lib/feedbackpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "feedbackpipe.db"
	// DefaultSchedulerCron drives the survey scheduler tick
	DefaultSchedulerCron = "*/5 * * * *"
	// DefaultImporterCron drives the flow-response importer tick
	DefaultImporterCron = "*/15 * * * *"
)

// Config holds environment configuration
type Config struct {
	DatabaseURL      string
	StateDir         string
	FlowAPIBaseURL   string
	FlowAPIToken     string
	APIAddr          string
	SurveyDelayMin   int
	WindowEarliest   int
	WindowLatest     int
	DupWindowMinutes int
	Debug            bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir *string
	dbDSN    *string
	apiAddr  *string
	debug    *bool
}

func main() {
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)
	initializeLogger(config.Debug || *flags.debug)

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping FeedbackPipe",
		"state_dir", *flags.stateDir,
		"dsn_type", store.DetectDSNType(*flags.dbDSN),
		"api_addr", *flags.apiAddr)

	if err := run(config, flags); err != nil {
		slog.Error("FeedbackPipe failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("FeedbackPipe exited successfully")
}

func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := flowapi.NewClient(
		flowapi.WithBaseURL(config.FlowAPIBaseURL),
		flowapi.WithToken(config.FlowAPIToken),
	)
	if err != nil {
		return err
	}

	validator := registration.NewValidator(st,
		registration.WithDuplicateWindow(time.Duration(config.DupWindowMinutes)*time.Minute))
	intake := feedback.NewIntake(st)

	surveyScheduler := survey.NewScheduler(st, st.(store.JobRepo),
		survey.WithDelay(time.Duration(config.SurveyDelayMin)*time.Minute),
		survey.WithWindow(config.WindowEarliest, config.WindowLatest))
	starter := survey.NewStarter(st, client)
	importer := survey.NewImporter(st, client)

	runner := store.NewJobRunner(st.(store.JobRepo), 10*time.Second)
	runner.RegisterHandler(store.JobKindStartSurvey, starter.Handle)
	if err := runner.RecoverStaleJobs(); err != nil {
		return err
	}
	go runner.Run(ctx)

	cron := scheduler.NewScheduler()
	defer cron.Stop()
	if err := cron.AddJob(DefaultSchedulerCron, func() {
		if _, err := surveyScheduler.Tick(); err != nil {
			slog.Error("survey scheduler tick failed", "error", err)
		}
	}); err != nil {
		return err
	}
	if err := cron.AddJob(DefaultImporterCron, func() {
		if err := importer.Tick(ctx); err != nil {
			slog.Error("importer tick failed", "error", err)
		}
	}); err != nil {
		return err
	}

	server := api.NewServer(st, validator, intake, api.WithAddr(*flags.apiAddr))
	return server.Run(ctx)
}

// openStore picks the backend from the DSN shape.
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// initializeLogger sets up structured logging
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("FEEDBACKPIPE_STATE_DIR"),
		FlowAPIBaseURL:   os.Getenv("FLOW_API_BASE_URL"),
		FlowAPIToken:     os.Getenv("FLOW_API_TOKEN"),
		APIAddr:          os.Getenv("API_ADDR"),
		SurveyDelayMin:   util.ParseIntEnv("SURVEY_DELAY_MINUTES", int(survey.DefaultSurveyDelay/time.Minute)),
		WindowEarliest:   util.ParseIntEnv("SURVEY_WINDOW_EARLIEST", survey.DefaultWindowEarliest),
		WindowLatest:     util.ParseIntEnv("SURVEY_WINDOW_LATEST", survey.DefaultWindowLatest),
		DupWindowMinutes: util.ParseIntEnv("DUPLICATE_WINDOW_MINUTES", int(registration.DefaultDuplicateWindow/time.Minute)),
		Debug:            util.ParseBoolEnv("DEBUG", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	// With no database URL, fall back to SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
	}

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir: flag.String("state-dir", config.StateDir, "state directory for FeedbackPipe data (overrides $FEEDBACKPIPE_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN: Postgres URL or SQLite path (overrides $DATABASE_URL)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		debug:    flag.Bool("debug", false, "enable debug logging"),
	}
	flag.Parse()

	// A moved state directory carries the default SQLite path with it.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}
	return flags
}
