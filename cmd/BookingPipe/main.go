package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/BookingPipe/internal/api"
	"github.com/BTreeMap/BookingPipe/internal/backend"
	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/genai"
	"github.com/BTreeMap/BookingPipe/internal/lockfile"
	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/pattern"
	"github.com/BTreeMap/BookingPipe/internal/scheduler"
	"github.com/BTreeMap/BookingPipe/internal/store"
	"github.com/BTreeMap/BookingPipe/internal/tools"
	"github.com/BTreeMap/BookingPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for BookingPipe state data
	DefaultStateDir = "/var/lib/bookingpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "bookingpipe.db"
	// DefaultSessionTTL is how long idle sessions are kept before they expire
	DefaultSessionTTL = 24 * time.Hour
)

// logLevel is raised to debug once the configuration asks for it.
var logLevel = new(slog.LevelVar)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)
	if *flags.debug {
		logLevel.Set(slog.LevelDebug)
	}

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping BookingPipe", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "tools_base_url", *flags.toolsBaseURL)
	if err := run(ctx, flags, config); err != nil {
		slog.Error("BookingPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("BookingPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	OpenAIKey       string
	OpenAIModel     string
	APIAddr         string
	ToolsBaseURL    string
	SessionTTL      time.Duration
	BusinessName    string
	BusinessHours   string
	BusinessAddress string
	Debug           bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	openaiKey    *string
	openaiModel  *string
	apiAddr      *string
	toolsBaseURL *string
	sessionTTL   *time.Duration
	debug        *bool
}

// initializeLogger sets up structured logging; the level starts at info.
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        util.GetenvDefault("BOOKINGPIPE_STATE_DIR", DefaultStateDir),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     util.GetenvDefault("OPENAI_MODEL", genai.DefaultModel),
		APIAddr:         util.GetenvDefault("API_ADDR", api.DefaultAddr),
		ToolsBaseURL:    util.GetenvDefault("TOOLS_BASE_URL", backend.DefaultBaseURL),
		SessionTTL:      util.ParseDurationEnv("SESSION_TTL", DefaultSessionTTL),
		BusinessName:    os.Getenv("BUSINESS_NAME"),
		BusinessHours:   os.Getenv("BUSINESS_HOURS"),
		BusinessAddress: os.Getenv("BUSINESS_ADDRESS"),
		Debug:           util.ParseBoolEnv("BOOKINGPIPE_DEBUG", false),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_TYPE", store.DetectDSNType(config.DatabaseURL),
		"BOOKINGPIPE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"TOOLS_BASE_URL", config.ToolsBaseURL,
		"SESSION_TTL", config.SessionTTL,
		"BUSINESS_NAME", config.BusinessName)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for BookingPipe data (overrides $BOOKINGPIPE_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "session store DSN: SQLite path, postgres:// or redis:// URL, empty for in-memory (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:  flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		toolsBaseURL: flag.String("tools-base-url", config.ToolsBaseURL, "booking backend base URL (overrides $TOOLS_BASE_URL)"),
		sessionTTL:   flag.Duration("session-ttl", config.SessionTTL, "idle session expiry, 0 disables (overrides $SESSION_TTL)"),
		debug:        flag.Bool("debug", config.Debug, "enable debug logging and GenAI request dumps (overrides $BOOKINGPIPE_DEBUG)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"openaiModel", *flags.openaiModel,
		"apiAddr", *flags.apiAddr,
		"toolsBaseURL", *flags.toolsBaseURL,
		"sessionTTL", *flags.sessionTTL,
		"debug", *flags.debug)

	applyStateDirOverride(config, flags)
	return flags
}

// applyStateDirOverride moves the default SQLite file along with a state
// directory given on the command line.
func applyStateDirOverride(config Config, flags Flags) {
	defaultDSN := filepath.Join(config.StateDir, DefaultDBFileName)
	if *flags.dbDSN == defaultDSN && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}
}

// usesLocalDatabase reports whether the session store is a SQLite file.
func usesLocalDatabase(flags Flags) bool {
	return *flags.dbDSN != "" && store.DetectDSNType(*flags.dbDSN) == store.DSNTypeSQLite
}

// ensureDirectoriesExist creates the state directory and the SQLite file's directory
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir}
	if usesLocalDatabase(flags) {
		dirs = append(dirs, filepath.Dir(*flags.dbDSN))
	}
	for _, dir := range dirs {
		slog.Debug("Creating directory", "dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	dsn := *flags.dbDSN
	switch {
	case dsn == "":
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	case store.DetectDSNType(dsn) == store.DSNTypePostgres:
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		storeOpts = append(storeOpts, store.WithPostgresDSN(dsn))
	case store.DetectDSNType(dsn) == store.DSNTypeRedis:
		slog.Debug("Detected Redis URL, configuring Redis store")
		storeOpts = append(storeOpts, store.WithRedisURL(dsn))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(dsn))
	}
	if *flags.sessionTTL > 0 {
		storeOpts = append(storeOpts, store.WithSessionTTL(*flags.sessionTTL))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	if *flags.debug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true), genai.WithStateDir(*flags.stateDir))
	}
	return genaiOpts
}

// buildBackendOptions constructs booking backend client options
func buildBackendOptions(flags Flags) []backend.Option {
	var backendOpts []backend.Option
	if *flags.toolsBaseURL != "" {
		backendOpts = append(backendOpts, backend.WithBaseURL(*flags.toolsBaseURL))
	}
	return backendOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}

// run wires the modules and serves until ctx is cancelled.
func run(ctx context.Context, flags Flags, config Config) error {
	if usesLocalDatabase(flags) {
		lock, err := lockfile.AcquireLock(*flags.stateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	server, cleanup, err := buildServer(ctx, flags, config)
	if err != nil {
		return err
	}
	defer cleanup()
	return server.Run(ctx)
}

// buildServer assembles the store, tools, inference adapters and orchestrator
// behind an API server. The returned cleanup stops the session janitor and
// closes the store.
func buildServer(ctx context.Context, flags Flags, config Config) (*api.Server, func(), error) {
	st, err := store.NewStore(buildStoreOptions(flags)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			slog.Warn("failed to close session store", "error", err)
		}
	}
	cleanup := closeStore

	if pruner, ok := st.(store.Pruner); ok && *flags.sessionTTL > 0 {
		sched, err := startJanitor(ctx, pruner, *flags.sessionTTL)
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		cleanup = func() {
			sched.Stop()
			closeStore()
		}
	}

	client, err := backend.NewClient(buildBackendOptions(flags)...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	dispatcher := tools.NewDispatcher()
	client.Register(dispatcher)
	if err := dispatcher.Validate(); err != nil {
		cleanup()
		return nil, nil, err
	}

	services := loadServices(ctx, dispatcher)
	kb := genai.KnowledgeBase(config.BusinessName, config.BusinessHours, config.BusinessAddress, services)

	var llmExtractor flow.Extractor
	var responder flow.Responder
	if *flags.openaiKey != "" {
		gaClient, err := genai.NewClient(buildGenAIOptions(flags)...)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create GenAI client: %w", err)
		}
		llmExtractor = genai.NewExtractor(gaClient, genai.WithKnowledgeBase(kb))
		responder = genai.NewResponder(gaClient, genai.WithKnowledgeBase(kb))
	} else {
		slog.Warn("OPENAI_API_KEY not set; extraction disabled and replies use fixed fallbacks")
	}

	matcher := pattern.NewMatcher(pattern.DefaultEntries(pattern.BusinessInfo{
		Name:    config.BusinessName,
		Hours:   config.BusinessHours,
		Address: config.BusinessAddress,
	}))
	orch := flow.NewOrchestrator(st, flow.NewConfirmationRouter(llmExtractor), responder, dispatcher,
		flow.WithPatternMatcher(matcher))

	return api.NewServer(orch, st, buildAPIOptions(flags)...), cleanup, nil
}

// startJanitor prunes sessions left idle since the last run and schedules
// periodic pruning.
func startJanitor(ctx context.Context, pruner store.Pruner, ttl time.Duration) (*scheduler.Scheduler, error) {
	janitor := scheduler.NewJanitor(pruner, ttl)
	if _, err := janitor.RunOnce(ctx); err != nil {
		slog.Warn("initial session prune failed", "error", err)
	}
	sched := scheduler.NewScheduler()
	if err := janitor.Schedule(ctx, sched, scheduler.DefaultPruneSpec); err != nil {
		sched.Stop()
		return nil, err
	}
	return sched, nil
}

// loadServices fetches the service catalog for the prompts. A failure only
// leaves the catalog out of the prompts.
func loadServices(ctx context.Context, dispatcher *tools.Dispatcher) []string {
	ctx, cancel := context.WithTimeout(ctx, backend.DefaultTimeout)
	defer cancel()
	res := dispatcher.Dispatch(ctx, models.ToolListServices, models.ToolParams{}, nil)
	if !res.Success {
		slog.Warn("failed to load service catalog", "error", res.ErrorText())
		return nil
	}
	slog.Debug("service catalog loaded", "count", len(res.Services))
	return res.Services
}
