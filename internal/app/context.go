package app

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/engine"
	"caseline/internal/migrate"
	"caseline/internal/obs"
)

// Options selects the workspace and optional overrides of the config file.
type Options struct {
	Workspace  string
	ConfigPath string
	// Driver and DSN override config.store when set.
	Driver string
	DSN    string
}

// Context is the assembled runtime: config, store, logger and engine.
type Context struct {
	Config  *config.Config
	DB      *sql.DB
	Dialect db.Dialect
	Log     *zap.Logger
	Engine  engine.Engine
}

// Open loads .env and the config, opens and migrates the store, and builds
// the engine. Callers must Close the returned context.
func Open(opts Options) (*Context, error) {
	if err := loadDotEnv(opts.Workspace); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if opts.Driver != "" {
		cfg.Store.Driver = opts.Driver
	}
	if opts.DSN != "" {
		cfg.Store.DSN = opts.DSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	conn, dialect, err := db.Open(db.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN, Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	version, err := migrate.Migrate(conn, dialect)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("store ready", zap.String("driver", string(dialect)), zap.Int("schema_version", version))
	return &Context{
		Config:  cfg,
		DB:      conn,
		Dialect: dialect,
		Log:     log,
		Engine:  engine.New(conn, dialect, log),
	}, nil
}

func (c *Context) Close() error {
	_ = c.Log.Sync()
	return c.DB.Close()
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.FromFile(opts.ConfigPath)
	}
	return config.LoadOptional(opts.Workspace)
}

// loadDotEnv reads <workspace>/.env when present. Variables already set in
// the environment win.
func loadDotEnv(workspace string) error {
	if workspace == "" {
		workspace = "."
	}
	err := godotenv.Load(filepath.Join(workspace, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// applyEnv overlays CASELINE_* variables on the config file values.
func applyEnv(cfg *config.Config) {
	if v := os.Getenv("CASELINE_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("CASELINE_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("CASELINE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CASELINE_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("CASELINE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CASELINE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("CASELINE_RATE_LIMIT_RPS"), 64); err == nil {
		cfg.Server.RateLimit.RPS = v
	}
}
