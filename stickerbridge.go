// Package stickerbridge converts sticker packs between Telegram and Signal
// in both directions, under persisted per-account rate limits, with durable
// conversion idempotency.
//
// Setup wires the whole pipeline from a TOML config file: database and
// migrations, the rehydrated account pool, both platform clients, and the
// conversion engine. Codec internals stay outside the module; callers
// supply a [services.Transcoder] and [services.ItemRecoder].
package stickerbridge

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/stickerbridge/internal/models"
	"github.com/desertthunder/stickerbridge/internal/ratelimit"
	"github.com/desertthunder/stickerbridge/internal/repositories"
	"github.com/desertthunder/stickerbridge/internal/services"
	"github.com/desertthunder/stickerbridge/internal/shared"
	"github.com/desertthunder/stickerbridge/internal/tasks"
)

// App holds a fully wired conversion engine and owns the database handle.
type App struct {
	Config *shared.Config
	Engine *tasks.ConvertEngine
	Pool   *ratelimit.AccountPool
	Logger *log.Logger

	db *sql.DB
}

// Setup loads configuration, opens and migrates the database, rehydrates
// the account pool from persisted bucket state, and wires the engine.
func Setup(ctx context.Context, configPath string, transcoder services.Transcoder, recoder services.ItemRecoder) (*App, error) {
	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := shared.NewLoggerWithLevel(os.Stderr, config.LogLevel)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	accounts := make([]ratelimit.AccountConfig, len(config.Signal.Accounts))
	for i, account := range config.Signal.Accounts {
		accounts[i] = ratelimit.AccountConfig{Username: account.Username, Password: account.Password}
	}

	pool, err := ratelimit.NewAccountPool(ctx, repositories.NewAccountStateRepository(db), accounts, ratelimit.CreatePackLimit, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	telegram := services.NewTelegramClient(config.Telegram.BaseURL, config.Telegram.BotToken, config.Telegram.OwnerID, nil)
	signal := services.NewSignalClient(config.Signal.BaseURL, nil)

	engine := tasks.NewConvertEngine(
		telegram,
		signal,
		pool,
		repositories.NewConversionRepository(db),
		transcoder,
		recoder,
		tasks.EngineOpts{BotUsername: config.Telegram.BotUsername},
		logger,
	)

	logger.Info("stickerbridge ready", "accounts", pool.Size(), "database", config.Database.Path)

	return &App{
		Config: config,
		Engine: engine,
		Pool:   pool,
		Logger: logger,
		db:     db,
	}, nil
}

// Convert parses a public pack link and runs the conversion in whichever
// direction the link implies. A malformed reference is a rejection, not an
// error: the caller forwarded something that merely looked like a link.
func (a *App) Convert(ctx context.Context, rawRef string, progress chan<- tasks.ProgressUpdate) (*models.ConversionOutcome, error) {
	ref, err := tasks.ParseRef(rawRef)
	if err != nil {
		return models.Rejected(err.Error()), nil
	}

	switch ref.Direction {
	case tasks.DirectionToTelegram:
		return a.Engine.ToTelegram(ctx, ref.PackID, ref.PackKey, progress)
	default:
		return a.Engine.ToSignal(ctx, ref.ShortName, progress)
	}
}

// Close releases the database handle.
func (a *App) Close() error {
	return a.db.Close()
}
