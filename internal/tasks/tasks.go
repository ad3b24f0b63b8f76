// package tasks implements sticker pack conversions between platforms.
//
// The core abstraction is ConvertEngine, which orchestrates conversions in
// both directions under the destination's persisted rate limits.
// Operations emit progress updates via channels for non-blocking status
// reporting to the caller.
package tasks

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/stickerbridge/internal/models"
	"github.com/desertthunder/stickerbridge/internal/ratelimit"
	"github.com/desertthunder/stickerbridge/internal/services"
	"github.com/desertthunder/stickerbridge/internal/shared"
)

// Engine defines conversion operations between the two platforms.
type Engine interface {
	// ToSignal converts a Telegram pack identified by its short name into
	// a Signal pack, consuming one upload token on success.
	ToSignal(ctx context.Context, shortName string, progress chan<- ProgressUpdate) (*models.ConversionOutcome, error)

	// ToTelegram converts a Signal pack identified by id and key into a
	// Telegram pack with a deterministically derived short name.
	ToTelegram(ctx context.Context, packID, packKey []byte, progress chan<- ProgressUpdate) (*models.ConversionOutcome, error)
}

// ConversionStore defines the durable idempotency cache the engine reads
// and writes. This abstraction allows for easier testing and decoupling
// from the concrete repository.
type ConversionStore interface {
	Lookup(ctx context.Context, fingerprint string) (*models.ConversionRecord, error)
	Record(ctx context.Context, fingerprint string, destID, destKey []byte) error
}

// EngineOpts contains configuration for a ConvertEngine.
type EngineOpts struct {
	BotUsername string  // Suffix the platform requires on created pack names
	RecodeRate  float64 // Reverse-direction items per second (default: 1)
}

// ConvertEngine implements Engine. Contains dependencies on both platform
// clients, the account pool, the conversion cache, and the codecs.
type ConvertEngine struct {
	source      services.SourceClient
	dest        services.DestinationClient
	pool        *ratelimit.AccountPool
	cache       ConversionStore
	transcoder  services.Transcoder
	recoder     services.ItemRecoder
	gate        *Gate
	limiter     *rate.Limiter
	logger      *log.Logger
	botUsername string
}

// NewConvertEngine creates a new ConvertEngine with the provided
// collaborators. The recode limiter paces the sequential reverse-direction
// loop so the source platform's per-call limits are not burst.
func NewConvertEngine(
	source services.SourceClient,
	dest services.DestinationClient,
	pool *ratelimit.AccountPool,
	cache ConversionStore,
	transcoder services.Transcoder,
	recoder services.ItemRecoder,
	opts EngineOpts,
	logger *log.Logger,
) *ConvertEngine {
	if logger == nil {
		logger = log.Default()
	}
	if opts.RecodeRate <= 0 {
		opts.RecodeRate = 1.0
	}

	return &ConvertEngine{
		source:      source,
		dest:        dest,
		pool:        pool,
		cache:       cache,
		transcoder:  transcoder,
		recoder:     recoder,
		gate:        NewGate(1),
		limiter:     rate.NewLimiter(rate.Limit(opts.RecodeRate), 1),
		logger:      logger,
		botUsername: opts.BotUsername,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *ConvertEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// finish emits the terminal update and returns the outcome.
func (e *ConvertEngine) finish(progress chan<- ProgressUpdate, outcome *models.ConversionOutcome) (*models.ConversionOutcome, error) {
	e.sendProgress(progress, doneUpdate(outcome))
	return outcome, nil
}

// classifyItem decides once, from the reported MIME type, how an item will
// be processed. An unrecognized format fails the whole conversion; partial
// packs are never uploaded.
func classifyItem(format string) (models.ItemKind, error) {
	switch format {
	case "image/webp", "image/png":
		return models.KindRaster, nil
	case "application/x-tgsticker":
		return models.KindHeavyAnimation, nil
	default:
		return 0, fmt.Errorf("%w: %q", shared.ErrItemFormat, format)
	}
}

// ToSignal performs a full Telegram → Signal pack conversion.
func (e *ConvertEngine) ToSignal(ctx context.Context, shortName string, progress chan<- ProgressUpdate) (*models.ConversionOutcome, error) {
	if e.source == nil || e.dest == nil {
		return nil, fmt.Errorf("%w: platform client not initialized", shared.ErrServiceUnavailable)
	}

	runID := shared.GenerateID()
	logger := e.logger.With("run_id", runID, "pack", shortName, "direction", DirectionToSignal)

	e.sendProgress(progress, validatingUpdate(shortName))

	meta, err := e.source.FetchMetadata(ctx, shortName)
	if err != nil {
		if errors.Is(err, shared.ErrPackNotFound) {
			return e.finish(progress, models.Rejected(fmt.Sprintf("no sticker pack named %q exists", shortName)))
		}
		return nil, fmt.Errorf("failed to fetch pack metadata: %w", err)
	}

	record, err := e.cache.Lookup(ctx, meta.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("conversion cache lookup failed: %w", err)
	}
	if record != nil {
		logger.Info("serving previous conversion", "fingerprint", meta.Fingerprint)
		outcome := models.CacheHit(
			record.DestID,
			record.DestKey,
			models.SignalPackURL(record.DestID, record.DestKey),
			models.TelegramPackURL(meta.ShortName),
		)
		return e.finish(progress, outcome)
	}

	if meta.Video {
		return e.finish(progress, models.Rejected("video sticker packs cannot be converted"))
	}

	kinds := make([]models.ItemKind, len(meta.Items))
	for i, item := range meta.Items {
		kind, err := classifyItem(item.Format)
		if err != nil {
			return e.finish(progress, models.Failed(err.Error(), 0))
		}
		kinds[i] = kind
	}

	e.sendProgress(progress, convertingUpdate(len(meta.Items)))

	pack, err := e.assemblePack(ctx, progress, meta, kinds)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("pack assembly failed", "error", err)
		return e.finish(progress, models.Failed(err.Error(), 0))
	}

	account, err := e.pool.Acquire(ctx, time.Now())
	if err != nil {
		if errors.Is(err, shared.ErrRateLimited) {
			wait := e.pool.MinWaitTime(1, time.Now())
			return e.finish(progress, models.Failed("every upload account is rate limited", wait))
		}
		return nil, err
	}

	e.sendProgress(progress, uploadingUpdate(pack.Title))

	creds := services.Credentials{Username: account.Username, Password: account.Password}
	packID, packKey, err := e.dest.UploadPack(ctx, pack, creds)
	if err != nil {
		if errors.Is(err, shared.ErrProviderThrottled) {
			if rerr := e.pool.ReconcileRateLimited(ctx, account); rerr != nil {
				return nil, rerr
			}
			wait := e.pool.MinWaitTime(1, time.Now())
			return e.finish(progress, models.Failed("upload was rate limited by the platform", wait))
		}
		logger.Error("pack upload failed", "error", err)
		return e.finish(progress, models.Failed(fmt.Sprintf("upload failed: %v", err), 0))
	}

	if err := e.cache.Record(ctx, meta.Fingerprint, packID, packKey); err != nil {
		return nil, fmt.Errorf("failed to record conversion: %w", err)
	}

	logger.Info("pack converted", "pack_id", hex.EncodeToString(packID), "stickers", len(pack.Stickers))
	return e.finish(progress, models.Succeeded(packID, packKey, models.SignalPackURL(packID, packKey)))
}

// assemblePack fans out one goroutine per item and lands each result at
// its source position, so assembly order always equals source order
// regardless of completion order. The first error cancels the siblings.
func (e *ConvertEngine) assemblePack(ctx context.Context, progress chan<- ProgressUpdate, meta *services.PackMetadata, kinds []models.ItemKind) (*models.StickerPack, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pack := &models.StickerPack{
		Title:    meta.Title,
		Author:   models.TelegramPackURL(meta.ShortName),
		Stickers: make([]models.Sticker, len(meta.Items)),
	}

	var (
		wg        sync.WaitGroup
		errOnce   sync.Once
		firstErr  error
		completed atomic.Int64
	)

	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	total := len(meta.Items)
	for i, item := range meta.Items {
		wg.Add(1)
		go func(item services.ItemRef, kind models.ItemKind) {
			defer wg.Done()

			sticker, err := e.buildSticker(ctx, item, kind)
			if err != nil {
				fail(err)
				return
			}

			pack.Stickers[item.Position] = *sticker
			e.sendProgress(progress, itemConvertedUpdate(int(completed.Add(1)), total, item.Emoji))
		}(item, kinds[i])
	}

	if meta.Cover != nil {
		wg.Add(1)
		go func(cover services.ItemRef) {
			defer wg.Done()

			data, err := e.source.FetchItem(ctx, cover)
			if err != nil {
				fail(fmt.Errorf("failed to fetch cover: %w", err))
				return
			}
			pack.Cover = &models.Sticker{
				Position: cover.Position,
				Emoji:    cover.Emoji,
				Image:    data,
				Kind:     models.KindRaster,
			}
		}(*meta.Cover)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return pack, nil
}

// buildSticker downloads one item and runs it through the codec its kind
// requires. Heavy renders hold the shared gate for the duration.
func (e *ConvertEngine) buildSticker(ctx context.Context, item services.ItemRef, kind models.ItemKind) (*models.Sticker, error) {
	data, err := e.source.FetchItem(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item %d: %w", item.Position, err)
	}

	switch kind {
	case models.KindRaster:
		// passed through unchanged
	case models.KindHeavyAnimation:
		if err := e.gate.Acquire(ctx); err != nil {
			return nil, err
		}
		rendered, renderErr := e.transcoder.RenderHeavyItem(ctx, data)
		e.gate.Release()
		if renderErr != nil {
			return nil, fmt.Errorf("failed to render item %d: %w", item.Position, renderErr)
		}
		data = rendered
	}

	return &models.Sticker{
		Position: item.Position,
		Emoji:    item.Emoji,
		Image:    data,
		Kind:     kind,
	}, nil
}

// ToTelegram performs a full Signal → Telegram pack conversion.
//
// The destination short name is derived from the source pack id, so
// converting the same pack twice lands on the same Telegram pack without a
// cache row. Items are recoded sequentially to stay inside the platform's
// per-call limits.
func (e *ConvertEngine) ToTelegram(ctx context.Context, packID, packKey []byte, progress chan<- ProgressUpdate) (*models.ConversionOutcome, error) {
	if e.source == nil || e.dest == nil {
		return nil, fmt.Errorf("%w: platform client not initialized", shared.ErrServiceUnavailable)
	}

	runID := shared.GenerateID()
	shortName := e.derivedShortName(packID)
	logger := e.logger.With("run_id", runID, "pack", shortName, "direction", DirectionToTelegram)

	e.sendProgress(progress, validatingUpdate(shortName))

	pack, err := e.dest.FetchPack(ctx, packID, packKey)
	if err != nil {
		if errors.Is(err, shared.ErrPackNotFound) {
			return e.finish(progress, models.Rejected("no such pack exists, or the key is wrong"))
		}
		return nil, fmt.Errorf("failed to fetch pack: %w", err)
	}

	exists, err := e.source.PackExists(ctx, shortName)
	if err != nil {
		return nil, fmt.Errorf("failed to check for an existing pack: %w", err)
	}
	if exists {
		logger.Info("pack was already converted")
		return e.finish(progress, models.Succeeded(nil, nil, models.TelegramPackURL(shortName)))
	}

	e.sendProgress(progress, convertingUpdate(len(pack.Stickers)))

	total := len(pack.Stickers)
	recoded := make([]models.Sticker, 0, total)
	for i, sticker := range pack.Stickers {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, err := e.recoder.Recode(ctx, sticker.Image)
		if err != nil {
			logger.Error("item recode failed", "position", sticker.Position, "error", err)
			return e.finish(progress, models.Failed(fmt.Sprintf("failed to recode item %d: %v", sticker.Position, err), 0))
		}

		sticker.Image = data
		recoded = append(recoded, sticker)
		e.sendProgress(progress, itemConvertedUpdate(i+1, total, sticker.Emoji))
	}

	e.sendProgress(progress, uploadingUpdate(pack.Title))

	if err := e.source.CreatePack(ctx, shortName, pack.Title, recoded); err != nil {
		if errors.Is(err, shared.ErrNameCollision) {
			// a concurrent duplicate won the race, the pack exists now
			logger.Info("pack was created concurrently")
			return e.finish(progress, models.Succeeded(nil, nil, models.TelegramPackURL(shortName)))
		}
		logger.Error("pack creation failed", "error", err)
		return e.finish(progress, models.Failed(fmt.Sprintf("pack creation failed: %v", err), 0))
	}

	logger.Info("pack converted", "stickers", len(recoded))
	return e.finish(progress, models.Succeeded(nil, nil, models.TelegramPackURL(shortName)))
}

// derivedShortName maps a destination pack id to the deterministic short
// name used for the reverse direction. The platform requires created pack
// names to end in the owning bot's username.
func (e *ConvertEngine) derivedShortName(packID []byte) string {
	id := hex.EncodeToString(packID)
	if len(id) > 16 {
		id = id[:16]
	}

	name := "signal_" + id
	if e.botUsername != "" {
		name += "_by_" + e.botUsername
	}
	return name
}
