// package services defines the client interfaces for sticker platforms
//
// Telegram (Bot API), Signal (sticker pack service)
package services

import (
	"context"

	"github.com/desertthunder/stickerbridge/internal/models"
)

// SourceClient defines the interface for the platform packs are converted
// from in the forward direction and created on in the reverse direction.
type SourceClient interface {
	// FetchMetadata retrieves a pack's listing by its short name without
	// downloading any item payloads.
	FetchMetadata(ctx context.Context, shortName string) (*PackMetadata, error)

	// FetchItem downloads the raw payload of a single pack item.
	FetchItem(ctx context.Context, ref ItemRef) ([]byte, error)

	// PackExists reports whether a pack with the given short name already
	// exists on the platform.
	PackExists(ctx context.Context, shortName string) (bool, error)

	// CreatePack creates a new pack under the given short name and adds
	// every sticker to it. Returns [shared.ErrNameCollision] if the short
	// name is already taken.
	CreatePack(ctx context.Context, shortName, title string, stickers []models.Sticker) error

	// Name returns the name of the platform (e.g. "Telegram")
	Name() string
}

// DestinationClient defines the interface for the platform packs are
// uploaded to in the forward direction and read from in the reverse one.
type DestinationClient interface {
	// UploadPack uploads a complete pack under the given account and
	// returns the platform identifier and decryption key of the result.
	UploadPack(ctx context.Context, pack *models.StickerPack, creds Credentials) (packID, packKey []byte, err error)

	// FetchPack retrieves a previously uploaded pack with all of its
	// item payloads.
	FetchPack(ctx context.Context, packID, packKey []byte) (*models.StickerPack, error)

	// Name returns the name of the platform (e.g. "Signal")
	Name() string
}

// Transcoder converts a heavy animated item payload into a format the
// destination platform accepts.
type Transcoder interface {
	RenderHeavyItem(ctx context.Context, data []byte) ([]byte, error)
}

// ItemRecoder converts a destination item payload back into a format the
// source platform accepts when running the reverse direction.
type ItemRecoder interface {
	Recode(ctx context.Context, data []byte) ([]byte, error)
}

// Credentials holds the static username and password of a destination
// platform account.
type Credentials struct {
	Username string
	Password string
}

// ItemRef identifies a single item within a pack listing
type ItemRef struct {
	ID       string
	Position int
	Emoji    string
	Format   string // MIME type reported by the platform
}

// PackMetadata represents a pack listing from the source platform
type PackMetadata struct {
	ShortName   string
	Title       string
	Fingerprint string // stable content digest of the listing
	Animated    bool
	Video       bool
	Items       []ItemRef
	Cover       *ItemRef
}
