package models

import (
	"encoding/hex"
	"fmt"
	"time"
)

// ItemKind is the closed variant deciding how a source item is processed.
// It is decided once, when item metadata is read, and dispatched over
// exhaustively; there is no dynamic dispatch on media type strings later.
type ItemKind int

const (
	// KindRaster items are passed through unchanged.
	KindRaster ItemKind = iota
	// KindHeavyAnimation items are rendered frame by frame and must go
	// through the shared transcode gate.
	KindHeavyAnimation
)

func (k ItemKind) String() string {
	switch k {
	case KindRaster:
		return "raster"
	case KindHeavyAnimation:
		return "heavy_animation"
	default:
		return ""
	}
}

// Sticker is one converted item of a pack.
type Sticker struct {
	Position int    // index in the source pack's declared order
	Emoji    string // annotation attached to the sticker
	Image    []byte
	Kind     ItemKind
}

// StickerPack is an assembled pack ready for upload. It is transient and
// owned by exactly one in-flight conversion.
type StickerPack struct {
	Title    string
	Author   string
	Stickers []Sticker // always in source order
	Cover    *Sticker  // optional, outside the ordering
}

// ConversionRecord maps a source pack fingerprint to the destination pack
// identifiers. Rows are inserted once and never updated.
type ConversionRecord struct {
	Fingerprint string
	DestID      []byte
	DestKey     []byte
	CreatedAt   time.Time
}

// OutcomeStatus tags a [ConversionOutcome].
type OutcomeStatus int

const (
	StatusSucceeded OutcomeStatus = iota
	StatusRejected
	StatusFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	default:
		return ""
	}
}

// ConversionOutcome is the terminal result of one conversion. Exactly one
// outcome is produced per invocation.
type ConversionOutcome struct {
	Status   OutcomeStatus
	CacheHit bool // Succeeded without upload, served from the conversion cache

	// Destination identifiers, set on success for the Signal direction.
	DestID  []byte
	DestKey []byte

	// PackURL points at the resulting pack on the destination platform.
	PackURL string
	// SourceLink points back at the source pack, set on cache hits.
	SourceLink string

	// Reason describes a rejection or failure for display to the caller.
	Reason string
	// RetryAfter advises when resubmitting may succeed, for rate limit failures.
	RetryAfter time.Duration
}

// Succeeded builds a successful outcome.
func Succeeded(destID, destKey []byte, packURL string) *ConversionOutcome {
	return &ConversionOutcome{
		Status:  StatusSucceeded,
		DestID:  destID,
		DestKey: destKey,
		PackURL: packURL,
	}
}

// CacheHit builds a successful outcome served from the conversion cache.
func CacheHit(destID, destKey []byte, packURL, sourceLink string) *ConversionOutcome {
	return &ConversionOutcome{
		Status:     StatusSucceeded,
		CacheHit:   true,
		DestID:     destID,
		DestKey:    destKey,
		PackURL:    packURL,
		SourceLink: sourceLink,
	}
}

// Rejected builds an outcome for a request that failed validation before any
// conversion work began.
func Rejected(reason string) *ConversionOutcome {
	return &ConversionOutcome{Status: StatusRejected, Reason: reason}
}

// Failed builds an outcome for a conversion that started but could not
// finish. retryAfter is zero unless the failure was a rate limit.
func Failed(reason string, retryAfter time.Duration) *ConversionOutcome {
	return &ConversionOutcome{Status: StatusFailed, Reason: reason, RetryAfter: retryAfter}
}

// SignalPackURL renders the public install link for a Signal pack.
func SignalPackURL(packID, packKey []byte) string {
	return fmt.Sprintf(
		"https://signal.art/addstickers/#pack_id=%s&pack_key=%s",
		hex.EncodeToString(packID), hex.EncodeToString(packKey),
	)
}

// TelegramPackURL renders the public install link for a Telegram pack.
func TelegramPackURL(shortName string) string {
	return "https://t.me/addstickers/" + shortName
}
