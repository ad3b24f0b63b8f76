package tasks

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/stickerbridge/internal/shared"
)

// Direction selects which way a conversion runs.
type Direction int

const (
	// DirectionToSignal converts a Telegram pack into a Signal pack.
	DirectionToSignal Direction = iota
	// DirectionToTelegram converts a Signal pack into a Telegram pack.
	DirectionToTelegram
)

func (d Direction) String() string {
	switch d {
	case DirectionToSignal:
		return "to_signal"
	case DirectionToTelegram:
		return "to_telegram"
	default:
		return ""
	}
}

// PackRef is a parsed public sticker pack reference. The reference form
// determines the conversion direction.
type PackRef struct {
	Direction Direction

	// ShortName is set for Telegram references.
	ShortName string

	// PackID and PackKey are set for Signal references.
	PackID  []byte
	PackKey []byte
}

// ParseRef parses a public sticker pack link into a PackRef.
//
// Accepted forms:
//   - https://t.me/addstickers/<name>
//   - tg://addstickers?set=<name>
//   - https://signal.art/addstickers/#pack_id=<hex>&pack_key=<hex>
//   - sgnl://addstickers?pack_id=<hex>&pack_key=<hex>
func ParseRef(raw string) (*PackRef, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", shared.ErrInvalidRef, raw)
	}

	switch {
	case parsed.Scheme == "tg":
		name := parsed.Query().Get("set")
		if parsed.Host != "addstickers" || name == "" {
			return nil, fmt.Errorf("%w: %q", shared.ErrInvalidRef, raw)
		}
		return &PackRef{Direction: DirectionToSignal, ShortName: name}, nil

	case parsed.Host == "t.me":
		name := strings.TrimPrefix(parsed.Path, "/addstickers/")
		if name == parsed.Path || name == "" || strings.Contains(name, "/") {
			return nil, fmt.Errorf("%w: %q", shared.ErrInvalidRef, raw)
		}
		return &PackRef{Direction: DirectionToSignal, ShortName: name}, nil

	case parsed.Scheme == "sgnl":
		if parsed.Host != "addstickers" {
			return nil, fmt.Errorf("%w: %q", shared.ErrInvalidRef, raw)
		}
		return parseSignalRef(raw, parsed.Query())

	case parsed.Host == "signal.art":
		// pack_id and pack_key live in the fragment so they never reach
		// the server when the link is opened in a browser
		values, err := url.ParseQuery(parsed.Fragment)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", shared.ErrInvalidRef, raw)
		}
		return parseSignalRef(raw, values)

	default:
		return nil, fmt.Errorf("%w: %q", shared.ErrInvalidRef, raw)
	}
}

func parseSignalRef(raw string, values url.Values) (*PackRef, error) {
	packID, err := hex.DecodeString(values.Get("pack_id"))
	if err != nil || len(packID) == 0 {
		return nil, fmt.Errorf("%w: %q", shared.ErrInvalidRef, raw)
	}

	packKey, err := hex.DecodeString(values.Get("pack_key"))
	if err != nil || len(packKey) == 0 {
		return nil, fmt.Errorf("%w: %q", shared.ErrInvalidRef, raw)
	}

	return &PackRef{Direction: DirectionToTelegram, PackID: packID, PackKey: packKey}, nil
}
