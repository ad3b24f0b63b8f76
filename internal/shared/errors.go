package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Conversion errors
	ErrInvalidRef      = fmt.Errorf("unrecognized sticker pack reference")
	ErrPackNotFound    = fmt.Errorf("sticker pack not found")
	ErrUnsupportedPack = fmt.Errorf("unsupported sticker pack variant")
	ErrItemFormat      = fmt.Errorf("unrecognized sticker format")

	// Rate limit errors
	ErrRateLimited       = fmt.Errorf("no account with rate limit tokens remaining")
	ErrProviderThrottled = fmt.Errorf("provider reported rate limit")

	// Upstream service errors
	ErrProvider           = fmt.Errorf("provider request failed")
	ErrNameCollision      = fmt.Errorf("pack name already taken")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
)
