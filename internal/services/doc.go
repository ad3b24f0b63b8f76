// Package services defines the [SourceClient] and [DestinationClient] interfaces for sticker platforms and implements them for Telegram and Signal.
//
// # Client Interfaces
//
// Both platforms are reached over plain HTTP, so conversion logic can work uniformly against either direction.
//
// # Telegram Implementation
//
// [TelegramClient] talks to the Bot API with a static bot token embedded in the request path.
//
// Pack listings come from getStickerSet, item payloads from getFile followed by a file download, and reverse-direction pack creation uses createNewStickerSet and addStickerToSet.
//
// # Signal Implementation
//
// [SignalClient] talks to the sticker pack service with per-account basic auth.
//
// Pack keys are generated client side before upload; the service never sees an unkeyed pack. Fetching a pack requires both the pack id and its key.
//
// # Error Handling
//
// Clients use typed errors from shared package:
//   - [shared.ErrPackNotFound] : pack short name or id unknown to the platform
//   - [shared.ErrNameCollision] : short name already taken on pack creation
//   - [shared.ErrProviderThrottled] : platform returned HTTP 429
//   - [shared.ErrProvider] : any other non-2xx platform response
//
// # Fingerprints
//
// [TelegramClient.FetchMetadata] digests the pack name and the platform's stable per-file identifiers with BLAKE3, so the same listing always produces the same fingerprint regardless of item payload bytes.
package services
