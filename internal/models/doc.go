// Package models defines domain entities for the sticker bridge.
//
// The package contains three categories of types:
//
// 1. Transient pack data, owned by exactly one in-flight conversion:
//   - [StickerPack] : a titled, ordered collection of stickers plus an optional cover
//   - [Sticker] : one image with its position, emoji annotation and item kind
//   - [ItemKind] : the closed variant deciding how an item is processed
//
// 2. Durable records:
//   - [ConversionRecord] : the idempotency index row mapping a source pack
//     fingerprint to the destination pack identifiers
//
// 3. Results:
//   - [ConversionOutcome] : the tagged terminal result of one conversion
package models
