// Package tasks orchestrates sticker pack conversions between platforms with real-time progress reporting.
//
// # Core Operations
//
// The [Engine] interface defines two operations:
//
//   - ToSignal: Telegram → Signal. Items are fetched and converted concurrently, one goroutine per
//     item, and assembled back into source order. The result is uploaded under an account drawn from
//     the [ratelimit.AccountPool] and recorded in the conversion cache so repeated requests for the
//     same pack return the existing Signal pack without consuming tokens.
//   - ToTelegram: Signal → Telegram. Items are recoded strictly sequentially, paced by a
//     [rate.Limiter], because the platform throttles per call. Identity is derived, not cached: the
//     destination short name is a deterministic function of the source pack id, so a repeat
//     conversion finds the existing pack by name.
//
// # Progress Reporting
//
// Both operations accept an optional channel of [ProgressUpdate]. Sends never block: a full or
// absent channel drops updates rather than stalling conversion work. The terminal update carries
// the [models.ConversionOutcome], which is also returned.
//
// # Transcode Gate
//
// Rendering heavy animated items is the most expensive step in the pipeline, so all conversions in
// the process share a single capacity-1 [Gate] around the transcoder. The gate is owned by the
// engine and passed nowhere else; there is no package-level state.
//
// # Outcomes
//
// Every invocation ends in exactly one of Succeeded, Rejected (validation said no before work
// started), or Failed (work started but could not finish). Failures caused by rate limits carry an
// advisory retry-after derived from [ratelimit.AccountPool.MinWaitTime]. Storage failures are not
// outcomes: they propagate as errors, since idempotency and rate limit correctness both depend on
// durable state being authoritative.
package tasks
