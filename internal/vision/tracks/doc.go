// Package tracks owns the authoritative per-object state of the analytics
// core: one Track per physical object currently (or recently) observed by
// the upstream detector, plus a bounded position history per track.
//
// Responsibilities: frame ingestion and per-record validation, track
// lifecycle (creation, update, timeout eviction), bounded history retention,
// and the windowed displacement queries the behavior engine is built on
// (IsStatic, Duration).
//
// Histories outlive their tracks: eviction removes the Track but keeps the
// history so a briefly occluded object resumes its dwell measurement when
// it returns. PruneHistory is the final memory bound for ids that never do.
//
// Dependency rule: this package may depend on internal/vision and
// internal/config only. No event emission and no SQL here.
package tracks
