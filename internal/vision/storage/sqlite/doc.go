// Package sqlite persists behavior events and per-track lifetime
// summaries. It speaks the schema owned by internal/db's migrations and
// holds all the SQL, so neither the engine nor the monitor ever builds a
// query.
//
// Events are written as they are emitted and queried by the monitor's
// /api/events handler. Track summaries are written once per track, when
// the store evicts it, and feed dwell-time reporting.
package sqlite
