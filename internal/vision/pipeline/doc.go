// Package pipeline wires the per-frame analysis flow for one camera feed.
//
// It is the composition root: it imports the track store, behavior
// engine, storage, dispatch, and monitor packages, and none of those
// packages import pipeline/. The callback built here is handed to
// whatever frame source drives the process, either the HTTP ingest
// route or a recorded detection log.
package pipeline
