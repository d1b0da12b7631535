// Package behavior turns track state transitions into debounced behavior
// events. Once per video frame the engine ingests detections through the
// track store, then runs a fixed sequence of checks:
//
//  1. appearance: ids created by this frame's ingest
//  2. static: sustained sub-tolerance displacement over the long window
//  3. moving: flagged-static ids re-tested over the short window
//  4. eviction and per-id bookkeeping GC
//  5. retained-events ring trim
//
// Emitted events are immutable snapshots (never live track references),
// delivered best-effort to registered listeners: a panicking listener is
// recovered and logged and cannot block the frame loop or other listeners.
//
// The engine assumes frames arrive in non-decreasing time order from a
// single goroutine. The mutex exists so monitoring handlers can read the
// ring and counters concurrently, not to make AnalyzeFrame reentrant.
package behavior
