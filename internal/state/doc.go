// Package state provides thread-safe status sharing for the tether UI.
//
// # Overview
//
// The pipeline supervisor publishes a pipeline.Status on every connection
// state change, and a poller refreshes live counters (lines and bytes written,
// buffered lines, queued render work). The UI reads a Snapshot on each status
// tick. Store mediates between these goroutines:
//
//	Producers:                      Consumer (UI):
//	  supervisor OnStatus ─┐
//	                       ├─ Store ──→ Snapshot() → status bar
//	  poller SetCounts ────┘
//
// Snapshots are copies; callers never see a partially applied update.
//
// # Failure Tracking
//
// A status carrying an error increments FailedConnect once per distinct error
// and keeps it in LastError. Reaching CONNECTED clears both.
package state
