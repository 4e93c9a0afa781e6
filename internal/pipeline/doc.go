// Package pipeline moves records from a transport to the screen and to disk.
//
// # Stages
//
// A session flows through five stages, each owning its input queue:
//
//   - IngestStage: opens a Source, reports the resolved identity, reads records
//   - FormatStage: sanitizes payloads, stamps them and fans lines out
//   - HighlightStage: owns the LineBuffer, matches highlight rules, applies the hide filter
//   - RenderStage: applies render instructions to a Display on the scheduler thread
//   - PersistenceStage: appends formatted lines to the session log file
//
// Every worker except render is a goroutine polling its queue with a short
// timeout so a stop request is observed promptly. Render runs its tick through
// an Executor, which in the terminal UI posts onto the bubbletea event loop.
//
// # Supervisor
//
// Supervisor owns the stages and the connection state machine:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> DISCONNECTING -> DISCONNECTED
//
// Highlight and render live for the whole application. Persistence, format and
// ingest live for one connection and are torn down upstream first so that every
// line read before a disconnect reaches the log file.
//
// # Reload
//
// A reload re-renders the entire LineBuffer. The highlight worker waits until
// render is idle, emits the buffer as one batch and blocks until render has
// applied it, so the view never interleaves reload output with live lines.
//
// # Errors
//
// TransportError and PersistenceError end a session; the supervisor answers
// them with a forced disconnect. ErrAlreadyStarted and ErrNotStarted report
// lifecycle misuse and leave state unchanged.
package pipeline
