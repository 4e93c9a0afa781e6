// Package ui is the Bubble Tea terminal for tether.
//
// LineView holds the rendered lines: the render stage drives it as a
// pipeline.Display and the search engine scans it as a search.Index. Both
// run on the Bubble Tea update loop, reached from other goroutines through
// the Scheduler, whose Post method is the pipeline executor.
//
// Model owns the viewport, the prompt line (search, connect, rename) and the
// status bars. Calls into the pipeline that can wait on the update loop run as
// commands so the loop keeps ticking.
//
// Printer is the Display used when stdout is not a terminal.
package ui
