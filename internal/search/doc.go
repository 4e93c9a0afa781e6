// Package search implements incremental regex search over the rendered view.
//
// The Engine keeps results keyed by line numbers that stay valid while old
// lines are evicted from the top of the view: a result's view line is its
// Line minus the number of lines evicted since the query started. New lines
// reported by the render stage are scanned on arrival, so the whole view is
// only scanned when the query changes or the view is rebuilt.
//
// Full scans run in chunks posted to the scheduler so a large view never
// blocks the UI for long. Rendering is paused while a scan is in flight and
// resumed when it completes.
package search
