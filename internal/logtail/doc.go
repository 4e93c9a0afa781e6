// Package logtail reads the tail of an existing log file.
//
// # Overview
//
// Read extracts the last N lines of a file with a ring buffer, so memory use
// is bounded by N regardless of file size. Load feeds those lines into the
// highlight stage when tether is started with a log file argument, which lets
// a saved session be reviewed and searched with the live highlight rules.
//
// Lines longer than 1 MiB fail the read rather than being split. Carriage
// returns left by CRLF files are dropped.
package logtail
