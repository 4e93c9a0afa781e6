// Package config loads tether settings and highlight rules.
//
// # Configuration Discovery
//
// Load follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/tether/config.toml
//  3. If the file doesn't exist, fall back to Default()
//  4. Fields missing from the file keep their defaults
//
// # TOML Format
//
//	max_lines = 4000
//	render_interval_ms = 100
//	poll_interval_ms = 50
//	search_chunk = 500
//	log_dir = "~/.local/share/tether/logs"
//	log_prefix = "tether_"
//	log_timestamp_layout = "2006-01-02_15-04-05"
//	log_extension = ".log"
//	baud_rate = 115200
//	default_connection = "/dev/ttyUSB0"
//	hide_patterns = ["^\\S+ heartbeat"]
//	hide_enabled = false
//
//	[[rules]]
//	name = "error"
//	pattern = "(?i)error"
//	color = "#c94f6d"
//
// Rules may instead live in a separate file named by rules_file, written in
// TOML or YAML (.yaml/.yml) with the same rules and hide_patterns keys. A
// relative rules_file is resolved against the config file's directory.
//
// # Validation
//
// Rule patterns and hide patterns must compile as Go regular expressions and
// colors must be #RRGGBB or an ANSI palette index. Rejected values are
// reported as *ValidationError; the search bar uses the same error type for
// invalid queries.
package config
