// Package app is the composition root for tether.
//
// Run loads the config, opens the rotating log, and builds one pipeline
// supervisor whose Display is either the interactive LineView or a plain
// Printer:
//
//	Run()
//	 ├─> config.Load()          read ~/.config/tether/config.toml
//	 ├─> logging.New()          zap logger writing tether.log
//	 ├─> newRuleSource()        rules reread on every highlight restart
//	 ├─> source.Dialer{}        serial, tcp, telnet, file and stdin
//	 └─> runInteractive()       or runHeadless() when stdout is not a tty
//
// Interactive runs start three goroutines under one errgroup: the status
// poller copying supervisor counters into state.Store, the initial connect,
// and the bubbletea program. Quitting the UI cancels the others.
//
// Headless runs print lines as they render and return once the session
// ends, after draining queued lines for at most two seconds. A read that
// ends with EOF is a clean exit.
package app
