package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/five82/tether/internal/app"
	"github.com/five82/tether/internal/source"
)

// Version is set at build time.
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(app.Run).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tether: %v\n", err)
		return 1
	}
	return 0
}

type runFunc func(context.Context, app.Options) error

func newRootCmd(runApp runFunc) *cobra.Command {
	var opts app.Options

	cmd := &cobra.Command{
		Use:   "tether [log file]",
		Short: "Watch serial, network and piped logs live",
		Long: `tether shows a live log stream with highlighting, search and a saved
copy of every session. Connections are serial ports (/dev/ttyUSB0@9600),
tcp://host:port, telnet://host[:port], file:path or - for stdin.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.File = args[0]
			}
			opts.Stdin = cmd.InOrStdin()
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			return runApp(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.ConfigPath, "config", "", "config path (default ~/.config/tether/config.toml)")
	flags.StringVar(&opts.PrefsPath, "prefs", "", "preferences path (default ~/.config/tether/prefs.toml)")
	flags.StringVarP(&opts.Connect, "connect", "c", "", "connect on start")
	flags.BoolVar(&opts.Console, "console", false, "also write diagnostics to stderr")
	flags.BoolVar(&opts.Debug, "debug", false, "log debug detail")
	flags.BoolVar(&opts.Headless, "plain", false, "print lines without the terminal UI")

	cmd.AddCommand(newPortsCmd(), newVersionCmd())
	return cmd
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := source.Ports()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "no serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of tether",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tether version: %s\n", Version)
		},
	}
}
