package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"n2nmaid/cmd/n2nmaid/ui"
	"n2nmaid/internal/buildinfo"
	"n2nmaid/internal/logging"
)

type rootFlags struct {
	debug      bool
	logFormat  string
	trace      bool
	noColor    bool
	configPath string
}

func main() {
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "n2nmaid",
		Short:         "Supervise an n2n edge and report its connection state",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if flags.debug {
				level = logging.LevelDebug
			}
			ui.ConfigureColor(flags.noColor)
			return logging.ConfigureWith(os.Stderr, level, flags.logFormat)
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&flags.logFormat, "log-format", logging.FormatText, "Log format (text, json)")
	pf.BoolVar(&flags.trace, "trace", false, "Print trace spans to stderr")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable coloured output")
	pf.StringVar(&flags.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/n2nmaid/config.yaml)")

	cmd.AddCommand(connectCmd(&flags))
	cmd.AddCommand(configCmd(&flags))
	cmd.AddCommand(remoteCmd())
	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Version)
		},
	}
}
