package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"n2nmaid/cmd/n2nmaid/ui"
	"n2nmaid/config"
	"n2nmaid/internal/api"
	"n2nmaid/internal/supervisor"
)

// overrideFlags maps connect flags onto config keys.
var overrideFlags = []struct {
	flag, key, usage string
}{
	{"supernode", "supernode", "Supernode host:port"},
	{"community", "community", "Community name"},
	{"username", "username", "Node name (default hostname)"},
	{"key", "encryption_key", "Encryption key"},
	{"ip-mode", "ip_mode", "Address mode (dhcp, static)"},
	{"static-ip", "static_ip", "Static address with prefix, e.g. 10.0.0.5/24"},
	{"mtu", "mtu", "Tap MTU"},
	{"tap", "tap_device", "Tap device name"},
	{"edge", "edge_path", "Path to the edge binary"},
	{"extra-args", "extra_args", "Extra edge arguments"},
}

func connectCmd(root *rootFlags) *cobra.Command {
	var (
		listen      string
		save        bool
		showPeers   bool
		stopTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Run the edge in the foreground until interrupted",
		Long: "Starts the n2n edge with the stored config and any flag overrides, prints its\n" +
			"output and connection status, and stops it on SIGINT or SIGTERM.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if err := applyOverrides(cmd, &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if save {
				if err := cfg.SaveFile(configPath(root.configPath)); err != nil {
					return err
				}
			}

			if root.trace {
				shutdown, err := setupTracing(os.Stderr)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sup := supervisor.New(supervisor.WithStopTimeout(stopTimeout))
			return runForeground(ctx, cmd, sup, cfg, foregroundOptions{
				listen:      listen,
				showPeers:   showPeers,
				stopTimeout: stopTimeout,
			})
		},
	}

	for _, f := range overrideFlags {
		cmd.Flags().String(f.flag, "", f.usage)
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Serve the HTTP API on this address, e.g. "+api.DefaultAddr)
	cmd.Flags().BoolVar(&save, "save", false, "Write the effective config back to the config file")
	cmd.Flags().BoolVar(&showPeers, "peers", false, "Print the peer table when it changes")
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", supervisor.DefaultStopTimeout, "Graceful stop timeout before the edge is killed")
	return cmd
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	for _, f := range overrideFlags {
		if !cmd.Flags().Changed(f.flag) {
			continue
		}
		v, _ := cmd.Flags().GetString(f.flag)
		if err := cfg.Set(f.key, v); err != nil {
			return fmt.Errorf("--%s: %w", f.flag, err)
		}
	}
	return nil
}

type foregroundOptions struct {
	listen      string
	showPeers   bool
	stopTimeout time.Duration
}

func runForeground(ctx context.Context, cmd *cobra.Command, sup *supervisor.Supervisor, cfg config.Config, opts foregroundOptions) error {
	out := cmd.OutOrStdout()

	if err := sup.Start(ctx, cfg); err != nil {
		return fmt.Errorf("start edge: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.listen != "" {
		srv := api.New(sup,
			api.DefaultMetrics(),
			api.WithConfigLoader(func() (config.Config, error) { return cfg, nil }))
		g.Go(func() error { return srv.ListenAndServe(gctx, opts.listen) })
	}
	g.Go(func() error {
		return follow(gctx, sup, out, followOptions{
			showPeers: opts.showPeers,
			// With the API up a client may reconnect after a failure.
			exitOnError: opts.listen == "",
		})
	})
	runErr := g.Wait()

	fmt.Fprintln(out, ui.InfoMsg("stopping edge"))
	closeCtx, cancel := context.WithTimeout(context.Background(), opts.stopTimeout+10*time.Second)
	defer cancel()
	if err := sup.Close(closeCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("stop edge: %w", err))
	}
	drain(sup, out)
	fmt.Fprintln(out, ui.StatusMsg(sup.Status()))
	return runErr
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func configPath(path string) string {
	if path == "" {
		return config.Path()
	}
	return path
}

func formatMTU(n int) string {
	if n == 0 {
		return "-"
	}
	return strconv.Itoa(n)
}
