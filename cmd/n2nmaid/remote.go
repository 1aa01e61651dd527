package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"n2nmaid/cmd/n2nmaid/ui"
	"n2nmaid/internal/api"
	"n2nmaid/sdk"
)

// remoteCmd drives an edge owned by another n2nmaid process through its
// HTTP API.
func remoteCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Control a running n2nmaid through its HTTP API",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", api.DefaultAddr, "API address")
	client := func() *sdk.Client { return sdk.New(addr) }

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show connection status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := client().Status(cmd.Context())
			if err != nil {
				return err
			}
			pairs := []ui.Pair{ui.KV("Status", ui.StatusText(rep.Status))}
			if rep.Reason != "" {
				pairs = append(pairs, ui.KV("Error", rep.Reason))
			}
			if n := rep.NetworkInfo; n != nil {
				pairs = append(pairs,
					ui.KV("Interface", n.Interface),
					ui.KV("IP", n.IP),
					ui.KV("Mask", n.Mask),
					ui.KV("MAC", n.MAC))
			}
			if hb := rep.Heartbeat; hb != nil && hb.LastSuper > 0 {
				pairs = append(pairs, ui.KV("Last supernode", time.Unix(int64(hb.LastSuper), 0).Format(time.RFC3339)))
			}
			if rep.Notice != "" {
				pairs = append(pairs, ui.KV("Notice", ui.Warn(rep.Notice)))
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.KeyValues("  ", pairs...))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "peers",
		Short: "List peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := client().Peers(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), ui.Muted("no peers"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.PeerTable(list))
			return nil
		},
	})

	var consumer string
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print edge output not yet seen by this consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := client().Logs(cmd.Context(), consumer)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fmt.Fprintln(cmd.OutOrStdout(), ui.LogLine(rec))
			}
			return nil
		},
	}
	logsCmd.Flags().StringVar(&consumer, "consumer", "remote-cli", "Consumer name for the read cursor")
	cmd.AddCommand(logsCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "connect",
		Short: "Start the edge with the server's stored config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := client().Connect(cmd.Context(), nil)
			if sdk.IsAlreadyRunning(err) {
				fmt.Fprintln(cmd.OutOrStdout(), ui.WarnMsg("edge already running"))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.StatusMsg(rep))
			return nil
		},
	})

	var force bool
	disconnectCmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Stop the edge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := client().Disconnect(cmd.Context(), force)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.StatusMsg(rep))
			return nil
		},
	}
	disconnectCmd.Flags().BoolVar(&force, "force", false, "Kill the edge without a graceful stop")
	cmd.AddCommand(disconnectCmd)

	return cmd
}
