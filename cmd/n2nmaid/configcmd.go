package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"n2nmaid/cmd/n2nmaid/ui"
	"n2nmaid/config"
)

func configCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the stored connection config",
	}
	cmd.AddCommand(configShowCmd(root))
	cmd.AddCommand(configSetCmd(root))
	cmd.AddCommand(configPathCmd(root))
	return cmd
}

func configShowCmd(root *rootFlags) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the config with the encryption key masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			cfg = cfg.Redacted()
			out := cmd.OutOrStdout()

			if asYAML {
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("marshal config: %w", err)
				}
				_, err = out.Write(data)
				return err
			}

			fmt.Fprint(out, ui.KeyValues("  ",
				ui.KV("Supernode", cfg.Supernode),
				ui.KV("Community", cfg.Community),
				ui.KV("Username", cfg.Username),
				ui.KV("Key", cfg.EncryptionKey),
				ui.KV("IP mode", cfg.IPMode),
				ui.KV("Static IP", cfg.StaticIP),
				ui.KV("MTU", formatMTU(cfg.MTU)),
				ui.KV("Tap device", cfg.TapDevice),
				ui.KV("Edge", cfg.EdgePath),
				ui.KV("Extra args", cfg.ExtraArgs),
			))
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(out, ui.WarnMsg("%v", err))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print as YAML")
	return cmd
}

func configSetCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one config key, e.g. `config set community lab`",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(root.configPath)
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.SaveFile(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessMsg("%s updated", args[0]))
			return nil
		},
	}
}

func configPathCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), configPath(root.configPath))
		},
	}
}
