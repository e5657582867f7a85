package app

import (
	"github.com/bungeeguard/bungeeguard/internal/config"
	"github.com/spf13/cobra"
)

func BungeeGuard() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "bungeeguard",
		Short: "BungeeGuard",
		Long:  "BungeeGuard – token based verification of forwarded proxy handshakes",
		Run: func(cmd *cobra.Command, args []string) {
			Run(cmd, configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "config.yml", "path to config file")
	config.DefineFlags(cmd)
	return cmd
}
