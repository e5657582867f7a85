package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/config"

	"github.com/spf13/cobra"
)

func CheckConfig() *cobra.Command {
	var checkConfigFile string
	var checkConfigStrict bool
	var checkConfigCmd = &cobra.Command{
		Use:   "checkconfig",
		Short: "Check configuration file",
		Long:  `Check BungeeGuard configuration file`,
		Run: func(cmd *cobra.Command, args []string) {
			checkConfig(cmd, checkConfigFile, checkConfigStrict)
		},
	}
	checkConfigCmd.Flags().StringVarP(&checkConfigFile, "config", "c", "config.yml", "path to config file to check")
	checkConfigCmd.Flags().BoolVarP(&checkConfigStrict, "strict", "s", false, "strict check - fail on unknown fields")
	return checkConfigCmd
}

func checkConfig(cmd *cobra.Command, checkConfigFile string, strict bool) {
	if err := validateConfigFile(cmd, checkConfigFile, strict); err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
}

func validateConfigFile(cmd *cobra.Command, checkConfigFile string, strict bool) error {
	cfg, cfgMeta, err := config.GetConfig(cmd, checkConfigFile)
	if err != nil {
		return fmt.Errorf("error getting config: %w", err)
	}
	if cfgMeta.FileNotFound {
		return fmt.Errorf("config file not found")
	}
	err = cfg.Validate()
	if err != nil {
		return fmt.Errorf("error validating config: %w", err)
	}
	if strict && len(cfgMeta.UnknownKeys) > 0 {
		return fmt.Errorf("unknown keys in config: %v", strings.Join(cfgMeta.UnknownKeys, ", "))
	}
	return nil
}
