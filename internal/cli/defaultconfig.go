package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/config"
	"github.com/bungeeguard/bungeeguard/internal/tools"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func DefaultConfigCommand() *cobra.Command {
	var defaultConfigFile string
	var defaultConfigCmd = &cobra.Command{
		Use:   "defaultconfig",
		Short: "Generate full configuration file with defaults",
		Long:  `Generate full BungeeGuard configuration file with defaults`,
		Run: func(cmd *cobra.Command, args []string) {
			DefaultConfig(defaultConfigFile)
		},
	}
	defaultConfigCmd.Flags().StringVarP(&defaultConfigFile, "config", "c", "config.yml", "path to default config file to generate")
	return defaultConfigCmd
}

func DefaultConfig(configFile string) {
	if err := writeDefaultConfig(configFile); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}

var supportedExtensions = []string{"json", "toml", "yaml", "yml"}

func writeDefaultConfig(configFile string) error {
	if tools.FileExists(configFile) {
		return errors.New("target file already exists")
	}
	conf, _, err := config.GetConfig(nil, "")
	if err != nil {
		return err
	}
	if err = conf.Validate(); err != nil {
		return err
	}

	var b []byte
	switch strings.TrimPrefix(filepath.Ext(configFile), ".") {
	case "json":
		b, err = json.MarshalIndent(conf, "", "  ")
	case "toml":
		b, err = toml.Marshal(conf)
	case "yaml", "yml":
		b, err = yaml.Marshal(conf)
	default:
		err = errors.New("output config file must have one of supported extensions: " + strings.Join(supportedExtensions, ", "))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(configFile, b, 0644)
}
